package httpadapter

import (
	"net/http"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

type createStudyPackRequest struct {
	UserID               string   `json:"user_id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	AreasOfConcentration []string `json:"areas_of_concentration"`
}

func (rt *Router) createStudyPack(w http.ResponseWriter, r *http.Request) {
	var req createStudyPackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "create study pack", err))
		return
	}
	if err := rt.authorizeUser(r, req.UserID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}

	pack, err := rt.services.StudyPacks.CreateStudyPack(r.Context(), domain.StudyPack{
		OwnerID:              req.UserID,
		Title:                req.Title,
		Description:          req.Description,
		AreasOfConcentration: req.AreasOfConcentration,
	})
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, pack)
}

func (rt *Router) listStudyPacks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if err := rt.authorizeUser(r, userID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}

	packs, err := rt.services.StudyPacks.ListStudyPacks(r.Context(), userID)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"study_packs": packs})
}

// getStudyPack answers 404 for packs owned by someone else.
func (rt *Router) getStudyPack(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if err := rt.authorizeUser(r, userID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}

	details, err := rt.services.StudyPacks.GetStudyPack(r.Context(), userID, r.PathValue("pack_id"))
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}
