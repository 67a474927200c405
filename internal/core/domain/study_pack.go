package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxStudyPackTitleRunes = 200
	maxStudyPackAreas      = 20
)

// StudyPack groups a user's documents under one course or exam.
type StudyPack struct {
	ID                   string    `json:"id"`
	OwnerID              string    `json:"owner_id"`
	Title                string    `json:"title"`
	Description          string    `json:"description,omitempty"`
	AreasOfConcentration []string  `json:"areas_of_concentration"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Normalize trims the text fields and drops blank or repeated areas.
func (p *StudyPack) Normalize() {
	p.OwnerID = strings.TrimSpace(p.OwnerID)
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(SanitizeText(p.Description))

	seen := make(map[string]bool, len(p.AreasOfConcentration))
	areas := make([]string, 0, len(p.AreasOfConcentration))
	for _, area := range p.AreasOfConcentration {
		area = strings.TrimSpace(area)
		key := strings.ToLower(area)
		if area == "" || seen[key] {
			continue
		}
		seen[key] = true
		areas = append(areas, area)
	}
	p.AreasOfConcentration = areas
}

func (p *StudyPack) Validate() error {
	switch {
	case p.OwnerID == "":
		return WrapError(ErrInvalidInput, "validate study pack", errors.New("owner id is required"))
	case p.Title == "":
		return WrapError(ErrInvalidInput, "validate study pack", errors.New("title is required"))
	case utf8.RuneCountInString(p.Title) > maxStudyPackTitleRunes:
		return WrapError(ErrInvalidInput, "validate study pack", fmt.Errorf("title exceeds %d characters", maxStudyPackTitleRunes))
	case len(p.AreasOfConcentration) > maxStudyPackAreas:
		return WrapError(ErrInvalidInput, "validate study pack", fmt.Errorf("at most %d areas of concentration", maxStudyPackAreas))
	}
	return nil
}

// StudyPackDetails is a pack with the documents filed under it.
type StudyPackDetails struct {
	StudyPack
	Documents []Document `json:"documents"`
}

// DocumentFilter selects an owner's documents for the library view.
type DocumentFilter struct {
	OwnerID     string
	StudyPackID string
	// TitleContains matches case-insensitively.
	TitleContains string
	Limit         int
}
