package domain

import (
	"fmt"
	"strings"
	"time"
)

// ArtifactKind names a generated derivative of a document.
type ArtifactKind string

const (
	KindSummary    ArtifactKind = "summary"
	KindMindMap    ArtifactKind = "mind_map"
	KindFlashCards ArtifactKind = "flash_cards"
)

// ArtifactKinds lists every kind in a stable order.
var ArtifactKinds = []ArtifactKind{KindSummary, KindMindMap, KindFlashCards}

func ParseArtifactKind(raw string) (ArtifactKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch ArtifactKind(normalized) {
	case KindSummary, KindMindMap, KindFlashCards:
		return ArtifactKind(normalized), nil
	case "mindmap":
		return KindMindMap, nil
	case "flashcards":
		return KindFlashCards, nil
	}
	return "", WrapError(ErrInvalidInput, "parse artifact kind", fmt.Errorf("unknown kind %q", raw))
}

func (k ArtifactKind) Valid() bool {
	switch k {
	case KindSummary, KindMindMap, KindFlashCards:
		return true
	}
	return false
}

type Document struct {
	ID               string           `json:"id"`
	OwnerID          string           `json:"owner_id"`
	Title            string           `json:"title"`
	Filename         string           `json:"filename,omitempty"`
	MimeType         string           `json:"mime_type,omitempty"`
	StoragePath      string           `json:"-"`
	StudyPackID      string           `json:"study_pack_id,omitempty"`
	Content          string           `json:"content,omitempty"`
	SummaryStatus    GenerationStatus `json:"summary_status"`
	MindMapStatus    GenerationStatus `json:"mind_map_status"`
	FlashCardsStatus GenerationStatus `json:"flash_cards_status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// StatusOf returns the generation status tracked for kind.
func (d *Document) StatusOf(kind ArtifactKind) GenerationStatus {
	var status GenerationStatus
	switch kind {
	case KindSummary:
		status = d.SummaryStatus
	case KindMindMap:
		status = d.MindMapStatus
	case KindFlashCards:
		status = d.FlashCardsStatus
	}
	if status == "" {
		return StatusNone
	}
	return status
}

// SetStatus updates the in-memory status for kind.
func (d *Document) SetStatus(kind ArtifactKind, status GenerationStatus) {
	switch kind {
	case KindSummary:
		d.SummaryStatus = status
	case KindMindMap:
		d.MindMapStatus = status
	case KindFlashCards:
		d.FlashCardsStatus = status
	}
}

var controlCharReplacer = strings.NewReplacer("\u0000", "", "\u001F", "", "\u007F", "")

// SanitizeText strips the control characters the relational store rejects or mangles.
func SanitizeText(text string) string {
	return controlCharReplacer.Replace(text)
}
