package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Artifact is the single live generated payload for a (document, kind) pair.
type Artifact struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	UserID     string          `json:"user_id"`
	Kind       ArtifactKind    `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

type SummaryPayload struct {
	Text string `json:"text"`
}

func (p SummaryPayload) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return WrapError(ErrSchemaValidation, "validate summary", errors.New("empty summary text"))
	}
	return nil
}

type MindMapNode struct {
	Name     string        `json:"name"`
	Children []MindMapNode `json:"children,omitempty"`
}

type MindMapPayload struct {
	Data MindMapNode `json:"data"`
}

func (p MindMapPayload) Validate() error {
	if err := validateMindMapNode(p.Data, "data"); err != nil {
		return WrapError(ErrSchemaValidation, "validate mind map", err)
	}
	return nil
}

func validateMindMapNode(node MindMapNode, path string) error {
	if strings.TrimSpace(node.Name) == "" {
		return fmt.Errorf("%s.name is empty", path)
	}
	for i, child := range node.Children {
		if err := validateMindMapNode(child, fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type FlashCard struct {
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Difficulty Difficulty `json:"difficulty"`
}

type FlashCardsPayload struct {
	Data []FlashCard `json:"data"`
}

func (p FlashCardsPayload) Validate() error {
	if len(p.Data) == 0 {
		return WrapError(ErrSchemaValidation, "validate flash cards", errors.New("no cards"))
	}
	for i, card := range p.Data {
		switch {
		case strings.TrimSpace(card.Question) == "":
			return WrapError(ErrSchemaValidation, "validate flash cards", fmt.Errorf("data[%d].question is empty", i))
		case strings.TrimSpace(card.Answer) == "":
			return WrapError(ErrSchemaValidation, "validate flash cards", fmt.Errorf("data[%d].answer is empty", i))
		case !card.Difficulty.Valid():
			return WrapError(ErrSchemaValidation, "validate flash cards", fmt.Errorf("data[%d].difficulty %q", i, card.Difficulty))
		}
	}
	return nil
}

// GenerationConfig shapes the prompt for a generation request.
type GenerationConfig struct {
	DocumentType  string `json:"document_type,omitempty"`
	AcademicLevel string `json:"academic_level,omitempty"`
	Subject       string `json:"subject,omitempty"`
}

const (
	DefaultDocumentType  = "Study Note"
	DefaultAcademicLevel = "Undergraduate"
	DefaultSubject       = "General"
)

func (c GenerationConfig) WithDefaults() GenerationConfig {
	if strings.TrimSpace(c.DocumentType) == "" {
		c.DocumentType = DefaultDocumentType
	}
	if strings.TrimSpace(c.AcademicLevel) == "" {
		c.AcademicLevel = DefaultAcademicLevel
	}
	if strings.TrimSpace(c.Subject) == "" {
		c.Subject = DefaultSubject
	}
	return c
}
