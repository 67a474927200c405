package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

// parseArtifactPayload turns raw model output into a validated payload. Any shape
// mismatch is ErrSchemaValidation and fails the run.
func parseArtifactPayload(kind domain.ArtifactKind, raw string) (json.RawMessage, error) {
	switch kind {
	case domain.KindSummary:
		payload := domain.SummaryPayload{Text: strings.TrimSpace(raw)}
		if err := payload.Validate(); err != nil {
			return nil, err
		}
		return marshalPayload(payload)
	case domain.KindMindMap:
		var payload domain.MindMapPayload
		if err := decodeStrict(raw, &payload); err != nil {
			return nil, err
		}
		if err := payload.Validate(); err != nil {
			return nil, err
		}
		return marshalPayload(payload)
	case domain.KindFlashCards:
		var payload domain.FlashCardsPayload
		if err := decodeStrict(raw, &payload); err != nil {
			return nil, err
		}
		if err := payload.Validate(); err != nil {
			return nil, err
		}
		return marshalPayload(payload)
	}
	return nil, domain.WrapError(domain.ErrInvalidInput, "parse artifact", fmt.Errorf("unknown kind %q", kind))
}

func decodeStrict(raw string, out any) error {
	dec := json.NewDecoder(strings.NewReader(extractJSONObject(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return domain.WrapError(domain.ErrSchemaValidation, "decode model output", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.WrapError(domain.ErrSchemaValidation, "decode model output", errors.New("trailing data after json object"))
	}
	return nil
}

// extractJSONObject drops prose or code fences around the outermost object.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func marshalPayload(payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact payload: %w", err)
	}
	return data, nil
}

func summaryText(artifact *domain.Artifact) (string, error) {
	var payload domain.SummaryPayload
	if err := json.Unmarshal(artifact.Payload, &payload); err != nil {
		return "", fmt.Errorf("decode summary artifact: %w", err)
	}
	return strings.TrimSpace(payload.Text), nil
}
