package usecase

import (
	"fmt"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

func buildCondensePrompt(kind domain.ArtifactKind, cfg domain.GenerationConfig, chunk string, part, total int) string {
	focus := "key concepts, definitions, formulas, examples and their relationships"
	if kind == domain.KindSummary {
		focus = "main themes, key concepts, formulas, important examples, dates and figures"
	}
	return fmt.Sprintf(`You are an expert educator in %s condensing a %s-level %s.
This is part %d of %d. Keep only %s.
Use concise bullet points. Do not add facts that are not in the text.

Text:
%s
`, cfg.Subject, cfg.AcademicLevel, cfg.DocumentType, part, total, focus, chunk)
}

func buildGenerationPrompt(kind domain.ArtifactKind, cfg domain.GenerationConfig, context string, flashCardCount int) string {
	switch kind {
	case domain.KindMindMap:
		return buildMindMapPrompt(cfg, context)
	case domain.KindFlashCards:
		return buildFlashCardsPrompt(cfg, context, flashCardCount)
	default:
		return buildSummaryPrompt(cfg, context)
	}
}

func buildSummaryPrompt(cfg domain.GenerationConfig, context string) string {
	return fmt.Sprintf(`As an expert educator in %[1]s, write a study summary of this %[2]s-level %[3]s.
Structure: a short introduction, the main body grouped by theme with clear headings, and a short conclusion.
Explain the 5-7 most important concepts, keep critical formulas and examples, and end with a glossary
of essential terms and 3-5 review questions. Use language appropriate for %[2]s students.

Material:
%[4]s
`, cfg.Subject, cfg.AcademicLevel, cfg.DocumentType, context)
}

func buildMindMapPrompt(cfg domain.GenerationConfig, context string) string {
	return fmt.Sprintf(`As an expert in %[1]s education, build a mind map of this %[2]s-level %[3]s.
The root is the main topic. Use 3-7 main branches and go as deep as the material needs.
Node names are short and descriptive.
Return strict JSON object matching:
{"data": {"name": string, "children": [ ...same node shape... ]}}
No markdown, no extra keys.

Material:
%[4]s
`, cfg.Subject, cfg.AcademicLevel, cfg.DocumentType, context)
}

func buildFlashCardsPrompt(cfg domain.GenerationConfig, context string, count int) string {
	return fmt.Sprintf(`You are a tutor writing flash cards for %[2]s-level %[1]s from a %[3]s.
Create exactly %[5]d cards. Mix recall, understanding, application and analysis questions.
Difficulty split: about 20%% easy, 60%% medium, 20%% hard.
Return strict JSON object matching:
{"data": [{"question": string, "answer": string, "difficulty": "easy" | "medium" | "hard"}]}
No markdown, no extra keys.

Material:
%[4]s
`, cfg.Subject, cfg.AcademicLevel, cfg.DocumentType, context, count)
}
