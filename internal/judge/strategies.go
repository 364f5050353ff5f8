package judge

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

func multipleChoice(_ context.Context, ex *domain.Exercise, raw json.RawMessage) (domain.Verdict, error) {
	content, ok := ex.Content.(domain.MultipleChoice)
	if !ok {
		return incorrect("exercise content does not match its kind"), nil
	}
	answer, ok := answerText(raw)
	if !ok {
		return incorrect("expected a text answer"), nil
	}
	return domain.Verdict{Correct: domain.AnswersEqual(answer, content.CorrectAnswer)}, nil
}

type fillBlankStrategy struct {
	semantic *SemanticJudge
}

func (s *fillBlankStrategy) Evaluate(ctx context.Context, ex *domain.Exercise, raw json.RawMessage) (domain.Verdict, error) {
	content, ok := ex.Content.(domain.FillBlank)
	if !ok {
		return incorrect("exercise content does not match its kind"), nil
	}
	answer, ok := answerText(raw)
	if !ok || strings.TrimSpace(answer) == "" {
		return incorrect("expected a text answer"), nil
	}
	if domain.AnswersEqual(answer, content.CorrectAnswer) {
		return domain.Verdict{Correct: true}, nil
	}
	if !content.Semantic || s.semantic == nil {
		return domain.Verdict{Correct: false}, nil
	}

	equivalent, err := s.semantic.Equivalent(ctx, content.Text, content.CorrectAnswer, answer)
	if err != nil {
		return domain.Verdict{}, err
	}
	return domain.Verdict{Correct: equivalent, Feedback: map[string]any{"semantic": true}}, nil
}

// flashcardStudy accepts any response; studying the cards is the exercise.
func flashcardStudy(context.Context, *domain.Exercise, json.RawMessage) (domain.Verdict, error) {
	return domain.Verdict{Correct: true}, nil
}

type conceptPair struct {
	Concept    string `json:"concept"`
	Definition string `json:"definition"`
}

func conceptMatching(_ context.Context, ex *domain.Exercise, raw json.RawMessage) (domain.Verdict, error) {
	content, ok := ex.Content.(domain.ConceptMatching)
	if !ok {
		return incorrect("exercise content does not match its kind"), nil
	}

	var resp struct {
		Pairs []conceptPair `json:"pairs"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &resp) != nil {
		return incorrect(`expected {"pairs": [{"concept", "definition"}]}`), nil
	}
	if len(resp.Pairs) != len(content.Concepts) {
		return domain.Verdict{Correct: false, Feedback: map[string]any{
			"matched":  0,
			"expected": len(content.Concepts),
		}}, nil
	}

	seen := make(map[string]bool, len(resp.Pairs))
	matched := 0
	for _, p := range resp.Pairs {
		concept := strings.TrimSpace(p.Concept)
		want, known := content.Concepts[concept]
		if !known || seen[concept] {
			continue
		}
		seen[concept] = true
		if domain.AnswersEqual(p.Definition, want) {
			matched++
		}
	}
	return domain.Verdict{
		Correct: matched == len(content.Concepts),
		Feedback: map[string]any{
			"matched":  matched,
			"expected": len(content.Concepts),
		},
	}, nil
}
