package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/streakline/internal/llm"
)

const semanticSystemPrompt = `You grade fill-in-the-blank answers.
Reply with a single word: YES if the learner's answer means the same as the
expected answer in the context of the sentence, otherwise NO.`

// SemanticJudge asks a language model whether two answers are equivalent.
type SemanticJudge struct {
	provider llm.Provider
	model    string
}

// NewSemanticJudge wraps provider. An empty model uses the provider default.
func NewSemanticJudge(provider llm.Provider, model string) *SemanticJudge {
	return &SemanticJudge{provider: provider, model: model}
}

// Equivalent reports whether answer means the same as expected within text.
func (s *SemanticJudge) Equivalent(ctx context.Context, text, expected, answer string) (bool, error) {
	resp, err := s.provider.Generate(ctx, &llm.Request{
		Model:       s.model,
		System:      semanticSystemPrompt,
		MaxTokens:   5,
		Temperature: 0,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Sentence: %s\nExpected answer: %s\nLearner answer: %s", text, expected, answer),
		}},
	})
	if err != nil {
		return false, fmt.Errorf("semantic judge (%s): %w", s.provider.Name(), err)
	}
	return affirmative(resp.Content), nil
}

// affirmative accepts English and Spanish yes answers.
func affirmative(reply string) bool {
	fields := strings.Fields(strings.ToUpper(reply))
	if len(fields) == 0 {
		return false
	}
	switch strings.TrimRight(fields[0], ".,!") {
	case "YES", "SI", "SÍ", "TRUE":
		return true
	}
	return false
}
