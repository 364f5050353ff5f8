package judge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/streakline/internal/domain"
	"github.com/felixgeelhaar/streakline/internal/sandbox"
)

// minCodeGrowth is how many characters a submission must add to the
// starter code to be considered an attempt.
const minCodeGrowth = 10

// CodeRunner executes code against test cases. sandbox.Runner implements it.
type CodeRunner interface {
	Run(ctx context.Context, language, code string, cases []domain.TestCase) (*sandbox.Report, error)
}

var _ CodeRunner = (*sandbox.Runner)(nil)

type codeStrategy struct {
	runner CodeRunner
}

func (s *codeStrategy) Evaluate(ctx context.Context, ex *domain.Exercise, raw json.RawMessage) (domain.Verdict, error) {
	content, ok := ex.Content.(domain.CodeWriting)
	if !ok {
		return incorrect("exercise content does not match its kind"), nil
	}
	code, ok := codeText(raw)
	if !ok {
		return incorrect(`expected code as a string or {"code": ...}`), nil
	}

	feedback := map[string]any{
		"code_is_correct": false,
		"test_is_correct": false,
		"has_tests":       len(content.TestCases) > 0,
		"error":           "",
	}
	if reason := rejectCode(code, content); reason != "" {
		feedback["error"] = reason
		return domain.Verdict{Correct: false, Feedback: feedback}, nil
	}
	feedback["code_is_correct"] = true

	if s.runner == nil || len(content.TestCases) == 0 {
		feedback["test_is_correct"] = true
		return domain.Verdict{Correct: true, Feedback: feedback}, nil
	}

	report, err := s.runner.Run(ctx, content.Language, code, content.TestCases)
	if errors.Is(err, sandbox.ErrUnsupportedLanguage) {
		slog.Debug("no sandbox for language, using heuristics only", "language", content.Language)
		feedback["test_is_correct"] = true
		return domain.Verdict{Correct: true, Feedback: feedback}, nil
	}
	if err != nil {
		return domain.Verdict{}, err
	}

	feedback["test_is_correct"] = report.Passed
	if failure, failed := report.FirstFailure(); failed {
		if failure.Error != "" {
			feedback["error"] = failure.Error
		} else {
			feedback["error"] = "expected " + strings.TrimSpace(failure.Expected) + ", got " + strings.TrimSpace(failure.Actual)
		}
	}
	return domain.Verdict{Correct: report.Passed, Feedback: feedback}, nil
}

// rejectCode returns why code cannot be a genuine attempt, or "".
func rejectCode(code string, content domain.CodeWriting) string {
	trimmed := strings.TrimSpace(code)
	starter := strings.TrimSpace(content.StarterCode)
	switch {
	case trimmed == "":
		return "no code submitted"
	case starter != "" && trimmed == starter:
		return "starter code was not modified"
	case commentOnly(trimmed):
		return "code contains only comments"
	case len(trimmed) < len(starter)+minCodeGrowth:
		return "code is too short to solve the exercise"
	}
	return ""
}

func commentOnly(code string) bool {
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "//") &&
			!strings.HasPrefix(line, "/*") && !strings.HasPrefix(line, "*") {
			return false
		}
	}
	return true
}

func codeText(raw json.RawMessage) (string, bool) {
	if s, ok := answerText(raw); ok {
		return s, true
	}
	var obj struct {
		Code *string `json:"code"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Code != nil {
		return *obj.Code, true
	}
	return "", false
}
