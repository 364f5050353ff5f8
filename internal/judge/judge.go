// Package judge decides whether a learner's response to an exercise is
// correct. Each exercise kind has its own strategy; the Dispatcher picks
// one and bounds its running time.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 20 * time.Second

// Judge evaluates a response. Malformed responses yield an incorrect
// verdict; an error means the judge itself failed and the caller may retry.
type Judge interface {
	Evaluate(ctx context.Context, ex *domain.Exercise, response json.RawMessage) (domain.Verdict, error)
}

// Strategy judges one exercise kind. It returns an error only when an
// external oracle fails.
type Strategy interface {
	Evaluate(ctx context.Context, ex *domain.Exercise, response json.RawMessage) (domain.Verdict, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, ex *domain.Exercise, response json.RawMessage) (domain.Verdict, error)

func (f StrategyFunc) Evaluate(ctx context.Context, ex *domain.Exercise, response json.RawMessage) (domain.Verdict, error) {
	return f(ctx, ex, response)
}

// Dispatcher routes evaluations to per-kind strategies.
type Dispatcher struct {
	strategies map[domain.ExerciseKind]Strategy
	timeout    time.Duration
}

var _ Judge = (*Dispatcher)(nil)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithSemantic enables model-assisted fill-in-the-blank judging.
func WithSemantic(s *SemanticJudge) Option {
	return func(disp *Dispatcher) {
		disp.strategies[domain.KindFillBlank] = &fillBlankStrategy{semantic: s}
	}
}

// WithRunner enables running code-writing test cases.
func WithRunner(r CodeRunner) Option {
	return func(disp *Dispatcher) {
		disp.strategies[domain.KindCodeWriting] = &codeStrategy{runner: r}
	}
}

// WithStrategy replaces the strategy for one kind.
func WithStrategy(kind domain.ExerciseKind, s Strategy) Option {
	return func(disp *Dispatcher) {
		disp.strategies[kind] = s
	}
}

// New creates a dispatcher with the built-in strategies.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		strategies: map[domain.ExerciseKind]Strategy{
			domain.KindMultipleChoice:  StrategyFunc(multipleChoice),
			domain.KindFillBlank:       &fillBlankStrategy{},
			domain.KindCodeWriting:     &codeStrategy{},
			domain.KindFlashcardStudy:  StrategyFunc(flashcardStudy),
			domain.KindConceptMatching: StrategyFunc(conceptMatching),
		},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Evaluate implements Judge.
func (d *Dispatcher) Evaluate(ctx context.Context, ex *domain.Exercise, response json.RawMessage) (domain.Verdict, error) {
	if ex == nil {
		return incorrect("no exercise"), nil
	}
	strategy, ok := d.strategies[ex.Kind]
	if !ok {
		return incorrect(fmt.Sprintf("unsupported exercise kind %q", ex.Kind)), nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	verdict, err := strategy.Evaluate(ctx, ex, response)
	if err != nil {
		slog.Warn("judge failed", "exercise", ex.UUID, "kind", ex.Kind, "duration", time.Since(start), "error", err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Verdict{}, fmt.Errorf("%w: timed out after %s", domain.ErrJudgeUnavailable, d.timeout)
		}
		return domain.Verdict{}, fmt.Errorf("%w: %v", domain.ErrJudgeUnavailable, err)
	}
	return verdict, nil
}

func incorrect(reason string) domain.Verdict {
	return domain.Verdict{Correct: false, Feedback: map[string]any{"error": reason}}
}

// answerText extracts a textual answer from a bare JSON string or an object
// carrying an "answer" field.
func answerText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var obj struct {
		Answer *string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Answer != nil {
		return *obj.Answer, true
	}
	return "", false
}
