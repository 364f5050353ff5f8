package domain

import (
	"fmt"
	"strings"
)

// ExerciseKind discriminates the exercise content variants.
type ExerciseKind string

const (
	KindMultipleChoice  ExerciseKind = "multiple_choice"
	KindFillBlank       ExerciseKind = "fill_blank"
	KindCodeWriting     ExerciseKind = "code_writing"
	KindFlashcardStudy  ExerciseKind = "flashcard_study"
	KindConceptMatching ExerciseKind = "concept_matching"
)

// ExerciseKinds lists every supported kind.
var ExerciseKinds = []ExerciseKind{
	KindMultipleChoice,
	KindFillBlank,
	KindCodeWriting,
	KindFlashcardStudy,
	KindConceptMatching,
}

// Valid reports whether k is a known kind.
func (k ExerciseKind) Valid() bool {
	for _, known := range ExerciseKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Exercise is the atomic gradeable unit of a lesson. Content holds the
// kind-specific variant and always agrees with Kind.
type Exercise struct {
	UUID    string
	Kind    ExerciseKind
	Title   string
	Points  int
	Content ExerciseContent
}

// ExerciseContent is implemented by each kind-specific variant.
type ExerciseContent interface {
	Kind() ExerciseKind
	Validate() error
}

// MultipleChoice asks the learner to pick one option.
type MultipleChoice struct {
	Description   string
	Options       []string
	CorrectAnswer string
}

func (MultipleChoice) Kind() ExerciseKind { return KindMultipleChoice }

func (c MultipleChoice) Validate() error {
	if strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("%w: multiple choice requires a description", ErrInvalidExercise)
	}
	if len(c.Options) < 2 {
		return fmt.Errorf("%w: multiple choice requires at least two options", ErrInvalidExercise)
	}
	if !containsAnswer(c.Options, c.CorrectAnswer) {
		return fmt.Errorf("%w: correct answer %q is not an option", ErrInvalidExercise, c.CorrectAnswer)
	}
	return nil
}

// FillBlank asks the learner to complete a sentence. Semantic enables
// model-assisted comparison instead of exact matching.
type FillBlank struct {
	Text          string
	Options       []string
	CorrectAnswer string
	Semantic      bool
}

func (FillBlank) Kind() ExerciseKind { return KindFillBlank }

func (c FillBlank) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("%w: fill in the blank requires text", ErrInvalidExercise)
	}
	if strings.TrimSpace(c.CorrectAnswer) == "" {
		return fmt.Errorf("%w: fill in the blank requires a correct answer", ErrInvalidExercise)
	}
	if len(c.Options) > 0 && !containsAnswer(c.Options, c.CorrectAnswer) {
		return fmt.Errorf("%w: correct answer %q is not an option", ErrInvalidExercise, c.CorrectAnswer)
	}
	return nil
}

// TestCase feeds Input on stdin and expects ExpectedOutput on stdout.
type TestCase struct {
	Input          string
	ExpectedOutput string
}

// CodeWriting asks the learner to write a program.
type CodeWriting struct {
	Description string
	Language    string
	StarterCode string
	Solution    string
	TestCases   []TestCase
}

func (CodeWriting) Kind() ExerciseKind { return KindCodeWriting }

func (c CodeWriting) Validate() error {
	if strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("%w: code writing requires a description", ErrInvalidExercise)
	}
	if strings.TrimSpace(c.Solution) == "" {
		return fmt.Errorf("%w: code writing requires a reference solution", ErrInvalidExercise)
	}
	for i, tc := range c.TestCases {
		if strings.TrimSpace(tc.ExpectedOutput) == "" {
			return fmt.Errorf("%w: test case %d has no expected output", ErrInvalidExercise, i)
		}
	}
	return nil
}

// FlashcardStudy presents cards to review. Any response is accepted.
type FlashcardStudy struct {
	Flashcards map[string]string
}

func (FlashcardStudy) Kind() ExerciseKind { return KindFlashcardStudy }

func (c FlashcardStudy) Validate() error {
	if len(c.Flashcards) == 0 {
		return fmt.Errorf("%w: flashcard study requires at least one card", ErrInvalidExercise)
	}
	return nil
}

// ConceptMatching asks the learner to pair concepts with definitions.
type ConceptMatching struct {
	Description string
	Concepts    map[string]string
}

func (ConceptMatching) Kind() ExerciseKind { return KindConceptMatching }

func (c ConceptMatching) Validate() error {
	if len(c.Concepts) == 0 {
		return fmt.Errorf("%w: concept matching requires at least one concept", ErrInvalidExercise)
	}
	return nil
}

// Validate checks the common fields and the kind-specific content.
func (e *Exercise) Validate() error {
	if err := ValidateID("exercise uuid", e.UUID); err != nil {
		return err
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidExercise, e.UUID, e.Kind)
	}
	if e.Points <= 0 {
		return fmt.Errorf("%w: %s: points must be positive", ErrInvalidExercise, e.UUID)
	}
	if e.Content == nil {
		return fmt.Errorf("%w: %s: missing %s content", ErrInvalidExercise, e.UUID, e.Kind)
	}
	if e.Content.Kind() != e.Kind {
		return fmt.Errorf("%w: %s: content is %s, kind is %s", ErrInvalidExercise, e.UUID, e.Content.Kind(), e.Kind)
	}
	if err := e.Content.Validate(); err != nil {
		return fmt.Errorf("%s: %w", e.UUID, err)
	}
	return nil
}

func containsAnswer(options []string, answer string) bool {
	for _, o := range options {
		if AnswersEqual(o, answer) {
			return true
		}
	}
	return false
}
