package curriculum

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/felixgeelhaar/streakline/internal/domain"
	"gopkg.in/yaml.v3"
)

// ModuleFile represents the YAML structure of one module
type ModuleFile struct {
	ID           string       `yaml:"id"`
	Title        string       `yaml:"title"`
	Description  string       `yaml:"description"`
	Order        int          `yaml:"order"`
	EstimateDays int          `yaml:"estimate_days"`
	Lessons      []LessonFile `yaml:"lessons"`
}

// LessonFile represents the YAML structure of a lesson
type LessonFile struct {
	ID          string         `yaml:"id"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Order       int            `yaml:"order"`
	XPReward    int            `yaml:"xp_reward"`
	Private     bool           `yaml:"private"`
	Exercises   []ExerciseFile `yaml:"exercises"`
}

// ExerciseFile is the flat YAML form of every exercise kind. Only the
// fields of the declared kind are read.
type ExerciseFile struct {
	UUID   string `yaml:"uuid"`
	Kind   string `yaml:"kind"`
	Title  string `yaml:"title"`
	Points int    `yaml:"points"`

	Description   string   `yaml:"description"`
	Text          string   `yaml:"text"`
	Options       []string `yaml:"options"`
	CorrectAnswer string   `yaml:"correct_answer"`
	Semantic      bool     `yaml:"semantic"`

	Language  string `yaml:"language"`
	Starter   string `yaml:"starter"`
	Solution  string `yaml:"solution"`
	TestCases []struct {
		Input          string `yaml:"input"`
		ExpectedOutput string `yaml:"expected_output"`
	} `yaml:"test_cases"`

	Flashcards map[string]string `yaml:"flashcards"`
	Concepts   map[string]string `yaml:"concepts"`
}

// Loader reads module files from a directory
type Loader struct {
	basePath string
}

// NewLoader creates a new curriculum loader
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// LoadModule loads a single module file
func (l *Loader) LoadModule(path string) (*domain.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module file: %w", err)
	}
	return ParseModule(data)
}

// LoadAll loads every *.yaml and *.yml module file in the base directory,
// ordered by the module's order field.
func (l *Loader) LoadAll() ([]*domain.Module, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("read curriculum directory: %w", err)
	}

	var modules []*domain.Module
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		m, err := l.LoadModule(filepath.Join(l.basePath, name))
		if err != nil {
			return nil, fmt.Errorf("load module %s: %w", name, err)
		}
		modules = append(modules, m)
	}

	sort.SliceStable(modules, func(i, j int) bool {
		return modules[i].Order < modules[j].Order
	})
	return modules, nil
}

// ParseModule decodes and validates a module document.
func ParseModule(data []byte) (*domain.Module, error) {
	var mf ModuleFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse module file: %w", err)
	}

	module := &domain.Module{
		ID:           mf.ID,
		Title:        mf.Title,
		Description:  mf.Description,
		Order:        mf.Order,
		EstimateDays: mf.EstimateDays,
		Lessons:      make([]domain.Lesson, 0, len(mf.Lessons)),
	}

	for _, lf := range mf.Lessons {
		lesson := domain.Lesson{
			ID:          lf.ID,
			ModuleID:    mf.ID,
			Title:       lf.Title,
			Description: lf.Description,
			Order:       lf.Order,
			XPReward:    lf.XPReward,
			IsPrivate:   lf.Private,
			Exercises:   make([]domain.Exercise, 0, len(lf.Exercises)),
		}
		for _, ef := range lf.Exercises {
			lesson.Exercises = append(lesson.Exercises, ef.toDomain())
		}
		module.Lessons = append(module.Lessons, lesson)
	}

	sort.SliceStable(module.Lessons, func(i, j int) bool {
		return module.Lessons[i].Order < module.Lessons[j].Order
	})

	if err := module.Validate(); err != nil {
		return nil, err
	}
	return module, nil
}

func (ef ExerciseFile) toDomain() domain.Exercise {
	ex := domain.Exercise{
		UUID:   ef.UUID,
		Kind:   domain.ExerciseKind(ef.Kind),
		Title:  ef.Title,
		Points: ef.Points,
	}

	switch ex.Kind {
	case domain.KindMultipleChoice:
		ex.Content = domain.MultipleChoice{
			Description:   ef.Description,
			Options:       ef.Options,
			CorrectAnswer: ef.CorrectAnswer,
		}
	case domain.KindFillBlank:
		ex.Content = domain.FillBlank{
			Text:          ef.Text,
			Options:       ef.Options,
			CorrectAnswer: ef.CorrectAnswer,
			Semantic:      ef.Semantic,
		}
	case domain.KindCodeWriting:
		cw := domain.CodeWriting{
			Description: ef.Description,
			Language:    ef.Language,
			StarterCode: ef.Starter,
			Solution:    ef.Solution,
		}
		for _, tc := range ef.TestCases {
			cw.TestCases = append(cw.TestCases, domain.TestCase{
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
			})
		}
		ex.Content = cw
	case domain.KindFlashcardStudy:
		ex.Content = domain.FlashcardStudy{Flashcards: ef.Flashcards}
	case domain.KindConceptMatching:
		ex.Content = domain.ConceptMatching{
			Description: ef.Description,
			Concepts:    ef.Concepts,
		}
	}
	// Unknown kinds keep a nil Content and fail validation.
	return ex
}
