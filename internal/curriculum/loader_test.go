package curriculum

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

const basicsYAML = `id: py-basics
title: Python Basics
description: First steps
order: 2
estimate_days: 3
lessons:
  - id: printing
    title: Printing
    order: 2
    xp_reward: 100
    exercises:
      - uuid: print-q1
        kind: multiple_choice
        title: Which prints?
        points: 10
        description: Which function prints to stdout?
        options: ["print", "echo"]
        correct_answer: print
      - uuid: print-code
        kind: code_writing
        title: Hello
        points: 20
        description: Print hello
        language: python
        starter: "# write here"
        solution: "print('hello')"
        test_cases:
          - input: ""
            expected_output: hello
  - id: exam
    title: Exam
    order: 1
    xp_reward: 50
    private: true
    exercises:
      - uuid: exam-cards
        kind: flashcard_study
        title: Review
        points: 5
        flashcards:
          print: writes output
      - uuid: exam-match
        kind: concept_matching
        title: Match
        points: 5
        description: Match the concepts
        concepts:
          int: whole number
          str: text
      - uuid: exam-blank
        kind: fill_blank
        title: Blank
        points: 5
        text: "A ___ stores a value"
        correct_answer: variable
        semantic: true
`

func writeModule(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestParseModule(t *testing.T) {
	m, err := ParseModule([]byte(basicsYAML))
	if err != nil {
		t.Fatalf("ParseModule() error = %v", err)
	}

	if m.ID != "py-basics" || m.EstimateDays != 3 {
		t.Errorf("module = %q/%d", m.ID, m.EstimateDays)
	}
	if len(m.Lessons) != 2 {
		t.Fatalf("len(Lessons) = %d, want 2", len(m.Lessons))
	}
	// Lessons are sorted by order.
	if m.Lessons[0].ID != "exam" {
		t.Errorf("Lessons[0].ID = %q, want exam", m.Lessons[0].ID)
	}
	exam := m.Lessons[0]
	if !exam.IsPrivate || exam.ModuleID != "py-basics" {
		t.Errorf("exam lesson = %+v", exam)
	}

	blank, ok := exam.Exercise("exam-blank")
	if !ok {
		t.Fatal("exam-blank not found")
	}
	fb, ok := blank.Content.(domain.FillBlank)
	if !ok || !fb.Semantic || fb.CorrectAnswer != "variable" {
		t.Errorf("fill blank content = %#v", blank.Content)
	}

	code, _ := m.Lessons[1].Exercise("print-code")
	cw, ok := code.Content.(domain.CodeWriting)
	if !ok {
		t.Fatalf("code content = %T", code.Content)
	}
	if len(cw.TestCases) != 1 || cw.TestCases[0].ExpectedOutput != "hello" {
		t.Errorf("test cases = %+v", cw.TestCases)
	}
	if cw.StarterCode != "# write here" {
		t.Errorf("StarterCode = %q", cw.StarterCode)
	}
}

func TestParseModule_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown kind", "id: m\nlessons:\n  - id: l\n    exercises:\n      - uuid: e\n        kind: essay\n        points: 1\n"},
		{"duplicate uuid", "id: m\nlessons:\n  - id: l\n    exercises:\n      - {uuid: e, kind: flashcard_study, points: 1, flashcards: {a: b}}\n      - {uuid: e, kind: flashcard_study, points: 1, flashcards: {a: b}}\n"},
		{"empty lesson", "id: m\nlessons:\n  - id: l\n"},
		{"missing options answer", "id: m\nlessons:\n  - id: l\n    exercises:\n      - {uuid: e, kind: multiple_choice, points: 1, description: d, options: [a, b], correct_answer: c}\n"},
		{"malformed yaml", "id: [m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseModule([]byte(tt.yaml)); err == nil {
				t.Error("ParseModule() should fail")
			}
		})
	}
}

func TestRegistry_Load(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "basics.yaml", basicsYAML)
	writeModule(t, dir, "intro.yml", "id: intro\norder: 1\nlessons:\n  - id: hello\n    xp_reward: 10\n    exercises:\n      - {uuid: h1, kind: flashcard_study, points: 1, flashcards: {a: b}}\n")
	writeModule(t, dir, "README.md", "ignored")

	reg := NewRegistry(NewLoader(dir))
	if err := reg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	modules := reg.ListModules()
	if len(modules) != 2 || modules[0].ID != "intro" {
		t.Fatalf("ListModules() = %d modules, first %q", len(modules), modules[0].ID)
	}

	m, l, e := reg.Stats()
	if m != 2 || l != 3 || e != 6 {
		t.Errorf("Stats() = (%d, %d, %d), want (2, 3, 6)", m, l, e)
	}

	ctx := context.Background()
	ex, err := reg.FindExercise(ctx, "py-basics", "printing", "print-q1")
	if err != nil {
		t.Fatalf("FindExercise() error = %v", err)
	}
	if ex.Points != 10 {
		t.Errorf("Points = %d, want 10", ex.Points)
	}
}

func TestRegistry_NotFound(t *testing.T) {
	m, err := ParseModule([]byte(basicsYAML))
	if err != nil {
		t.Fatalf("ParseModule() error = %v", err)
	}
	reg := NewRegistry(nil)
	if err := reg.Add(m); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := reg.Add(m); err == nil {
		t.Error("Add() of duplicate module should fail")
	}

	ctx := context.Background()
	tests := []struct {
		name                     string
		module, lesson, exercise string
		want                     error
	}{
		{"module", "nope", "printing", "print-q1", domain.ErrModuleNotFound},
		{"lesson", "py-basics", "nope", "print-q1", domain.ErrLessonNotFound},
		{"exercise", "py-basics", "printing", "nope", domain.ErrExerciseNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.FindExercise(ctx, tt.module, tt.lesson, tt.exercise)
			if !errors.Is(err, tt.want) {
				t.Errorf("FindExercise() error = %v, want %v", err, tt.want)
			}
			if !domain.IsNotFound(err) {
				t.Errorf("IsNotFound(%v) = false", err)
			}
		})
	}
}
