// Package sandbox runs learner code against test cases in throwaway
// Docker containers.
package sandbox

import (
	"errors"
	"strings"
	"time"
)

// Language describes how to run one language inside a container.
type Language struct {
	Image    string
	FileName string
	Command  []string
}

// Languages maps the language names used in curricula to their runtime.
var Languages = map[string]Language{
	"python":     {Image: "python:3.12-alpine", FileName: "main.py", Command: []string{"python3", "main.py"}},
	"go":         {Image: "golang:1.23-alpine", FileName: "main.go", Command: []string{"go", "run", "main.go"}},
	"javascript": {Image: "node:20-alpine", FileName: "main.js", Command: []string{"node", "main.js"}},
	"ruby":       {Image: "ruby:3.3-alpine", FileName: "main.rb", Command: []string{"ruby", "main.rb"}},
}

// LookupLanguage resolves a language name, accepting common aliases.
func LookupLanguage(name string) (Language, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "py", "python3":
		name = "python"
	case "golang":
		name = "go"
	case "js", "node":
		name = "javascript"
	}
	l, ok := Languages[name]
	return l, ok
}

// Config holds container limits.
type Config struct {
	MemoryMB      int           `yaml:"memory_mb"`
	CPULimit      float64       `yaml:"cpu_limit"`
	NetworkOff    bool          `yaml:"network_off"`
	CaseTimeout   time.Duration `yaml:"case_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// DefaultConfig returns conservative limits for untrusted code.
func DefaultConfig() Config {
	return Config{
		MemoryMB:      128,
		CPULimit:      0.5,
		NetworkOff:    true,
		CaseTimeout:   10 * time.Second,
		MaxConcurrent: 4,
	}
}

// ExecResult holds the output of one command run in a container.
type ExecResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// CaseResult is the outcome of one test case.
type CaseResult struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Error    string `json:"error,omitempty"`
}

// Report aggregates the results of a run.
type Report struct {
	Passed bool         `json:"passed"`
	Cases  []CaseResult `json:"cases"`
}

// FirstFailure returns the first failing case, if any.
func (r *Report) FirstFailure() (CaseResult, bool) {
	for _, c := range r.Cases {
		if !c.Passed {
			return c, true
		}
	}
	return CaseResult{}, false
}

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrBusy                = errors.New("sandbox capacity exhausted")
)
