package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// Backend is the container API a Runner needs. DockerBackend implements it.
type Backend interface {
	CreateContainer(ctx context.Context, img string, cfg Config) (string, error)
	CopyFiles(ctx context.Context, containerID string, files map[string]string) error
	Exec(ctx context.Context, containerID string, cmd []string, timeout time.Duration) (*ExecResult, error)
	DestroyContainer(ctx context.Context, containerID string) error
}

var _ Backend = (*DockerBackend)(nil)

// maxErrorLen bounds the stderr excerpt kept per failing case.
const maxErrorLen = 512

// Runner executes code against test cases, one container per run.
type Runner struct {
	backend Backend
	cfg     Config
	slots   chan struct{}
}

// NewRunner creates a runner. Zero fields of cfg take DefaultConfig values.
func NewRunner(backend Backend, cfg Config) *Runner {
	def := DefaultConfig()
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = def.MemoryMB
	}
	if cfg.CPULimit <= 0 {
		cfg.CPULimit = def.CPULimit
	}
	if cfg.CaseTimeout <= 0 {
		cfg.CaseTimeout = def.CaseTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	return &Runner{
		backend: backend,
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Run executes code once per test case, feeding Input on stdin and
// comparing trimmed stdout with ExpectedOutput. Without test cases the code
// passes if it exits cleanly. Failures of the code itself are reported in
// the Report; an error means the sandbox could not run it at all.
func (r *Runner) Run(ctx context.Context, language, code string, cases []domain.TestCase) (*Report, error) {
	lang, ok := LookupLanguage(language)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	select {
	case r.slots <- struct{}{}:
		defer func() { <-r.slots }()
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrBusy, ctx.Err())
	}

	id, err := r.backend.CreateContainer(ctx, lang.Image, r.cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		cleanup, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.backend.DestroyContainer(cleanup, id); err != nil {
			slog.Warn("sandbox cleanup failed", "container", id, "error", err)
		}
	}()

	files := map[string]string{lang.FileName: code}
	for i, tc := range cases {
		files[inputFile(i)] = tc.Input
	}
	if err := r.backend.CopyFiles(ctx, id, files); err != nil {
		return nil, fmt.Errorf("copy files: %w", err)
	}

	report := &Report{Passed: true}
	if len(cases) == 0 {
		res := r.exec(ctx, id, lang.Command, "")
		report.Passed = res.Passed
		report.Cases = []CaseResult{res}
		return report, nil
	}

	for i, tc := range cases {
		res := r.exec(ctx, id, lang.Command, inputFile(i))
		res.Input = tc.Input
		res.Expected = tc.ExpectedOutput
		if res.Error == "" {
			res.Passed = strings.TrimSpace(res.Actual) == strings.TrimSpace(tc.ExpectedOutput)
		}
		report.Passed = report.Passed && res.Passed
		report.Cases = append(report.Cases, res)
	}
	return report, nil
}

// exec runs command with stdin redirected from input (if set). The result
// is marked passed only when there is no expected output to compare.
func (r *Runner) exec(ctx context.Context, id string, command []string, input string) CaseResult {
	shell := strings.Join(command, " ")
	if input != "" {
		shell += " < " + input
	}

	out, err := r.backend.Exec(ctx, id, []string{"sh", "-c", shell}, r.cfg.CaseTimeout)
	if err != nil {
		return CaseResult{Error: err.Error()}
	}
	if out.ExitCode != 0 {
		msg := strings.TrimSpace(out.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", out.ExitCode)
		}
		if len(msg) > maxErrorLen {
			msg = msg[:maxErrorLen]
		}
		return CaseResult{Actual: out.Stdout, Error: msg}
	}
	return CaseResult{Actual: out.Stdout, Passed: input == ""}
}

func inputFile(i int) string {
	return fmt.Sprintf("input_%d.txt", i)
}
