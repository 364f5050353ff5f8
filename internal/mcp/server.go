package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/streakline/internal/domain"
	"github.com/felixgeelhaar/streakline/internal/ledger"
	"github.com/felixgeelhaar/streakline/internal/progress"
	"github.com/felixgeelhaar/streakline/internal/rewards"
	"github.com/felixgeelhaar/streakline/internal/stats"
)

// Progress is the slice of the attempt tracker the tools call.
type Progress interface {
	Submit(ctx context.Context, req progress.SubmitRequest) (*progress.SubmissionResult, error)
	Validate(ctx context.Context, req progress.SubmitRequest) (*progress.ValidationResult, error)
	Summary(ctx context.Context, userID string) (*domain.ProgressSummary, error)
}

// Ledger reads the XP history.
type Ledger interface {
	History(ctx context.Context, userID string, limit, offset int) ([]domain.XPEntry, error)
	Summarize(ctx context.Context, userID string) (*domain.XPSummary, error)
}

// Stats computes the learner dashboard.
type Stats interface {
	Learner(ctx context.Context, userID string) (*stats.LearnerStats, error)
}

// Rewards reports what a user can still earn.
type Rewards interface {
	AvailableRewards(ctx context.Context, userID string) ([]rewards.AvailableReward, error)
	RewardStats(ctx context.Context, userID string) (*rewards.RewardStats, error)
}

var (
	_ Progress = (*progress.Tracker)(nil)
	_ Ledger   = (*ledger.Service)(nil)
	_ Stats    = (*stats.Service)(nil)
	_ Rewards  = (*rewards.Catalog)(nil)
)

// Server wraps the MCP server with Streakline functionality
type Server struct {
	mcpServer *server.Server
	progress  Progress
	ledger    Ledger
	stats     Stats
	rewards   Rewards
}

// Config contains configuration for the MCP server
type Config struct {
	Progress Progress
	Ledger   Ledger
	Stats    Stats   // optional
	Rewards  Rewards // optional
	Version  string
}

// NewServer creates a new MCP server for Streakline
func NewServer(cfg Config) *Server {
	s := &Server{
		progress: cfg.Progress,
		ledger:   cfg.Ledger,
		stats:    cfg.Stats,
		rewards:  cfg.Rewards,
	}

	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "streakline",
		Version: version,
	}, server.WithInstructions(`
Streakline records exercise submissions and tracks lesson progress, XP,
daily streaks and rewards.

Available tools:
- submit_exercise: Judge and record an answer inside a study session
- validate_exercise: Judge an answer without recording anything
- get_progress_summary: Total XP, streak and correctly answered exercises
- get_xp_history: Recent XP ledger entries with a per-reason breakdown
- get_learner_stats: Level, completed lessons, active days and the next goal
- get_available_rewards: Rewards still to earn with progress toward each

Every exercise can be answered once per session. Private lessons lock
after their first completion.
`))

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("submit_exercise").
		Description("Judge and record an exercise answer. Returns points, lesson completion and any XP or achievements earned.").
		Handler(s.handleSubmit)

	s.mcpServer.Tool("validate_exercise").
		Description("Judge an exercise answer without recording it.").
		Handler(s.handleValidate)

	s.mcpServer.Tool("get_progress_summary").
		Description("Get a user's total XP, streak days and correctly answered exercises.").
		Handler(s.handleSummary)

	s.mcpServer.Tool("get_xp_history").
		Description("Get a user's XP ledger entries, newest first, with a breakdown by reason.").
		Handler(s.handleHistory)

	s.mcpServer.Tool("get_learner_stats").
		Description("Get a user's dashboard: level, lessons and exercises completed, active days, badges and a suggested next goal.").
		Handler(s.handleLearnerStats)

	s.mcpServer.Tool("get_available_rewards").
		Description("List the active rewards a user has not earned yet with progress toward XP and streak milestones.").
		Handler(s.handleAvailableRewards)
}

// Input/Output types for tools

type SubmitInput struct {
	UserID       string `json:"user_id" jsonschema:"description=User identifier"`
	SessionID    string `json:"session_id" jsonschema:"description=Study session identifier"`
	ModuleID     string `json:"module_id" jsonschema:"description=Curriculum module ID"`
	LessonID     string `json:"lesson_id" jsonschema:"description=Lesson ID within the module"`
	ExerciseUUID string `json:"exercise_uuid" jsonschema:"description=Exercise UUID within the lesson"`
	Answer       any    `json:"answer" jsonschema:"description=The answer: a string or a JSON object depending on the exercise kind"`
}

type ValidateInput struct {
	ModuleID     string `json:"module_id" jsonschema:"description=Curriculum module ID"`
	LessonID     string `json:"lesson_id" jsonschema:"description=Lesson ID within the module"`
	ExerciseUUID string `json:"exercise_uuid" jsonschema:"description=Exercise UUID within the lesson"`
	Answer       any    `json:"answer" jsonschema:"description=The answer to judge"`
}

type ValidateOutput struct {
	IsCorrect bool           `json:"is_correct"`
	Points    int            `json:"points"`
	Feedback  map[string]any `json:"feedback,omitempty"`
}

type UserInput struct {
	UserID string `json:"user_id" jsonschema:"description=User identifier"`
}

type HistoryInput struct {
	UserID string `json:"user_id" jsonschema:"description=User identifier"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum entries to return (default 50)"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=Entries to skip"`
}

type HistoryOutput struct {
	Entries []domain.XPEntry  `json:"entries"`
	Summary *domain.XPSummary `json:"summary"`
}

type AvailableRewardsOutput struct {
	Rewards []rewards.AvailableReward `json:"rewards"`
	Stats   *rewards.RewardStats      `json:"stats"`
}

// Tool handlers

func (s *Server) handleSubmit(ctx context.Context, input SubmitInput) (progress.SubmissionResult, error) {
	if s.progress == nil {
		return progress.SubmissionResult{}, errors.New("progress tracking is not configured")
	}
	response, err := encodeAnswer(input.Answer)
	if err != nil {
		return progress.SubmissionResult{}, err
	}

	result, err := s.progress.Submit(ctx, progress.SubmitRequest{
		UserID:       input.UserID,
		SessionID:    input.SessionID,
		ModuleID:     input.ModuleID,
		LessonID:     input.LessonID,
		ExerciseUUID: input.ExerciseUUID,
		Response:     response,
	})
	if err != nil {
		return progress.SubmissionResult{}, fmt.Errorf("submit failed: %w", err)
	}
	return *result, nil
}

func (s *Server) handleValidate(ctx context.Context, input ValidateInput) (ValidateOutput, error) {
	if s.progress == nil {
		return ValidateOutput{}, errors.New("progress tracking is not configured")
	}
	response, err := encodeAnswer(input.Answer)
	if err != nil {
		return ValidateOutput{}, err
	}

	result, err := s.progress.Validate(ctx, progress.SubmitRequest{
		ModuleID:     input.ModuleID,
		LessonID:     input.LessonID,
		ExerciseUUID: input.ExerciseUUID,
		Response:     response,
	})
	if err != nil {
		return ValidateOutput{}, fmt.Errorf("validation failed: %w", err)
	}
	return ValidateOutput{
		IsCorrect: result.IsCorrect,
		Points:    result.Points,
		Feedback:  result.Feedback,
	}, nil
}

func (s *Server) handleSummary(ctx context.Context, input UserInput) (domain.ProgressSummary, error) {
	if s.progress == nil {
		return domain.ProgressSummary{}, errors.New("progress tracking is not configured")
	}
	summary, err := s.progress.Summary(ctx, input.UserID)
	if err != nil {
		return domain.ProgressSummary{}, fmt.Errorf("summary failed: %w", err)
	}
	return *summary, nil
}

func (s *Server) handleHistory(ctx context.Context, input HistoryInput) (HistoryOutput, error) {
	if s.ledger == nil {
		return HistoryOutput{}, errors.New("xp ledger is not configured")
	}
	entries, err := s.ledger.History(ctx, input.UserID, input.Limit, input.Offset)
	if err != nil {
		return HistoryOutput{}, fmt.Errorf("history failed: %w", err)
	}
	summary, err := s.ledger.Summarize(ctx, input.UserID)
	if err != nil {
		return HistoryOutput{}, fmt.Errorf("summary failed: %w", err)
	}
	return HistoryOutput{Entries: entries, Summary: summary}, nil
}

func (s *Server) handleLearnerStats(ctx context.Context, input UserInput) (stats.LearnerStats, error) {
	if s.stats == nil {
		return stats.LearnerStats{}, errors.New("statistics are not configured")
	}
	st, err := s.stats.Learner(ctx, input.UserID)
	if err != nil {
		return stats.LearnerStats{}, fmt.Errorf("stats failed: %w", err)
	}
	return *st, nil
}

func (s *Server) handleAvailableRewards(ctx context.Context, input UserInput) (AvailableRewardsOutput, error) {
	if s.rewards == nil {
		return AvailableRewardsOutput{}, errors.New("rewards are not configured")
	}
	available, err := s.rewards.AvailableRewards(ctx, input.UserID)
	if err != nil {
		return AvailableRewardsOutput{}, fmt.Errorf("available rewards failed: %w", err)
	}
	st, err := s.rewards.RewardStats(ctx, input.UserID)
	if err != nil {
		return AvailableRewardsOutput{}, fmt.Errorf("reward stats failed: %w", err)
	}
	return AvailableRewardsOutput{Rewards: available, Stats: st}, nil
}

// encodeAnswer turns the tool argument back into the raw JSON the judge
// expects. A missing answer is sent as an empty string.
func encodeAnswer(answer any) (json.RawMessage, error) {
	if answer == nil {
		return json.RawMessage(`""`), nil
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return nil, fmt.Errorf("encode answer: %w", err)
	}
	return data, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
