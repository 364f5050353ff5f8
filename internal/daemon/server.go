// Package daemon serves the progress, XP, streak, session and reward
// operations over HTTP.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/streakline/internal/config"
	"github.com/felixgeelhaar/streakline/internal/curriculum"
	"github.com/felixgeelhaar/streakline/internal/domain"
	"github.com/felixgeelhaar/streakline/internal/ledger"
	"github.com/felixgeelhaar/streakline/internal/progress"
	"github.com/felixgeelhaar/streakline/internal/rewards"
	"github.com/felixgeelhaar/streakline/internal/session"
	"github.com/felixgeelhaar/streakline/internal/stats"
	"github.com/felixgeelhaar/streakline/internal/streak"
)

// ProgressService submits and reads exercise progress.
type ProgressService interface {
	Submit(ctx context.Context, req progress.SubmitRequest) (*progress.SubmissionResult, error)
	Validate(ctx context.Context, req progress.SubmitRequest) (*progress.ValidationResult, error)
	Summary(ctx context.Context, userID string) (*domain.ProgressSummary, error)
	LessonProgress(ctx context.Context, userID, lessonID string) (*domain.LessonProgress, error)
	ListProgress(ctx context.Context, userID string) ([]*domain.LessonProgress, error)
}

// LedgerService reads the XP ledger.
type LedgerService interface {
	History(ctx context.Context, userID string, limit, offset int) ([]domain.XPEntry, error)
	Summarize(ctx context.Context, userID string) (*domain.XPSummary, error)
}

// StreakService advances streaks.
type StreakService interface {
	Touch(ctx context.Context, userID string, ref time.Time) (int, error)
}

// SessionService opens and closes study sessions.
type SessionService interface {
	Start(ctx context.Context, userID, lessonID string) (*session.StartResult, error)
	End(ctx context.Context, sessionID, userID string) (*domain.StudySession, error)
}

// RewardCatalog administers reward definitions.
type RewardCatalog interface {
	Create(ctx context.Context, req rewards.CreateRequest) (*domain.Reward, error)
	Update(ctx context.Context, id string, upd domain.RewardUpdate) (*domain.Reward, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Reward, error)
	List(ctx context.Context, activeOnly bool) ([]*domain.Reward, error)
	Toggle(ctx context.Context, id string) (*domain.Reward, error)
	UserRewards(ctx context.Context, userID string) ([]*domain.Reward, error)
	AvailableRewards(ctx context.Context, userID string) ([]rewards.AvailableReward, error)
	RewardStats(ctx context.Context, userID string) (*rewards.RewardStats, error)
}

// RewardEngine grants rewards outside the submission path.
type RewardEngine interface {
	Award(ctx context.Context, rewardID, userID string) (*domain.CascadeResult, error)
	StreakReached(ctx context.Context, userID string, days int) (*domain.CascadeResult, error)
}

// StatsService computes learner and instructor statistics.
type StatsService interface {
	Learner(ctx context.Context, userID string) (*stats.LearnerStats, error)
	Students(ctx context.Context) ([]stats.StudentSummary, error)
	Student(ctx context.Context, userID string) (*stats.StudentDetail, error)
}

// ModuleLister lists the loaded curriculum.
type ModuleLister interface {
	ListModules() []*domain.Module
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ ProgressService = (*progress.Tracker)(nil)
	_ LedgerService   = (*ledger.Service)(nil)
	_ StreakService   = (*streak.Tracker)(nil)
	_ SessionService  = (*session.Service)(nil)
	_ RewardCatalog   = (*rewards.Catalog)(nil)
	_ RewardEngine    = (*rewards.Engine)(nil)
	_ StatsService    = (*stats.Service)(nil)
	_ ModuleLister    = (*curriculum.Registry)(nil)
)

// Server represents the Streakline daemon HTTP server
type Server struct {
	cfg    *config.LocalConfig
	server *http.Server
	router *http.ServeMux

	progress   ProgressService
	ledger     LedgerService
	streaks    StreakService
	sessions   SessionService
	catalog    RewardCatalog
	rewards    RewardEngine
	stats      StatsService
	curriculum ModuleLister
	storage    Pinger
	now        func() time.Time
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config     *config.LocalConfig
	Progress   ProgressService
	Ledger     LedgerService
	Streaks    StreakService
	Sessions   SessionService
	Catalog    RewardCatalog
	Rewards    RewardEngine
	Stats      StatsService
	Curriculum ModuleLister
	Storage    Pinger // optional
}

// NewServerFromServices wires a server to everything OpenServices built.
func NewServerFromServices(cfg *config.LocalConfig, svc *Services) (*Server, error) {
	return NewServer(ServerConfig{
		Config:     cfg,
		Progress:   svc.Tracker,
		Ledger:     svc.Ledger,
		Streaks:    svc.Streaks,
		Sessions:   svc.Sessions,
		Catalog:    svc.Catalog,
		Rewards:    svc.Engine,
		Stats:      svc.Stats,
		Curriculum: svc.Curriculum,
		Storage:    svc.Storage,
	})
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Progress == nil || cfg.Ledger == nil {
		return nil, errors.New("progress and ledger services are required")
	}

	s := &Server{
		cfg:        cfg.Config,
		router:     http.NewServeMux(),
		progress:   cfg.Progress,
		ledger:     cfg.Ledger,
		streaks:    cfg.Streaks,
		sessions:   cfg.Sessions,
		catalog:    cfg.Catalog,
		rewards:    cfg.Rewards,
		stats:      cfg.Stats,
		curriculum: cfg.Curriculum,
		storage:    cfg.Storage,
		now:        func() time.Time { return time.Now().UTC() },
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return recoveryMiddleware(correlationIDMiddleware(userIDMiddleware(loggingMiddleware(s.router))))
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /v1/health", s.handleHealth)

	// Attempts
	s.router.HandleFunc("POST /v1/submissions", s.handleSubmit)
	s.router.HandleFunc("POST /v1/validations", s.handleValidate)

	// Progress, XP and streaks
	s.router.HandleFunc("GET /v1/users/{user}/progress", s.handleProgressSummary)
	s.router.HandleFunc("GET /v1/users/{user}/lessons", s.handleListProgress)
	s.router.HandleFunc("GET /v1/users/{user}/lessons/{lesson}/progress", s.handleLessonProgress)
	s.router.HandleFunc("GET /v1/users/{user}/xp", s.handleXPHistory)
	s.router.HandleFunc("GET /v1/users/{user}/xp/summary", s.handleXPSummary)
	s.router.HandleFunc("POST /v1/users/{user}/streak/touch", s.handleTouchStreak)
	s.router.HandleFunc("GET /v1/users/{user}/stats", s.handleLearnerStats)
	s.router.HandleFunc("GET /v1/users/{user}/rewards", s.handleUserRewards)
	s.router.HandleFunc("GET /v1/users/{user}/rewards/available", s.handleAvailableRewards)
	s.router.HandleFunc("GET /v1/users/{user}/rewards/stats", s.handleRewardStats)

	// Study sessions
	s.router.HandleFunc("POST /v1/sessions", s.handleStartSession)
	s.router.HandleFunc("POST /v1/sessions/{id}/end", s.handleEndSession)

	// Reward administration
	s.router.HandleFunc("GET /v1/rewards", s.handleListRewards)
	s.router.HandleFunc("POST /v1/rewards", s.handleCreateReward)
	s.router.HandleFunc("GET /v1/rewards/{id}", s.handleGetReward)
	s.router.HandleFunc("PUT /v1/rewards/{id}", s.handleUpdateReward)
	s.router.HandleFunc("DELETE /v1/rewards/{id}", s.handleDeleteReward)
	s.router.HandleFunc("POST /v1/rewards/{id}/award", s.handleAwardReward)
	s.router.HandleFunc("POST /v1/rewards/{id}/toggle", s.handleToggleReward)

	// Instructor views
	s.router.HandleFunc("GET /v1/instructor/students", s.handleListStudents)
	s.router.HandleFunc("GET /v1/instructor/students/{user}", s.handleStudentDetail)

	// Curriculum
	s.router.HandleFunc("GET /v1/curriculum/modules", s.handleListModules)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting streakline daemon",
		"addr", s.server.Addr,
		"storage", s.cfg.Storage.Driver,
		"cascade", s.cfg.Rewards.CascadeMode,
		"xp_policy", s.cfg.Rewards.XPPolicy,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")
	return s.server.Shutdown(ctx)
}

// Helper methods

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	jsonResponse(w, status, response)
}

// serviceError writes err with the status its sentinel maps to. Internal
// errors are logged and their details withheld.
func serviceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error(message,
			"correlation_id", GetCorrelationID(r.Context()),
			"error", err,
		)
		jsonError(w, status, message, nil)
		return
	}
	jsonError(w, status, message, err)
}

// errorStatus maps domain sentinels to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateSubmission),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrAlreadyAwarded),
		errors.Is(err, domain.ErrSessionEnded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLessonLocked):
		return http.StatusLocked
	case errors.Is(err, domain.ErrInvalidIdentifier),
		errors.Is(err, domain.ErrInvalidReward),
		errors.Is(err, domain.ErrInvalidExercise),
		errors.Is(err, domain.ErrInvalidLesson):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrJudgeUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
