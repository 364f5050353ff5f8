package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
	"github.com/felixgeelhaar/streakline/internal/progress"
	"github.com/felixgeelhaar/streakline/internal/rewards"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

var errUserRequired = errors.New("X-User-ID header is required")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	var storageErr string
	if s.storage != nil {
		if err := s.storage.Ping(r.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
			storageErr = err.Error()
		}
	}

	resp := map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
	}
	if storageErr != "" {
		resp["storage_error"] = storageErr
	}
	jsonResponse(w, code, resp)
}

// Attempt handlers

type answerRequest struct {
	SessionID    string          `json:"session_id"`
	ModuleID     string          `json:"module_id"`
	LessonID     string          `json:"lesson_id"`
	ExerciseUUID string          `json:"exercise_uuid"`
	Response     json.RawMessage `json:"user_response"`
}

func (a answerRequest) toSubmit(userID string) progress.SubmitRequest {
	resp := a.Response
	if len(resp) == 0 {
		resp = json.RawMessage(`""`)
	}
	return progress.SubmitRequest{
		UserID:       userID,
		SessionID:    a.SessionID,
		ModuleID:     a.ModuleID,
		LessonID:     a.LessonID,
		ExerciseUUID: a.ExerciseUUID,
		Response:     resp,
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		jsonError(w, http.StatusBadRequest, "missing user", errUserRequired)
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := s.progress.Submit(r.Context(), req.toSubmit(userID))
	if err != nil {
		serviceError(w, r, "submission failed", err)
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := s.progress.Validate(r.Context(), req.toSubmit(GetUserID(r.Context())))
	if err != nil {
		serviceError(w, r, "validation failed", err)
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

// Progress handlers

func (s *Server) handleProgressSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.progress.Summary(r.Context(), r.PathValue("user"))
	if err != nil {
		serviceError(w, r, "failed to get progress summary", err)
		return
	}
	jsonResponse(w, http.StatusOK, summary)
}

func (s *Server) handleListProgress(w http.ResponseWriter, r *http.Request) {
	list, err := s.progress.ListProgress(r.Context(), r.PathValue("user"))
	if err != nil {
		serviceError(w, r, "failed to list progress", err)
		return
	}
	if list == nil {
		list = []*domain.LessonProgress{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"lessons": list,
		"count":   len(list),
	})
}

func (s *Server) handleLessonProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.progress.LessonProgress(r.Context(), r.PathValue("user"), r.PathValue("lesson"))
	if err != nil {
		serviceError(w, r, "failed to get lesson progress", err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// XP handlers

func (s *Server) handleXPHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		jsonError(w, http.StatusBadRequest, "invalid offset", err)
		return
	}

	entries, err := s.ledger.History(r.Context(), r.PathValue("user"), limit, offset)
	if err != nil {
		serviceError(w, r, "failed to get xp history", err)
		return
	}
	if entries == nil {
		entries = []domain.XPEntry{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) handleXPSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.Summarize(r.Context(), r.PathValue("user"))
	if err != nil {
		serviceError(w, r, "failed to summarize xp", err)
		return
	}
	jsonResponse(w, http.StatusOK, summary)
}

func (s *Server) handleTouchStreak(w http.ResponseWriter, r *http.Request) {
	if s.streaks == nil {
		jsonError(w, http.StatusNotImplemented, "streaks not configured", nil)
		return
	}
	userID := r.PathValue("user")
	if err := domain.ValidateID("user id", userID); err != nil {
		serviceError(w, r, "invalid user", err)
		return
	}

	days, err := s.streaks.Touch(r.Context(), userID, s.now())
	if err != nil {
		serviceError(w, r, "failed to touch streak", err)
		return
	}

	achievements := []domain.Achievement{}
	if s.rewards != nil {
		res, err := s.rewards.StreakReached(r.Context(), userID, days)
		if err != nil {
			// The streak is already recorded; milestones are retried on the
			// next touch.
			slog.Warn("streak milestone evaluation failed",
				"correlation_id", GetCorrelationID(r.Context()),
				"user_id", userID,
				"error", err,
			)
		}
		if res != nil {
			achievements = append(achievements, res.Achievements...)
		}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"streak_days":         days,
		"achievements_earned": achievements,
	})
}

// Session handlers

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		jsonError(w, http.StatusNotImplemented, "sessions not configured", nil)
		return
	}
	userID := GetUserID(r.Context())
	if userID == "" {
		jsonError(w, http.StatusBadRequest, "missing user", errUserRequired)
		return
	}

	var req struct {
		LessonID string `json:"lesson_id,omitempty"`
	}
	if err := decodeOptional(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := s.sessions.Start(r.Context(), userID, req.LessonID)
	if err != nil {
		serviceError(w, r, "failed to start session", err)
		return
	}
	jsonResponse(w, http.StatusCreated, result)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		jsonError(w, http.StatusNotImplemented, "sessions not configured", nil)
		return
	}
	userID := GetUserID(r.Context())
	if userID == "" {
		jsonError(w, http.StatusBadRequest, "missing user", errUserRequired)
		return
	}

	sess, err := s.sessions.End(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		serviceError(w, r, "failed to end session", err)
		return
	}
	jsonResponse(w, http.StatusOK, sess)
}

// Reward handlers

func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		jsonError(w, http.StatusNotImplemented, "rewards not configured", nil)
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	list, err := s.catalog.List(r.Context(), activeOnly)
	if err != nil {
		serviceError(w, r, "failed to list rewards", err)
		return
	}
	if list == nil {
		list = []*domain.Reward{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"rewards": list,
		"count":   len(list),
	})
}

func (s *Server) handleCreateReward(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		jsonError(w, http.StatusNotImplemented, "rewards not configured", nil)
		return
	}
	var req rewards.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	reward, err := s.catalog.Create(r.Context(), req)
	if err != nil {
		serviceError(w, r, "failed to create reward", err)
		return
	}
	jsonResponse(w, http.StatusCreated, reward)
}

func (s *Server) handleGetReward(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		jsonError(w, http.StatusNotImplemented, "rewards not configured", nil)
		return
	}
	reward, err := s.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		serviceError(w, r, "failed to get reward", err)
		return
	}
	jsonResponse(w, http.StatusOK, reward)
}

func (s *Server) handleUpdateReward(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		jsonError(w, http.StatusNotImplemented, "rewards not configured", nil)
		return
	}
	var upd domain.RewardUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if upd.Empty() {
		jsonError(w, http.StatusBadRequest, "no fields to update", nil)
		return
	}

	reward, err := s.catalog.Update(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		serviceError(w, r, "failed to update reward", err)
		return
	}
	jsonResponse(w, http.StatusOK, reward)
}

func (s *Server) handleDeleteReward(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		jsonError(w, http.StatusNotImplemented, "rewards not configured", nil)
		return
	}
	if err := s.catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		serviceError(w, r, "failed to delete reward", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"deleted": true,
	})
}

func (s *Server) handleAwardReward(w http.ResponseWriter, r *http.Request) {
	if s.rewards == nil {
		jsonError(w, http.StatusNotImplemented, "rewards not configured", nil)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeOptional(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UserID == "" {
		req.UserID = GetUserID(r.Context())
	}
	if req.UserID == "" {
		jsonError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	result, err := s.rewards.Award(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		serviceError(w, r, "failed to award reward", err)
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleToggleReward(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		jsonError(w, http.StatusNotImplemented, "rewards not configured", nil)
		return
	}
	reward, err := s.catalog.Toggle(r.Context(), r.PathValue("id"))
	if err != nil {
		serviceError(w, r, "failed to toggle reward", err)
		return
	}
	jsonResponse(w, http.StatusOK, reward)
}

func (s *Server) handleUserRewards(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		jsonError(w, http.StatusNotImplemented, "rewards not configured", nil)
		return
	}
	held, err := s.catalog.UserRewards(r.Context(), r.PathValue("user"))
	if err != nil {
		serviceError(w, r, "failed to list user rewards", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"rewards": held,
		"count":   len(held),
	})
}

func (s *Server) handleAvailableRewards(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		jsonError(w, http.StatusNotImplemented, "rewards not configured", nil)
		return
	}
	available, err := s.catalog.AvailableRewards(r.Context(), r.PathValue("user"))
	if err != nil {
		serviceError(w, r, "failed to list available rewards", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"rewards": available,
		"count":   len(available),
	})
}

func (s *Server) handleRewardStats(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		jsonError(w, http.StatusNotImplemented, "rewards not configured", nil)
		return
	}
	st, err := s.catalog.RewardStats(r.Context(), r.PathValue("user"))
	if err != nil {
		serviceError(w, r, "failed to get reward stats", err)
		return
	}
	jsonResponse(w, http.StatusOK, st)
}

// Statistics handlers

func (s *Server) handleLearnerStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, http.StatusNotImplemented, "statistics not configured", nil)
		return
	}
	st, err := s.stats.Learner(r.Context(), r.PathValue("user"))
	if err != nil {
		serviceError(w, r, "failed to get learner stats", err)
		return
	}
	jsonResponse(w, http.StatusOK, st)
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, http.StatusNotImplemented, "statistics not configured", nil)
		return
	}
	students, err := s.stats.Students(r.Context())
	if err != nil {
		serviceError(w, r, "failed to list students", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"students": students,
		"count":    len(students),
	})
}

func (s *Server) handleStudentDetail(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, http.StatusNotImplemented, "statistics not configured", nil)
		return
	}
	detail, err := s.stats.Student(r.Context(), r.PathValue("user"))
	if err != nil {
		serviceError(w, r, "failed to get student progress", err)
		return
	}
	jsonResponse(w, http.StatusOK, detail)
}

// Curriculum handlers

type moduleSummary struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Order        int             `json:"order"`
	EstimateDays int             `json:"estimate_days,omitempty"`
	Lessons      []lessonSummary `json:"lessons"`
}

type lessonSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Order         int    `json:"order"`
	XPReward      int    `json:"xp_reward"`
	IsPrivate     bool   `json:"is_private"`
	ExerciseCount int    `json:"exercise_count"`
	TotalPossible int    `json:"total_possible"`
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	if s.curriculum == nil {
		jsonError(w, http.StatusNotImplemented, "curriculum not configured", nil)
		return
	}

	modules := s.curriculum.ListModules()
	out := make([]moduleSummary, 0, len(modules))
	for _, m := range modules {
		ms := moduleSummary{
			ID:           m.ID,
			Title:        m.Title,
			Description:  m.Description,
			Order:        m.Order,
			EstimateDays: m.EstimateDays,
			Lessons:      make([]lessonSummary, 0, len(m.Lessons)),
		}
		for i := range m.Lessons {
			l := &m.Lessons[i]
			ms.Lessons = append(ms.Lessons, lessonSummary{
				ID:            l.ID,
				Title:         l.Title,
				Order:         l.Order,
				XPReward:      l.XPReward,
				IsPrivate:     l.IsPrivate,
				ExerciseCount: len(l.Exercises),
				TotalPossible: l.TotalPossible(),
			})
		}
		out = append(out, ms)
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"modules": out,
		"count":   len(out),
	})
}

// decodeOptional decodes a JSON body that may be absent.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
