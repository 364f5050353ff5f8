// Package session times study sessions. Starting a session counts as
// practice for the streak.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Store persists study sessions.
type Store interface {
	CreateSession(ctx context.Context, sess *domain.StudySession) error
	GetSession(ctx context.Context, id string) (*domain.StudySession, error)
	EndSession(ctx context.Context, sess *domain.StudySession) error
	ListSessions(ctx context.Context, userID string, limit int) ([]*domain.StudySession, error)
}

// StreakToucher records a practice day.
type StreakToucher interface {
	Touch(ctx context.Context, userID string, ref time.Time) (int, error)
}

// MilestoneEvaluator awards streak milestones.
type MilestoneEvaluator interface {
	StreakReached(ctx context.Context, userID string, days int) (*domain.CascadeResult, error)
}

// StartResult is returned by Start.
type StartResult struct {
	Session      *domain.StudySession `json:"session"`
	StreakDays   int                  `json:"streak_days"`
	Achievements []domain.Achievement `json:"achievements_earned"`
}

// Service manages study sessions
type Service struct {
	store      Store
	streaks    StreakToucher
	milestones MilestoneEvaluator
	now        func() time.Time
}

// NewService creates a new session service. streaks and milestones may be
// nil.
func NewService(store Store, streaks StreakToucher, milestones MilestoneEvaluator) *Service {
	return &Service{
		store:      store,
		streaks:    streaks,
		milestones: milestones,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start opens a session. lessonID is optional. Streak failures are logged
// and do not fail the start.
func (s *Service) Start(ctx context.Context, userID, lessonID string) (*StartResult, error) {
	if err := domain.ValidateID("user id", userID); err != nil {
		return nil, err
	}
	if lessonID != "" {
		if err := domain.ValidateID("lesson id", lessonID); err != nil {
			return nil, err
		}
	}

	sess := &domain.StudySession{
		ID:        domain.NewID(),
		UserID:    userID,
		LessonID:  lessonID,
		StartTime: s.now(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	result := &StartResult{Session: sess, Achievements: []domain.Achievement{}}
	if s.streaks == nil {
		return result, nil
	}

	days, err := s.streaks.Touch(ctx, userID, sess.StartTime)
	if err != nil {
		slog.Warn("streak touch failed", "user", userID, "session", sess.ID, "error", err)
		return result, nil
	}
	result.StreakDays = days

	if s.milestones != nil {
		cascade, err := s.milestones.StreakReached(ctx, userID, days)
		if err != nil {
			slog.Warn("streak milestone evaluation failed", "user", userID, "days", days, "error", err)
		}
		if cascade != nil && len(cascade.Achievements) > 0 {
			result.Achievements = cascade.Achievements
		}
	}
	return result, nil
}

// End closes a session owned by userID. Another user's session is reported
// as not found.
func (s *Service) End(ctx context.Context, sessionID, userID string) (*domain.StudySession, error) {
	if err := domain.ValidateIDs("session id", sessionID, "user id", userID); err != nil {
		return nil, err
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	if sess.IsEnded() {
		return nil, domain.ErrSessionEnded
	}

	sess.Finish(s.now())
	if err := s.store.EndSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns a session owned by userID.
func (s *Service) Get(ctx context.Context, sessionID, userID string) (*domain.StudySession, error) {
	if err := domain.ValidateIDs("session id", sessionID, "user id", userID); err != nil {
		return nil, err
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

// List returns a user's most recent sessions.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*domain.StudySession, error) {
	if err := domain.ValidateID("user id", userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	sessions, err := s.store.ListSessions(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*domain.StudySession{}
	}
	return sessions, nil
}
