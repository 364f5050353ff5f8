// Package rewards evaluates reward criteria, settles lesson XP and
// administers reward definitions.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// Engine runs the reward cascade. It holds no state of its own; every
// award is guarded by the store's conditional insert, so evaluating the
// same trigger twice never grants twice.
type Engine struct {
	store   Store
	lessons LessonFinder
	streaks StreakToucher
	policy  domain.XPPolicy
	events  *domain.EventDispatcher
	logger  *slog.Logger
}

// NewEngine creates a new reward engine. streaks may be nil, in which case
// lesson completion does not touch the streak.
func NewEngine(store Store, lessons LessonFinder, streaks StreakToucher, policy domain.XPPolicy) *Engine {
	return &Engine{
		store:   store,
		lessons: lessons,
		streaks: streaks,
		policy:  policy,
		logger:  slog.Default(),
	}
}

// SetEventDispatcher sets the dispatcher that receives RewardAwarded events
func (e *Engine) SetEventDispatcher(d *domain.EventDispatcher) {
	e.events = d
}

// SetLogger overrides the default logger
func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.logger = l
	}
}

// LessonCompleted settles lesson XP and evaluates every reward a lesson
// completion can trigger. Failures of individual steps are logged and do
// not stop the remaining steps; the joined error is returned alongside the
// partial result.
func (e *Engine) LessonCompleted(ctx context.Context, ev domain.LessonCompletedEvent) (*domain.CascadeResult, error) {
	result := &domain.CascadeResult{}
	var errs []error

	if e.policy.Settles() {
		if err := e.settle(ctx, ev, result); err != nil {
			errs = append(errs, err)
		}
	}

	if ev.IsPerfect() {
		if err := e.awardLessonPerfect(ctx, ev, result); err != nil {
			errs = append(errs, err)
		}
	}

	if e.streaks != nil {
		at := ev.CompletedAt
		if at.IsZero() {
			at = time.Now()
		}
		days, err := e.streaks.Touch(ctx, ev.UserID, at)
		if err != nil {
			errs = append(errs, err)
		} else {
			result.StreakDays = days
			if err := e.streakMilestones(ctx, ev.UserID, days, result); err != nil {
				errs = append(errs, err)
			}
		}
	}

	xr, err := e.XPChanged(ctx, ev.UserID)
	result.Merge(xr)
	if err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		e.logger.Warn("reward cascade incomplete", "user_id", ev.UserID, "lesson_id", ev.LessonID, "error", err)
		return result, err
	}
	return result, nil
}

// XPChanged awards every active xp milestone the user's total has reached.
// Milestone bonuses count toward higher thresholds.
func (e *Engine) XPChanged(ctx context.Context, userID string) (*domain.CascadeResult, error) {
	result := &domain.CascadeResult{}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return result, nil
		}
		return result, fmt.Errorf("load user: %w", err)
	}

	candidates, err := e.store.ListActiveRewards(ctx, domain.RewardXPMilestone)
	if err != nil {
		return result, fmt.Errorf("list xp milestones: %w", err)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Criteria.XPThreshold < candidates[j].Criteria.XPThreshold
	})

	total := user.TotalPoints
	var errs []error
	for _, r := range candidates {
		if r.Criteria.XPThreshold > total {
			break
		}
		granted, err := e.award(ctx, r, userID, result)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if granted {
			total += r.XPBonus
		}
	}
	return result, errors.Join(errs...)
}

// StreakReached awards streak milestones whose target equals days exactly.
// A granted bonus may cross an xp milestone, which is evaluated too.
func (e *Engine) StreakReached(ctx context.Context, userID string, days int) (*domain.CascadeResult, error) {
	result := &domain.CascadeResult{StreakDays: days}
	err := e.streakMilestones(ctx, userID, days, result)
	if result.XPBonus == 0 {
		return result, err
	}

	xr, xerr := e.XPChanged(ctx, userID)
	result.Merge(xr)
	return result, errors.Join(err, xerr)
}

func (e *Engine) streakMilestones(ctx context.Context, userID string, days int, result *domain.CascadeResult) error {
	candidates, err := e.store.ListActiveRewards(ctx, domain.RewardStreakMilestone)
	if err != nil {
		return fmt.Errorf("list streak milestones: %w", err)
	}

	var errs []error
	for _, r := range candidates {
		if r.Criteria.Streak != days {
			continue
		}
		if _, err := e.award(ctx, r, userID, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Award grants a reward manually. This is the only path for custom
// rewards. It returns domain.ErrAlreadyAwarded if the user holds it.
func (e *Engine) Award(ctx context.Context, rewardID, userID string) (*domain.CascadeResult, error) {
	if err := domain.ValidateIDs("reward id", rewardID, "user id", userID); err != nil {
		return nil, err
	}

	r, err := e.store.GetReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if !r.IsActive {
		return nil, fmt.Errorf("%w: reward %s is inactive", domain.ErrInvalidReward, rewardID)
	}

	result := &domain.CascadeResult{}
	granted, err := e.award(ctx, r, userID, result)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, domain.ErrAlreadyAwarded
	}

	// The bonus may cross an xp milestone.
	xr, err := e.XPChanged(ctx, userID)
	result.Merge(xr)
	if err != nil {
		e.logger.Warn("xp milestone evaluation failed", "user_id", userID, "error", err)
	}
	return result, nil
}

func (e *Engine) settle(ctx context.Context, ev domain.LessonCompletedEvent, result *domain.CascadeResult) error {
	lesson, err := e.lessons.FindLesson(ctx, ev.ModuleID, ev.LessonID)
	if err != nil {
		return fmt.Errorf("settle lesson: %w", err)
	}

	total := ev.TotalPossible
	if total == 0 {
		total = lesson.TotalPossible()
	}
	refs := domain.XPRefs{LessonID: ev.LessonID, ModuleID: ev.ModuleID}

	granted, err := e.store.SettleLesson(ctx, ev.UserID, ev.LessonID, func(cur domain.LessonSettlement) (domain.LessonSettlement, []domain.XPEntry) {
		return cur.Settle(ev.CurrentScore, total, lesson.XPReward, refs)
	})
	if err != nil {
		return fmt.Errorf("settle lesson: %w", err)
	}

	for _, g := range granted {
		result.XPBonus += g.Amount
		e.events.Publish(domain.NewXPChangedEvent(g.UserID, g.Amount, g.Reason))
	}
	if len(granted) > 0 {
		e.logger.Info("lesson settled", "user_id", ev.UserID, "lesson_id", ev.LessonID, "entries", len(granted))
	}
	return nil
}

func (e *Engine) awardLessonPerfect(ctx context.Context, ev domain.LessonCompletedEvent, result *domain.CascadeResult) error {
	candidates, err := e.store.ListActiveRewards(ctx, domain.RewardLessonPerfect)
	if err != nil {
		return fmt.Errorf("list lesson rewards: %w", err)
	}

	var errs []error
	for _, r := range candidates {
		if r.Criteria.LessonID != ev.LessonID {
			continue
		}
		if _, err := e.award(ctx, r, ev.UserID, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// award grants r to userID and records it in result. It reports false
// without error when the user already holds the reward.
func (e *Engine) award(ctx context.Context, r *domain.Reward, userID string, result *domain.CascadeResult) (bool, error) {
	entry := domain.NewXPEntry(userID, r.XPBonus, domain.ReasonRewardAwarded,
		domain.XPRefs{RewardID: r.ID, LessonID: r.Criteria.LessonID},
		map[string]any{"reward_type": string(r.Type), "title": r.Title})

	err := e.store.AwardReward(ctx, r.ID, userID, &entry)
	if errors.Is(err, domain.ErrAlreadyAwarded) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("award %s: %w", r.ID, err)
	}

	result.XPBonus += r.XPBonus
	result.Achievements = append(result.Achievements, domain.Achievement{
		RewardID: r.ID,
		Title:    r.Title,
		Type:     r.Type,
		XPBonus:  r.XPBonus,
	})
	e.logger.Info("reward awarded", "user_id", userID, "reward_id", r.ID, "reward_type", r.Type, "xp_bonus", r.XPBonus)
	e.events.Publish(domain.NewRewardAwardedEvent(userID, r))
	return true, nil
}
