package rewards

import (
	"context"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// Store is the persistence interface for reward definitions, awards and
// lesson settlements.
type Store interface {
	CreateReward(ctx context.Context, r *domain.Reward) error
	UpdateReward(ctx context.Context, r *domain.Reward) error
	DeleteReward(ctx context.Context, id string) error
	GetReward(ctx context.Context, id string) (*domain.Reward, error)
	ListRewards(ctx context.Context) ([]*domain.Reward, error)
	ListActiveRewards(ctx context.Context, t domain.RewardType) ([]*domain.Reward, error)
	ListUserRewards(ctx context.Context, userID string) ([]*domain.Reward, error)
	ListAwardees(ctx context.Context, rewardID string) ([]string, error)

	// AwardReward inserts the (reward, user) pair and applies entry in the
	// same transaction, returning domain.ErrAlreadyAwarded when the pair
	// already existed.
	AwardReward(ctx context.Context, rewardID, userID string, entry *domain.XPEntry) error

	// SettleLesson passes the stored settlement to fn and persists its
	// result together with the returned entries.
	SettleLesson(ctx context.Context, userID, lessonID string,
		fn func(domain.LessonSettlement) (domain.LessonSettlement, []domain.XPEntry)) ([]domain.XPEntry, error)

	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// LessonFinder resolves lessons for settlement.
type LessonFinder interface {
	FindLesson(ctx context.Context, moduleID, lessonID string) (*domain.Lesson, error)
}

// StreakToucher advances a user's streak.
type StreakToucher interface {
	Touch(ctx context.Context, userID string, ref time.Time) (int, error)
}
