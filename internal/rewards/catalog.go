package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
	"gopkg.in/yaml.v3"
)

// Catalog administers reward definitions.
type Catalog struct {
	store Store
	now   func() time.Time
}

// NewCatalog creates a new reward catalog
func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store, now: time.Now}
}

// CreateRequest contains data for creating a reward
type CreateRequest struct {
	ID          string                `json:"id,omitempty" yaml:"id"`
	Title       string                `json:"title" yaml:"title"`
	Description string                `json:"description" yaml:"description"`
	Type        domain.RewardType     `json:"reward_type" yaml:"reward_type"`
	Criteria    domain.RewardCriteria `json:"criteria" yaml:"criteria"`
	XPBonus     int                   `json:"xp_bonus" yaml:"xp_bonus"`
	IsActive    *bool                 `json:"is_active,omitempty" yaml:"is_active"`
}

func (req CreateRequest) toReward(now time.Time) *domain.Reward {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	id := req.ID
	if id == "" {
		id = domain.NewID()
	}
	return &domain.Reward{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Criteria:    req.Criteria,
		XPBonus:     req.XPBonus,
		IsActive:    active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Create validates and stores a new reward.
func (c *Catalog) Create(ctx context.Context, req CreateRequest) (*domain.Reward, error) {
	r := req.toReward(c.now().UTC())
	if err := domain.ValidateID("reward id", r.ID); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := c.store.CreateReward(ctx, r); err != nil {
		return nil, err
	}
	slog.Info("reward created", "reward_id", r.ID, "reward_type", r.Type)
	return r, nil
}

// Update applies a partial update. The reward type cannot change.
func (c *Catalog) Update(ctx context.Context, id string, upd domain.RewardUpdate) (*domain.Reward, error) {
	if err := domain.ValidateID("reward id", id); err != nil {
		return nil, err
	}
	if upd.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", domain.ErrInvalidReward)
	}

	r, err := c.store.GetReward(ctx, id)
	if err != nil {
		return nil, err
	}
	upd.Apply(r)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.UpdatedAt = c.now().UTC()

	if err := c.store.UpdateReward(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes a reward and its awarded set.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := domain.ValidateID("reward id", id); err != nil {
		return err
	}
	return c.store.DeleteReward(ctx, id)
}

// Get returns a reward.
func (c *Catalog) Get(ctx context.Context, id string) (*domain.Reward, error) {
	if err := domain.ValidateID("reward id", id); err != nil {
		return nil, err
	}
	return c.store.GetReward(ctx, id)
}

// List returns every reward, or only the active ones.
func (c *Catalog) List(ctx context.Context, activeOnly bool) ([]*domain.Reward, error) {
	all, err := c.store.ListRewards(ctx)
	if err != nil {
		return nil, err
	}
	rewards := make([]*domain.Reward, 0, len(all))
	for _, r := range all {
		if activeOnly && !r.IsActive {
			continue
		}
		rewards = append(rewards, r)
	}
	return rewards, nil
}

// Awardees returns the users holding a reward.
func (c *Catalog) Awardees(ctx context.Context, id string) ([]string, error) {
	if _, err := c.Get(ctx, id); err != nil {
		return nil, err
	}
	return c.store.ListAwardees(ctx, id)
}

// UserRewards returns the rewards a user holds.
func (c *Catalog) UserRewards(ctx context.Context, userID string) ([]*domain.Reward, error) {
	if err := domain.ValidateID("user id", userID); err != nil {
		return nil, err
	}
	rewards, err := c.store.ListUserRewards(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rewards == nil {
		rewards = []*domain.Reward{}
	}
	return rewards, nil
}

// Toggle flips whether a reward is active.
func (c *Catalog) Toggle(ctx context.Context, id string) (*domain.Reward, error) {
	r, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.IsActive = !r.IsActive
	r.UpdatedAt = c.now().UTC()
	if err := c.store.UpdateReward(ctx, r); err != nil {
		return nil, err
	}
	slog.Info("reward toggled", "reward_id", r.ID, "active", r.IsActive)
	return r, nil
}

// RewardProgress is how far a user is toward a milestone reward.
type RewardProgress struct {
	Current  int     `json:"current"`
	Required int     `json:"required"`
	Percent  float64 `json:"percentage"`
}

// AvailableReward is an active reward the user does not hold yet.
// Progress is set for XP and streak milestones only.
type AvailableReward struct {
	*domain.Reward
	Progress *RewardProgress `json:"progress,omitempty"`
}

// AvailableRewards lists the active rewards a user can still earn with
// their progress toward each milestone.
func (c *Catalog) AvailableRewards(ctx context.Context, userID string) ([]AvailableReward, error) {
	held, err := c.heldBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	user, err := c.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	active, err := c.List(ctx, true)
	if err != nil {
		return nil, err
	}

	available := make([]AvailableReward, 0, len(active))
	for _, r := range active {
		if held[r.ID] {
			continue
		}
		ar := AvailableReward{Reward: r}
		switch r.Type {
		case domain.RewardXPMilestone:
			ar.Progress = newRewardProgress(user.TotalPoints, r.Criteria.XPThreshold)
		case domain.RewardStreakMilestone:
			ar.Progress = newRewardProgress(user.Streak.CurrentDays, r.Criteria.Streak)
		}
		available = append(available, ar)
	}
	return available, nil
}

func newRewardProgress(current, required int) *RewardProgress {
	pct := 100.0
	if required > 0 {
		pct = min(100, math.Round(float64(current)/float64(required)*1000)/10)
	}
	return &RewardProgress{Current: current, Required: required, Percent: pct}
}

// RewardStats summarizes a user's collection against the whole catalog,
// inactive rewards included.
type RewardStats struct {
	Total             int     `json:"total_rewards"`
	Obtained          int     `json:"obtained_rewards"`
	Remaining         int     `json:"remaining_rewards"`
	CompletionPercent float64 `json:"completion_percentage"`
	RewardPoints      int     `json:"total_reward_points"`
}

// RewardStats returns how much of the catalog a user has collected.
func (c *Catalog) RewardStats(ctx context.Context, userID string) (*RewardStats, error) {
	held, err := c.UserRewards(ctx, userID)
	if err != nil {
		return nil, err
	}
	all, err := c.store.ListRewards(ctx)
	if err != nil {
		return nil, err
	}

	st := &RewardStats{Total: len(all), Obtained: len(held)}
	st.Remaining = max(st.Total-st.Obtained, 0)
	for _, r := range held {
		st.RewardPoints += r.XPBonus
	}
	if st.Total > 0 {
		st.CompletionPercent = math.Round(float64(st.Obtained)/float64(st.Total)*10000) / 100
	}
	return st, nil
}

func (c *Catalog) heldBy(ctx context.Context, userID string) (map[string]bool, error) {
	rewards, err := c.UserRewards(ctx, userID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]bool, len(rewards))
	for _, r := range rewards {
		held[r.ID] = true
	}
	return held, nil
}

// user returns the stored user or a zero user for one who never practiced.
func (c *Catalog) user(ctx context.Context, userID string) (*domain.User, error) {
	u, err := c.store.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return &domain.User{ID: userID}, nil
	}
	return u, err
}

// SeedFile is the YAML layout accepted by Seed.
type SeedFile struct {
	Rewards []CreateRequest `yaml:"rewards"`
}

// SeedResult reports what Seed changed.
type SeedResult struct {
	Created int
	Updated int
}

// Seed upserts rewards from a YAML document. Every entry needs an id so
// that seeding is repeatable.
func (c *Catalog) Seed(ctx context.Context, data []byte) (*SeedResult, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	// Validate everything before writing anything.
	now := c.now().UTC()
	seeds := make([]*domain.Reward, 0, len(file.Rewards))
	for i, req := range file.Rewards {
		if req.ID == "" {
			return nil, fmt.Errorf("%w: seed entry %d has no id", domain.ErrInvalidReward, i)
		}
		r := req.toReward(now)
		if err := domain.ValidateID("reward id", r.ID); err != nil {
			return nil, err
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("seed entry %s: %w", r.ID, err)
		}
		seeds = append(seeds, r)
	}

	result := &SeedResult{}
	for _, r := range seeds {
		existing, err := c.store.GetReward(ctx, r.ID)
		switch {
		case errors.Is(err, domain.ErrRewardNotFound):
			if err := c.store.CreateReward(ctx, r); err != nil {
				return result, err
			}
			result.Created++
		case err != nil:
			return result, err
		default:
			r.CreatedAt = existing.CreatedAt
			if existing.Type != r.Type {
				return result, fmt.Errorf("%w: seed entry %s changes type %s to %s",
					domain.ErrInvalidReward, r.ID, existing.Type, r.Type)
			}
			if err := c.store.UpdateReward(ctx, r); err != nil {
				return result, err
			}
			result.Updated++
		}
	}

	slog.Info("rewards seeded", "created", result.Created, "updated", result.Updated)
	return result, nil
}
