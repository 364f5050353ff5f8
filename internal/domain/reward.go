package domain

import (
	"fmt"
	"strings"
	"time"
)

// RewardType selects how a reward is triggered.
type RewardType string

const (
	RewardLessonPerfect   RewardType = "lesson_perfect"
	RewardStreakMilestone RewardType = "streak_milestone"
	RewardXPMilestone     RewardType = "xp_milestone"
	RewardCustom          RewardType = "custom"
)

// Valid reports whether t is a known reward type.
func (t RewardType) Valid() bool {
	switch t {
	case RewardLessonPerfect, RewardStreakMilestone, RewardXPMilestone, RewardCustom:
		return true
	}
	return false
}

// RewardCriteria holds the type-specific trigger.
type RewardCriteria struct {
	LessonID    string `json:"lesson_id,omitempty" yaml:"lesson_id,omitempty"`
	Streak      int    `json:"streak,omitempty" yaml:"streak,omitempty"`
	XPThreshold int    `json:"xp_threshold,omitempty" yaml:"xp_threshold,omitempty"`
}

// Reward is a badge that grants an XP bonus at most once per user.
type Reward struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Type        RewardType     `json:"reward_type"`
	Criteria    RewardCriteria `json:"criteria"`
	XPBonus     int            `json:"xp_bonus"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Validate checks that the criteria match the type.
func (r *Reward) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidReward)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidReward, r.Type)
	}
	if r.XPBonus < 0 {
		return fmt.Errorf("%w: xp bonus must not be negative", ErrInvalidReward)
	}
	switch r.Type {
	case RewardLessonPerfect:
		if err := ValidateID("criteria lesson id", r.Criteria.LessonID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidReward, err)
		}
	case RewardStreakMilestone:
		if r.Criteria.Streak <= 0 {
			return fmt.Errorf("%w: streak milestone requires a positive streak", ErrInvalidReward)
		}
	case RewardXPMilestone:
		if r.Criteria.XPThreshold <= 0 {
			return fmt.Errorf("%w: xp milestone requires a positive threshold", ErrInvalidReward)
		}
	}
	return nil
}

// RewardUpdate carries optional fields for a partial update.
type RewardUpdate struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Criteria    *RewardCriteria `json:"criteria,omitempty"`
	XPBonus     *int            `json:"xp_bonus,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

// Empty reports whether no field is set.
func (u RewardUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Criteria == nil && u.XPBonus == nil && u.IsActive == nil
}

// Apply copies the set fields onto r.
func (u RewardUpdate) Apply(r *Reward) {
	if u.Title != nil {
		r.Title = *u.Title
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Criteria != nil {
		r.Criteria = *u.Criteria
	}
	if u.XPBonus != nil {
		r.XPBonus = *u.XPBonus
	}
	if u.IsActive != nil {
		r.IsActive = *u.IsActive
	}
}

// LessonSettlement records how much proportional XP a user has already
// been granted for a lesson.
type LessonSettlement struct {
	UserID       string
	LessonID     string
	SettledXP    int
	BonusGranted bool
	UpdatedAt    time.Time
}
