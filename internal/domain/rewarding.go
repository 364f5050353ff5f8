package domain

import (
	"fmt"
	"math"
)

// XPPolicy selects which paths grant XP for lesson work.
type XPPolicy string

const (
	// PolicySettlement grants XP only when a lesson is settled at completion.
	PolicySettlement XPPolicy = "settlement"
	// PolicyIncremental grants best-score improvements per submission.
	PolicyIncremental XPPolicy = "incremental"
	// PolicyDual grants both.
	PolicyDual XPPolicy = "dual"
)

// ParseXPPolicy parses a policy name; empty selects PolicySettlement.
func ParseXPPolicy(s string) (XPPolicy, error) {
	switch p := XPPolicy(s); p {
	case "":
		return PolicySettlement, nil
	case PolicySettlement, PolicyIncremental, PolicyDual:
		return p, nil
	default:
		return "", fmt.Errorf("unknown xp policy %q", s)
	}
}

// GrantsIncremental reports whether submissions grant XP directly.
func (p XPPolicy) GrantsIncremental() bool {
	return p == PolicyIncremental || p == PolicyDual
}

// Settles reports whether lesson completion runs a settlement.
func (p XPPolicy) Settles() bool {
	return p == PolicySettlement || p == PolicyDual || p == ""
}

// Verdict is the outcome of judging one response.
type Verdict struct {
	Correct  bool           `json:"is_correct"`
	Feedback map[string]any `json:"feedback,omitempty"`
}

// Achievement describes a reward granted during a cascade.
type Achievement struct {
	RewardID string     `json:"reward_id"`
	Title    string     `json:"title"`
	Type     RewardType `json:"reward_type"`
	XPBonus  int        `json:"xp_bonus"`
}

// CascadeResult collects what the reward cascade granted. Pending is set
// when the cascade was handed off for asynchronous processing.
type CascadeResult struct {
	XPBonus      int           `json:"xp_bonus"`
	Achievements []Achievement `json:"achievements_earned"`
	StreakDays   int           `json:"streak_days,omitempty"`
	Pending      bool          `json:"cascade_pending,omitempty"`
}

// Merge adds other's grants to r.
func (r *CascadeResult) Merge(other *CascadeResult) {
	if other == nil {
		return
	}
	r.XPBonus += other.XPBonus
	r.Achievements = append(r.Achievements, other.Achievements...)
	if other.StreakDays > 0 {
		r.StreakDays = other.StreakDays
	}
	r.Pending = r.Pending || other.Pending
}

// perfectionBonusPercent is the share of a lesson's xp reward granted once
// for a perfect session.
const perfectionBonusPercent = 15

// Settle computes the proportional lesson XP for a completed session and
// returns the updated settlement with the entries to grant. Only the
// improvement over SettledXP is granted, and the perfection bonus at most
// once.
func (s LessonSettlement) Settle(currentScore, totalPossible, xpReward int, refs XPRefs) (LessonSettlement, []XPEntry) {
	if totalPossible <= 0 || xpReward <= 0 {
		return s, nil
	}

	var entries []XPEntry
	earned := currentScore * xpReward / totalPossible
	if earned > s.SettledXP {
		entries = append(entries, NewXPEntry(s.UserID, earned-s.SettledXP, ReasonLessonCompletion, refs, map[string]any{
			"points_obtained": currentScore,
			"total_possible":  totalPossible,
			"percentage":      math.Round(float64(currentScore)/float64(totalPossible)*10000) / 100,
			"settled_xp":      earned,
		}))
		s.SettledXP = earned
	}

	if currentScore == totalPossible && !s.BonusGranted {
		if bonus := xpReward * perfectionBonusPercent / 100; bonus > 0 {
			entries = append(entries, NewXPEntry(s.UserID, bonus, ReasonPerfectionBonus, refs, map[string]any{
				"xp_reward": xpReward,
			}))
		}
		s.BonusGranted = true
	}
	return s, entries
}
