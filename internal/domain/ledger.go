package domain

import "time"

// XPReason is the reason code of a ledger entry.
type XPReason string

const (
	ReasonLessonProgress   XPReason = "lesson_progress"
	ReasonLessonCompletion XPReason = "lesson_completion"
	ReasonPerfectionBonus  XPReason = "perfection_bonus"
	ReasonRewardAwarded    XPReason = "reward_awarded"
	ReasonManualAdjustment XPReason = "manual_adjustment"
)

// XPRefs correlates a ledger entry with the entities that caused it.
type XPRefs struct {
	LessonID string `json:"lesson_id,omitempty"`
	ModuleID string `json:"module_id,omitempty"`
	RewardID string `json:"reward_id,omitempty"`
}

// XPEntry is an append-only ledger row.
type XPEntry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Amount    int            `json:"amount"`
	Reason    XPReason       `json:"reason"`
	Refs      XPRefs         `json:"refs"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewXPEntry builds an entry with a fresh id and timestamp.
func NewXPEntry(userID string, amount int, reason XPReason, refs XPRefs, metadata map[string]any) XPEntry {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return XPEntry{
		ID:        NewID(),
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		Refs:      refs,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

// ReasonTotal aggregates entries sharing a reason.
type ReasonTotal struct {
	Count  int `json:"count"`
	Amount int `json:"amount"`
}

// XPSummary is the fold of a user's ledger.
type XPSummary struct {
	UserID            string                   `json:"user_id"`
	TotalXP           int                      `json:"total_xp"`
	TransactionCount  int                      `json:"total_transactions"`
	BreakdownByReason map[XPReason]ReasonTotal `json:"breakdown_by_reason"`
}
