package sqlite

import (
	"github.com/felixgeelhaar/streakline/internal/ledger"
	"github.com/felixgeelhaar/streakline/internal/progress"
	"github.com/felixgeelhaar/streakline/internal/rewards"
	"github.com/felixgeelhaar/streakline/internal/session"
	"github.com/felixgeelhaar/streakline/internal/stats"
	"github.com/felixgeelhaar/streakline/internal/streak"
)

// Ensure SQLite stores implement the storage interfaces.
var (
	_ progress.Store       = (*ProgressStore)(nil)
	_ progress.UserReader  = (*UserStore)(nil)
	_ streak.Store         = (*UserStore)(nil)
	_ ledger.Store         = (*LedgerStore)(nil)
	_ rewards.Store        = (*RewardStore)(nil)
	_ session.Store        = (*SessionStore)(nil)
	_ stats.ProgressReader = (*ProgressStore)(nil)
	_ stats.UserReader     = (*UserStore)(nil)
	_ stats.ActivityReader = (*SessionStore)(nil)
)
