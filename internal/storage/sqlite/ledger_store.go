package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// LedgerStore implements the append-only XP ledger backed by SQLite.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new SQLite-backed ledger store.
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// AppendXP appends an entry and applies its amount to the user's total in
// one transaction.
func (s *LedgerStore) AppendXP(ctx context.Context, e domain.XPEntry) error {
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, e.UserID); err != nil {
			return err
		}
		return grantXP(ctx, tx, e)
	})
}

// ListXP returns a page of a user's entries, newest first.
func (s *LedgerStore) ListXP(ctx context.Context, userID string, limit, offset int) ([]domain.XPEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, reason, lesson_id, module_id, reward_id, metadata, created_at
		FROM xp_ledger WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list xp: %w", err)
	}
	defer rows.Close()

	var entries []domain.XPEntry
	for rows.Next() {
		var (
			e                            domain.XPEntry
			lessonID, moduleID, rewardID sql.NullString
			metadata                     string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &lessonID, &moduleID, &rewardID, &metadata, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan xp entry: %w", err)
		}
		e.Refs = domain.XPRefs{LessonID: lessonID.String, ModuleID: moduleID.String, RewardID: rewardID.String}
		if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SummarizeXP folds a user's ledger by reason.
func (s *LedgerStore) SummarizeXP(ctx context.Context, userID string) (*domain.XPSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reason, COUNT(*), COALESCE(SUM(amount), 0)
		FROM xp_ledger WHERE user_id = ?
		GROUP BY reason`, userID)
	if err != nil {
		return nil, fmt.Errorf("summarize xp: %w", err)
	}
	defer rows.Close()

	summary := &domain.XPSummary{
		UserID:            userID,
		BreakdownByReason: make(map[domain.XPReason]domain.ReasonTotal),
	}
	for rows.Next() {
		var (
			reason domain.XPReason
			total  domain.ReasonTotal
		)
		if err := rows.Scan(&reason, &total.Count, &total.Amount); err != nil {
			return nil, fmt.Errorf("scan xp summary: %w", err)
		}
		summary.BreakdownByReason[reason] = total
		summary.TotalXP += total.Amount
		summary.TransactionCount += total.Count
	}
	return summary, rows.Err()
}

// GetUser exposes the user's running total for reconciliation.
func (s *LedgerStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return getUser(ctx, s.db, id)
}

// grantXP writes one ledger entry and the matching total update. Every XP
// mutation in this package goes through here.
func grantXP(ctx context.Context, tx *sql.Tx, e domain.XPEntry) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO xp_ledger (id, user_id, amount, reason, lesson_id, module_id, reward_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Amount, string(e.Reason),
		nullString(e.Refs.LessonID), nullString(e.Refs.ModuleID), nullString(e.Refs.RewardID),
		string(meta), e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert xp entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET total_points = total_points + ?, updated_at = ?
		WHERE id = ?`, e.Amount, time.Now().UTC(), e.UserID)
	if err != nil {
		return fmt.Errorf("update total points: %w", err)
	}
	return nil
}
