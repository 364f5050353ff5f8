package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// LedgerStore implements the append-only XP ledger on PostgreSQL.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new PostgreSQL-backed ledger store.
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// AppendXP appends an entry and applies its amount to the user's total in
// one transaction.
func (s *LedgerStore) AppendXP(ctx context.Context, e domain.XPEntry) error {
	return s.db.withTx(ctx, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, e.UserID); err != nil {
			return err
		}
		return grantXP(ctx, tx, e)
	})
}

// ListXP returns a page of a user's entries, newest first.
func (s *LedgerStore) ListXP(ctx context.Context, userID string, limit, offset int) ([]domain.XPEntry, error) {
	query := `
		SELECT id, user_id, amount, reason, lesson_id, module_id, reward_id, metadata, created_at
		FROM xp_ledger WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list xp: %w", err)
	}
	defer rows.Close()

	var entries []domain.XPEntry
	for rows.Next() {
		var (
			e                            domain.XPEntry
			reason                       string
			lessonID, moduleID, rewardID *string
			metadata                     []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &reason, &lessonID, &moduleID, &rewardID, &metadata, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan xp entry: %w", err)
		}
		e.Reason = domain.XPReason(reason)
		e.Refs = domain.XPRefs{LessonID: deref(lessonID), ModuleID: deref(moduleID), RewardID: deref(rewardID)}
		e.Metadata = map[string]any{}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SummarizeXP folds a user's ledger by reason.
func (s *LedgerStore) SummarizeXP(ctx context.Context, userID string) (*domain.XPSummary, error) {
	query := `
		SELECT reason, COUNT(*), COALESCE(SUM(amount), 0)
		FROM xp_ledger WHERE user_id = $1
		GROUP BY reason
	`
	rows, err := s.db.pool.Query(ctx, query, userID)
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
			reason        string
			count, amount int64
		)
		if err := rows.Scan(&reason, &count, &amount); err != nil {
			return nil, fmt.Errorf("scan xp summary: %w", err)
		}
		summary.BreakdownByReason[domain.XPReason(reason)] = domain.ReasonTotal{Count: int(count), Amount: int(amount)}
		summary.TotalXP += int(amount)
		summary.TransactionCount += int(count)
	}
	return summary, rows.Err()
}

// GetUser exposes the user's running total for reconciliation.
func (s *LedgerStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return getUser(ctx, s.db.pool, id, false)
}

// grantXP writes one ledger entry and the matching total update. Every XP
// mutation in this package goes through here.
func grantXP(ctx context.Context, tx pgx.Tx, e domain.XPEntry) error {
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

	insert := `
		INSERT INTO xp_ledger (id, user_id, amount, reason, lesson_id, module_id, reward_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, insert,
		e.ID, e.UserID, e.Amount, string(e.Reason),
		nullString(e.Refs.LessonID), nullString(e.Refs.ModuleID), nullString(e.Refs.RewardID),
		pqtype.NullRawMessage{RawMessage: meta, Valid: true}, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert xp entry: %w", err)
	}

	update := `UPDATE users SET total_points = total_points + $1, updated_at = $2 WHERE id = $3`
	if _, err := tx.Exec(ctx, update, e.Amount, time.Now().UTC(), e.UserID); err != nil {
		return fmt.Errorf("update total points: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
