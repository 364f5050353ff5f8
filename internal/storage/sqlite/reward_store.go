package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// RewardStore implements reward definitions, awards and lesson settlements
// backed by SQLite.
type RewardStore struct {
	db *DB
}

// NewRewardStore creates a new SQLite-backed reward store.
func NewRewardStore(db *DB) *RewardStore {
	return &RewardStore{db: db}
}

const rewardColumns = `id, title, description, reward_type, criteria, xp_bonus, is_active, created_at, updated_at`

// CreateReward inserts a new reward definition.
func (s *RewardStore) CreateReward(ctx context.Context, r *domain.Reward) error {
	criteria, err := json.Marshal(r.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rewards (`+rewardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Description, string(r.Type), string(criteria),
		r.XPBonus, r.IsActive, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reward: %w", err)
	}
	return nil
}

// UpdateReward overwrites the mutable fields of a reward.
func (s *RewardStore) UpdateReward(ctx context.Context, r *domain.Reward) error {
	criteria, err := json.Marshal(r.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE rewards SET title = ?, description = ?, criteria = ?, xp_bonus = ?,
			is_active = ?, updated_at = ?
		WHERE id = ?`,
		r.Title, r.Description, string(criteria), r.XPBonus, r.IsActive, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update reward: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrRewardNotFound
	}
	return nil
}

// DeleteReward removes a reward and its award rows.
func (s *RewardStore) DeleteReward(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM rewards WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrRewardNotFound
	}
	return nil
}

// GetReward retrieves a reward by ID.
func (s *RewardStore) GetReward(ctx context.Context, id string) (*domain.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = ?`, id)
	return scanReward(row)
}

// ListRewards returns all rewards ordered by creation.
func (s *RewardStore) ListRewards(ctx context.Context) ([]*domain.Reward, error) {
	return s.queryRewards(ctx, `SELECT `+rewardColumns+` FROM rewards ORDER BY created_at, id`)
}

// ListActiveRewards returns active rewards of one type.
func (s *RewardStore) ListActiveRewards(ctx context.Context, t domain.RewardType) ([]*domain.Reward, error) {
	return s.queryRewards(ctx, `SELECT `+rewardColumns+` FROM rewards
		WHERE reward_type = ? AND is_active = 1 ORDER BY created_at, id`, string(t))
}

// ListUserRewards returns the rewards a user has been granted.
func (s *RewardStore) ListUserRewards(ctx context.Context, userID string) ([]*domain.Reward, error) {
	return s.queryRewards(ctx, `SELECT r.id, r.title, r.description, r.reward_type, r.criteria,
			r.xp_bonus, r.is_active, r.created_at, r.updated_at
		FROM rewards r JOIN reward_awards a ON a.reward_id = r.id
		WHERE a.user_id = ? ORDER BY a.awarded_at, r.id`, userID)
}

// HasAwarded reports whether the user is in the reward's awarded set.
func (s *RewardStore) HasAwarded(ctx context.Context, rewardID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reward_awards WHERE reward_id = ? AND user_id = ?`,
		rewardID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check award: %w", err)
	}
	return n > 0, nil
}

// ListAwardees returns the user IDs in the reward's awarded set.
func (s *RewardStore) ListAwardees(ctx context.Context, rewardID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM reward_awards WHERE reward_id = ? ORDER BY awarded_at, user_id`, rewardID)
	if err != nil {
		return nil, fmt.Errorf("list awardees: %w", err)
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan awardee: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// AwardReward adds userID to the reward's awarded set and, only if that
// insert changed a row, applies the XP entry. A user already in the set
// yields domain.ErrAlreadyAwarded and no XP.
func (s *RewardStore) AwardReward(ctx context.Context, rewardID, userID string, entry *domain.XPEntry) error {
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `
			INSERT INTO reward_awards (reward_id, user_id, awarded_at)
			VALUES (?, ?, ?)
			ON CONFLICT(reward_id, user_id) DO NOTHING`,
			rewardID, userID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert award: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return domain.ErrAlreadyAwarded
		}
		if entry == nil || entry.Amount == 0 {
			return nil
		}
		return grantXP(ctx, tx, *entry)
	})
}

// SettleLesson passes the current settlement for (userID, lessonID) to fn
// and stores the result together with the XP entries fn returns.
func (s *RewardStore) SettleLesson(ctx context.Context, userID, lessonID string,
	fn func(domain.LessonSettlement) (domain.LessonSettlement, []domain.XPEntry)) ([]domain.XPEntry, error) {
	var granted []domain.XPEntry
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}

		current := domain.LessonSettlement{UserID: userID, LessonID: lessonID}
		err := tx.QueryRowContext(ctx, `
			SELECT settled_xp, bonus_granted, updated_at FROM lesson_settlements
			WHERE user_id = ? AND lesson_id = ?`, userID, lessonID).Scan(
			&current.SettledXP, &current.BonusGranted, &current.UpdatedAt)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("get settlement: %w", err)
		}

		next, entries := fn(current)
		if len(entries) == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO lesson_settlements (user_id, lesson_id, settled_xp, bonus_granted, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id, lesson_id) DO UPDATE SET
				settled_xp = excluded.settled_xp,
				bonus_granted = excluded.bonus_granted,
				updated_at = excluded.updated_at`,
			userID, lessonID, next.SettledXP, next.BonusGranted, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("upsert settlement: %w", err)
		}

		for _, e := range entries {
			if err := grantXP(ctx, tx, e); err != nil {
				return err
			}
		}
		granted = entries
		return nil
	})
	return granted, err
}

// GetUser exposes the user's current XP and streak to the engine.
func (s *RewardStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return getUser(ctx, s.db, id)
}

func (s *RewardStore) queryRewards(ctx context.Context, query string, args ...any) ([]*domain.Reward, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rewards: %w", err)
	}
	defer rows.Close()

	var rewards []*domain.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

func scanReward(row scanner) (*domain.Reward, error) {
	var (
		r        domain.Reward
		criteria string
	)
	err := row.Scan(&r.ID, &r.Title, &r.Description, &r.Type, &criteria,
		&r.XPBonus, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRewardNotFound
		}
		return nil, fmt.Errorf("scan reward: %w", err)
	}
	if err := json.Unmarshal([]byte(criteria), &r.Criteria); err != nil {
		return nil, fmt.Errorf("unmarshal criteria: %w", err)
	}
	return &r, nil
}
