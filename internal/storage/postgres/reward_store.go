package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// RewardStore implements reward definitions, awards and lesson settlements
// on PostgreSQL.
type RewardStore struct {
	db *DB
}

// NewRewardStore creates a new PostgreSQL-backed reward store.
func NewRewardStore(db *DB) *RewardStore {
	return &RewardStore{db: db}
}

const rewardColumns = `id, title, description, reward_type, criteria, xp_bonus, is_active, created_at, updated_at`

func criteriaJSON(c domain.RewardCriteria) (pqtype.NullRawMessage, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("marshal criteria: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

// CreateReward inserts a new reward definition.
func (s *RewardStore) CreateReward(ctx context.Context, r *domain.Reward) error {
	criteria, err := criteriaJSON(r.Criteria)
	if err != nil {
		return err
	}
	query := `INSERT INTO rewards (` + rewardColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = s.db.pool.Exec(ctx, query,
		r.ID, r.Title, r.Description, string(r.Type), criteria,
		r.XPBonus, r.IsActive, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reward: %w", err)
	}
	return nil
}

// UpdateReward overwrites the mutable fields of a reward.
func (s *RewardStore) UpdateReward(ctx context.Context, r *domain.Reward) error {
	criteria, err := criteriaJSON(r.Criteria)
	if err != nil {
		return err
	}
	query := `
		UPDATE rewards SET title = $1, description = $2, criteria = $3, xp_bonus = $4,
			is_active = $5, updated_at = $6
		WHERE id = $7
	`
	tag, err := s.db.pool.Exec(ctx, query,
		r.Title, r.Description, criteria, r.XPBonus, r.IsActive, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update reward: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRewardNotFound
	}
	return nil
}

// DeleteReward removes a reward and its award rows.
func (s *RewardStore) DeleteReward(ctx context.Context, id string) error {
	tag, err := s.db.pool.Exec(ctx, `DELETE FROM rewards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRewardNotFound
	}
	return nil
}

// GetReward retrieves a reward by ID.
func (s *RewardStore) GetReward(ctx context.Context, id string) (*domain.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE id = $1`
	return scanReward(s.db.pool.QueryRow(ctx, query, id))
}

// ListRewards returns all rewards ordered by creation.
func (s *RewardStore) ListRewards(ctx context.Context) ([]*domain.Reward, error) {
	return s.queryRewards(ctx, `SELECT `+rewardColumns+` FROM rewards ORDER BY created_at, id`)
}

// ListActiveRewards returns active rewards of one type.
func (s *RewardStore) ListActiveRewards(ctx context.Context, t domain.RewardType) ([]*domain.Reward, error) {
	return s.queryRewards(ctx, `SELECT `+rewardColumns+` FROM rewards
		WHERE reward_type = $1 AND is_active ORDER BY created_at, id`, string(t))
}

// ListUserRewards returns the rewards a user has been granted.
func (s *RewardStore) ListUserRewards(ctx context.Context, userID string) ([]*domain.Reward, error) {
	return s.queryRewards(ctx, `SELECT r.id, r.title, r.description, r.reward_type, r.criteria,
			r.xp_bonus, r.is_active, r.created_at, r.updated_at
		FROM rewards r JOIN reward_awards a ON a.reward_id = r.id
		WHERE a.user_id = $1 ORDER BY a.awarded_at, r.id`, userID)
}

// ListAwardees returns the user IDs in the reward's awarded set.
func (s *RewardStore) ListAwardees(ctx context.Context, rewardID string) ([]string, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT user_id FROM reward_awards WHERE reward_id = $1 ORDER BY awarded_at, user_id`, rewardID)
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
	return s.db.withTx(ctx, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		query := `
			INSERT INTO reward_awards (reward_id, user_id, awarded_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (reward_id, user_id) DO NOTHING
		`
		tag, err := tx.Exec(ctx, query, rewardID, userID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert award: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAlreadyAwarded
		}
		if entry == nil || entry.Amount == 0 {
			return nil
		}
		return grantXP(ctx, tx, *entry)
	})
}

// SettleLesson passes the row-locked settlement for (userID, lessonID) to
// fn and stores the result together with the XP entries fn returns.
func (s *RewardStore) SettleLesson(ctx context.Context, userID, lessonID string,
	fn func(domain.LessonSettlement) (domain.LessonSettlement, []domain.XPEntry)) ([]domain.XPEntry, error) {
	var granted []domain.XPEntry
	err := s.db.withTx(ctx, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}

		// The placeholder row gives concurrent settlements something to lock.
		_, err := tx.Exec(ctx, `
			INSERT INTO lesson_settlements (user_id, lesson_id, settled_xp, bonus_granted, updated_at)
			VALUES ($1, $2, 0, FALSE, $3)
			ON CONFLICT (user_id, lesson_id) DO NOTHING`, userID, lessonID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("init settlement: %w", err)
		}

		current := domain.LessonSettlement{UserID: userID, LessonID: lessonID}
		err = tx.QueryRow(ctx, `
			SELECT settled_xp, bonus_granted, updated_at FROM lesson_settlements
			WHERE user_id = $1 AND lesson_id = $2 FOR UPDATE`, userID, lessonID).Scan(
			&current.SettledXP, &current.BonusGranted, &current.UpdatedAt)
		if err != nil {
			return fmt.Errorf("get settlement: %w", err)
		}

		next, entries := fn(current)
		if len(entries) == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE lesson_settlements SET settled_xp = $1, bonus_granted = $2, updated_at = $3
			WHERE user_id = $4 AND lesson_id = $5`,
			next.SettledXP, next.BonusGranted, time.Now().UTC(), userID, lessonID)
		if err != nil {
			return fmt.Errorf("update settlement: %w", err)
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
	return getUser(ctx, s.db.pool, id, false)
}

func (s *RewardStore) queryRewards(ctx context.Context, query string, args ...any) ([]*domain.Reward, error) {
	rows, err := s.db.pool.Query(ctx, query, args...)
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

func scanReward(row pgx.Row) (*domain.Reward, error) {
	var (
		r          domain.Reward
		rewardType string
		criteria   []byte
	)
	err := row.Scan(&r.ID, &r.Title, &r.Description, &rewardType, &criteria,
		&r.XPBonus, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRewardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reward: %w", err)
	}
	r.Type = domain.RewardType(rewardType)
	if err := json.Unmarshal(criteria, &r.Criteria); err != nil {
		return nil, fmt.Errorf("unmarshal criteria: %w", err)
	}
	return &r, nil
}
