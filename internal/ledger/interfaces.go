package ledger

import (
	"context"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// Store is the persistence interface of the XP ledger. AppendXP must write
// the entry and the user's total in one transaction.
type Store interface {
	AppendXP(ctx context.Context, e domain.XPEntry) error
	ListXP(ctx context.Context, userID string, limit, offset int) ([]domain.XPEntry, error)
	SummarizeXP(ctx context.Context, userID string) (*domain.XPSummary, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
}
