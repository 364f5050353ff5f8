package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

const (
	// DefaultHistoryLimit is used when History is called without a limit.
	DefaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Service records and folds XP ledger entries.
type Service struct {
	store  Store
	events *domain.EventDispatcher
}

// NewService creates a new ledger service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// SetEventDispatcher sets the dispatcher that receives XPChanged events
func (s *Service) SetEventDispatcher(d *domain.EventDispatcher) {
	s.events = d
}

// RecordRequest describes a manual ledger entry.
type RecordRequest struct {
	UserID   string
	Amount   int
	Reason   domain.XPReason
	Refs     domain.XPRefs
	Metadata map[string]any
}

// Record appends an entry and applies it to the user's total.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*domain.XPEntry, error) {
	if err := domain.ValidateID("user id", req.UserID); err != nil {
		return nil, err
	}
	if req.Reason == "" {
		req.Reason = domain.ReasonManualAdjustment
	}

	entry := domain.NewXPEntry(req.UserID, req.Amount, req.Reason, req.Refs, req.Metadata)
	if err := s.store.AppendXP(ctx, entry); err != nil {
		return nil, fmt.Errorf("record xp: %w", err)
	}

	slog.Debug("xp recorded", "user_id", entry.UserID, "amount", entry.Amount, "reason", entry.Reason)
	s.events.Publish(domain.NewXPChangedEvent(entry.UserID, entry.Amount, entry.Reason))
	return &entry, nil
}

// Summarize folds the user's ledger by reason.
func (s *Service) Summarize(ctx context.Context, userID string) (*domain.XPSummary, error) {
	if err := domain.ValidateID("user id", userID); err != nil {
		return nil, err
	}
	return s.store.SummarizeXP(ctx, userID)
}

// History returns a page of entries, newest first.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]domain.XPEntry, error) {
	if err := domain.ValidateID("user id", userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.store.ListXP(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.XPEntry{}
	}
	return entries, nil
}

// Reconciliation compares a user's running total with the ledger fold.
type Reconciliation struct {
	UserID      string `json:"user_id"`
	TotalPoints int    `json:"total_points"`
	LedgerTotal int    `json:"ledger_total"`
	Drift       int    `json:"drift"`
	Consistent  bool   `json:"consistent"`
}

// Reconcile checks that User.total_points equals the ledger fold. A user
// without any record is trivially consistent.
func (s *Service) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	summary, err := s.Summarize(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := 0
	user, err := s.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		total = user.TotalPoints
	case errors.Is(err, domain.ErrUserNotFound):
	default:
		return nil, err
	}

	rec := &Reconciliation{
		UserID:      userID,
		TotalPoints: total,
		LedgerTotal: summary.TotalXP,
		Drift:       total - summary.TotalXP,
	}
	rec.Consistent = rec.Drift == 0
	if !rec.Consistent {
		slog.Warn("xp ledger drift detected", "user_id", userID, "total_points", total, "ledger_total", summary.TotalXP)
	}
	return rec, nil
}
