package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
	"github.com/felixgeelhaar/streakline/internal/progress"
	"github.com/felixgeelhaar/streakline/internal/rewards"
	"github.com/felixgeelhaar/streakline/internal/session"
	"github.com/felixgeelhaar/streakline/internal/stats"
)

var errNotImplemented = errors.New("mock: not implemented")

// mockProgress implements ProgressService for testing
type mockProgress struct {
	submitFn         func(ctx context.Context, req progress.SubmitRequest) (*progress.SubmissionResult, error)
	validateFn       func(ctx context.Context, req progress.SubmitRequest) (*progress.ValidationResult, error)
	summaryFn        func(ctx context.Context, userID string) (*domain.ProgressSummary, error)
	lessonProgressFn func(ctx context.Context, userID, lessonID string) (*domain.LessonProgress, error)
	listProgressFn   func(ctx context.Context, userID string) ([]*domain.LessonProgress, error)
}

func (m *mockProgress) Submit(ctx context.Context, req progress.SubmitRequest) (*progress.SubmissionResult, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockProgress) Validate(ctx context.Context, req progress.SubmitRequest) (*progress.ValidationResult, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockProgress) Summary(ctx context.Context, userID string) (*domain.ProgressSummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, userID)
	}
	return nil, errNotImplemented
}

func (m *mockProgress) LessonProgress(ctx context.Context, userID, lessonID string) (*domain.LessonProgress, error) {
	if m.lessonProgressFn != nil {
		return m.lessonProgressFn(ctx, userID, lessonID)
	}
	return nil, errNotImplemented
}

func (m *mockProgress) ListProgress(ctx context.Context, userID string) ([]*domain.LessonProgress, error) {
	if m.listProgressFn != nil {
		return m.listProgressFn(ctx, userID)
	}
	return nil, errNotImplemented
}

var _ ProgressService = (*mockProgress)(nil)

// mockLedger implements LedgerService for testing
type mockLedger struct {
	historyFn   func(ctx context.Context, userID string, limit, offset int) ([]domain.XPEntry, error)
	summarizeFn func(ctx context.Context, userID string) (*domain.XPSummary, error)
}

func (m *mockLedger) History(ctx context.Context, userID string, limit, offset int) ([]domain.XPEntry, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID, limit, offset)
	}
	return nil, errNotImplemented
}

func (m *mockLedger) Summarize(ctx context.Context, userID string) (*domain.XPSummary, error) {
	if m.summarizeFn != nil {
		return m.summarizeFn(ctx, userID)
	}
	return nil, errNotImplemented
}

var _ LedgerService = (*mockLedger)(nil)

// mockStreaks implements StreakService for testing
type mockStreaks struct {
	touchFn func(ctx context.Context, userID string, ref time.Time) (int, error)
}

func (m *mockStreaks) Touch(ctx context.Context, userID string, ref time.Time) (int, error) {
	if m.touchFn != nil {
		return m.touchFn(ctx, userID, ref)
	}
	return 0, errNotImplemented
}

var _ StreakService = (*mockStreaks)(nil)

// mockSessions implements SessionService for testing
type mockSessions struct {
	startFn func(ctx context.Context, userID, lessonID string) (*session.StartResult, error)
	endFn   func(ctx context.Context, sessionID, userID string) (*domain.StudySession, error)
}

func (m *mockSessions) Start(ctx context.Context, userID, lessonID string) (*session.StartResult, error) {
	if m.startFn != nil {
		return m.startFn(ctx, userID, lessonID)
	}
	return nil, errNotImplemented
}

func (m *mockSessions) End(ctx context.Context, sessionID, userID string) (*domain.StudySession, error) {
	if m.endFn != nil {
		return m.endFn(ctx, sessionID, userID)
	}
	return nil, errNotImplemented
}

var _ SessionService = (*mockSessions)(nil)

// mockCatalog implements RewardCatalog for testing
type mockCatalog struct {
	createFn func(ctx context.Context, req rewards.CreateRequest) (*domain.Reward, error)
	updateFn func(ctx context.Context, id string, upd domain.RewardUpdate) (*domain.Reward, error)
	deleteFn func(ctx context.Context, id string) error
	getFn    func(ctx context.Context, id string) (*domain.Reward, error)
	listFn   func(ctx context.Context, activeOnly bool) ([]*domain.Reward, error)
	toggleFn func(ctx context.Context, id string) (*domain.Reward, error)
	heldFn   func(ctx context.Context, userID string) ([]*domain.Reward, error)
	availFn  func(ctx context.Context, userID string) ([]rewards.AvailableReward, error)
	statsFn  func(ctx context.Context, userID string) (*rewards.RewardStats, error)
}

func (m *mockCatalog) Create(ctx context.Context, req rewards.CreateRequest) (*domain.Reward, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockCatalog) Update(ctx context.Context, id string, upd domain.RewardUpdate) (*domain.Reward, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, upd)
	}
	return nil, errNotImplemented
}

func (m *mockCatalog) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return errNotImplemented
}

func (m *mockCatalog) Get(ctx context.Context, id string) (*domain.Reward, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockCatalog) List(ctx context.Context, activeOnly bool) ([]*domain.Reward, error) {
	if m.listFn != nil {
		return m.listFn(ctx, activeOnly)
	}
	return nil, errNotImplemented
}

func (m *mockCatalog) Toggle(ctx context.Context, id string) (*domain.Reward, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockCatalog) UserRewards(ctx context.Context, userID string) ([]*domain.Reward, error) {
	if m.heldFn != nil {
		return m.heldFn(ctx, userID)
	}
	return nil, errNotImplemented
}

func (m *mockCatalog) AvailableRewards(ctx context.Context, userID string) ([]rewards.AvailableReward, error) {
	if m.availFn != nil {
		return m.availFn(ctx, userID)
	}
	return nil, errNotImplemented
}

func (m *mockCatalog) RewardStats(ctx context.Context, userID string) (*rewards.RewardStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, userID)
	}
	return nil, errNotImplemented
}

var _ RewardCatalog = (*mockCatalog)(nil)

// mockStats implements StatsService for testing
type mockStats struct {
	learnerFn  func(ctx context.Context, userID string) (*stats.LearnerStats, error)
	studentsFn func(ctx context.Context) ([]stats.StudentSummary, error)
	studentFn  func(ctx context.Context, userID string) (*stats.StudentDetail, error)
}

func (m *mockStats) Learner(ctx context.Context, userID string) (*stats.LearnerStats, error) {
	if m.learnerFn != nil {
		return m.learnerFn(ctx, userID)
	}
	return nil, errNotImplemented
}

func (m *mockStats) Students(ctx context.Context) ([]stats.StudentSummary, error) {
	if m.studentsFn != nil {
		return m.studentsFn(ctx)
	}
	return nil, errNotImplemented
}

func (m *mockStats) Student(ctx context.Context, userID string) (*stats.StudentDetail, error) {
	if m.studentFn != nil {
		return m.studentFn(ctx, userID)
	}
	return nil, errNotImplemented
}

var _ StatsService = (*mockStats)(nil)

// mockRewards implements RewardEngine for testing
type mockRewards struct {
	awardFn         func(ctx context.Context, rewardID, userID string) (*domain.CascadeResult, error)
	streakReachedFn func(ctx context.Context, userID string, days int) (*domain.CascadeResult, error)
}

func (m *mockRewards) Award(ctx context.Context, rewardID, userID string) (*domain.CascadeResult, error) {
	if m.awardFn != nil {
		return m.awardFn(ctx, rewardID, userID)
	}
	return nil, errNotImplemented
}

func (m *mockRewards) StreakReached(ctx context.Context, userID string, days int) (*domain.CascadeResult, error) {
	if m.streakReachedFn != nil {
		return m.streakReachedFn(ctx, userID, days)
	}
	return nil, errNotImplemented
}

var _ RewardEngine = (*mockRewards)(nil)

// mockModules implements ModuleLister for testing
type mockModules struct {
	modules []*domain.Module
}

func (m *mockModules) ListModules() []*domain.Module {
	return m.modules
}

// mockPinger implements Pinger for testing
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}
