package progress_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/felixgeelhaar/streakline/internal/curriculum"
	"github.com/felixgeelhaar/streakline/internal/domain"
	"github.com/felixgeelhaar/streakline/internal/judge"
	"github.com/felixgeelhaar/streakline/internal/ledger"
	"github.com/felixgeelhaar/streakline/internal/progress"
	"github.com/felixgeelhaar/streakline/internal/rewards"
	"github.com/felixgeelhaar/streakline/internal/storage/sqlite"
	"github.com/felixgeelhaar/streakline/internal/streak"
)

const (
	right = `"b"`
	wrong = `"a"`
)

func choice(uuid string, points int) domain.Exercise {
	return domain.Exercise{
		UUID:   uuid,
		Kind:   domain.KindMultipleChoice,
		Points: points,
		Content: domain.MultipleChoice{
			Description:   "Pick b",
			Options:       []string{"a", "b"},
			CorrectAnswer: "b",
		},
	}
}

type fixture struct {
	db       *sqlite.DB
	progress *sqlite.ProgressStore
	users    *sqlite.UserStore
	ledger   *ledger.Service
	catalog  *rewards.Catalog
	engine   *rewards.Engine
	registry *curriculum.Registry
}

func newFixture(t *testing.T, policy domain.XPPolicy) *fixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	registry := curriculum.NewRegistry(nil)
	err = registry.Add(&domain.Module{
		ID:    "m1",
		Title: "Basics",
		Lessons: []domain.Lesson{
			{ID: "l1", ModuleID: "m1", Title: "Intro", XPReward: 100,
				Exercises: []domain.Exercise{choice("e1", 10), choice("e2", 5)}},
			{ID: "exam", ModuleID: "m1", Title: "Exam", XPReward: 50, IsPrivate: true,
				Exercises: []domain.Exercise{choice("x1", 10)}},
		},
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	rewardStore := sqlite.NewRewardStore(db)
	users := sqlite.NewUserStore(db)
	return &fixture{
		db:       db,
		progress: sqlite.NewProgressStore(db),
		users:    users,
		ledger:   ledger.NewService(sqlite.NewLedgerStore(db)),
		catalog:  rewards.NewCatalog(rewardStore),
		engine:   rewards.NewEngine(rewardStore, registry, streak.NewTracker(users), policy),
		registry: registry,
	}
}

func (f *fixture) tracker(policy domain.XPPolicy) *progress.Tracker {
	return progress.NewTracker(f.progress, f.users, f.registry, judge.New(), f.engine, policy)
}

func submit(t *testing.T, tr *progress.Tracker, session, lesson, exercise, response string) *progress.SubmissionResult {
	t.Helper()
	res, err := tr.Submit(context.Background(), req(session, lesson, exercise, response))
	if err != nil {
		t.Fatalf("Submit(%s, %s) error = %v", session, exercise, err)
	}
	return res
}

func req(session, lesson, exercise, response string) progress.SubmitRequest {
	return progress.SubmitRequest{
		UserID:       "u1",
		SessionID:    session,
		ModuleID:     "m1",
		LessonID:     lesson,
		ExerciseUUID: exercise,
		Response:     json.RawMessage(response),
	}
}

func (f *fixture) assertReconciled(t *testing.T) {
	t.Helper()
	rec, err := f.ledger.Reconcile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !rec.Consistent {
		t.Errorf("ledger drift: %+v", rec)
	}
}

func (f *fixture) totalPoints(t *testing.T) int {
	t.Helper()
	u, err := f.users.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	return u.TotalPoints
}

func TestSubmit_FirstCompletion(t *testing.T) {
	f := newFixture(t, domain.PolicyIncremental)
	tr := f.tracker(domain.PolicyIncremental)

	res := submit(t, tr, "s1", "l1", "e1", right)
	if !res.IsCorrect || res.CurrentScore != 10 || res.LessonFinished {
		t.Errorf("first submit = %+v", res)
	}
	if res.XPAwarded != 10 {
		t.Errorf("XPAwarded = %d; want 10", res.XPAwarded)
	}

	res = submit(t, tr, "s1", "l1", "e2", wrong)
	if res.IsCorrect || res.CurrentScore != 10 || res.TotalPossible != 15 || !res.LessonFinished {
		t.Errorf("second submit = %+v", res)
	}

	p, err := tr.LessonProgress(context.Background(), "u1", "l1")
	if err != nil {
		t.Fatalf("LessonProgress() error = %v", err)
	}
	if !p.IsCompleted || p.IsLocked {
		t.Errorf("progress completed=%v locked=%v", p.IsCompleted, p.IsLocked)
	}
	f.assertReconciled(t)
}

// A lesson finishes once every exercise was attempted, even with no correct answer.
func TestSubmit_AllWrongStillFinishes(t *testing.T) {
	f := newFixture(t, domain.PolicySettlement)
	tr := f.tracker(domain.PolicySettlement)

	submit(t, tr, "s1", "l1", "e1", wrong)
	res := submit(t, tr, "s1", "l1", "e2", wrong)
	if !res.LessonFinished || res.CurrentScore != 0 {
		t.Errorf("all-wrong submit = %+v; want finished with score 0", res)
	}
	if res.XPAwarded != 0 || res.XPBonus != 0 {
		t.Errorf("XP = %d+%d; want none", res.XPAwarded, res.XPBonus)
	}
	f.assertReconciled(t)
}

func TestSubmit_NewSessionImprovement(t *testing.T) {
	f := newFixture(t, domain.PolicyIncremental)
	tr := f.tracker(domain.PolicyIncremental)

	submit(t, tr, "s1", "l1", "e1", right)
	submit(t, tr, "s1", "l1", "e2", wrong)

	res := submit(t, tr, "s2", "l1", "e1", right)
	if res.XPAwarded != 0 {
		t.Errorf("replaying a scored exercise awarded %d XP", res.XPAwarded)
	}
	res = submit(t, tr, "s2", "l1", "e2", right)
	if res.CurrentScore != 15 || res.XPAwarded != 5 {
		t.Errorf("improved session = %+v; want score 15, 5 XP", res)
	}

	p, _ := tr.LessonProgress(context.Background(), "u1", "l1")
	if p.BestScore != 15 || p.AttemptCount != 2 {
		t.Errorf("best=%d attempts=%d; want 15, 2", p.BestScore, p.AttemptCount)
	}
	if got := f.totalPoints(t); got != 15 {
		t.Errorf("TotalPoints = %d; want 15", got)
	}
	f.assertReconciled(t)
}

// Only the stored session id counts for duplicates; an earlier session id
// coming back starts a fresh attempt.
func TestSubmit_ReturningSessionStartsNewAttempt(t *testing.T) {
	f := newFixture(t, domain.PolicyIncremental)
	tr := f.tracker(domain.PolicyIncremental)

	submit(t, tr, "s1", "l1", "e1", right)
	submit(t, tr, "s2", "l1", "e1", right)

	res, err := tr.Submit(context.Background(), req("s1", "l1", "e1", right))
	if err != nil {
		t.Fatalf("Submit(s1 again) error = %v", err)
	}
	if !res.IsCorrect || res.CurrentScore != 10 {
		t.Errorf("returning session = %+v", res)
	}

	p, err := tr.LessonProgress(context.Background(), "u1", "l1")
	if err != nil {
		t.Fatalf("LessonProgress() error = %v", err)
	}
	if p.AttemptCount != 3 || p.SessionID != "s1" || len(p.Exercises) != 1 {
		t.Errorf("attempts=%d session=%s exercises=%d; want 3, s1, 1", p.AttemptCount, p.SessionID, len(p.Exercises))
	}

	history, err := tr.Attempts(context.Background(), "u1", "l1")
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d; want 3", len(history))
	}
	for i, a := range history {
		if a.AttemptNumber != i+1 {
			t.Errorf("history[%d].AttemptNumber = %d; want %d", i, a.AttemptNumber, i+1)
		}
	}

	// Within the restored session the duplicate guard still applies.
	if _, err := tr.Submit(context.Background(), req("s1", "l1", "e1", right)); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Errorf("Submit(s1, e1) twice error = %v; want ErrDuplicateSubmission", err)
	}
	f.assertReconciled(t)
}

func TestSubmit_SettlementPolicy(t *testing.T) {
	f := newFixture(t, domain.PolicySettlement)
	tr := f.tracker(domain.PolicySettlement)

	if res := submit(t, tr, "s1", "l1", "e1", right); res.XPAwarded != 0 {
		t.Errorf("settlement policy granted %d XP per submission", res.XPAwarded)
	}
	submit(t, tr, "s1", "l1", "e2", wrong)
	if got := f.totalPoints(t); got != 66 {
		t.Errorf("TotalPoints after partial completion = %d; want 66", got)
	}

	submit(t, tr, "s2", "l1", "e1", right)
	submit(t, tr, "s2", "l1", "e2", right)
	// 34 remaining lesson XP plus the 15 perfection bonus.
	if got := f.totalPoints(t); got != 115 {
		t.Errorf("TotalPoints after perfect completion = %d; want 115", got)
	}

	submit(t, tr, "s3", "l1", "e1", right)
	submit(t, tr, "s3", "l1", "e2", right)
	if got := f.totalPoints(t); got != 115 {
		t.Errorf("re-completing farmed XP: TotalPoints = %d", got)
	}
	f.assertReconciled(t)
}

func TestSubmit_PrivateLessonLocks(t *testing.T) {
	f := newFixture(t, domain.PolicyIncremental)
	tr := f.tracker(domain.PolicyIncremental)

	res := submit(t, tr, "s1", "exam", "x1", wrong)
	if !res.LessonFinished {
		t.Fatal("exam not finished")
	}

	for _, session := range []string{"s1", "s2", "s3"} {
		_, err := tr.Submit(context.Background(), req(session, "exam", "x1", right))
		if session == "s1" {
			if !errors.Is(err, domain.ErrDuplicateSubmission) {
				t.Errorf("same session error = %v; want ErrDuplicateSubmission", err)
			}
			continue
		}
		if !errors.Is(err, domain.ErrLessonLocked) {
			t.Errorf("session %s error = %v; want ErrLessonLocked", session, err)
		}
	}

	ok, reason, err := tr.CanRetry(context.Background(), "u1", "s9", "exam", "x1")
	if err != nil || ok || reason == "" {
		t.Errorf("CanRetry() = %v, %q, %v; want locked", ok, reason, err)
	}
}

func TestSubmit_DuplicateRejected(t *testing.T) {
	f := newFixture(t, domain.PolicyIncremental)
	tr := f.tracker(domain.PolicyIncremental)

	const n = 10
	var (
		wg         sync.WaitGroup
		ok, dupes  atomic.Int32
		unexpected atomic.Value
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.Submit(context.Background(), req("s1", "l1", "e1", right))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrDuplicateSubmission):
				dupes.Add(1)
			default:
				unexpected.Store(err)
			}
		}()
	}
	wg.Wait()

	if err := unexpected.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.Load() != 1 || dupes.Load() != n-1 {
		t.Errorf("ok=%d dupes=%d; want 1 and %d", ok.Load(), dupes.Load(), n-1)
	}

	attempts, err := tr.Attempts(context.Background(), "u1", "l1")
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(attempts) != 1 {
		t.Errorf("len(attempts) = %d; want 1", len(attempts))
	}
	if got := f.totalPoints(t); got != 10 {
		t.Errorf("TotalPoints = %d; want 10", got)
	}
	f.assertReconciled(t)
}

func TestSubmit_BestScoreMonotone(t *testing.T) {
	f := newFixture(t, domain.PolicyDual)
	tr := f.tracker(domain.PolicyDual)

	sessions := [][2]string{
		{right, wrong},
		{wrong, wrong},
		{right, right},
		{wrong, right},
	}
	best := 0
	for i, answers := range sessions {
		session := "s" + string(rune('1'+i))
		submit(t, tr, session, "l1", "e1", answers[0])
		submit(t, tr, session, "l1", "e2", answers[1])

		p, err := tr.LessonProgress(context.Background(), "u1", "l1")
		if err != nil {
			t.Fatalf("LessonProgress() error = %v", err)
		}
		if p.BestScore < best || p.BestScore > p.TotalPossible {
			t.Errorf("session %s: best=%d previous=%d total=%d", session, p.BestScore, best, p.TotalPossible)
		}
		best = p.BestScore
	}
	if best != 15 {
		t.Errorf("best = %d; want 15", best)
	}
	f.assertReconciled(t)
}

func TestSubmit_XPMilestoneFiresOnce(t *testing.T) {
	f := newFixture(t, domain.PolicyIncremental)
	tr := f.tracker(domain.PolicyIncremental)
	ctx := context.Background()

	if _, err := f.catalog.Create(ctx, rewards.CreateRequest{
		ID: "xp100", Title: "Centurion", Type: domain.RewardXPMilestone,
		Criteria: domain.RewardCriteria{XPThreshold: 100}, XPBonus: 5,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.ledger.Record(ctx, ledger.RecordRequest{UserID: "u1", Amount: 95}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	res := submit(t, tr, "s1", "l1", "e1", right)
	if len(res.Achievements) != 1 || res.Achievements[0].RewardID != "xp100" || res.XPBonus != 5 {
		t.Errorf("result = %+v; want the xp100 award", res)
	}

	res = submit(t, tr, "s1", "l1", "e2", right)
	if len(res.Achievements) != 0 {
		t.Errorf("achievements on second trigger = %+v", res.Achievements)
	}

	awardees, err := f.catalog.Awardees(ctx, "xp100")
	if err != nil {
		t.Fatalf("Awardees() error = %v", err)
	}
	if len(awardees) != 1 || awardees[0] != "u1" {
		t.Errorf("awardees = %v; want [u1]", awardees)
	}

	summary, err := f.ledger.Summarize(ctx, "u1")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got := summary.BreakdownByReason[domain.ReasonRewardAwarded].Count; got != 1 {
		t.Errorf("reward_awarded entries = %d; want 1", got)
	}
	f.assertReconciled(t)
}

func TestSubmit_JudgeUnavailableLeavesNoState(t *testing.T) {
	f := newFixture(t, domain.PolicyIncremental)
	failing := judge.New(judge.WithStrategy(domain.KindMultipleChoice,
		judge.StrategyFunc(func(context.Context, *domain.Exercise, json.RawMessage) (domain.Verdict, error) {
			return domain.Verdict{}, errors.New("oracle down")
		})))
	tr := progress.NewTracker(f.progress, f.users, f.registry, failing, f.engine, domain.PolicyIncremental)

	_, err := tr.Submit(context.Background(), req("s1", "l1", "e1", right))
	if !errors.Is(err, domain.ErrJudgeUnavailable) {
		t.Fatalf("Submit() error = %v; want ErrJudgeUnavailable", err)
	}
	if _, err := tr.LessonProgress(context.Background(), "u1", "l1"); !errors.Is(err, domain.ErrProgressNotFound) {
		t.Errorf("LessonProgress() error = %v; want ErrProgressNotFound", err)
	}
}

func TestSubmit_Errors(t *testing.T) {
	f := newFixture(t, domain.PolicyIncremental)
	tr := f.tracker(domain.PolicyIncremental)

	tests := []struct {
		name string
		req  progress.SubmitRequest
		want error
	}{
		{"bad user id", progress.SubmitRequest{UserID: "../etc", SessionID: "s1", ModuleID: "m1", LessonID: "l1", ExerciseUUID: "e1"}, domain.ErrInvalidIdentifier},
		{"missing module", progress.SubmitRequest{UserID: "u1", SessionID: "s1", ModuleID: "m9", LessonID: "l1", ExerciseUUID: "e1"}, domain.ErrModuleNotFound},
		{"missing lesson", progress.SubmitRequest{UserID: "u1", SessionID: "s1", ModuleID: "m1", LessonID: "l9", ExerciseUUID: "e1"}, domain.ErrLessonNotFound},
		{"missing exercise", progress.SubmitRequest{UserID: "u1", SessionID: "s1", ModuleID: "m1", LessonID: "l1", ExerciseUUID: "e9"}, domain.ErrExerciseNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tr.Submit(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Submit() error = %v; want %v", err, tt.want)
			}
		})
	}
}

// conflictingStore fails the first commits with a version conflict.
type conflictingStore struct {
	*sqlite.ProgressStore
	conflicts atomic.Int32
}

func (s *conflictingStore) CommitSubmission(ctx context.Context, p *domain.LessonProgress, a domain.AttemptRecord, g []domain.XPEntry) error {
	if s.conflicts.Add(-1) >= 0 {
		return domain.ErrConcurrentModification
	}
	return s.ProgressStore.CommitSubmission(ctx, p, a, g)
}

func TestSubmit_RetriesVersionConflicts(t *testing.T) {
	tests := []struct {
		name      string
		conflicts int32
		wantErr   error
	}{
		{"recovers", 2, nil},
		{"gives up", 3, domain.ErrConcurrentModification},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, domain.PolicyIncremental)
			store := &conflictingStore{ProgressStore: f.progress}
			store.conflicts.Store(tt.conflicts)
			tr := progress.NewTracker(store, f.users, f.registry, judge.New(), f.engine, domain.PolicyIncremental)

			_, err := tr.Submit(context.Background(), req("s1", "l1", "e1", right))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v; want %v", err, tt.wantErr)
			}
		})
	}
}

type pendingCascade struct {
	completed atomic.Int32
}

func (c *pendingCascade) LessonCompleted(context.Context, domain.LessonCompletedEvent) (*domain.CascadeResult, error) {
	c.completed.Add(1)
	return &domain.CascadeResult{Pending: true}, nil
}

func (c *pendingCascade) XPChanged(context.Context, string) (*domain.CascadeResult, error) {
	return &domain.CascadeResult{Pending: true}, nil
}

func TestSubmit_DeferredCascade(t *testing.T) {
	f := newFixture(t, domain.PolicySettlement)
	cascade := &pendingCascade{}
	tr := progress.NewTracker(f.progress, f.users, f.registry, judge.New(), cascade, domain.PolicySettlement)

	if res := submit(t, tr, "s1", "l1", "e1", right); res.CascadePending {
		t.Error("cascade pending before the lesson finished")
	}
	res := submit(t, tr, "s1", "l1", "e2", right)
	if !res.CascadePending || cascade.completed.Load() != 1 {
		t.Errorf("pending=%v completed=%d", res.CascadePending, cascade.completed.Load())
	}
}

func TestValidate_TouchesNothing(t *testing.T) {
	f := newFixture(t, domain.PolicyIncremental)
	tr := f.tracker(domain.PolicyIncremental)

	res, err := tr.Validate(context.Background(), req("s1", "l1", "e1", right))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !res.IsCorrect || res.Points != 10 {
		t.Errorf("Validate() = %+v", res)
	}
	if _, err := tr.LessonProgress(context.Background(), "u1", "l1"); !errors.Is(err, domain.ErrProgressNotFound) {
		t.Errorf("LessonProgress() error = %v; want ErrProgressNotFound", err)
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t, domain.PolicyIncremental)
	tr := f.tracker(domain.PolicyIncremental)
	ctx := context.Background()

	empty, err := tr.Summary(ctx, "u1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if empty.TotalPoints != 0 || len(empty.CompletedExerciseUUIDs) != 0 {
		t.Errorf("empty summary = %+v", empty)
	}

	submit(t, tr, "s1", "l1", "e1", right)
	submit(t, tr, "s1", "l1", "e2", wrong)
	submit(t, tr, "s2", "l1", "e1", right)

	s, err := tr.Summary(ctx, "u1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if s.TotalPoints != 10 || s.StreakDays != 1 {
		t.Errorf("summary = %+v; want 10 points, 1 day", s)
	}
	if len(s.CompletedExerciseUUIDs) != 1 || s.CompletedExerciseUUIDs[0] != "e1" {
		t.Errorf("completed = %v; want [e1]", s.CompletedExerciseUUIDs)
	}
}
