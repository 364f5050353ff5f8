package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/felixgeelhaar/streakline/internal/domain"
	"github.com/felixgeelhaar/streakline/internal/progress"
	"github.com/felixgeelhaar/streakline/internal/rewards"
	"github.com/felixgeelhaar/streakline/internal/stats"
)

type mockProgress struct {
	submitted []progress.SubmitRequest
	validated []progress.SubmitRequest
	err       error
}

func (m *mockProgress) Submit(ctx context.Context, req progress.SubmitRequest) (*progress.SubmissionResult, error) {
	m.submitted = append(m.submitted, req)
	if m.err != nil {
		return nil, m.err
	}
	return &progress.SubmissionResult{
		IsCorrect:      true,
		LessonFinished: true,
		PointsEarned:   10,
		XPBonus:        100,
		Achievements:   []domain.Achievement{},
	}, nil
}

func (m *mockProgress) Validate(ctx context.Context, req progress.SubmitRequest) (*progress.ValidationResult, error) {
	m.validated = append(m.validated, req)
	if m.err != nil {
		return nil, m.err
	}
	return &progress.ValidationResult{IsCorrect: false, Points: 0, Feedback: map[string]any{"error": "wrong"}}, nil
}

func (m *mockProgress) Summary(ctx context.Context, userID string) (*domain.ProgressSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ProgressSummary{UserID: userID, TotalPoints: 42, StreakDays: 3, CompletedExerciseUUIDs: []string{"e1"}}, nil
}

type mockLedger struct {
	limit, offset int
	err           error
}

func (m *mockLedger) History(ctx context.Context, userID string, limit, offset int) ([]domain.XPEntry, error) {
	m.limit, m.offset = limit, offset
	if m.err != nil {
		return nil, m.err
	}
	return []domain.XPEntry{domain.NewXPEntry(userID, 10, domain.ReasonLessonCompletion, domain.XPRefs{LessonID: "l1"}, nil)}, nil
}

func (m *mockLedger) Summarize(ctx context.Context, userID string) (*domain.XPSummary, error) {
	return &domain.XPSummary{UserID: userID, TotalXP: 10, TransactionCount: 1}, nil
}

type mockStats struct {
	err error
}

func (m *mockStats) Learner(ctx context.Context, userID string) (*stats.LearnerStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &stats.LearnerStats{UserID: userID, TotalXP: 640, Level: stats.LevelFor(640), LessonsCompleted: 3}, nil
}

type mockRewards struct {
	statsErr error
}

func (m *mockRewards) AvailableRewards(ctx context.Context, userID string) ([]rewards.AvailableReward, error) {
	return []rewards.AvailableReward{{
		Reward:   &domain.Reward{ID: "century", Type: domain.RewardXPMilestone, Criteria: domain.RewardCriteria{XPThreshold: 100}},
		Progress: &rewards.RewardProgress{Current: 42, Required: 100, Percent: 42},
	}}, nil
}

func (m *mockRewards) RewardStats(ctx context.Context, userID string) (*rewards.RewardStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return &rewards.RewardStats{Total: 2, Obtained: 1, Remaining: 1, CompletionPercent: 50, RewardPoints: 25}, nil
}

func TestNewServer(t *testing.T) {
	server := NewServer(Config{Progress: &mockProgress{}, Ledger: &mockLedger{}})
	if server == nil {
		t.Fatal("expected non-nil server")
	}
	if server.GetMCPServer() == nil {
		t.Fatal("expected non-nil MCP server")
	}
}

func TestServerConfig_NilServices(t *testing.T) {
	server := NewServer(Config{})
	ctx := context.Background()

	if _, err := server.handleSubmit(ctx, SubmitInput{}); err == nil {
		t.Error("handleSubmit() should fail without a tracker")
	}
	if _, err := server.handleHistory(ctx, HistoryInput{UserID: "u1"}); err == nil {
		t.Error("handleHistory() should fail without a ledger")
	}
	if _, err := server.handleLearnerStats(ctx, UserInput{UserID: "u1"}); err == nil {
		t.Error("handleLearnerStats() should fail without statistics")
	}
	if _, err := server.handleAvailableRewards(ctx, UserInput{UserID: "u1"}); err == nil {
		t.Error("handleAvailableRewards() should fail without rewards")
	}
}

func TestHandleSubmit(t *testing.T) {
	tracker := &mockProgress{}
	server := NewServer(Config{Progress: tracker})

	out, err := server.handleSubmit(context.Background(), SubmitInput{
		UserID:       "u1",
		SessionID:    "s1",
		ModuleID:     "m1",
		LessonID:     "l1",
		ExerciseUUID: "e1",
		Answer:       map[string]any{"answer": "b"},
	})
	if err != nil {
		t.Fatalf("handleSubmit() error = %v", err)
	}
	if !out.IsCorrect || !out.LessonFinished || out.XPBonus != 100 {
		t.Errorf("output = %+v", out)
	}

	if len(tracker.submitted) != 1 {
		t.Fatalf("submitted %d requests; want 1", len(tracker.submitted))
	}
	req := tracker.submitted[0]
	if req.UserID != "u1" || req.SessionID != "s1" || req.ExerciseUUID != "e1" {
		t.Errorf("request = %+v", req)
	}
	var decoded map[string]string
	if err := json.Unmarshal(req.Response, &decoded); err != nil || decoded["answer"] != "b" {
		t.Errorf("response = %s", req.Response)
	}
}

func TestHandleSubmit_Error(t *testing.T) {
	server := NewServer(Config{Progress: &mockProgress{err: domain.ErrDuplicateSubmission}})

	_, err := server.handleSubmit(context.Background(), SubmitInput{UserID: "u1", Answer: "a"})
	if !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Errorf("handleSubmit() error = %v; want ErrDuplicateSubmission", err)
	}
}

func TestHandleValidate(t *testing.T) {
	tracker := &mockProgress{}
	server := NewServer(Config{Progress: tracker})

	out, err := server.handleValidate(context.Background(), ValidateInput{
		ModuleID: "m1", LessonID: "l1", ExerciseUUID: "e1", Answer: "a",
	})
	if err != nil {
		t.Fatalf("handleValidate() error = %v", err)
	}
	if out.IsCorrect || out.Feedback["error"] != "wrong" {
		t.Errorf("output = %+v", out)
	}
	if string(tracker.validated[0].Response) != `"a"` {
		t.Errorf("response = %s; want \"a\"", tracker.validated[0].Response)
	}
	if len(tracker.submitted) != 0 {
		t.Error("validate must not submit")
	}
}

func TestHandleSummary(t *testing.T) {
	server := NewServer(Config{Progress: &mockProgress{}})

	out, err := server.handleSummary(context.Background(), UserInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("handleSummary() error = %v", err)
	}
	if out.TotalPoints != 42 || out.StreakDays != 3 || len(out.CompletedExerciseUUIDs) != 1 {
		t.Errorf("output = %+v", out)
	}
}

func TestHandleHistory(t *testing.T) {
	ledger := &mockLedger{}
	server := NewServer(Config{Ledger: ledger})

	out, err := server.handleHistory(context.Background(), HistoryInput{UserID: "u1", Limit: 5, Offset: 10})
	if err != nil {
		t.Fatalf("handleHistory() error = %v", err)
	}
	if ledger.limit != 5 || ledger.offset != 10 {
		t.Errorf("paging = %d/%d; want 5/10", ledger.limit, ledger.offset)
	}
	if len(out.Entries) != 1 || out.Summary == nil || out.Summary.TotalXP != 10 {
		t.Errorf("output = %+v", out)
	}
}

func TestEncodeAnswer(t *testing.T) {
	tests := []struct {
		name   string
		answer any
		want   string
	}{
		{"nil", nil, `""`},
		{"string", "b", `"b"`},
		{"object", map[string]any{"code": "x"}, `{"code":"x"}`},
		{"pairs", []any{map[string]any{"concept": "a", "definition": "b"}}, `[{"concept":"a","definition":"b"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeAnswer(tt.answer)
			if err != nil {
				t.Fatalf("encodeAnswer() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("encodeAnswer() = %s; want %s", got, tt.want)
			}
		})
	}
}

func TestHandleLearnerStats(t *testing.T) {
	server := NewServer(Config{Stats: &mockStats{}})

	out, err := server.handleLearnerStats(context.Background(), UserInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("handleLearnerStats() error = %v", err)
	}
	if out.UserID != "u1" || out.Level.Level != 2 || out.LessonsCompleted != 3 {
		t.Errorf("output = %+v", out)
	}

	server = NewServer(Config{Stats: &mockStats{err: domain.ErrInvalidIdentifier}})
	if _, err := server.handleLearnerStats(context.Background(), UserInput{}); !errors.Is(err, domain.ErrInvalidIdentifier) {
		t.Errorf("handleLearnerStats() error = %v; want ErrInvalidIdentifier", err)
	}
}

func TestHandleAvailableRewards(t *testing.T) {
	server := NewServer(Config{Rewards: &mockRewards{}})

	out, err := server.handleAvailableRewards(context.Background(), UserInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("handleAvailableRewards() error = %v", err)
	}
	if len(out.Rewards) != 1 || out.Rewards[0].Progress.Current != 42 {
		t.Errorf("rewards = %+v", out.Rewards)
	}
	if out.Stats == nil || out.Stats.CompletionPercent != 50 {
		t.Errorf("stats = %+v", out.Stats)
	}

	server = NewServer(Config{Rewards: &mockRewards{statsErr: errors.New("db down")}})
	if _, err := server.handleAvailableRewards(context.Background(), UserInput{UserID: "u1"}); err == nil {
		t.Error("handleAvailableRewards() should surface the stats error")
	}
}
