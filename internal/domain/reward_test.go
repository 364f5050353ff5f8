package domain

import (
	"errors"
	"testing"
	"time"
)

func TestReward_Validate(t *testing.T) {
	tests := []struct {
		name    string
		reward  Reward
		wantErr bool
	}{
		{"lesson perfect", Reward{Title: "Ace", Type: RewardLessonPerfect, Criteria: RewardCriteria{LessonID: "l1"}}, false},
		{"lesson perfect without lesson", Reward{Title: "Ace", Type: RewardLessonPerfect}, true},
		{"streak", Reward{Title: "Week", Type: RewardStreakMilestone, Criteria: RewardCriteria{Streak: 7}}, false},
		{"streak zero", Reward{Title: "Week", Type: RewardStreakMilestone}, true},
		{"xp", Reward{Title: "Century", Type: RewardXPMilestone, Criteria: RewardCriteria{XPThreshold: 100}}, false},
		{"xp zero", Reward{Title: "Century", Type: RewardXPMilestone}, true},
		{"custom", Reward{Title: "Helper", Type: RewardCustom, XPBonus: 5}, false},
		{"negative bonus", Reward{Title: "Bad", Type: RewardCustom, XPBonus: -1}, true},
		{"no title", Reward{Type: RewardCustom}, true},
		{"unknown type", Reward{Title: "X", Type: "daily"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reward.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidReward) {
				t.Errorf("Validate() error = %v; want ErrInvalidReward", err)
			}
		})
	}
}

func TestRewardUpdate_Apply(t *testing.T) {
	r := Reward{Title: "Old", XPBonus: 5, IsActive: true}
	if !(RewardUpdate{}).Empty() {
		t.Error("zero RewardUpdate should be empty")
	}

	title := "New"
	active := false
	RewardUpdate{Title: &title, IsActive: &active}.Apply(&r)

	if r.Title != "New" || r.IsActive || r.XPBonus != 5 {
		t.Errorf("after Apply: %+v", r)
	}
}

func TestStudySession_Finish(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := &StudySession{ID: "s1", UserID: "u1", StartTime: start}
	if s.IsEnded() {
		t.Fatal("new session should not be ended")
	}

	s.Finish(start.Add(90*time.Second + 200*time.Millisecond))
	if !s.IsEnded() {
		t.Fatal("IsEnded() = false after Finish")
	}
	if *s.DurationMinutes != 1.5 {
		t.Errorf("DurationMinutes = %v; want 1.5", *s.DurationMinutes)
	}
}
