package session_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/streakline/internal/curriculum"
	"github.com/felixgeelhaar/streakline/internal/domain"
	"github.com/felixgeelhaar/streakline/internal/rewards"
	"github.com/felixgeelhaar/streakline/internal/session"
	"github.com/felixgeelhaar/streakline/internal/storage/sqlite"
	"github.com/felixgeelhaar/streakline/internal/streak"
)

func TestStart_StreakBonusCrossesXPMilestone(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	users := sqlite.NewUserStore(db)
	streaks := streak.NewTracker(users)
	rewardStore := sqlite.NewRewardStore(db)
	engine := rewards.NewEngine(rewardStore, curriculum.NewRegistry(nil), streaks, domain.PolicySettlement)
	catalog := rewards.NewCatalog(rewardStore)

	for _, req := range []rewards.CreateRequest{
		{ID: "first-day", Title: "First day", Type: domain.RewardStreakMilestone,
			Criteria: domain.RewardCriteria{Streak: 1}, XPBonus: 30},
		{ID: "xp-25", Title: "Warm-up", Type: domain.RewardXPMilestone,
			Criteria: domain.RewardCriteria{XPThreshold: 25}, XPBonus: 5},
	} {
		if _, err := catalog.Create(ctx, req); err != nil {
			t.Fatalf("Create(%s) error = %v", req.ID, err)
		}
	}

	svc := session.NewService(sqlite.NewSessionStore(db), streaks, engine)
	res, err := svc.Start(ctx, "u1", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.StreakDays != 1 {
		t.Errorf("StreakDays = %d; want 1", res.StreakDays)
	}

	earned := map[string]bool{}
	for _, a := range res.Achievements {
		earned[a.RewardID] = true
	}
	if !earned["first-day"] || !earned["xp-25"] {
		t.Errorf("Achievements = %+v; want first-day and xp-25", res.Achievements)
	}

	u, err := users.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if u.TotalPoints != 35 {
		t.Errorf("TotalPoints = %d; want 35", u.TotalPoints)
	}
}
