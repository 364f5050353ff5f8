package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

type fakeProgress struct {
	records  []*domain.LessonProgress
	attempts map[string][]domain.AttemptRecord
}

func (f *fakeProgress) ListProgress(_ context.Context, userID string) ([]*domain.LessonProgress, error) {
	var out []*domain.LessonProgress
	for _, p := range f.records {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProgress) ListAttempts(_ context.Context, userID, lessonID string) ([]domain.AttemptRecord, error) {
	var out []domain.AttemptRecord
	for _, a := range f.attempts[lessonID] {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeUsers map[string]*domain.User

func (f fakeUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (f fakeUsers) ListUsers(context.Context) ([]*domain.User, error) {
	out := make([]*domain.User, 0, len(f))
	for _, u := range f {
		out = append(out, u)
	}
	return out, nil
}

type fakeActivity map[string][]time.Time

func (f fakeActivity) ListSessionStarts(_ context.Context, userID string) ([]time.Time, error) {
	return f[userID], nil
}

type fakeCurriculum []*domain.Module

func (f fakeCurriculum) ListModules() []*domain.Module { return f }

var now = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func exercises(points ...int) []domain.Exercise {
	out := make([]domain.Exercise, len(points))
	for i, p := range points {
		out[i] = domain.Exercise{UUID: string(rune('a'+i)) + "-ex", Points: p}
	}
	return out
}

func testCurriculum() fakeCurriculum {
	return fakeCurriculum{
		{ID: "m1", Title: "Basics", Lessons: []domain.Lesson{
			{ID: "l1", ModuleID: "m1", Title: "Intro", Exercises: exercises(10, 5)},
			{ID: "l2", ModuleID: "m1", Title: "Loops", Exercises: exercises(10)},
		}},
		{ID: "m2", Title: "Advanced", Lessons: []domain.Lesson{
			{ID: "l3", ModuleID: "m2", Title: "Generics", Exercises: exercises(20)},
		}},
	}
}

func attempt(user, lesson, uuid string, n int, correct bool) domain.AttemptRecord {
	return domain.AttemptRecord{
		UserID: user, ModuleID: "m1", LessonID: lesson, SessionID: "s", AttemptNumber: n,
		ExerciseAttempt: domain.ExerciseAttempt{ExerciseUUID: uuid, IsCorrect: correct},
	}
}

func newTestService() *Service {
	progress := &fakeProgress{
		records: []*domain.LessonProgress{
			{UserID: "u1", ModuleID: "m1", LessonID: "l1", BestScore: 15, TotalPossible: 15,
				AttemptCount: 2, IsCompleted: true, UpdatedAt: now.Add(-2 * time.Hour)},
			{UserID: "u1", ModuleID: "m1", LessonID: "l2", BestScore: 0, TotalPossible: 10,
				AttemptCount: 1, UpdatedAt: now.Add(-time.Hour)},
			{UserID: "u2", ModuleID: "m2", LessonID: "l3", BestScore: 10, TotalPossible: 20,
				AttemptCount: 1, IsCompleted: true, UpdatedAt: now.Add(-48 * time.Hour)},
		},
		attempts: map[string][]domain.AttemptRecord{
			"l1": {
				attempt("u1", "l1", "a-ex", 1, false),
				attempt("u1", "l1", "b-ex", 1, true),
				attempt("u1", "l1", "a-ex", 2, true),
				attempt("u1", "l1", "b-ex", 2, true),
			},
			"l2": {attempt("u1", "l2", "a-ex-2", 1, false)},
			"l3": {attempt("u2", "l3", "a-ex-3", 1, true)},
		},
	}
	users := fakeUsers{
		"u1": {ID: "u1", TotalPoints: 640, Streak: domain.Streak{CurrentDays: 3}},
		"u2": {ID: "u2", TotalPoints: 1200, Streak: domain.Streak{CurrentDays: 9}},
	}
	activity := fakeActivity{
		"u1": {
			now.Add(-30 * time.Minute),
			now.Add(-3 * time.Hour),
			now.AddDate(0, 0, -2),
			now.AddDate(0, 0, -45),
		},
	}
	svc := NewService(progress, users, activity, testCurriculum())
	svc.now = func() time.Time { return now }
	return svc
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		xp   int
		want Level
	}{
		{0, Level{Level: 1, ProgressPercent: 0, XPToNext: 500}},
		{250, Level{Level: 1, ProgressPercent: 50, XPToNext: 250}},
		{499, Level{Level: 1, ProgressPercent: 99.8, XPToNext: 1}},
		{500, Level{Level: 2, ProgressPercent: 0, XPToNext: 500}},
		{1260, Level{Level: 3, ProgressPercent: 52, XPToNext: 240}},
		{-10, Level{Level: 1, ProgressPercent: 0, XPToNext: 500}},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.xp); got != tt.want {
			t.Errorf("LevelFor(%d) = %+v, want %+v", tt.xp, got, tt.want)
		}
	}
}

func TestLearner(t *testing.T) {
	st, err := newTestService().Learner(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Learner() error = %v", err)
	}

	if st.Level.Level != 2 || st.XPToNext != 360 || st.ProgressPercent != 28 {
		t.Errorf("level = %+v, want level 2, 28%%, 360 to next", st.Level)
	}
	if st.LessonsCompleted != 1 || st.PerfectLessons != 1 {
		t.Errorf("lessons = %d completed, %d perfect, want 1, 1", st.LessonsCompleted, st.PerfectLessons)
	}
	if st.ExercisesCompleted != 2 || st.ExercisesAttempted != 5 {
		t.Errorf("exercises = %d/%d, want 2/5", st.ExercisesCompleted, st.ExercisesAttempted)
	}
	if st.ActiveDays != 3 {
		t.Errorf("ActiveDays = %d, want 3", st.ActiveDays)
	}
	if st.LastActivity == nil || !st.LastActivity.Equal(now.Add(-30*time.Minute)) {
		t.Errorf("LastActivity = %v", st.LastActivity)
	}
	if st.TotalLessons != 3 || st.GlobalProgress != 33.3 {
		t.Errorf("global = %d lessons, %.1f%%, want 3, 33.3%%", st.TotalLessons, st.GlobalProgress)
	}

	if len(st.Modules) != 2 {
		t.Fatalf("len(Modules) = %d, want 2", len(st.Modules))
	}
	m1 := st.Modules[0]
	if m1.Status != StatusInProgress || m1.CompletedLessons != 1 || m1.ProgressPercent != 50 {
		t.Errorf("m1 = %+v", m1)
	}
	if m1.TotalExercises != 3 || m1.CompletedExercises != 2 {
		t.Errorf("m1 exercises = %d/%d, want 2/3", m1.CompletedExercises, m1.TotalExercises)
	}
	if m1.AverageScore != 50 {
		t.Errorf("m1 AverageScore = %.1f, want 50", m1.AverageScore)
	}
	if got := m1.Lessons[1].Status; got != StatusInProgress {
		t.Errorf("l2 status = %s, want in_progress", got)
	}
	if st.Modules[1].Status != StatusNotStarted || len(st.Modules[1].Lessons) != 1 {
		t.Errorf("m2 = %+v", st.Modules[1])
	}

	if len(st.Activity) != 30 {
		t.Fatalf("len(Activity) = %d, want 30", len(st.Activity))
	}
	today := st.Activity[29]
	if today.Date != "2026-03-10" || !today.Active || today.Sessions != 2 {
		t.Errorf("today = %+v", today)
	}
	if st.Activity[27].Sessions != 1 || st.Activity[28].Active {
		t.Errorf("calendar = %+v", st.Activity[26:])
	}

	if len(st.Badges) != 1 || st.Badges[0].ID != "first_lesson" {
		t.Errorf("Badges = %+v", st.Badges)
	}
	if st.NextGoal.Type != GoalStreak || st.NextGoal.Target != 7 {
		t.Errorf("NextGoal = %+v", st.NextGoal)
	}
}

func TestLearner_UnknownUserGetsZeros(t *testing.T) {
	st, err := newTestService().Learner(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Learner() error = %v", err)
	}
	if st.Level.Level != 1 || st.TotalXP != 0 || st.LessonsCompleted != 0 || st.LastActivity != nil {
		t.Errorf("stats = %+v", st)
	}
	if st.NextGoal.Type != GoalStreak || st.NextGoal.Target != 1 {
		t.Errorf("NextGoal = %+v", st.NextGoal)
	}
	if st.Badges == nil {
		t.Error("Badges is nil, want empty")
	}
}

func TestLearner_InvalidID(t *testing.T) {
	_, err := newTestService().Learner(context.Background(), "")
	if !errors.Is(err, domain.ErrInvalidIdentifier) {
		t.Errorf("Learner(\"\") error = %v, want ErrInvalidIdentifier", err)
	}
}

func TestNextGoal(t *testing.T) {
	modules := []ModuleProgress{
		{ModuleID: "m1", Title: "Basics", Status: StatusCompleted},
		{ModuleID: "m2", Title: "Loops", Status: StatusInProgress, ProgressPercent: 40},
		{ModuleID: "m3", Title: "Maps", Status: StatusNotStarted},
	}
	tests := []struct {
		name       string
		stats      LearnerStats
		wantType   GoalType
		wantTarget int
		wantModule string
	}{
		{"no streak", LearnerStats{}, GoalStreak, 1, ""},
		{"short streak", LearnerStats{StreakDays: 4}, GoalStreak, 7, ""},
		{"few lessons", LearnerStats{StreakDays: 7, LessonsCompleted: 2}, GoalLessons, 5, ""},
		{"some lessons", LearnerStats{StreakDays: 7, LessonsCompleted: 6}, GoalLessons, 10, ""},
		{"new module first", LearnerStats{StreakDays: 7, LessonsCompleted: 10, Modules: modules}, GoalModule, 0, "m3"},
		{"finish started module", LearnerStats{StreakDays: 7, LessonsCompleted: 10, Modules: modules[:2]}, GoalModule, 0, "m2"},
		{"next level", LearnerStats{StreakDays: 7, LessonsCompleted: 10, TotalXP: 1260, Level: LevelFor(1260)}, GoalXP, 1500, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextGoal(&tt.stats)
			if got.Type != tt.wantType || got.Target != tt.wantTarget || got.ModuleID != tt.wantModule {
				t.Errorf("nextGoal() = %+v, want %s target=%d module=%q", got, tt.wantType, tt.wantTarget, tt.wantModule)
			}
		})
	}
}

func TestBadges(t *testing.T) {
	st := &LearnerStats{
		TotalXP:          2100,
		Level:            LevelFor(2100),
		StreakDays:       30,
		LessonsCompleted: 10,
		PerfectLessons:   10,
	}
	if got := len(badgesFor(st)); got != len(badgeRules) {
		t.Errorf("len(badgesFor()) = %d, want all %d", got, len(badgeRules))
	}
}

func TestStudents_SortedByXP(t *testing.T) {
	got, err := newTestService().Students(context.Background())
	if err != nil {
		t.Fatalf("Students() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Students()) = %d, want 2", len(got))
	}
	if got[0].UserID != "u2" || got[1].UserID != "u1" {
		t.Errorf("order = %s, %s, want u2, u1", got[0].UserID, got[1].UserID)
	}

	u1 := got[1]
	if u1.ActiveDaysCount != 3 || u1.ActiveDays[0] != "2026-03-10" {
		t.Errorf("u1 active days = %v", u1.ActiveDays)
	}
	if u1.ExercisesCompleted != 2 || u1.Level != 2 {
		t.Errorf("u1 = %+v", u1)
	}
	for _, m := range u1.Modules {
		if m.Lessons != nil {
			t.Errorf("module %s carries lessons in the overview", m.ModuleID)
		}
	}

	u2 := got[0]
	if u2.ActiveDaysCount != 0 || u2.LastActivity == nil {
		t.Errorf("u2 = %+v", u2)
	}
}

func TestStudent_Detail(t *testing.T) {
	svc := newTestService()

	d, err := svc.Student(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Student() error = %v", err)
	}
	if len(d.Modules) != 2 || len(d.Modules[0].Lessons) != 2 {
		t.Fatalf("modules = %+v", d.Modules)
	}
	l1 := d.Modules[0].Lessons[0]
	if !l1.IsCompleted || l1.BestScore != 15 || l1.AttemptCount != 2 || len(l1.Attempts) != 4 {
		t.Errorf("l1 = %+v", l1)
	}
	l3 := d.Modules[1].Lessons[0]
	if l3.LastAttempt != nil || len(l3.Attempts) != 0 || l3.TotalPossible != 20 {
		t.Errorf("untouched lesson = %+v", l3)
	}

	if _, err := svc.Student(context.Background(), "nobody"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("Student(nobody) error = %v, want ErrUserNotFound", err)
	}
}
