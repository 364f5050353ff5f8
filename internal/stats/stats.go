// Package stats builds read-only views over a learner's progress: the
// learner dashboard and the instructor overviews.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// XPPerLevel is the XP width of one level.
const XPPerLevel = 500

// calendarDays is the length of the activity calendar.
const calendarDays = 30

// ProgressReader reads lesson records and the attempt history.
type ProgressReader interface {
	ListProgress(ctx context.Context, userID string) ([]*domain.LessonProgress, error)
	ListAttempts(ctx context.Context, userID, lessonID string) ([]domain.AttemptRecord, error)
}

// UserReader reads gamification totals.
type UserReader interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
}

// ActivityReader lists when a user practiced.
type ActivityReader interface {
	ListSessionStarts(ctx context.Context, userID string) ([]time.Time, error)
}

// Curriculum lists modules in curriculum order.
type Curriculum interface {
	ListModules() []*domain.Module
}

// Service computes statistics.
type Service struct {
	progress   ProgressReader
	users      UserReader
	activity   ActivityReader
	curriculum Curriculum
	now        func() time.Time
}

// NewService creates a statistics service.
func NewService(progress ProgressReader, users UserReader, activity ActivityReader, curriculum Curriculum) *Service {
	return &Service{
		progress:   progress,
		users:      users,
		activity:   activity,
		curriculum: curriculum,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Learner returns the dashboard of one learner. A user who never
// practiced gets level 1 and zeros.
func (s *Service) Learner(ctx context.Context, userID string) (*LearnerStats, error) {
	if err := domain.ValidateID("user id", userID); err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		user = &domain.User{ID: userID}
	case err != nil:
		return nil, fmt.Errorf("get user: %w", err)
	}

	snap, err := s.gather(ctx, user)
	if err != nil {
		return nil, err
	}

	modules := s.curriculum.ListModules()
	st := &LearnerStats{
		UserID:             user.ID,
		TotalXP:            user.TotalPoints,
		Level:              LevelFor(user.TotalPoints),
		StreakDays:         user.Streak.CurrentDays,
		LessonsCompleted:   snap.lessonsCompleted,
		PerfectLessons:     snap.perfectLessons,
		ExercisesCompleted: len(snap.correctAll),
		ExercisesAttempted: snap.attempted,
		ActiveDays:         len(snap.days),
		LastActivity:       snap.lastActivity(),
		Modules:            snap.moduleProgress(modules, true),
		Activity:           snap.calendar(s.now()),
	}
	st.TotalLessons = countLessons(modules)
	st.GlobalProgress = percent(st.LessonsCompleted, st.TotalLessons)
	st.Badges = badgesFor(st)
	st.NextGoal = nextGoal(st)
	return st, nil
}

// Students returns a summary of every known user, highest XP first.
func (s *Service) Students(ctx context.Context) ([]StudentSummary, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	modules := s.curriculum.ListModules()
	total := countLessons(modules)

	summaries := make([]StudentSummary, 0, len(users))
	for _, u := range users {
		snap, err := s.gather(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", u.ID, err)
		}
		summaries = append(summaries, StudentSummary{
			UserID:             u.ID,
			TotalXP:            u.TotalPoints,
			Level:              LevelFor(u.TotalPoints).Level,
			StreakDays:         u.Streak.CurrentDays,
			LessonsCompleted:   snap.lessonsCompleted,
			ExercisesCompleted: len(snap.correctAll),
			TotalLessons:       total,
			GlobalProgress:     percent(snap.lessonsCompleted, total),
			LastActivity:       snap.lastActivity(),
			ActiveDays:         snap.dayStrings(),
			ActiveDaysCount:    len(snap.days),
			Modules:            snap.moduleProgress(modules, false),
		})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].TotalXP > summaries[j].TotalXP
	})
	return summaries, nil
}

// Student returns the lesson-by-lesson progress of one user including the
// attempt history. Unknown users yield domain.ErrUserNotFound.
func (s *Service) Student(ctx context.Context, userID string) (*StudentDetail, error) {
	if err := domain.ValidateID("user id", userID); err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap, err := s.gather(ctx, user)
	if err != nil {
		return nil, err
	}

	detail := &StudentDetail{
		UserID:     user.ID,
		TotalXP:    user.TotalPoints,
		StreakDays: user.Streak.CurrentDays,
		Modules:    []ModuleDetail{},
	}
	for _, m := range s.curriculum.ListModules() {
		md := ModuleDetail{ModuleID: m.ID, Title: m.Title, Lessons: make([]LessonDetail, 0, len(m.Lessons))}
		for i := range m.Lessons {
			l := &m.Lessons[i]
			ld := LessonDetail{
				LessonID:      l.ID,
				Title:         l.Title,
				TotalPossible: l.TotalPossible(),
				Attempts:      []domain.AttemptRecord{},
			}
			if p, ok := snap.progress[l.ID]; ok {
				last := p.UpdatedAt
				ld.IsCompleted = p.IsCompleted
				ld.IsLocked = p.IsLocked
				ld.BestScore = p.BestScore
				ld.TotalPossible = p.TotalPossible
				ld.AttemptCount = p.AttemptCount
				ld.LastAttempt = &last
			}
			if a := snap.attempts[l.ID]; len(a) > 0 {
				ld.Attempts = a
			}
			md.Lessons = append(md.Lessons, ld)
		}
		detail.Modules = append(detail.Modules, md)
	}
	return detail, nil
}

// LevelFor places total XP on the level ladder. Level 1 starts at zero.
func LevelFor(totalXP int) Level {
	xp := max(totalXP, 0)
	level := xp/XPPerLevel + 1
	inLevel := xp - (level-1)*XPPerLevel
	return Level{
		Level:           level,
		ProgressPercent: round1(float64(inLevel) / XPPerLevel * 100),
		XPToNext:        level*XPPerLevel - xp,
	}
}

// snapshot is everything stored about one user, indexed for the views.
type snapshot struct {
	progress         map[string]*domain.LessonProgress
	attempts         map[string][]domain.AttemptRecord
	correct          map[string]map[string]bool
	correctAll       map[string]bool
	attempted        int
	lessonsCompleted int
	perfectLessons   int
	days             []time.Time
	perDay           map[time.Time]int
	lastPractice     time.Time
}

func (s *Service) gather(ctx context.Context, user *domain.User) (*snapshot, error) {
	records, err := s.progress.ListProgress(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	starts, err := s.activity.ListSessionStarts(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		progress:   make(map[string]*domain.LessonProgress, len(records)),
		attempts:   make(map[string][]domain.AttemptRecord, len(records)),
		correct:    make(map[string]map[string]bool, len(records)),
		correctAll: make(map[string]bool),
		perDay:     make(map[time.Time]int),
	}
	for _, p := range records {
		snap.progress[p.LessonID] = p
		if p.IsCompleted {
			snap.lessonsCompleted++
			if p.TotalPossible > 0 && p.BestScore == p.TotalPossible {
				snap.perfectLessons++
			}
		}
		if p.UpdatedAt.After(snap.lastPractice) {
			snap.lastPractice = p.UpdatedAt
		}

		attempts, err := s.progress.ListAttempts(ctx, user.ID, p.LessonID)
		if err != nil {
			return nil, fmt.Errorf("list attempts: %w", err)
		}
		snap.attempts[p.LessonID] = attempts
		snap.attempted += len(attempts)
		correct := make(map[string]bool)
		for _, a := range attempts {
			if a.IsCorrect {
				correct[a.ExerciseUUID] = true
				snap.correctAll[a.ExerciseUUID] = true
			}
		}
		snap.correct[p.LessonID] = correct
	}

	for _, t := range starts {
		day := domain.CalendarDay(t)
		if snap.perDay[day] == 0 {
			snap.days = append(snap.days, day)
		}
		snap.perDay[day]++
		if t.After(snap.lastPractice) {
			snap.lastPractice = t
		}
	}
	sort.Slice(snap.days, func(i, j int) bool { return snap.days[i].After(snap.days[j]) })
	return snap, nil
}

func (snap *snapshot) lastActivity() *time.Time {
	if snap.lastPractice.IsZero() {
		return nil
	}
	t := snap.lastPractice.UTC()
	return &t
}

func (snap *snapshot) dayStrings() []string {
	out := make([]string, len(snap.days))
	for i, d := range snap.days {
		out[i] = d.Format(time.DateOnly)
	}
	return out
}

// calendar returns the last calendarDays days ending today, oldest first.
func (snap *snapshot) calendar(now time.Time) []ActivityDay {
	today := domain.CalendarDay(now)
	out := make([]ActivityDay, calendarDays)
	for i := range out {
		day := today.AddDate(0, 0, i-calendarDays+1)
		n := snap.perDay[day]
		out[i] = ActivityDay{Date: day.Format(time.DateOnly), Active: n > 0, Sessions: n}
	}
	return out
}

func (snap *snapshot) moduleProgress(modules []*domain.Module, withLessons bool) []ModuleProgress {
	out := make([]ModuleProgress, 0, len(modules))
	for _, m := range modules {
		mp := ModuleProgress{ModuleID: m.ID, Title: m.Title, TotalLessons: len(m.Lessons)}
		var (
			scoreSum float64
			started  int
		)
		for i := range m.Lessons {
			l := &m.Lessons[i]
			mp.TotalExercises += l.ExerciseCount()
			ls := LessonStatus{
				LessonID:      l.ID,
				Title:         l.Title,
				Status:        StatusNotStarted,
				TotalPossible: l.TotalPossible(),
			}
			if p, ok := snap.progress[l.ID]; ok {
				started++
				ls.Status = StatusInProgress
				if p.IsCompleted {
					ls.Status = StatusCompleted
					mp.CompletedLessons++
				}
				ls.Score = p.BestScore
				ls.TotalPossible = p.TotalPossible
				ls.AttemptCount = p.AttemptCount
				if p.TotalPossible > 0 {
					scoreSum += float64(p.BestScore) / float64(p.TotalPossible) * 100
				}
				mp.CompletedExercises += len(snap.correct[l.ID])
			}
			if withLessons {
				mp.Lessons = append(mp.Lessons, ls)
			}
		}
		mp.ProgressPercent = percent(mp.CompletedLessons, mp.TotalLessons)
		if started > 0 {
			mp.AverageScore = round1(scoreSum / float64(started))
		}
		switch {
		case mp.TotalLessons > 0 && mp.CompletedLessons == mp.TotalLessons:
			mp.Status = StatusCompleted
		case started > 0:
			mp.Status = StatusInProgress
		default:
			mp.Status = StatusNotStarted
		}
		out = append(out, mp)
	}
	return out
}

func countLessons(modules []*domain.Module) int {
	n := 0
	for _, m := range modules {
		n += len(m.Lessons)
	}
	return n
}

func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return round1(float64(part) / float64(whole) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
