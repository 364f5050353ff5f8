package curriculum

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/streakline/internal/domain"
)

// Registry is an in-memory, id-keyed view of the curriculum. Lookups never
// depend on positions inside a module.
type Registry struct {
	loader  *Loader
	mu      sync.RWMutex
	modules map[string]*domain.Module
	lessons map[lessonKey]*domain.Lesson
	order   []string
}

type lessonKey struct {
	moduleID string
	lessonID string
}

// NewRegistry creates a new curriculum registry. loader may be nil when
// modules are added with Add.
func NewRegistry(loader *Loader) *Registry {
	return &Registry{
		loader:  loader,
		modules: make(map[string]*domain.Module),
		lessons: make(map[lessonKey]*domain.Lesson),
	}
}

// Load reads all modules through the loader
func (r *Registry) Load() error {
	if r.loader == nil {
		return fmt.Errorf("registry has no loader")
	}
	modules, err := r.loader.LoadAll()
	if err != nil {
		return fmt.Errorf("load modules: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = make(map[string]*domain.Module)
	r.lessons = make(map[lessonKey]*domain.Lesson)
	r.order = nil
	for _, m := range modules {
		if err := r.addLocked(m); err != nil {
			return err
		}
	}
	return nil
}

// Add registers a validated module.
func (r *Registry) Add(m *domain.Module) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(m)
}

func (r *Registry) addLocked(m *domain.Module) error {
	if _, exists := r.modules[m.ID]; exists {
		return fmt.Errorf("%w: duplicate module id %q", domain.ErrInvalidLesson, m.ID)
	}
	r.modules[m.ID] = m
	r.order = append(r.order, m.ID)
	for i := range m.Lessons {
		l := &m.Lessons[i]
		r.lessons[lessonKey{moduleID: m.ID, lessonID: l.ID}] = l
	}
	return nil
}

// FindLesson returns the lesson identified by (moduleID, lessonID)
func (r *Registry) FindLesson(_ context.Context, moduleID, lessonID string) (*domain.Lesson, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.modules[moduleID]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrModuleNotFound, moduleID)
	}
	l, ok := r.lessons[lessonKey{moduleID: moduleID, lessonID: lessonID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrLessonNotFound, moduleID, lessonID)
	}
	return l, nil
}

// FindExercise returns the exercise identified by the composite key
func (r *Registry) FindExercise(ctx context.Context, moduleID, lessonID, exerciseUUID string) (*domain.Exercise, error) {
	l, err := r.FindLesson(ctx, moduleID, lessonID)
	if err != nil {
		return nil, err
	}
	ex, ok := l.Exercise(exerciseUUID)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s/%s", domain.ErrExerciseNotFound, moduleID, lessonID, exerciseUUID)
	}
	return ex, nil
}

// GetModule returns a module by ID
func (r *Registry) GetModule(id string) (*domain.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrModuleNotFound, id)
	}
	return m, nil
}

// ListModules returns all modules in load order
func (r *Registry) ListModules() []*domain.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modules := make([]*domain.Module, 0, len(r.order))
	for _, id := range r.order {
		modules = append(modules, r.modules[id])
	}
	return modules
}

// Stats returns module, lesson and exercise counts
func (r *Registry) Stats() (modules, lessons, exercises int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, l := range r.lessons {
		exercises += len(l.Exercises)
	}
	return len(r.modules), len(r.lessons), exercises
}
