package a2a

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskFinished      = errors.New("task already finished")
	ErrInvalidTransition = errors.New("invalid task transition")
	// ErrTaskSuperseded means a later Insert replaced the task being finished.
	ErrTaskSuperseded = errors.New("task superseded")
)

// TaskStore keeps tasks for the life of the process. Implementations must be
// safe for concurrent use and hand out copies.
//
// Insert returns a generation that identifies this particular record. Finish
// only applies to the generation it names, so a submission whose id was
// reused mid-flight cannot finish the newer record.
type TaskStore interface {
	Insert(task Task) uint64
	Get(id string) (Task, error)
	Finish(id string, gen uint64, state TaskState, artifact Artifact) error
	List() []Task
}

type storedTask struct {
	task Task
	gen  uint64
}

type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]storedTask
	gen   uint64
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]storedTask)}
}

// Insert stores task under its id, replacing any earlier task with the same
// id.
func (s *MemoryTaskStore) Insert(task Task) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.tasks[task.ID] = storedTask{task: task.clone(), gen: s.gen}
	return s.gen
}

func (s *MemoryTaskStore) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	return st.task.clone(), nil
}

// Finish moves generation gen of a task to a terminal state and attaches its
// single artifact.
func (s *MemoryTaskStore) Finish(id string, gen uint64, state TaskState, artifact Artifact) error {
	if !state.Terminal() {
		return fmt.Errorf("%w: to %q", ErrInvalidTransition, state)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, id)
	}
	if st.gen != gen {
		return fmt.Errorf("%w: %q", ErrTaskSuperseded, id)
	}
	if st.task.Status.State.Terminal() {
		return fmt.Errorf("%w: %q is %s", ErrTaskFinished, id, st.task.Status.State)
	}

	st.task.Status.State = state
	st.task.Artifacts = []Artifact{artifact}
	st.task = st.task.clone()
	s.tasks[id] = st
	return nil
}

// List returns every task ordered by creation time.
func (s *MemoryTaskStore) List() []Task {
	s.mu.RLock()
	result := make([]Task, 0, len(s.tasks))
	for _, st := range s.tasks {
		result = append(result, st.task.clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}
