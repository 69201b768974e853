package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
)

// Task is a named mission goal that can be launched on a schedule or via
// webhook. Notify, when set, is a delivery target such as "telegram:123".
type Task struct {
	Name          string `json:"name"`
	Goal          string `json:"goal"`
	Schedule      string `json:"schedule,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
	Headless      bool   `json:"headless"`
	Notify        string `json:"notify,omitempty"`
	Enabled       bool   `json:"enabled"`
}

// TaskStore keeps tasks as one JSON array in a single file.
type TaskStore struct {
	path string
	mu   sync.RWMutex
}

func NewTaskStore(path string) *TaskStore {
	return &TaskStore{path: path}
}

// Path returns the file path used by this store.
func (s *TaskStore) Path() string {
	return s.path
}

// List returns all tasks in insertion order. A missing file is an empty list.
func (s *TaskStore) List() ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		return []*Task{}, nil
	}
	return tasks, nil
}

func (s *TaskStore) Get(name string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.load()
	if err != nil {
		return nil, err
	}
	i := indexOf(tasks, name)
	if i < 0 {
		return nil, fmt.Errorf("task %s: %w", name, ErrNotFound)
	}
	return tasks[i], nil
}

// Add stores a new task. Names are unique.
func (s *TaskStore) Add(task *Task) error {
	if task.Name == "" {
		return errors.New("task name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return err
	}
	if indexOf(tasks, task.Name) >= 0 {
		return fmt.Errorf("task already exists: %s", task.Name)
	}
	return s.save(append(tasks, task))
}

func (s *TaskStore) Remove(name string) error {
	return s.mutate(name, func(tasks []*Task, i int) []*Task {
		return slices.Delete(tasks, i, i+1)
	})
}

func (s *TaskStore) SetEnabled(name string, enabled bool) error {
	return s.mutate(name, func(tasks []*Task, i int) []*Task {
		tasks[i].Enabled = enabled
		return tasks
	})
}

// mutate loads the task list, applies fn to the named task and saves the
// result, all under the write lock.
func (s *TaskStore) mutate(name string, fn func(tasks []*Task, i int) []*Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.load()
	if err != nil {
		return err
	}
	i := indexOf(tasks, name)
	if i < 0 {
		return fmt.Errorf("task %s: %w", name, ErrNotFound)
	}
	return s.save(fn(tasks, i))
}

func indexOf(tasks []*Task, name string) int {
	return slices.IndexFunc(tasks, func(t *Task) bool { return t.Name == name })
}

func (s *TaskStore) load() ([]*Task, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}

	var tasks []*Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskStore) save(tasks []*Task) error {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("save tasks: %w", err)
	}
	return nil
}
