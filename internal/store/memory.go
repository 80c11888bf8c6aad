package store

import (
	"context"
	"sync"

	"voice-task-service/internal/models"
)

// Memory keeps the task list in process memory.
type Memory struct {
	mu    sync.RWMutex
	tasks []models.Task
	// SaveErr, when set, is returned by Save without writing.
	SaveErr error
}

// NewMemory returns a Memory store seeded with tasks.
func NewMemory(tasks ...models.Task) *Memory {
	return &Memory{tasks: cloneTasks(tasks)}
}

// Load implements Store.
func (m *Memory) Load(ctx context.Context) ([]models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneTasks(m.tasks), nil
}

// Save implements Store.
func (m *Memory) Save(ctx context.Context, tasks []models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.tasks = cloneTasks(tasks)
	return nil
}

// Update implements Updater.
func (m *Memory) Update(ctx context.Context, fn func([]models.Task) []models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.tasks = cloneTasks(fn(cloneTasks(m.tasks)))
	return nil
}

func cloneTasks(tasks []models.Task) []models.Task {
	out := make([]models.Task, len(tasks))
	copy(out, tasks)
	return out
}
