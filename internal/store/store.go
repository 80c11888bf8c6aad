// Package store persists the task list. Every backend stores the whole list
// as one ordered value; writes replace it.
package store

import (
	"context"
	"sync"
	"time"

	"voice-task-service/internal/models"
	"voice-task-service/internal/observability/metrics"
)

// Store loads and saves the full task list.
type Store interface {
	// Load returns the stored tasks in order. A missing or unreadable list
	// yields an empty slice.
	Load(ctx context.Context) ([]models.Task, error)
	// Save replaces the stored list with tasks.
	Save(ctx context.Context, tasks []models.Task) error
}

// Updater is implemented by stores that can apply a read-modify-write of the
// list as one step.
type Updater interface {
	Update(ctx context.Context, fn func([]models.Task) []models.Task) error
}

// Update replaces the stored list with fn applied to it. Stores that are not
// an Updater get a plain Load followed by Save.
func Update(ctx context.Context, s Store, fn func([]models.Task) []models.Task) error {
	if u, ok := s.(Updater); ok {
		return u.Update(ctx, fn)
	}
	tasks, err := s.Load(ctx)
	if err != nil {
		return err
	}
	return s.Save(ctx, fn(tasks))
}

// Pinger is implemented by backends that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Instrumented wraps a Store and records operation metrics. Its Update calls
// are serialized, so sessions sharing it never overwrite each other's tasks.
type Instrumented struct {
	next    Store
	backend string
	metrics *metrics.Metrics

	updateMu sync.Mutex
}

// Instrument wraps s so every call is recorded under backend.
func Instrument(s Store, backend string, m *metrics.Metrics) *Instrumented {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Instrumented{next: s, backend: backend, metrics: m}
}

// Load implements Store.
func (s *Instrumented) Load(ctx context.Context) ([]models.Task, error) {
	start := time.Now()
	tasks, err := s.next.Load(ctx)
	s.metrics.RecordStoreOp(s.backend, "load", err, time.Since(start).Seconds())
	return tasks, err
}

// Save implements Store.
func (s *Instrumented) Save(ctx context.Context, tasks []models.Task) error {
	start := time.Now()
	err := s.next.Save(ctx, tasks)
	s.metrics.RecordStoreOp(s.backend, "save", err, time.Since(start).Seconds())
	return err
}

// Update implements Updater.
func (s *Instrumented) Update(ctx context.Context, fn func([]models.Task) []models.Task) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	if u, ok := s.next.(Updater); ok {
		start := time.Now()
		err := u.Update(ctx, fn)
		s.metrics.RecordStoreOp(s.backend, "update", err, time.Since(start).Seconds())
		return err
	}
	tasks, err := s.Load(ctx)
	if err != nil {
		return err
	}
	return s.Save(ctx, fn(tasks))
}

// Ping delegates to the wrapped store when it supports it.
func (s *Instrumented) Ping(ctx context.Context) error {
	if p, ok := s.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
