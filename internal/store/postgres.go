package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"voice-task-service/internal/models"
)

// Schema is the DDL for the tasks table. Position holds list order.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
    position    INTEGER PRIMARY KEY,
    id          TEXT    NOT NULL,
    title       TEXT    NOT NULL,
    description TEXT,
    completed   BOOLEAN NOT NULL DEFAULT false,
    created_at  BIGINT  NOT NULL,
    due_date    BIGINT
);
`

var taskColumns = []string{"position", "id", "title", "description", "completed", "created_at", "due_date"}

// DB is the database interface used by Postgres. *pgxpool.Pool satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Postgres stores the task list in a PostgreSQL table.
type Postgres struct {
	db DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres returns a store using db. Call Migrate before first use.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects a pool to dsn and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("store: connect: %w", err)
	}
	s := NewPostgres(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// Migrate creates the tasks table if it does not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Load implements Store.
func (s *Postgres) Load(ctx context.Context) ([]models.Task, error) {
	const query = `
		SELECT id, title, description, completed, created_at, due_date
		FROM tasks
		ORDER BY position`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.DueDate); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}
	return tasks, nil
}

// Save implements Store. The table is replaced inside one transaction.
func (s *Postgres) Save(ctx context.Context, tasks []models.Task) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM tasks"); err != nil {
		return fmt.Errorf("store: clear tasks: %w", err)
	}

	rows := make([][]any, len(tasks))
	for i, t := range tasks {
		rows[i] = []any{i, t.ID, t.Title, t.Description, t.Completed, t.CreatedAt, t.DueDate}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"tasks"}, taskColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("store: copy tasks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
