package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hexaflow/taskpilot/internal/domain"
	"github.com/hexaflow/taskpilot/internal/domain/task"
)

// Store implements keyed persistent task storage on sqlite. Every operation
// is a self-contained transaction, so the store is safe to share across
// concurrent runs.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const taskColumns = `id, title, description, priority, status, due_date, created_at, updated_at, completed_at`

// CreateTask inserts a new task with a fresh id and stamped timestamps.
// Omitted status and priority default to pending and medium.
func (s *Store) CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	now := time.Now().UTC()
	t := task.Task{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      req.Status,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	if t.Status == task.StatusCompleted {
		t.CompletedAt = &now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Priority, t.Status, t.DueDate, t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &t, nil
}

// GetTask returns the task with the given id.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns tasks matching the filter, newest created first.
// Filter fields combine with logical AND; zero values match everything.
func (s *Store) ListTasks(ctx context.Context, f task.Filter) ([]task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, f.Priority)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// UpdateTask applies the supplied fields of the patch to an existing task and
// returns the merged record. Transitioning into completed stamps CompletedAt;
// transitioning out of completed clears it. UpdatedAt always advances.
func (s *Store) UpdateTask(ctx context.Context, id string, patch task.UpdatePatch) (*task.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("update task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}

	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.DueDate != nil {
		t.DueDate = patch.DueDate
	}
	now := time.Now().UTC()
	if patch.Status != nil && *patch.Status != t.Status {
		was := t.Status
		t.Status = *patch.Status
		switch {
		case t.Status == task.StatusCompleted:
			t.CompletedAt = &now
		case was == task.StatusCompleted:
			t.CompletedAt = nil
		}
	}
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Millisecond)
	}
	t.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, priority = ?, status = ?, due_date = ?, updated_at = ?, completed_at = ?
		 WHERE id = ?`,
		t.Title, t.Description, t.Priority, t.Status, t.DueDate, t.UpdatedAt, t.CompletedAt, t.ID)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	return t, nil
}

// DeleteTask removes the task with the given id and returns the deleted record.
func (s *Store) DeleteTask(ctx context.Context, id string) (*task.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("delete task %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("delete task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("delete task %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete task %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete task %s: %w", id, err)
	}
	return t, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*task.Task, error) {
	var (
		t           task.Task
		dueDate     sql.NullTime
		completedAt sql.NullTime
	)
	err := sc.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.Status,
		&dueDate, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if dueDate.Valid {
		d := dueDate.Time
		t.DueDate = &d
	}
	if completedAt.Valid {
		c := completedAt.Time
		t.CompletedAt = &c
	}
	return &t, nil
}
