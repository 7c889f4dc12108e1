package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Task struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskUpdate carries optional field changes; nil means "leave unchanged".
type TaskUpdate struct {
	Title       *string
	Description *string
	Completed   *bool
}

func (u TaskUpdate) empty() bool {
	return u.Title == nil && u.Description == nil && u.Completed == nil
}

func (s *Store) CreateTask(ctx context.Context, owner uuid.UUID, title, description string) (Task, error) {
	now := time.Now().UTC()
	t := Task{
		ID:          uuid.New(),
		UserID:      owner,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		t.ID.String(), owner.String(), t.Title, t.Description, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, owner, id uuid.UUID) (Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, description, completed, created_at, updated_at
		 FROM tasks WHERE id = ? AND user_id = ?`, id.String(), owner.String())
	return scanTask(row)
}

// ListTasks returns all tasks for the owner, oldest first.
func (s *Store) ListTasks(ctx context.Context, owner uuid.UUID) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, completed, created_at, updated_at
		 FROM tasks WHERE user_id = ? ORDER BY created_at, id`, owner.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		var t Task
		var id, uid string
		if err := rows.Scan(&id, &uid, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if t.UserID, err = uuid.Parse(uid); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask applies the provided fields and touches updated_at. The update
// is a single statement so concurrent writers cannot interleave a stale read.
// Applying an update identical to the current state is not an error.
func (s *Store) UpdateTask(ctx context.Context, owner, id uuid.UUID, upd TaskUpdate) (Task, error) {
	if upd.empty() {
		return s.GetTask(ctx, owner, id)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title = COALESCE(?, title),
		                  description = COALESCE(?, description),
		                  completed = COALESCE(?, completed),
		                  updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		upd.Title, upd.Description, upd.Completed, time.Now().UTC(), id.String(), owner.String())
	if err != nil {
		return Task{}, err
	}
	if err := requireRow(res); err != nil {
		return Task{}, err
	}
	return s.GetTask(ctx, owner, id)
}

// ToggleComplete flips the completion flag in place. This is a stateful
// toggle, not an idempotent set: calling it twice restores the original
// value, and concurrent toggles each land.
func (s *Store) ToggleComplete(ctx context.Context, owner, id uuid.UUID) (Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = NOT completed, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		time.Now().UTC(), id.String(), owner.String())
	if err != nil {
		return Task{}, err
	}
	if err := requireRow(res); err != nil {
		return Task{}, err
	}
	return s.GetTask(ctx, owner, id)
}

// requireRow maps a zero-row write onto ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask removes the task, reporting ErrNotFound when it does not exist
// for this owner.
func (s *Store) DeleteTask(ctx context.Context, owner, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`, id.String(), owner.String())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanTask(row *sql.Row) (Task, error) {
	var t Task
	var id, uid string
	err := row.Scan(&id, &uid, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return Task{}, err
	}
	if t.UserID, err = uuid.Parse(uid); err != nil {
		return Task{}, err
	}
	return t, nil
}
