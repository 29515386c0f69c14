package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/icsys/backend/internal/domain/task"
)

// taskRepository 任务 SQLite 仓储实现
type taskRepository struct {
	db *sql.DB
}

// NewTaskRepository 创建任务仓储实例
func NewTaskRepository(db *sql.DB) task.Repository {
	return &taskRepository{db: db}
}

// Create 新建任务行
func (r *taskRepository) Create(t *task.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UnixMilli()
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = task.StatusPending
	}

	_, err := r.db.Exec(
		`INSERT INTO tasks (id, session_id, type, status, priority, input, output, progress, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, t.Type, string(t.Status), t.Priority, t.Input, t.Output, t.Progress, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// UpdateStatus 更新状态与进度
func (r *taskRepository) UpdateStatus(id string, status task.Status, progress int) error {
	_, err := r.db.Exec(
		`UPDATE tasks SET status = ?, progress = ?, updated_at = ? WHERE id = ?`,
		string(status), progress, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// FindByID 按 id 查找任务，不存在返回 (nil, nil)
func (r *taskRepository) FindByID(id string) (*task.Task, error) {
	row := r.db.QueryRow(
		`SELECT id, session_id, type, status, priority, input, output, progress, created_at, updated_at
		 FROM tasks WHERE id = ?`, id,
	)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return t, nil
}

// FindBySessionAndStatus 按会话与状态过滤，时间倒序
func (r *taskRepository) FindBySessionAndStatus(sessionID string, statuses []task.Status, limit int) ([]*task.Task, error) {
	if limit <= 0 {
		limit = 20
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+2)
	args = append(args, sessionID)
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT id, session_id, type, status, priority, input, output, progress, created_at, updated_at
		 FROM tasks WHERE session_id = ? AND status IN (%s) ORDER BY created_at DESC LIMIT ?`,
		strings.Join(placeholders, ", "),
	)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// FindRecentByUser 查询用户最近任务（跨会话）
func (r *taskRepository) FindRecentByUser(userID string, limit int) ([]*task.Task, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(
		`SELECT id, session_id, type, status, priority, input, output, progress, created_at, updated_at
		 FROM tasks WHERE session_id IN (SELECT id FROM sessions WHERE user_id = ?)
		 ORDER BY created_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var status string
	var output sql.NullString
	if err := row.Scan(&t.ID, &t.SessionID, &t.Type, &status, &t.Priority, &t.Input, &output, &t.Progress, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	t.Output = output.String
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
