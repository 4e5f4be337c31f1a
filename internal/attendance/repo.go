package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const taskColumns = `t.id, t.name, t.teacher_id, u.display_name AS teacher_name, t.class_id, c.name AS class_name, t.start_time, t.end_time, t.created_at`

const taskFrom = ` FROM attendance_tasks t
	LEFT JOIN class_groups c ON c.id = t.class_id
	LEFT JOIN users u ON u.id = t.teacher_id`

// Repository persists tasks and records in Postgres.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateTask inserts a task and fills in its id and creation time.
func (r *Repository) CreateTask(ctx context.Context, t *Task) error {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO attendance_tasks (name, teacher_id, class_id, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, t.Name, t.TeacherID, t.ClassID, t.StartTime, t.EndTime)
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// FindTask returns a task, or nil when none exists.
func (r *Repository) FindTask(ctx context.Context, id int64) (*Task, error) {
	var t Task
	if err := r.db.GetContext(ctx, &t, `SELECT `+taskColumns+taskFrom+` WHERE t.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &t, nil
}

// ListTasksByTeacher returns a teacher's tasks newest first, optionally for
// one class only.
func (r *Repository) ListTasksByTeacher(ctx context.Context, teacherID int64, classID *int64) ([]Task, error) {
	query := `SELECT ` + taskColumns + taskFrom + ` WHERE t.teacher_id = $1`
	args := []any{teacherID}
	if classID != nil {
		query += ` AND t.class_id = $2`
		args = append(args, *classID)
	}
	query += ` ORDER BY t.created_at DESC, t.id DESC`

	tasks := []Task{}
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("list teacher tasks: %w", err)
	}
	return tasks, nil
}

// ListTasksByClass returns a class's tasks newest first.
func (r *Repository) ListTasksByClass(ctx context.Context, classID int64) ([]Task, error) {
	tasks := []Task{}
	query := `SELECT ` + taskColumns + taskFrom + ` WHERE t.class_id = $1 ORDER BY t.created_at DESC, t.id DESC`
	if err := r.db.SelectContext(ctx, &tasks, query, classID); err != nil {
		return nil, fmt.Errorf("list class tasks: %w", err)
	}
	return tasks, nil
}

// CompletedTaskIDs returns which of taskIDs userID holds a success record for.
func (r *Repository) CompletedTaskIDs(ctx context.Context, userID int64, taskIDs []int64) (map[int64]bool, error) {
	done := make(map[int64]bool, len(taskIDs))
	if len(taskIDs) == 0 {
		return done, nil
	}
	query, args, err := sqlx.In(`SELECT DISTINCT task_id FROM attendance_records WHERE user_id = ? AND status = ? AND task_id IN (?)`,
		userID, RecordSuccess, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("completed tasks: %w", err)
	}
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("completed tasks: %w", err)
	}
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}

// InsertRecord appends a check-in record.
func (r *Repository) InsertRecord(ctx context.Context, rec *Record) error {
	if rec.Status == "" {
		rec.Status = RecordSuccess
	}
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO attendance_records (user_id, task_id, check_time, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, rec.UserID, rec.TaskID, rec.CheckTime, rec.Status)
	if err := row.Scan(&rec.ID); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// CountStudents returns the number of students in a class.
func (r *Repository) CountStudents(ctx context.Context, classID int64) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users WHERE class_id = $1 AND role = 'student'`, classID); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return n, nil
}

// TaskRecords returns the records of a task, newest check-in first.
func (r *Repository) TaskRecords(ctx context.Context, taskID int64) ([]RecordDetail, error) {
	details := []RecordDetail{}
	if err := r.db.SelectContext(ctx, &details, `
		SELECT r.id, r.user_id, u.account, u.display_name, r.check_time, r.status
		FROM attendance_records r
		LEFT JOIN users u ON u.id = r.user_id
		WHERE r.task_id = $1
		ORDER BY r.check_time DESC, r.id DESC
	`, taskID); err != nil {
		return nil, fmt.Errorf("task records: %w", err)
	}
	return details, nil
}
