package attendance

import (
	"time"

	"faceattend/internal/identity"
)

// TaskStatus is derived on every read and never stored.
type TaskStatus string

const (
	StatusActive    TaskStatus = "active"
	StatusInactive  TaskStatus = "inactive"
	StatusCompleted TaskStatus = "completed"
)

// RecordSuccess is the only record status written by check-in.
const RecordSuccess = "success"

// Task is an attendance window for one class.
type Task struct {
	ID          int64     `db:"id" json:"taskId"`
	Name        string    `db:"name" json:"taskName"`
	TeacherID   int64     `db:"teacher_id" json:"teacherId"`
	TeacherName *string   `db:"teacher_name" json:"teacherName,omitempty"`
	ClassID     int64     `db:"class_id" json:"classId"`
	ClassName   *string   `db:"class_name" json:"className,omitempty"`
	StartTime   time.Time `db:"start_time" json:"startTime"`
	EndTime     time.Time `db:"end_time" json:"endTime"`
	CreatedAt   time.Time `db:"created_at" json:"createTime"`
}

// Expired reports whether now is past the end of the window.
func (t Task) Expired(now time.Time) bool {
	return now.After(t.EndTime)
}

// Open reports whether now lies within [StartTime, EndTime].
func (t Task) Open(now time.Time) bool {
	return !now.Before(t.StartTime) && !now.After(t.EndTime)
}

// TaskView is a task with its status for one viewer.
type TaskView struct {
	Task
	Status TaskStatus `json:"status"`
}

// Record is one append-only check-in row.
type Record struct {
	ID        int64     `db:"id" json:"recordId"`
	UserID    int64     `db:"user_id" json:"userId"`
	TaskID    *int64    `db:"task_id" json:"taskId"`
	CheckTime time.Time `db:"check_time" json:"checkTime"`
	Status    string    `db:"status" json:"status"`
}

// RecordDetail is a record joined with the user who checked in.
type RecordDetail struct {
	RecordID    int64     `db:"id" json:"recordId"`
	UserID      int64     `db:"user_id" json:"userId"`
	Account     *string   `db:"account" json:"userAccount"`
	DisplayName *string   `db:"display_name" json:"userName"`
	CheckTime   time.Time `db:"check_time" json:"checkTime"`
	Status      string    `db:"status" json:"status"`
}

// DeriveStatus computes a task's status for a viewer. Teachers see only
// active or inactive. Students see completed once they have a success record,
// even after the window closed.
func DeriveStatus(role identity.Role, task Task, now time.Time, checkedIn bool) TaskStatus {
	if role == identity.RoleStudent && checkedIn {
		return StatusCompleted
	}
	if task.Expired(now) {
		return StatusInactive
	}
	return StatusActive
}
