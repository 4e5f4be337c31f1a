package attendance

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"faceattend/internal/apperr"
	"faceattend/internal/identity"
	"faceattend/internal/metrics"
	"faceattend/internal/realtime"
)

// EventNewTask is published to a class topic when a task is created.
const EventNewTask = "new-task"

type taskStore interface {
	CreateTask(ctx context.Context, t *Task) error
	FindTask(ctx context.Context, id int64) (*Task, error)
	ListTasksByTeacher(ctx context.Context, teacherID int64, classID *int64) ([]Task, error)
	ListTasksByClass(ctx context.Context, classID int64) ([]Task, error)
	CompletedTaskIDs(ctx context.Context, userID int64, taskIDs []int64) (map[int64]bool, error)
	CountStudents(ctx context.Context, classID int64) (int, error)
	TaskRecords(ctx context.Context, taskID int64) ([]RecordDetail, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id int64) (*identity.User, error)
}

// Notifier fans task events out to subscribers.
type Notifier interface {
	Publish(ctx context.Context, topic string, evt realtime.Event) error
}

// maxDurationMinutes is the longest window whose length fits in a time.Duration.
const maxDurationMinutes = float64(math.MaxInt64 / int64(time.Minute))

// Options tune the engine.
type Options struct {
	MinDuration time.Duration
	// Now is read at each decision point. Defaults to time.Now.
	Now func() time.Time
}

// CreateTaskRequest asks for a new task. Duration is in minutes; fractions
// are dropped. ClassID defaults to the teacher's class.
type CreateTaskRequest struct {
	Duration float64 `json:"duration" validate:"required,gt=0"`
	ClassID  *int64  `json:"classId" validate:"omitempty,gt=0"`
	Name     string  `json:"name" validate:"max=100"`
}

// Validity is the verdict on using a task for one check-in.
type Validity struct {
	Valid  bool
	Reason string
	Task   *Task
}

// Stats summarises attendance for one task.
type Stats struct {
	Task            TaskView       `json:"task"`
	TotalStudents   int            `json:"totalStudents"`
	CheckedStudents int            `json:"checkedStudents"`
	AttendanceRate  string         `json:"attendanceRate"`
	Details         []RecordDetail `json:"details"`
}

// Engine owns task creation, window checks and status derivation.
type Engine struct {
	tasks       taskStore
	users       userLookup
	notifier    Notifier
	minDuration time.Duration
	now         func() time.Time
	logger      *zap.Logger
	metrics     *metrics.Recorder
}

// NewEngine creates an engine. notifier may be nil.
func NewEngine(tasks taskStore, users userLookup, notifier Notifier, opts Options, logger *zap.Logger, rec *metrics.Recorder) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MinDuration <= 0 {
		opts.MinDuration = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		tasks:       tasks,
		users:       users,
		notifier:    notifier,
		minDuration: opts.MinDuration,
		now:         opts.Now,
		logger:      logger,
		metrics:     rec,
	}
}

// Create opens a task window starting now. Only a teacher of the target class
// may create it, and the end is always start plus duration.
func (e *Engine) Create(ctx context.Context, caller identity.Caller, req CreateTaskRequest) (*TaskView, error) {
	if caller.Role != identity.RoleTeacher {
		return nil, apperr.ErrNotTeacher
	}
	if math.IsNaN(req.Duration) || math.IsInf(req.Duration, 0) {
		return nil, apperr.Clone(apperr.ErrValidation, "duration must be a number of minutes")
	}
	if math.Floor(req.Duration) > maxDurationMinutes {
		return nil, apperr.Clone(apperr.ErrValidation, "duration is too long").
			WithDetails(map[string]any{"maxMinutes": int64(maxDurationMinutes)})
	}
	duration := time.Duration(math.Floor(req.Duration)) * time.Minute
	if duration < e.minDuration {
		return nil, apperr.Clone(apperr.ErrDurationTooShort, fmt.Sprintf("duration must be at least %s", e.minDuration)).
			WithDetails(map[string]any{"minMinutes": e.minDuration.Minutes()})
	}

	teacher, err := e.users.FindByID(ctx, caller.ID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to load teacher")
	}
	if teacher == nil || teacher.Role != identity.RoleTeacher {
		return nil, apperr.ErrNotTeacher
	}
	if teacher.ClassID == nil {
		return nil, apperr.Clone(apperr.ErrClassMismatch, "teacher has no class")
	}
	classID := *teacher.ClassID
	if req.ClassID != nil && *req.ClassID != classID {
		return nil, apperr.ErrClassMismatch.WithDetails(map[string]any{"teacherClassId": classID, "requestedClassId": *req.ClassID})
	}

	start := e.now().Truncate(time.Second)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Attendance " + start.Format("2006-01-02 15:04")
	}
	task := Task{
		Name:        name,
		TeacherID:   teacher.ID,
		TeacherName: &teacher.DisplayName,
		ClassID:     classID,
		ClassName:   teacher.ClassName,
		StartTime:   start,
		EndTime:     start.Add(duration),
	}
	if err := e.tasks.CreateTask(ctx, &task); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrPersistence, "failed to create task")
	}
	e.metrics.TaskCreated()
	e.logger.Info("attendance task created",
		zap.Int64("task_id", task.ID), zap.Int64("class_id", classID), zap.Duration("duration", duration))

	view := TaskView{Task: task, Status: StatusActive}
	e.announce(ctx, view)
	return &view, nil
}

func (e *Engine) announce(ctx context.Context, view TaskView) {
	if e.notifier == nil {
		return
	}
	topic := realtime.ClassTopic(view.ClassID)
	if err := e.notifier.Publish(ctx, topic, realtime.NewEvent(EventNewTask, view)); err != nil {
		e.logger.Warn("task notification failed", zap.String("topic", topic), zap.Int64("task_id", view.ID), zap.Error(err))
	}
}

// List returns the tasks visible to caller, newest first. Teachers see their
// own tasks, optionally filtered by class; students see their class's tasks.
func (e *Engine) List(ctx context.Context, caller identity.Caller, classFilter *int64) ([]TaskView, error) {
	var (
		tasks []Task
		err   error
	)
	switch caller.Role {
	case identity.RoleTeacher:
		tasks, err = e.tasks.ListTasksByTeacher(ctx, caller.ID, classFilter)
	case identity.RoleStudent:
		if caller.ClassID == nil {
			return []TaskView{}, nil
		}
		tasks, err = e.tasks.ListTasksByClass(ctx, *caller.ClassID)
	default:
		return nil, apperr.ErrForbidden
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to list tasks")
	}

	completed := map[int64]bool{}
	if caller.Role == identity.RoleStudent && len(tasks) > 0 {
		ids := make([]int64, len(tasks))
		for i, t := range tasks {
			ids[i] = t.ID
		}
		completed, err = e.tasks.CompletedTaskIDs(ctx, caller.ID, ids)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to load check-ins")
		}
	}

	now := e.now()
	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = TaskView{Task: t, Status: DeriveStatus(caller.Role, t, now, completed[t.ID])}
	}
	return views, nil
}

// CheckValidity decides whether taskID may be used for a check-in by a member
// of classID. The clock is read here, not at request start.
func (e *Engine) CheckValidity(ctx context.Context, taskID int64, classID *int64) (Validity, error) {
	task, err := e.tasks.FindTask(ctx, taskID)
	if err != nil {
		return Validity{}, err
	}
	if task == nil {
		return Validity{Reason: "task not found"}, nil
	}
	if classID == nil || *classID != task.ClassID {
		return Validity{Reason: "task belongs to another class", Task: task}, nil
	}
	now := e.now()
	if now.Before(task.StartTime) {
		return Validity{Reason: "task has not started", Task: task}, nil
	}
	if task.Expired(now) {
		return Validity{Reason: "task has ended", Task: task}, nil
	}
	return Validity{Valid: true, Task: task}, nil
}

// Stats reports attendance for a task of the calling teacher's class.
func (e *Engine) Stats(ctx context.Context, caller identity.Caller, taskID int64) (*Stats, error) {
	if caller.Role != identity.RoleTeacher {
		return nil, apperr.ErrNotTeacher
	}
	task, err := e.tasks.FindTask(ctx, taskID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to load task")
	}
	if task == nil {
		return nil, apperr.Clone(apperr.ErrNotFound, "task not found")
	}
	teacher, err := e.users.FindByID(ctx, caller.ID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to load teacher")
	}
	if teacher == nil || !teacher.InClass(task.ClassID) {
		return nil, apperr.ErrClassMismatch
	}

	total, err := e.tasks.CountStudents(ctx, task.ClassID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to count students")
	}
	details, err := e.tasks.TaskRecords(ctx, task.ID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to load records")
	}
	checked := map[int64]struct{}{}
	for _, d := range details {
		if d.Status == RecordSuccess {
			checked[d.UserID] = struct{}{}
		}
	}

	return &Stats{
		Task:            TaskView{Task: *task, Status: DeriveStatus(identity.RoleTeacher, *task, e.now(), false)},
		TotalStudents:   total,
		CheckedStudents: len(checked),
		AttendanceRate:  attendanceRate(len(checked), total),
		Details:         details,
	}, nil
}

func attendanceRate(checked, total int) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(checked)/float64(total)*100)
}
