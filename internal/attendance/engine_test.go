package attendance

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/apperr"
	"faceattend/internal/identity"
	"faceattend/internal/realtime"
)

type memTasks struct {
	mu      sync.Mutex
	tasks   []Task
	records []RecordDetail
	done    map[int64]bool
	nextID  int64
	err     error
}

func (m *memTasks) CreateTask(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = t.StartTime.Add(time.Duration(m.nextID) * time.Millisecond)
	m.tasks = append(m.tasks, *t)
	return nil
}

func (m *memTasks) FindTask(_ context.Context, id int64) (*Task, error) {
	for _, t := range m.tasks {
		if t.ID == id {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memTasks) list(keep func(Task) bool) []Task {
	out := []Task{}
	for _, t := range m.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memTasks) ListTasksByTeacher(_ context.Context, teacherID int64, classID *int64) ([]Task, error) {
	return m.list(func(t Task) bool {
		return t.TeacherID == teacherID && (classID == nil || *classID == t.ClassID)
	}), nil
}

func (m *memTasks) ListTasksByClass(_ context.Context, classID int64) ([]Task, error) {
	return m.list(func(t Task) bool { return t.ClassID == classID }), nil
}

func (m *memTasks) CompletedTaskIDs(context.Context, int64, []int64) (map[int64]bool, error) {
	done := map[int64]bool{}
	for id, ok := range m.done {
		done[id] = ok
	}
	return done, nil
}

func (m *memTasks) CountStudents(context.Context, int64) (int, error) { return 3, nil }

func (m *memTasks) TaskRecords(context.Context, int64) ([]RecordDetail, error) {
	return m.records, nil
}

type memUsers map[int64]*identity.User

func (m memUsers) FindByID(_ context.Context, id int64) (*identity.User, error) {
	return m[id], nil
}

type recordingNotifier struct {
	topics []string
	events []realtime.Event
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, topic string, evt realtime.Event) error {
	n.topics = append(n.topics, topic)
	n.events = append(n.events, evt)
	return n.err
}

func int64p(v int64) *int64 { return &v }

var (
	t0          = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	teacherCall = identity.Caller{ID: 1, Role: identity.RoleTeacher, ClassID: int64p(10)}
	studentCall = identity.Caller{ID: 7, Role: identity.RoleStudent, ClassID: int64p(10)}
)

func newEngine(now *time.Time) (*Engine, *memTasks, *recordingNotifier) {
	tasks := &memTasks{}
	users := memUsers{
		1: {ID: 1, DisplayName: "Ms. Wang", Role: identity.RoleTeacher, ClassID: int64p(10)},
		2: {ID: 2, DisplayName: "Mr. Li", Role: identity.RoleTeacher, ClassID: int64p(20)},
		7: {ID: 7, Role: identity.RoleStudent, ClassID: int64p(10)},
	}
	n := &recordingNotifier{}
	e := NewEngine(tasks, users, n, Options{MinDuration: time.Minute, Now: func() time.Time { return *now }}, nil, nil)
	return e, tasks, n
}

func TestCreateDerivesEndFromDuration(t *testing.T) {
	now := t0.Add(450 * time.Millisecond)
	e, _, n := newEngine(&now)

	view, err := e.Create(context.Background(), teacherCall, CreateTaskRequest{Duration: 5.9})
	require.NoError(t, err)
	assert.Equal(t, t0, view.StartTime)
	assert.Equal(t, t0.Add(5*time.Minute), view.EndTime)
	assert.Equal(t, int64(10), view.ClassID)
	assert.Equal(t, StatusActive, view.Status)
	assert.Equal(t, "Attendance 2026-03-02 08:00", view.Name)

	require.Len(t, n.topics, 1)
	assert.Equal(t, "class-10", n.topics[0])
	assert.Equal(t, EventNewTask, n.events[0].Name)
}

func TestCreateRejections(t *testing.T) {
	now := t0
	e, tasks, _ := newEngine(&now)

	_, err := e.Create(context.Background(), teacherCall, CreateTaskRequest{Duration: 0.5})
	assert.ErrorIs(t, err, apperr.ErrDurationTooShort)

	_, err = e.Create(context.Background(), studentCall, CreateTaskRequest{Duration: 5})
	assert.ErrorIs(t, err, apperr.ErrNotTeacher)

	_, err = e.Create(context.Background(), teacherCall, CreateTaskRequest{Duration: 5, ClassID: int64p(20)})
	assert.ErrorIs(t, err, apperr.ErrClassMismatch)

	stale := identity.Caller{ID: 2, Role: identity.RoleTeacher, ClassID: int64p(10)}
	_, err = e.Create(context.Background(), stale, CreateTaskRequest{Duration: 5, ClassID: int64p(10)})
	assert.ErrorIs(t, err, apperr.ErrClassMismatch, "class membership is re-read from the store")

	assert.Empty(t, tasks.tasks)
}

func TestCreateRejectsOverlongDuration(t *testing.T) {
	now := t0
	e, tasks, _ := newEngine(&now)

	for _, minutes := range []float64{2e8, 3.1e8, math.MaxFloat64} {
		_, err := e.Create(context.Background(), teacherCall, CreateTaskRequest{Duration: minutes})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrValidation, "duration %v", minutes)
		assert.NotErrorIs(t, err, apperr.ErrDurationTooShort)
	}
	assert.Empty(t, tasks.tasks)

	view, err := e.Create(context.Background(), teacherCall, CreateTaskRequest{Duration: maxDurationMinutes})
	require.NoError(t, err)
	assert.Equal(t, time.Duration(maxDurationMinutes)*time.Minute, view.EndTime.Sub(view.StartTime))
}

func TestCreateSurvivesNotifierFailure(t *testing.T) {
	now := t0
	e, tasks, n := newEngine(&now)
	n.err = errors.New("redis down")

	_, err := e.Create(context.Background(), teacherCall, CreateTaskRequest{Duration: 5, Name: "Morning"})
	require.NoError(t, err)
	assert.Len(t, tasks.tasks, 1)
	assert.Equal(t, "Morning", tasks.tasks[0].Name)
}

func TestCreatePersistenceFailure(t *testing.T) {
	now := t0
	e, tasks, n := newEngine(&now)
	tasks.err = errors.New("insert failed")

	_, err := e.Create(context.Background(), teacherCall, CreateTaskRequest{Duration: 5})
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.Empty(t, n.topics)
}

func TestDeriveStatus(t *testing.T) {
	task := Task{StartTime: t0, EndTime: t0.Add(5 * time.Minute)}
	during := t0.Add(time.Minute)
	after := t0.Add(10 * time.Minute)

	assert.Equal(t, StatusActive, DeriveStatus(identity.RoleTeacher, task, during, true))
	assert.Equal(t, StatusInactive, DeriveStatus(identity.RoleTeacher, task, after, true))
	assert.Equal(t, StatusActive, DeriveStatus(identity.RoleStudent, task, during, false))
	assert.Equal(t, StatusInactive, DeriveStatus(identity.RoleStudent, task, after, false))
	assert.Equal(t, StatusCompleted, DeriveStatus(identity.RoleStudent, task, during, true))
	assert.Equal(t, StatusCompleted, DeriveStatus(identity.RoleStudent, task, after, true))
	assert.Equal(t, StatusActive, DeriveStatus(identity.RoleTeacher, task, task.EndTime, false), "end is inclusive")
}

func TestListNewestFirstWithDerivedStatus(t *testing.T) {
	now := t0
	e, tasks, _ := newEngine(&now)
	first, err := e.Create(context.Background(), teacherCall, CreateTaskRequest{Duration: 1})
	require.NoError(t, err)
	now = t0.Add(30 * time.Second)
	second, err := e.Create(context.Background(), teacherCall, CreateTaskRequest{Duration: 10})
	require.NoError(t, err)
	tasks.done = map[int64]bool{first.ID: true}

	now = t0.Add(3 * time.Minute)
	views, err := e.List(context.Background(), teacherCall, nil)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, second.ID, views[0].ID)
	assert.Equal(t, StatusActive, views[0].Status)
	assert.Equal(t, StatusInactive, views[1].Status)

	views, err = e.List(context.Background(), studentCall, nil)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, StatusActive, views[0].Status)
	assert.Equal(t, StatusCompleted, views[1].Status)

	views, err = e.List(context.Background(), identity.Caller{ID: 9, Role: identity.RoleStudent}, nil)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestCheckValidityWindow(t *testing.T) {
	now := t0
	e, _, _ := newEngine(&now)
	view, err := e.Create(context.Background(), teacherCall, CreateTaskRequest{Duration: 5})
	require.NoError(t, err)

	cases := []struct {
		name    string
		at      time.Time
		classID *int64
		taskID  int64
		valid   bool
	}{
		{name: "at start", at: t0, classID: int64p(10), taskID: view.ID, valid: true},
		{name: "inside", at: t0.Add(2 * time.Minute), classID: int64p(10), taskID: view.ID, valid: true},
		{name: "at end", at: t0.Add(5 * time.Minute), classID: int64p(10), taskID: view.ID, valid: true},
		{name: "after end", at: t0.Add(5*time.Minute + time.Nanosecond), classID: int64p(10), taskID: view.ID},
		{name: "before start", at: t0.Add(-time.Second), classID: int64p(10), taskID: view.ID},
		{name: "other class", at: t0.Add(time.Minute), classID: int64p(20), taskID: view.ID},
		{name: "no class", at: t0.Add(time.Minute), taskID: view.ID},
		{name: "unknown task", at: t0.Add(time.Minute), classID: int64p(10), taskID: 999},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now = tc.at
			v, err := e.CheckValidity(context.Background(), tc.taskID, tc.classID)
			require.NoError(t, err)
			assert.Equal(t, tc.valid, v.Valid, v.Reason)
		})
	}
}

func TestStats(t *testing.T) {
	now := t0
	e, tasks, _ := newEngine(&now)
	view, err := e.Create(context.Background(), teacherCall, CreateTaskRequest{Duration: 5})
	require.NoError(t, err)
	tasks.records = []RecordDetail{
		{RecordID: 3, UserID: 7, Status: RecordSuccess},
		{RecordID: 2, UserID: 7, Status: RecordSuccess},
		{RecordID: 1, UserID: 8, Status: RecordSuccess},
	}

	stats, err := e.Stats(context.Background(), teacherCall, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalStudents)
	assert.Equal(t, 2, stats.CheckedStudents)
	assert.Equal(t, "66.67%", stats.AttendanceRate)
	assert.Len(t, stats.Details, 3)

	_, err = e.Stats(context.Background(), identity.Caller{ID: 2, Role: identity.RoleTeacher}, view.ID)
	assert.ErrorIs(t, err, apperr.ErrClassMismatch)
	_, err = e.Stats(context.Background(), studentCall, view.ID)
	assert.ErrorIs(t, err, apperr.ErrNotTeacher)
	_, err = e.Stats(context.Background(), teacherCall, 404)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, "0%", attendanceRate(0, 0))
	assert.Equal(t, "100.00%", attendanceRate(4, 4))
}
