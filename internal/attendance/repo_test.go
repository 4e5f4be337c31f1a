package attendance

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

var taskRowColumns = []string{"id", "name", "teacher_id", "teacher_name", "class_id", "class_name", "start_time", "end_time", "created_at"}

func TestCreateTask(t *testing.T) {
	repo, mock := newMock(t)
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	task := &Task{Name: "Morning", TeacherID: 1, ClassID: 10, StartTime: start, EndTime: start.Add(5 * time.Minute)}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_tasks (name, teacher_id, class_id, start_time, end_time)")).
		WithArgs("Morning", int64(1), int64(10), start, start.Add(5*time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, start))

	require.NoError(t, repo.CreateTask(context.Background(), task))
	assert.Equal(t, int64(3), task.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTasksByTeacherWithClassFilter(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()
	classID := int64(10)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.teacher_id = $1 AND t.class_id = $2 ORDER BY t.created_at DESC, t.id DESC")).
		WithArgs(int64(1), int64(10)).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow(2, "B", 1, "Ms. Wang", 10, "Class 10", now, now.Add(time.Minute), now).
			AddRow(1, "A", 1, "Ms. Wang", 10, "Class 10", now, now.Add(time.Minute), now.Add(-time.Hour)))

	tasks, err := repo.ListTasksByTeacher(context.Background(), 1, &classID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Class 10", *tasks[0].ClassName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindTaskMissing(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.id = $1")).WithArgs(int64(5)).WillReturnRows(sqlmock.NewRows(taskRowColumns))

	task, err := repo.FindTask(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestCompletedTaskIDsExpandsIn(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT task_id FROM attendance_records WHERE user_id = ? AND status = ? AND task_id IN (?, ?, ?)")).
		WithArgs(int64(7), RecordSuccess, int64(1), int64(2), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"task_id"}).AddRow(2))

	done, err := repo.CompletedTaskIDs(context.Background(), 7, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{2: true}, done)

	done, err = repo.CompletedTaskIDs(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Empty(t, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecordDefaultsToSuccess(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records (user_id, task_id, check_time, status)")).
		WithArgs(int64(7), nil, at, RecordSuccess).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(99))

	rec := &Record{UserID: 7, CheckTime: at}
	require.NoError(t, repo.InsertRecord(context.Background(), rec))
	assert.Equal(t, int64(99), rec.ID)
	assert.Equal(t, RecordSuccess, rec.Status)
}

func TestTaskRecordsAndCount(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE class_id = $1 AND role = 'student'")).
		WithArgs(int64(10)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY r.check_time DESC, r.id DESC")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "account", "display_name", "check_time", "status"}).
			AddRow(2, 7, "stu007", "Amy", now, "success").
			AddRow(1, 8, nil, nil, now.Add(-time.Minute), "success"))

	n, err := repo.CountStudents(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	details, err := repo.TaskRecords(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "Amy", *details[0].DisplayName)
	assert.Nil(t, details[1].Account)
}
