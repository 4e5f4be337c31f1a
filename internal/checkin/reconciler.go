package checkin

import (
	"context"
	"time"

	"go.uber.org/zap"

	"faceattend/internal/apperr"
	"faceattend/internal/attendance"
	"faceattend/internal/identity"
	"faceattend/internal/metrics"
	"faceattend/internal/recognition"
)

// Recognizer matches a probe image against all enrolled subjects.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (recognition.Outcome, error)
}

// TaskValidator decides whether a task accepts a check-in right now.
type TaskValidator interface {
	CheckValidity(ctx context.Context, taskID int64, classID *int64) (attendance.Validity, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id int64) (*identity.User, error)
}

type recordWriter interface {
	InsertRecord(ctx context.Context, rec *attendance.Record) error
}

// Result reports recognition and attendance separately; a recognized face
// does not imply a written record.
type Result struct {
	Recognized         bool    `json:"recognized"`
	AttendanceRecorded bool    `json:"attendanceRecorded"`
	UserID             int64   `json:"userId,omitempty"`
	Account            string  `json:"userAccount,omitempty"`
	DisplayName        string  `json:"userName,omitempty"`
	TaskID             *int64  `json:"taskId,omitempty"`
	RecordID           int64   `json:"recordId,omitempty"`
	Confidence         float64 `json:"confidence,omitempty"`
	Message            string  `json:"message"`
}

// Reconciler turns a recognition into an authorized attendance record.
type Reconciler struct {
	recognizer Recognizer
	users      userLookup
	tasks      TaskValidator
	records    recordWriter
	now        func() time.Time
	logger     *zap.Logger
	metrics    *metrics.Recorder
}

// NewReconciler wires a reconciler. now defaults to time.Now.
func NewReconciler(recognizer Recognizer, users userLookup, tasks TaskValidator, records recordWriter, now func() time.Time, logger *zap.Logger, rec *metrics.Recorder) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		recognizer: recognizer,
		users:      users,
		tasks:      tasks,
		records:    records,
		now:        now,
		logger:     logger,
		metrics:    rec,
	}
}

// CheckIn recognizes image and, when caller may act on the matched subject
// and the optional task is open for the subject's class, appends a record.
func (r *Reconciler) CheckIn(ctx context.Context, caller identity.Caller, image []byte, taskID *int64) (Result, error) {
	if len(image) == 0 {
		return Result{}, apperr.Clone(apperr.ErrValidation, "image is required")
	}
	log := r.logger.With(zap.Int64("caller_id", caller.ID), zap.String("caller_role", string(caller.Role)))

	outcome, err := r.recognizer.Recognize(ctx, image)
	if err != nil {
		r.metrics.CheckIn("gateway_fault")
		log.Error("recognition failed", zap.Error(err))
		return Result{}, apperr.Wrap(err, apperr.ErrRecognitionFailure, "")
	}
	if !outcome.Matched {
		r.metrics.CheckIn("no_match")
		return Result{Message: "face not recognized"}, nil
	}

	user, err := r.users.FindByID(ctx, outcome.SubjectID)
	if err != nil {
		return Result{}, apperr.Wrap(err, apperr.ErrInternal, "failed to load recognized user")
	}
	if user == nil {
		r.metrics.CheckIn("identity_inconsistency")
		log.Error("recognizer returned unknown subject", zap.Int64("subject_id", outcome.SubjectID))
		return Result{}, apperr.ErrIdentityInconsistency.WithDetails(map[string]any{"subjectId": outcome.SubjectID})
	}

	if !identity.IsAuthorizedSubject(caller, user.ID) {
		r.metrics.CheckIn("self_only_violation")
		log.Warn("check-in for another subject rejected", zap.Int64("matched_id", user.ID))
		return Result{}, apperr.ErrSelfOnlyViolation.WithDetails(map[string]any{"callerId": caller.ID, "matchedId": user.ID})
	}

	res := Result{
		Recognized:  true,
		UserID:      user.ID,
		Account:     user.Account,
		DisplayName: user.DisplayName,
		TaskID:      taskID,
		Confidence:  outcome.Confidence,
	}

	if taskID != nil {
		validity, err := r.tasks.CheckValidity(ctx, *taskID, user.ClassID)
		if err != nil {
			r.metrics.CheckIn("task_lookup_failed")
			log.Error("task lookup failed, recognition kept", zap.Int64("task_id", *taskID), zap.Error(err))
			res.Message = "recognized, attendance not recorded"
			return res, nil
		}
		if !validity.Valid {
			r.metrics.CheckIn("task_invalid")
			res.Message = "recognized, " + validity.Reason
			return res, nil
		}
	}

	rec := &attendance.Record{UserID: user.ID, TaskID: taskID, CheckTime: r.now(), Status: attendance.RecordSuccess}
	if err := r.records.InsertRecord(ctx, rec); err != nil {
		r.metrics.CheckIn("record_failed")
		log.Error("attendance record write failed", zap.Int64("user_id", user.ID), zap.Error(err))
		res.Message = "recognized, attendance not recorded"
		return res, nil
	}

	r.metrics.CheckIn("recorded")
	log.Info("attendance recorded", zap.Int64("user_id", user.ID), zap.Int64("record_id", rec.ID))
	res.AttendanceRecorded = true
	res.RecordID = rec.ID
	res.Message = "attendance recorded"
	return res, nil
}
