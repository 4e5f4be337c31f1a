package enrollment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"faceattend/internal/apperr"
	"faceattend/internal/identity"
	"faceattend/internal/metrics"
	"faceattend/internal/recognition"
)

// Recognizer matches a probe image against all enrolled subjects.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (recognition.Outcome, error)
}

// SampleCommitter durably stores and, on rollback, removes enrollment samples.
type SampleCommitter interface {
	EnrollCommit(ctx context.Context, subjectID int64, displayName string, image []byte) (string, error)
	DiscardSample(ctx context.Context, location string) error
}

// Retrainer triggers a rebuild of the matcher model.
type Retrainer interface {
	Retrain(ctx context.Context) error
}

// Mirror receives a best-effort copy of committed samples.
type Mirror interface {
	MirrorSample(ctx context.Context, subjectID int64, location string, image []byte) error
}

type userStore interface {
	FindByID(ctx context.Context, id int64) (*identity.User, error)
	MarkEnrolled(ctx context.Context, id int64) error
}

// Result reports what an enrollment actually achieved.
type Result struct {
	UserID         int64 `json:"userId"`
	ColdStart      bool  `json:"coldStart"`
	SavedToDataset bool  `json:"savedToDataset"`
	Retrained      bool  `json:"retrained"`
	// Partial is set when verification passed but the sample could not be
	// saved, so the training set did not grow.
	Partial bool `json:"partial"`
}

// Coordinator drives cold-start and steady-state enrollment.
type Coordinator struct {
	users      userStore
	recognizer Recognizer
	samples    SampleCommitter
	retrainer  Retrainer
	mirror     Mirror
	locks      *subjectLocks
	logger     *zap.Logger
	metrics    *metrics.Recorder
}

// NewCoordinator wires the coordinator. mirror may be nil.
func NewCoordinator(users userStore, recognizer Recognizer, samples SampleCommitter, retrainer Retrainer, mirror Mirror, logger *zap.Logger, rec *metrics.Recorder) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		users:      users,
		recognizer: recognizer,
		samples:    samples,
		retrainer:  retrainer,
		mirror:     mirror,
		locks:      newSubjectLocks(),
		logger:     logger,
		metrics:    rec,
	}
}

// Enroll adds image to subjectID's sample set on behalf of caller.
func (c *Coordinator) Enroll(ctx context.Context, caller identity.Caller, subjectID int64, image []byte) (Result, error) {
	if len(image) == 0 {
		return Result{}, apperr.Clone(apperr.ErrValidation, "image is required")
	}
	if !identity.IsAuthorizedSubject(caller, subjectID) {
		return Result{}, apperr.Clone(apperr.ErrSelfOnlyViolation, "students may only enroll their own face").
			WithDetails(map[string]any{"callerId": caller.ID, "subjectId": subjectID})
	}

	unlock := c.locks.lock(subjectID)
	defer unlock()

	user, err := c.users.FindByID(ctx, subjectID)
	if err != nil {
		return Result{}, apperr.Wrap(err, apperr.ErrInternal, "failed to load user")
	}
	if user == nil {
		return Result{}, apperr.Clone(apperr.ErrNotFound, "user not found")
	}

	if !user.Enrolled() {
		return c.coldStart(ctx, user, image)
	}
	return c.steadyState(ctx, user, image)
}

func (c *Coordinator) coldStart(ctx context.Context, user *identity.User, image []byte) (Result, error) {
	log := c.logger.With(zap.Int64("user_id", user.ID), zap.String("mode", "cold_start"))

	location, err := c.samples.EnrollCommit(ctx, user.ID, user.DisplayName, image)
	if err != nil {
		c.metrics.Enrollment("cold_start", "persist_failed")
		log.Error("sample persistence failed", zap.Error(err))
		return Result{}, apperr.Wrap(err, apperr.ErrEnrollmentPersist, "")
	}
	if err := c.users.MarkEnrolled(ctx, user.ID); err != nil {
		if rmErr := c.samples.DiscardSample(ctx, location); rmErr != nil {
			log.Error("rollback of orphaned sample failed", zap.String("sample", location), zap.Error(rmErr))
		}
		c.metrics.Enrollment("cold_start", "persist_failed")
		log.Error("enrollment status flip failed", zap.Error(err))
		return Result{}, apperr.Wrap(err, apperr.ErrEnrollmentPersist, "")
	}

	res := Result{UserID: user.ID, ColdStart: true, SavedToDataset: true}
	res.Retrained = c.afterCommit(ctx, log, user.ID, location, image)
	c.metrics.Enrollment("cold_start", "ok")
	log.Info("face enrolled", zap.String("sample", location))
	return res, nil
}

func (c *Coordinator) steadyState(ctx context.Context, user *identity.User, image []byte) (Result, error) {
	log := c.logger.With(zap.Int64("user_id", user.ID), zap.String("mode", "steady"))

	outcome, err := c.recognizer.Recognize(ctx, image)
	if err != nil {
		c.metrics.Enrollment("steady", "gateway_fault")
		log.Error("verification recognition failed", zap.Error(err))
		return Result{}, apperr.Wrap(err, apperr.ErrRecognitionFailure, "")
	}
	if !outcome.Matched || outcome.SubjectID != user.ID {
		c.metrics.Enrollment("steady", "rejected")
		details := map[string]any{"claimedId": user.ID, "recognized": outcome.Matched}
		if outcome.Matched {
			details["matchedId"] = outcome.SubjectID
		}
		log.Warn("enrollment verification failed", zap.Bool("recognized", outcome.Matched), zap.Int64("matched_id", outcome.SubjectID))
		return Result{}, apperr.ErrEnrollmentVerificationFailed.WithDetails(details)
	}

	location, err := c.samples.EnrollCommit(ctx, user.ID, user.DisplayName, image)
	if err != nil {
		c.metrics.Enrollment("steady", "partial")
		log.Warn("sample not saved, training set unchanged", zap.Error(err))
		return Result{UserID: user.ID, Partial: true}, nil
	}

	res := Result{UserID: user.ID, SavedToDataset: true}
	res.Retrained = c.afterCommit(ctx, log, user.ID, location, image)
	c.metrics.Enrollment("steady", "ok")
	log.Info("face sample added", zap.String("sample", location))
	return res, nil
}

// afterCommit runs the best-effort steps that follow a durable commit. Their
// failures are logged and never fail the enrollment.
func (c *Coordinator) afterCommit(ctx context.Context, log *zap.Logger, subjectID int64, location string, image []byte) bool {
	if c.mirror != nil {
		if err := c.mirror.MirrorSample(ctx, subjectID, location, image); err != nil {
			log.Warn("sample mirror failed", zap.Error(err))
		}
	}
	if c.retrainer == nil {
		return false
	}
	if err := c.retrainer.Retrain(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("retrain not triggered, request cancelled")
		} else {
			log.Warn("retrain failed", zap.Error(err))
		}
		return false
	}
	return true
}
