package enrollment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"faceattend/internal/cloudinary"
	"faceattend/internal/queue"
)

// Publisher enqueues jobs.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Consumer streams queued jobs.
type Consumer interface {
	Consume(ctx context.Context) (<-chan queue.Message, error)
}

// RetrainQueueKey is the Redis list shared by the API and the worker.
const RetrainQueueKey = "faceattend:retrain"

// RetrainJob is the body of a retrain message.
type RetrainJob struct {
	RequestedAt time.Time `json:"requestedAt"`
}

// QueueRetrainer hands retraining to a worker so the request never waits for
// the trainer.
type QueueRetrainer struct {
	queue Publisher
}

// NewQueueRetrainer creates a dispatcher over q.
func NewQueueRetrainer(q Publisher) *QueueRetrainer {
	return &QueueRetrainer{queue: q}
}

// Retrain enqueues a retrain job. A full bounded queue already holds a pending
// retrain, which will pick up the new sample too.
func (r *QueueRetrainer) Retrain(ctx context.Context) error {
	msg, err := queue.NewMessage(queue.TypeRetrain, RetrainJob{RequestedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := r.queue.Publish(ctx, msg); err != nil && !errors.Is(err, queue.ErrFull) {
		return err
	}
	return nil
}

// Worker consumes retrain jobs and runs the trainer, folding every job queued
// while a run is pending into a single run.
type Worker struct {
	trainer Retrainer
	logger  *zap.Logger
	// settle is how long to wait for more jobs before training.
	settle time.Duration
}

// NewWorker creates a worker.
func NewWorker(trainer Retrainer, logger *zap.Logger, settle time.Duration) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{trainer: trainer, logger: logger, settle: settle}
}

// Run processes jobs until ctx is done or the stream closes.
func (w *Worker) Run(ctx context.Context, c Consumer) error {
	jobs, err := c.Consume(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("retrain worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retrain worker stopped")
			return nil
		case msg, ok := <-jobs:
			if !ok {
				w.logger.Info("retrain worker stopped")
				return nil
			}
			if msg.Type != queue.TypeRetrain {
				w.logger.Warn("ignoring unexpected job", zap.String("type", msg.Type), zap.String("id", msg.ID))
				continue
			}
			coalesced, open := w.drain(ctx, jobs)
			w.train(ctx, 1+coalesced)
			if !open {
				return nil
			}
		}
	}
}

// drain absorbs jobs arriving within the settle window.
func (w *Worker) drain(ctx context.Context, jobs <-chan queue.Message) (int, bool) {
	n := 0
	timer := time.NewTimer(w.settle)
	defer timer.Stop()
	for {
		select {
		case msg, ok := <-jobs:
			if !ok {
				return n, false
			}
			if msg.Type == queue.TypeRetrain {
				n++
			}
		case <-timer.C:
			return n, true
		case <-ctx.Done():
			return n, true
		}
	}
}

func (w *Worker) train(ctx context.Context, jobs int) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := w.trainer.Retrain(ctx); err != nil {
		w.logger.Error("retrain failed", zap.Int("jobs", jobs), zap.Error(err))
		return
	}
	w.logger.Info("retrain finished", zap.Int("jobs", jobs), zap.Duration("took", time.Since(start)))
}

// CloudinaryMirror adapts the Cloudinary client to Mirror.
type CloudinaryMirror struct {
	Client *cloudinary.Client
}

func (m CloudinaryMirror) MirrorSample(ctx context.Context, subjectID int64, location string, image []byte) error {
	_, err := m.Client.UploadSample(ctx, subjectID, location, image)
	return err
}
