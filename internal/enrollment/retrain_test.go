package enrollment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/queue"
)

func TestQueueRetrainerToleratesFullQueue(t *testing.T) {
	q := queue.NewInMemory(1)
	r := NewQueueRetrainer(q)

	require.NoError(t, r.Retrain(context.Background()))
	require.NoError(t, r.Retrain(context.Background()))
}

func TestWorkerCoalescesBurst(t *testing.T) {
	q := queue.NewInMemory(8)
	r := NewQueueRetrainer(q)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Retrain(context.Background()))
	}

	trainer := &stubRetrainer{}
	w := NewWorker(trainer, nil, 50*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, w.Run(ctx, q))
	trainer.mu.Lock()
	defer trainer.mu.Unlock()
	assert.Equal(t, 1, trainer.calls)
}
