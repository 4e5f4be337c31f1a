package recognition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"faceattend/internal/metrics"
)

var (
	// ErrGatewayUnavailable covers backends that could not be reached or that
	// ran and failed.
	ErrGatewayUnavailable = errors.New("recognition gateway unavailable")
	// ErrMalformedResponse means a backend ran but its output could not be
	// parsed.
	ErrMalformedResponse = errors.New("malformed recognizer response")
)

// Options tune a Gateway.
type Options struct {
	// Timeout bounds each operation. Zero leaves operations bounded only by
	// the caller's context.
	Timeout time.Duration
	// TempDir holds probe images while the recognizer reads them.
	TempDir string
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// Gateway adapts the external recognizer and trainer.
type Gateway struct {
	backends []Backend
	samples  *SampleStore
	timeout  time.Duration
	tempDir  string
	logger   *zap.Logger
	metrics  *metrics.Recorder
}

// NewGateway builds a gateway that tries backends in order.
func NewGateway(backends []Backend, samples *SampleStore, opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		backends: backends,
		samples:  samples,
		timeout:  opts.Timeout,
		tempDir:  opts.TempDir,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// Recognize matches image against all enrolled subjects. A clean negative
// result is returned as Outcome{Matched: false} with a nil error; every
// backend fault is an error wrapping ErrGatewayUnavailable or
// ErrMalformedResponse.
func (g *Gateway) Recognize(ctx context.Context, image []byte) (Outcome, error) {
	if len(image) == 0 {
		return Outcome{}, errors.New("empty image")
	}
	ext := mimetype.Detect(image).Extension()
	if ext == "" {
		ext = ".jpg"
	}
	probe, err := os.CreateTemp(g.tempDir, "probe-*"+ext)
	if err != nil {
		return Outcome{}, fmt.Errorf("stage probe image: %w", err)
	}
	defer os.Remove(probe.Name())
	if _, err := probe.Write(image); err != nil {
		probe.Close()
		return Outcome{}, fmt.Errorf("stage probe image: %w", err)
	}
	if err := probe.Close(); err != nil {
		return Outcome{}, fmt.Errorf("stage probe image: %w", err)
	}

	out, backend, err := g.run(ctx, Request{Op: OpRecognize, ImagePath: probe.Name(), Image: image, Filename: "probe" + ext})
	if err != nil {
		return Outcome{}, err
	}
	outcome, err := parseOutcome(out)
	if err != nil {
		g.metrics.GatewayInvocation(backend, string(OpRecognize), "malformed")
		g.logger.Error("recognizer output unparsable", zap.String("backend", backend), zap.ByteString("output", truncate(out, 512)))
		return Outcome{}, err
	}
	return outcome, nil
}

// Retrain rebuilds the matcher model from the current sample set.
func (g *Gateway) Retrain(ctx context.Context) error {
	_, _, err := g.run(ctx, Request{Op: OpTrain})
	return err
}

// EnrollCommit durably stores a sample for subjectID and returns its location.
func (g *Gateway) EnrollCommit(_ context.Context, subjectID int64, displayName string, image []byte) (string, error) {
	if g.samples == nil {
		return "", errors.New("sample store not configured")
	}
	return g.samples.Save(subjectID, displayName, image)
}

// DiscardSample removes a sample written by EnrollCommit.
func (g *Gateway) DiscardSample(_ context.Context, location string) error {
	if g.samples == nil {
		return nil
	}
	return g.samples.Remove(location)
}

func (g *Gateway) run(ctx context.Context, req Request) ([]byte, string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var lastStart error
	for _, b := range g.backends {
		out, err := b.Run(ctx, req)
		if err == nil {
			g.metrics.GatewayInvocation(b.Name(), string(req.Op), "ok")
			return out, b.Name(), nil
		}
		var startErr *StartError
		if errors.As(err, &startErr) && ctx.Err() == nil {
			g.metrics.GatewayInvocation(b.Name(), string(req.Op), "start_failed")
			g.logger.Debug("gateway backend did not start, trying next", zap.String("backend", b.Name()), zap.Error(err))
			lastStart = err
			continue
		}
		g.metrics.GatewayInvocation(b.Name(), string(req.Op), "fault")
		g.logger.Warn("gateway backend failed", zap.String("backend", b.Name()), zap.String("op", string(req.Op)), zap.Error(err))
		return nil, b.Name(), fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if lastStart == nil {
		return nil, "", fmt.Errorf("%w: no backends configured", ErrGatewayUnavailable)
	}
	return nil, "", fmt.Errorf("%w: no backend could be started: %v", ErrGatewayUnavailable, lastStart)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
