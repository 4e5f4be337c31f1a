package recognition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"faceattend/internal/config"
	"faceattend/internal/faceclient"
)

// Op names a gateway operation.
type Op string

const (
	OpRecognize Op = "recognize"
	OpTrain     Op = "train"
)

// Request is one invocation of a backend. ImagePath is set for exec backends,
// Image for network backends.
type Request struct {
	Op        Op
	ImagePath string
	Image     []byte
	Filename  string
}

// Backend is one candidate way of reaching the recognizer and trainer.
type Backend interface {
	Name() string
	Run(ctx context.Context, req Request) ([]byte, error)
}

// StartError means the backend could not be started at all. Only this class of
// fault moves the gateway on to the next candidate.
type StartError struct {
	Backend string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("%s: start failed: %v", e.Backend, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ExitError means the backend ran but reported a failure.
type ExitError struct {
	Backend string
	Err     error
	Detail  string
}

func (e *ExitError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Backend, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExecBackend runs the recognizer and trainer scripts through an interpreter.
type ExecBackend struct {
	Exe             string
	Args            []string
	RecognizeScript string
	TrainScript     string
	Dir             string
}

func (b ExecBackend) Name() string {
	return "exec:" + strings.TrimSpace(strings.Join(append([]string{b.Exe}, b.Args...), " "))
}

func (b ExecBackend) Run(ctx context.Context, req Request) ([]byte, error) {
	args := append([]string{}, b.Args...)
	switch req.Op {
	case OpRecognize:
		args = append(args, b.RecognizeScript, req.ImagePath)
	case OpTrain:
		args = append(args, b.TrainScript)
	default:
		return nil, fmt.Errorf("unsupported op %q", req.Op)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.Exe, args...)
	cmd.Dir = b.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		return nil, &StartError{Backend: b.Name(), Err: err}
	}
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &ExitError{Backend: b.Name(), Err: err, Detail: lastLine(stderr.String())}
	}
	return stdout.Bytes(), nil
}

// HTTPBackend reaches a face microservice.
type HTTPBackend struct {
	Client *faceclient.Client
}

func (b HTTPBackend) Name() string { return "http" }

func (b HTTPBackend) Run(ctx context.Context, req Request) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch req.Op {
	case OpRecognize:
		out, err = b.Client.Recognize(ctx, req.Image, req.Filename)
	case OpTrain:
		out, err = b.Client.Train(ctx)
	default:
		return nil, fmt.Errorf("unsupported op %q", req.Op)
	}
	if err == nil {
		return out, nil
	}
	var statusErr *faceclient.StatusError
	if errors.As(err, &statusErr) || ctx.Err() != nil {
		return nil, &ExitError{Backend: b.Name(), Err: err}
	}
	return nil, &StartError{Backend: b.Name(), Err: err}
}

// Candidates returns the backends in fallback order: an explicit interpreter,
// the Windows launcher, python, python3, then the face service when configured.
func Candidates(cfg config.GatewayConfig) []Backend {
	base := ExecBackend{RecognizeScript: cfg.RecognizeScript, TrainScript: cfg.TrainScript, Dir: cfg.WorkDir}
	var out []Backend
	add := func(exe string, args ...string) {
		b := base
		b.Exe = exe
		b.Args = args
		out = append(out, b)
	}
	if cfg.PythonExe != "" {
		add(cfg.PythonExe)
	}
	add("py", "-3")
	add("python")
	add("python3")
	if cfg.FaceServiceURL != "" {
		out = append(out, HTTPBackend{Client: faceclient.New(cfg.FaceServiceURL, 0)})
	}
	return out
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
