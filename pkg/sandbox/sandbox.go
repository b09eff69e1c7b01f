// Package sandbox runs generated code in a separate interpreter process with a
// hard wall-clock timeout.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultInterpreter = "python3"
	maxOutputBytes     = 1 << 20
)

type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Success reports whether the process exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Executor runs a code snippet. Failures of the code itself are reported in
// the Result, the error is reserved for infrastructure problems.
type Executor interface {
	Execute(ctx context.Context, code string, timeout time.Duration) (Result, error)
}

// ProcessExecutor writes the code to a temporary file and runs Interpreter on it.
type ProcessExecutor struct {
	Interpreter string
	// Args are passed to the interpreter before the script path.
	Args []string
	// Extension is used for the temporary script file.
	Extension string
}

var _ Executor = &ProcessExecutor{}

func NewProcessExecutor(interpreter string) *ProcessExecutor {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	return &ProcessExecutor{Interpreter: interpreter, Extension: ".py"}
}

func (p *ProcessExecutor) Execute(ctx context.Context, code string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dir, err := os.MkdirTemp("", "agentres-run-")
	if err != nil {
		return Result{ExitCode: -1}, errors.Wrap(err, "could not create sandbox directory")
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()

	script := filepath.Join(dir, "snippet"+p.Extension)
	if err := os.WriteFile(script, []byte(code), 0o600); err != nil {
		return Result{ExitCode: -1}, errors.Wrap(err, "could not write script")
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, p.Args...), script)
	cmd := exec.CommandContext(execCtx, p.Interpreter, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedBuffer{buf: &stdout, max: maxOutputBytes}
	cmd.Stderr = &limitedBuffer{buf: &stderr, max: maxOutputBytes}

	start := time.Now()
	err = cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = -1
		res.Stderr = fmt.Sprintf("Code execution timed out after %d seconds", int(timeout.Seconds()))
		log.Warn().Dur("timeout", timeout).Msg("code execution timed out")
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
			log.Warn().Err(err).Str("interpreter", p.Interpreter).Msg("could not run interpreter")
		}
	}

	log.Debug().
		Int("exit_code", res.ExitCode).
		Dur("duration", res.Duration).
		Int("stdout_bytes", len(res.Stdout)).
		Msg("code executed")
	return res, nil
}

type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if remaining := l.max - l.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			l.buf.Write(p[:remaining])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}
