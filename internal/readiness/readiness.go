// Package readiness polls dependencies until they answer or a retry budget
// runs out.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"todoe2e/pkg/logging"
)

var (
	// ErrTimeout is matched by every error returned when a wait exhausts its
	// retry budget.
	ErrTimeout = errors.New("readiness timeout")
	// ErrProcessExited is matched when the watched child exits before it
	// becomes ready.
	ErrProcessExited = errors.New("process exited before becoming ready")
)

// Probe checks a dependency once. A nil error means ready.
type Probe interface {
	Check(ctx context.Context) error
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) error

// Check calls f.
func (f ProbeFunc) Check(ctx context.Context) error { return f(ctx) }

// Policy bounds a wait. MaxRetries is the maximum number of probe calls.
type Policy struct {
	MaxRetries int
	Interval   time.Duration
}

// TimeoutError is returned when every attempt failed.
type TimeoutError struct {
	Name     string
	Attempts int
	Last     error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s not ready after %d attempts: %v", e.Name, e.Attempts, e.Last)
	}
	return fmt.Sprintf("%s not ready after %d attempts", e.Name, e.Attempts)
}

// Is reports ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Unwrap returns the last probe error.
func (e *TimeoutError) Unwrap() error { return e.Last }

// ProcessState is what WaitForProcess needs from a supervised child.
type ProcessState interface {
	// Exited reports whether the process has terminated and with which code.
	Exited() (code int, exited bool)
	// Output returns everything the process has written so far.
	Output() string
}

// ProcessExitedError carries the exit code and captured output of a child
// that died during startup.
type ProcessExitedError struct {
	Name     string
	ExitCode int
	Output   string
}

func (e *ProcessExitedError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d before becoming ready", e.Name, e.ExitCode)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

// Is reports ErrProcessExited.
func (e *ProcessExitedError) Is(target error) bool { return target == ErrProcessExited }

// WaitFor calls probe until it succeeds or policy.MaxRetries attempts have
// failed. It sleeps policy.Interval between attempts but not after the last.
func WaitFor(ctx context.Context, name string, probe Probe, policy Policy) error {
	return wait(ctx, name, probe, policy, nil)
}

// WaitForProcess is WaitFor that also gives up immediately once proc has
// exited, returning a *ProcessExitedError.
func WaitForProcess(ctx context.Context, name string, probe Probe, policy Policy, proc ProcessState) error {
	return wait(ctx, name, probe, policy, proc)
}

func wait(ctx context.Context, name string, probe Probe, policy Policy, proc ProcessState) error {
	maxRetries := policy.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if proc != nil {
			if code, exited := proc.Exited(); exited {
				return &ProcessExitedError{Name: name, ExitCode: code, Output: proc.Output()}
			}
		}

		lastErr = probe.Check(ctx)
		if lastErr == nil {
			logging.Info("Readiness", "%s is ready", name)
			return nil
		}

		if attempt == maxRetries {
			break
		}
		logging.Debug("Readiness", "waiting for %s (%d/%d): %v", name, attempt, maxRetries, lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", name, ctx.Err())
		case <-time.After(policy.Interval):
		}
	}

	logging.Warn("Readiness", "%s did not become ready after %d attempts", name, maxRetries)
	return &TimeoutError{Name: name, Attempts: maxRetries, Last: lastErr}
}
