// Package compose drives the docker compose project that hosts the test
// database.
package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"todoe2e/pkg/logging"
)

// ErrComposeNotFound is returned when neither compose spelling works.
var ErrComposeNotFound = errors.New("docker compose command not found")

// Executor runs docker compose against one compose file.
type Executor interface {
	// Up starts the services detached.
	Up(ctx context.Context, file string) error
	// Down stops the services and removes their volumes.
	Down(ctx context.Context, file string) error
	// Version returns the compose version string.
	Version(ctx context.Context) (string, error)
}

// ShellExecutor runs the compose binary through os/exec.
type ShellExecutor struct {
	// Command is the base command, e.g. ["docker", "compose"] or ["docker-compose"].
	Command []string
	// Dir is the working directory; compose resolves relative paths from it.
	Dir string
}

// NewShellExecutor detects the compose command for goos and returns an
// executor that uses it.
func NewShellExecutor(ctx context.Context, goos, dir string) (*ShellExecutor, error) {
	command, err := Detect(ctx, goos)
	if err != nil {
		return nil, err
	}
	return &ShellExecutor{Command: command, Dir: dir}, nil
}

// Up runs `compose -f file up -d`.
func (e *ShellExecutor) Up(ctx context.Context, file string) error {
	_, err := e.run(ctx, "-f", file, "up", "-d")
	return err
}

// Down runs `compose -f file down -v`.
func (e *ShellExecutor) Down(ctx context.Context, file string) error {
	_, err := e.run(ctx, "-f", file, "down", "-v")
	return err
}

// Version returns the compose version string.
func (e *ShellExecutor) Version(ctx context.Context) (string, error) {
	if len(e.Command) == 1 {
		return e.run(ctx, "--version")
	}
	return e.run(ctx, "version")
}

func (e *ShellExecutor) run(ctx context.Context, args ...string) (string, error) {
	full := append(append([]string{}, e.Command[1:]...), args...)
	logging.Debug("Compose", "running %s %s", e.Command[0], strings.Join(full, " "))

	out, err := runCommand(ctx, e.Dir, e.Command[0], full...)
	if err != nil {
		return "", fmt.Errorf("%s %s failed: %w", strings.Join(e.Command, " "), strings.Join(args, " "), err)
	}
	return out, nil
}

// runCommand is a seam for tests. It returns trimmed stdout, or an error that
// carries stderr.
var runCommand = func(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("%s: %w", detail, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Detect picks the compose spelling for the host. macOS only ships the
// docker CLI plugin; elsewhere the standalone docker-compose is preferred and
// the plugin is the fallback.
func Detect(ctx context.Context, goos string) ([]string, error) {
	plugin := []string{"docker", "compose"}

	if goos == "darwin" {
		if _, err := runCommand(ctx, "", "docker", "compose", "version"); err != nil {
			return nil, fmt.Errorf("%w: macOS needs Docker Desktop: %v", ErrComposeNotFound, err)
		}
		return plugin, nil
	}

	if _, err := runCommand(ctx, "", "docker-compose", "--version"); err == nil {
		return []string{"docker-compose"}, nil
	}
	if _, err := runCommand(ctx, "", "docker", "compose", "version"); err != nil {
		return nil, fmt.Errorf("%w: tried docker-compose and docker compose: %v", ErrComposeNotFound, err)
	}
	return plugin, nil
}
