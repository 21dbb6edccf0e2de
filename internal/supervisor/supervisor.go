// Package supervisor brings up the database, backend and frontend a suite
// needs, skipping anything that is already reachable, and tears down only
// what it started.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"todoe2e/internal/compose"
	"todoe2e/internal/config"
	"todoe2e/internal/dbx"
	"todoe2e/internal/readiness"
	"todoe2e/pkg/logging"
)

var (
	// ErrProjectDirNotFound is returned when a launch directory is missing.
	ErrProjectDirNotFound = errors.New("project directory not found")
	// ErrCommandNotFound is returned when a launch binary is not on PATH.
	ErrCommandNotFound = errors.New("command not found")
)

// Environment records what this supervisor started. A nil field means the
// dependency was already reachable and teardown leaves it alone.
type Environment struct {
	Database *ComposeHandle
	Backend  *Process
	Frontend *Process
}

// ComposeHandle is a compose project brought up by the supervisor.
type ComposeHandle struct {
	Executor compose.Executor
	File     string
}

// Supervisor starts and stops the session's dependencies.
type Supervisor struct {
	cfg          config.Config
	withFrontend bool

	dbProbe      readiness.Probe
	apiProbe     readiness.Probe
	uiProbe      readiness.Probe
	newCompose   func(ctx context.Context) (compose.Executor, error)
	lookPath     func(file string) (string, error)
	startProcess func(spec ProcessSpec) (*Process, error)
}

// Option customises a Supervisor.
type Option func(*Supervisor)

// WithFrontend makes Start bring up the frontend dev server as well.
func WithFrontend(enabled bool) Option {
	return func(s *Supervisor) { s.withFrontend = enabled }
}

// WithComposeExecutor replaces compose command detection.
func WithComposeExecutor(e compose.Executor) Option {
	return func(s *Supervisor) {
		s.newCompose = func(context.Context) (compose.Executor, error) { return e, nil }
	}
}

// WithDatabaseProbe replaces the default open-and-ping probe.
func WithDatabaseProbe(p readiness.Probe) Option {
	return func(s *Supervisor) { s.dbProbe = p }
}

// WithLookPath replaces exec.LookPath.
func WithLookPath(f func(string) (string, error)) Option {
	return func(s *Supervisor) { s.lookPath = f }
}

// New returns a supervisor for cfg.
func New(cfg config.Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:          cfg,
		dbProbe:      databaseProbe(cfg.Database),
		apiProbe:     readiness.HTTPProbe{URL: joinURL(cfg.API.BaseURL, cfg.API.HealthPath), Accept: cfg.API.AcceptStatus},
		uiProbe:      readiness.HTTPProbe{URL: cfg.Frontend.BaseURL, Accept: cfg.Frontend.AcceptStatus},
		lookPath:     exec.LookPath,
		startProcess: StartProcess,
	}
	s.newCompose = func(ctx context.Context) (compose.Executor, error) {
		return compose.NewShellExecutor(ctx, runtime.GOOS, cfg.Compose.ProjectDir)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// databaseProbe opens a connection, pings and closes it again.
func databaseProbe(cfg config.DatabaseConfig) readiness.Probe {
	return readiness.ProbeFunc(func(ctx context.Context) error {
		db, err := dbx.Open(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.PingContext(ctx)
	})
}

// Start brings up database, backend and (optionally) frontend, in that
// order, each blocking until ready. On error everything started so far is
// torn down before returning.
func (s *Supervisor) Start(ctx context.Context) (*Environment, error) {
	env := &Environment{}

	steps := []func(context.Context, *Environment) error{s.startDatabase, s.startBackend}
	if s.withFrontend {
		steps = append(steps, s.startFrontend)
	}

	for _, step := range steps {
		if err := step(ctx, env); err != nil {
			if tdErr := s.Teardown(context.Background(), env); tdErr != nil {
				logging.Error("Supervisor", tdErr, "teardown after failed start")
			}
			return nil, err
		}
	}
	return env, nil
}

func (s *Supervisor) startDatabase(ctx context.Context, env *Environment) error {
	db := s.cfg.Database
	name := fmt.Sprintf("database %s:%d/%s", db.Host, db.Port, db.Name)

	if err := s.dbProbe.Check(ctx); err == nil {
		logging.Info("Supervisor", "%s already reachable", name)
		return nil
	}

	if !s.cfg.Compose.Enabled {
		if err := readiness.WaitFor(ctx, name, s.dbProbe, policy(db.Startup)); err != nil {
			return fmt.Errorf("%w (waited %v; start it with: docker compose -f %s up -d)",
				err, db.Startup.Budget(), s.cfg.Compose.File)
		}
		return nil
	}

	executor, err := s.newCompose(ctx)
	if err != nil {
		return fmt.Errorf("start database: %w", err)
	}
	if version, err := executor.Version(ctx); err != nil {
		logging.Warn("Supervisor", "could not read compose version: %v", err)
	} else {
		logging.Info("Supervisor", "using %s", strings.TrimSpace(version))
	}
	if err := executor.Up(ctx, s.cfg.Compose.File); err != nil {
		return fmt.Errorf("start database: %w", err)
	}
	env.Database = &ComposeHandle{Executor: executor, File: s.cfg.Compose.File}
	logging.Info("Supervisor", "compose services from %s started, waiting up to %v for %s",
		s.cfg.Compose.File, db.Startup.Budget(), name)

	return readiness.WaitFor(ctx, name, s.dbProbe, policy(db.Startup))
}

func (s *Supervisor) startBackend(ctx context.Context, env *Environment) error {
	api := s.cfg.API
	proc, err := s.ensureService(ctx, service{
		name:    "backend",
		url:     api.BaseURL,
		probe:   s.apiProbe,
		manage:  api.Manage,
		dir:     api.ProjectDir,
		command: backendCommand(s.cfg),
		env:     BackendEnv(s.cfg),
		startup: api.Startup,
	})
	env.Backend = proc
	return err
}

func (s *Supervisor) startFrontend(ctx context.Context, env *Environment) error {
	ui := s.cfg.Frontend
	proc, err := s.ensureService(ctx, service{
		name:    "frontend",
		url:     ui.BaseURL,
		probe:   s.uiProbe,
		manage:  ui.Manage,
		dir:     ui.ProjectDir,
		command: frontendCommand(s.cfg),
		env:     FrontendEnv(s.cfg),
		startup: ui.Startup,
	})
	env.Frontend = proc
	return err
}

type service struct {
	name    string
	url     string
	probe   readiness.Probe
	manage  bool
	dir     string
	command []string
	env     []string
	startup config.WaitPolicy
}

// ensureService returns a non-nil process only when it launched one, even
// if that process then failed to become ready.
func (s *Supervisor) ensureService(ctx context.Context, svc service) (*Process, error) {
	if err := svc.probe.Check(ctx); err == nil {
		logging.Info("Supervisor", "%s already reachable at %s", svc.name, svc.url)
		return nil, nil
	}

	hint := fmt.Sprintf("waited %v; start it with: cd %s && %s",
		svc.startup.Budget(), svc.dir, strings.Join(svc.command, " "))

	if !svc.manage {
		if err := readiness.WaitFor(ctx, svc.name, svc.probe, policy(svc.startup)); err != nil {
			return nil, fmt.Errorf("%w (%s)", err, hint)
		}
		return nil, nil
	}

	if info, err := os.Stat(svc.dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w: %s", svc.name, ErrProjectDirNotFound, svc.dir)
	}
	if _, err := s.lookPath(svc.command[0]); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", svc.name, ErrCommandNotFound, svc.command[0])
	}

	proc, err := s.startProcess(ProcessSpec{
		Name:    svc.name,
		Dir:     svc.dir,
		Command: svc.command,
		Env:     svc.env,
	})
	if err != nil {
		return nil, err
	}

	if err := readiness.WaitForProcess(ctx, svc.name, svc.probe, policy(svc.startup), proc); err != nil {
		if errors.Is(err, readiness.ErrTimeout) {
			return proc, fmt.Errorf("%w (%s)", err, hint)
		}
		return proc, err
	}
	return proc, nil
}

// Teardown stops the frontend and backend concurrently, then brings the
// compose project down. Only dependencies recorded in env are touched.
func (s *Supervisor) Teardown(ctx context.Context, env *Environment) error {
	if env == nil {
		return nil
	}

	procs := []*Process{env.Frontend, env.Backend}
	errs := make([]error, len(procs)+1)

	var g errgroup.Group
	for i, p := range procs {
		if p == nil {
			continue
		}
		g.Go(func() error {
			errs[i] = p.Stop(s.cfg.Supervisor.Grace)
			return nil
		})
	}
	_ = g.Wait()

	if env.Database != nil && s.cfg.Compose.DownOnExit {
		if err := env.Database.Executor.Down(ctx, env.Database.File); err != nil {
			errs[len(procs)] = fmt.Errorf("stop database: %w", err)
		} else {
			logging.Info("Supervisor", "compose services from %s stopped", env.Database.File)
		}
	}

	return errors.Join(errs...)
}

func policy(p config.WaitPolicy) readiness.Policy {
	return readiness.Policy{MaxRetries: p.MaxRetries, Interval: p.Interval}
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
