package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cucumber/godog"

	"todoe2e/internal/apiclient"
	"todoe2e/internal/browser"
	"todoe2e/internal/config"
	"todoe2e/internal/dbreset"
	"todoe2e/internal/dbx"
	"todoe2e/internal/steps"
	"todoe2e/internal/steps/apisteps"
	"todoe2e/internal/steps/uisteps"
	"todoe2e/internal/supervisor"
	"todoe2e/internal/users"
	"todoe2e/pkg/logging"
)

const (
	SuiteAPI = "api"
	SuiteUI  = "ui"
)

// Session is a started environment plus the clients the suites share.
type Session struct {
	cfg        config.Config
	supervisor *supervisor.Supervisor
	env        *supervisor.Environment
	db         *sql.DB
	keepEnv    bool

	Resetter steps.Resetter
	API      *apiclient.Client
	Users    steps.UserProvisioner
	Browser  browser.Driver
}

// SessionOptions control what StartSession brings up.
type SessionOptions struct {
	// WithUI also starts the frontend and a browser.
	WithUI bool
	// KeepEnv leaves started dependencies running on Close.
	KeepEnv bool

	SupervisorOptions []supervisor.Option
	// NewBrowser defaults to browser.NewChrome.
	NewBrowser func(ctx context.Context, cfg config.BrowserConfig) (browser.Driver, error)
}

// StartSession brings up the environment once for every suite of a run.
func StartSession(ctx context.Context, cfg config.Config, opts SessionOptions) (*Session, error) {
	supOpts := append([]supervisor.Option{supervisor.WithFrontend(opts.WithUI)}, opts.SupervisorOptions...)
	sup := supervisor.New(cfg, supOpts...)

	env, err := sup.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("start environment: %w", err)
	}

	s := &Session{cfg: cfg, supervisor: sup, env: env, keepEnv: opts.KeepEnv}

	s.db, err = dbx.Open(cfg.Database)
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	s.Resetter = dbreset.New(s.db)
	s.API = apiclient.New(cfg.API.BaseURL)
	// Provisioning never carries a scenario's token.
	s.Users = users.NewProvisioner(s.db, apiclient.New(cfg.API.BaseURL), cfg.Users)

	if opts.WithUI {
		newBrowser := opts.NewBrowser
		if newBrowser == nil {
			newBrowser = func(ctx context.Context, bc config.BrowserConfig) (browser.Driver, error) {
				return browser.NewChrome(ctx, bc)
			}
		}
		s.Browser, err = newBrowser(ctx, cfg.Browser)
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
	}

	logging.Info("Harness", "session ready (ui=%t)", opts.WithUI)
	return s, nil
}

// Suite returns the named suite reading features from paths, or from
// <features dir>/<name> when paths is empty.
func (s *Session) Suite(name string, paths []string, tags string) (Suite, error) {
	if len(paths) == 0 {
		paths = []string{filepath.Join(s.cfg.Features.Dir, name)}
	}
	if tags == "" {
		tags = s.cfg.Features.Tags
	}

	switch name {
	case SuiteAPI:
		return Suite{Name: name, Paths: paths, Tags: tags, Initializer: s.initAPI}, nil
	case SuiteUI:
		if s.Browser == nil {
			return Suite{}, errors.New("ui suite needs a session started with a browser")
		}
		return Suite{Name: name, Paths: paths, Tags: tags, Initializer: s.initUI}, nil
	default:
		return Suite{}, fmt.Errorf("unknown suite %q", name)
	}
}

func (s *Session) initAPI(sc *godog.ScenarioContext) {
	apisteps.Register(sc, s.Resetter, &apisteps.Steps{API: s.API, Users: s.Users})
}

func (s *Session) initUI(sc *godog.ScenarioContext) {
	uisteps.Register(sc, s.Resetter, &uisteps.Steps{
		Driver:      s.Browser,
		FrontendURL: s.cfg.Frontend.BaseURL,
		Users:       s.Users,
		Timeouts:    uisteps.DefaultTimeouts(),
	})
}

// Close releases the browser and the database pool and, unless KeepEnv was
// set, stops what the supervisor started.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if s.Browser != nil {
		errs = append(errs, s.Browser.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.supervisor != nil {
		if s.keepEnv {
			logging.Info("Harness", "leaving the environment running")
		} else {
			errs = append(errs, s.supervisor.Teardown(ctx, s.env))
		}
	}
	return errors.Join(errs...)
}
