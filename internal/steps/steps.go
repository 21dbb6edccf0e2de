// Package steps holds the hooks and steps both suites register: the
// per-scenario database reset and the user precondition.
package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"todoe2e/internal/scenario"
	"todoe2e/pkg/logging"
)

// Resetter recreates the schema. *dbreset.Resetter implements it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// UserProvisioner creates a user with a known password. *users.Provisioner
// implements it.
type UserProvisioner interface {
	Ensure(ctx context.Context, username, password string) error
}

// RegisterLifecycle attaches a fresh scenario.Context to every scenario
// after resetting the database. A failed reset fails the scenario before
// its first step runs.
func RegisterLifecycle(sc *godog.ScenarioContext, db Resetter) {
	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		if db != nil {
			if err := db.Reset(ctx); err != nil {
				return ctx, fmt.Errorf("%w: reset database before %q: %w", scenario.ErrSetup, s.Name, err)
			}
		}
		logging.Debug("Steps", "starting scenario %q", s.Name)
		return scenario.With(ctx, &scenario.Context{Name: s.Name}), nil
	})
}

// RegisterUserSteps registers the user precondition step.
func RegisterUserSteps(sc *godog.ScenarioContext, users UserProvisioner) {
	sc.Step(`^数据库中已存在用户 "([^"]*)"，密码为 "([^"]*)"$`, func(ctx context.Context, username, password string) error {
		return EnsureUser(ctx, users, username, password)
	})
}

// EnsureUser provisions the user and remembers the credentials in the
// scenario context.
func EnsureUser(ctx context.Context, users UserProvisioner, username, password string) error {
	sc, err := scenario.From(ctx)
	if err != nil {
		return err
	}
	if err := users.Ensure(ctx, username, password); err != nil {
		return fmt.Errorf("%w: provision user %q: %w", scenario.ErrSetup, username, err)
	}
	sc.Username = username
	sc.Password = password
	return nil
}
