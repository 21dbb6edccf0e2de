// Package users creates the accounts a scenario's preconditions name.
//
// Accounts are registered through the application's own API so the stored
// password hash is produced by the application. Writing the row directly is
// possible only when UsersConfig.AllowDirectInsert is set.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"todoe2e/internal/apiclient"
	"todoe2e/internal/config"
	"todoe2e/internal/dbx"
	"todoe2e/pkg/logging"
)

const (
	RegisterPath = "/api/auth/register"

	deleteUserSQL = `DELETE FROM "Users" WHERE "Username" = $1`
	upsertUserSQL = `INSERT INTO "Users" ("Username", "Email", "PasswordHash", "CreatedAt")
VALUES ($1, $2, $3, NOW())
ON CONFLICT ("Username") DO UPDATE SET "Email" = EXCLUDED."Email", "PasswordHash" = EXCLUDED."PasswordHash"`
)

// ErrRegistrationFailed matches every *RegistrationError.
var ErrRegistrationFailed = errors.New("user registration failed")

// RegistrationError is returned when the register endpoint rejects a user.
type RegistrationError struct {
	Username   string
	StatusCode int
	Body       string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register %q: status %d: %s", e.Username, e.StatusCode, e.Body)
}

func (e *RegistrationError) Is(target error) bool {
	return target == ErrRegistrationFailed
}

// Poster is the part of apiclient.Client the provisioner needs.
type Poster interface {
	Post(ctx context.Context, path string, body any) (*apiclient.Response, error)
}

// Provisioner makes sure a user with a known password exists.
type Provisioner struct {
	db  dbx.DBTX
	api Poster
	cfg config.UsersConfig
}

// NewProvisioner returns a provisioner writing to db and registering via api.
func NewProvisioner(db dbx.DBTX, api Poster, cfg config.UsersConfig) *Provisioner {
	return &Provisioner{db: db, api: api, cfg: cfg}
}

// Email is the address registered for username.
func (p *Provisioner) Email(username string) string {
	domain := p.cfg.EmailDomain
	if domain == "" {
		domain = "example.com"
	}
	return username + "@" + domain
}

// Ensure deletes any existing account called username and registers it
// again with password.
func (p *Provisioner) Ensure(ctx context.Context, username, password string) error {
	if _, err := p.db.ExecContext(ctx, deleteUserSQL, username); err != nil {
		return fmt.Errorf("delete existing user %q: %w", username, err)
	}

	err := p.register(ctx, username, password)
	if err == nil {
		logging.Debug("Users", "registered %s via API", username)
		return nil
	}

	if !p.cfg.AllowDirectInsert {
		return err
	}

	logging.Warn("Users", "registration of %s failed (%v), inserting directly with a locally computed bcrypt hash", username, err)
	return p.insert(ctx, username, password)
}

func (p *Provisioner) register(ctx context.Context, username, password string) error {
	resp, err := p.api.Post(ctx, RegisterPath, map[string]string{
		"username": username,
		"email":    p.Email(username),
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("register %q: %w: %w", username, ErrRegistrationFailed, err)
	}
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}
	return &RegistrationError{Username: username, StatusCode: resp.StatusCode, Body: string(resp.Body)}
}

// insert assumes the application verifies with bcrypt at the configured cost.
func (p *Provisioner) insert(ctx context.Context, username, password string) error {
	cost := p.cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return fmt.Errorf("hash password for %q: %w", username, err)
	}
	if _, err := p.db.ExecContext(ctx, upsertUserSQL, username, p.Email(username), string(hash)); err != nil {
		return fmt.Errorf("insert user %q: %w", username, err)
	}
	return nil
}
