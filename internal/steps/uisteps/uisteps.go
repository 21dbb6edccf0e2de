// Package uisteps registers the steps of the browser suite.
package uisteps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"todoe2e/internal/browser"
	"todoe2e/internal/scenario"
	"todoe2e/internal/steps"
	"todoe2e/pkg/logging"
)

// Selectors of the Vue login page.
const (
	LoginContainer  = ".login-container"
	UsernameInput   = "input[placeholder='用户名']"
	PasswordInput   = "input[type='password']"
	LoginButton     = ".login-button"
	MessageToast    = ".el-message, .el-message__content"
	ValidationError = ".el-form-item__error"

	loginPath      = "/login"
	userStorageKey = "user"
)

// Timeouts bounds every wait a step performs.
type Timeouts struct {
	Page            time.Duration // login page and its inputs
	Redirect        time.Duration
	Toast           time.Duration
	Validation      time.Duration
	ValidationRetry time.Duration // pause before retrying a missing validation message
	Settle          time.Duration // after clicking login
	Poll            time.Duration
}

// DefaultTimeouts match what the login page needs on a developer machine.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Page:            10 * time.Second,
		Redirect:        10 * time.Second,
		Toast:           10 * time.Second,
		Validation:      5 * time.Second,
		ValidationRetry: time.Second,
		Settle:          2 * time.Second,
		Poll:            200 * time.Millisecond,
	}
}

// Steps binds the UI steps to a browser and the frontend URL.
type Steps struct {
	Driver      browser.Driver
	FrontendURL string
	Users       steps.UserProvisioner
	Timeouts    Timeouts
}

// Register adds the lifecycle hooks and every UI step to sc. The browser
// tab is shared by all scenarios, so each one starts from a blank tab with
// no session left in storage.
func Register(sc *godog.ScenarioContext, db steps.Resetter, s *Steps) {
	steps.RegisterLifecycle(sc, db)
	steps.RegisterUserSteps(sc, s.Users)

	sc.Before(func(ctx context.Context, sn *godog.Scenario) (context.Context, error) {
		rctx, cancel := context.WithTimeout(ctx, s.Timeouts.Page)
		defer cancel()
		if err := s.Driver.Reset(rctx); err != nil {
			return ctx, fmt.Errorf("%w: reset browser before %q: %w", scenario.ErrSetup, sn.Name, err)
		}
		return ctx, nil
	})

	sc.Step(`^我访问登录页面$`, s.visitLogin)
	sc.Step(`^我输入用户名 "([^"]*)" 和密码 "([^"]*)"$`, s.enterCredentials)
	sc.Step(`^我点击登录按钮$`, s.clickLogin)
	sc.Step(`^我应该被重定向到项目列表页面$`, s.redirectedAway)
	sc.Step(`^页面应该显示 "([^"]*)" 的用户信息$`, s.showsUser)
	sc.Step(`^我应该看到错误消息 "([^"]*)"$`, s.seesToast)
	sc.Step(`^我应该仍然在登录页面$`, s.stillOnLogin)
	sc.Step(`^我应该看到验证错误消息 "([^"]*)"$`, s.seesValidationError)
}

func (s *Steps) visitLogin(ctx context.Context) error {
	sc, err := scenario.From(ctx)
	if err != nil {
		return err
	}

	url := strings.TrimRight(s.FrontendURL, "/") + loginPath
	if err := s.Driver.Navigate(ctx, url); err != nil {
		return err
	}
	if err := s.waitVisible(ctx, LoginContainer, s.Timeouts.Page); err != nil {
		return fmt.Errorf("login page did not render: %w", err)
	}

	sc.CurrentURL, err = s.Driver.Location(ctx)
	return err
}

func (s *Steps) enterCredentials(ctx context.Context, username, password string) error {
	sc, err := scenario.From(ctx)
	if err != nil {
		return err
	}

	if err := s.waitVisible(ctx, UsernameInput, s.Timeouts.Page); err != nil {
		return err
	}
	if err := s.Driver.Type(ctx, UsernameInput, username); err != nil {
		return err
	}
	if err := s.Driver.Type(ctx, PasswordInput, password); err != nil {
		return err
	}

	sc.Username = username
	sc.Password = password
	return nil
}

func (s *Steps) clickLogin(ctx context.Context) error {
	if err := s.waitVisible(ctx, LoginButton, s.Timeouts.Page); err != nil {
		return err
	}
	if err := s.Driver.Click(ctx, LoginButton); err != nil {
		return err
	}
	// The page has no signal for "request finished"; give it a moment.
	return sleep(ctx, s.Timeouts.Settle)
}

func (s *Steps) redirectedAway(ctx context.Context) error {
	sc, err := scenario.From(ctx)
	if err != nil {
		return err
	}

	url, err := s.pollLocation(ctx, s.Timeouts.Redirect, func(u string) bool {
		return !strings.Contains(u, loginPath)
	})
	sc.CurrentURL = url
	if err != nil {
		return fmt.Errorf("expected to leave %s within %v, still at %s", loginPath, s.Timeouts.Redirect, url)
	}
	return nil
}

func (s *Steps) showsUser(ctx context.Context, username string) error {
	raw, ok, err := s.Driver.LocalStorage(ctx, userStorageKey)
	if err != nil {
		return err
	}
	if !ok || raw == "" {
		return fmt.Errorf("localStorage has no %q entry", userStorageKey)
	}

	var user struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return fmt.Errorf("localStorage %q is not JSON: %w", userStorageKey, err)
	}
	if user.Username != username {
		return fmt.Errorf("expected logged in user %q, got %q", username, user.Username)
	}
	return nil
}

func (s *Steps) seesToast(ctx context.Context, want string) error {
	sc, err := scenario.From(ctx)
	if err != nil {
		return err
	}

	var toast string
	if err := s.waitVisible(ctx, MessageToast, s.Timeouts.Toast); err == nil {
		toast, err = s.Driver.Text(ctx, MessageToast)
		if err != nil {
			return err
		}
		sc.LastToast = toast
		if strings.Contains(toast, want) {
			return nil
		}
	} else {
		logging.Debug("Steps", "no message toast within %v, checking page text", s.Timeouts.Toast)
	}

	body, err := s.Driver.BodyText(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(body, want) {
		return nil
	}
	return fmt.Errorf("expected error message %q, toast was %q and page text does not contain it", want, toast)
}

func (s *Steps) stillOnLogin(ctx context.Context) error {
	sc, err := scenario.From(ctx)
	if err != nil {
		return err
	}
	url, err := s.Driver.Location(ctx)
	if err != nil {
		return err
	}
	sc.CurrentURL = url
	if !strings.Contains(url, loginPath) {
		return fmt.Errorf("expected to stay on %s, now at %s", loginPath, url)
	}
	return nil
}

// seesValidationError waits for the form's inline message. Some builds only
// validate on submit, so a missing message gets one more click.
func (s *Steps) seesValidationError(ctx context.Context, want string) error {
	err := s.waitVisible(ctx, ValidationError, s.Timeouts.Validation)
	if err != nil {
		logging.Debug("Steps", "no validation message yet, clicking login again")
		if clickErr := s.Driver.Click(ctx, LoginButton); clickErr != nil {
			return clickErr
		}
		if err := sleep(ctx, s.Timeouts.ValidationRetry); err != nil {
			return err
		}
		err = s.waitVisible(ctx, ValidationError, s.Timeouts.Validation)
	}

	var shown string
	if err == nil {
		shown, err = s.Driver.Text(ctx, ValidationError)
		if err != nil {
			return err
		}
		if strings.Contains(shown, want) {
			return nil
		}
	}

	body, err := s.Driver.BodyText(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(body, want) {
		return nil
	}
	return fmt.Errorf("expected validation message %q, form showed %q", want, shown)
}

func (s *Steps) waitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Driver.WaitVisible(wctx, selector)
}

// pollLocation returns the first location accepted by ok, or the last one
// seen when timeout expires.
func (s *Steps) pollLocation(ctx context.Context, timeout time.Duration, ok func(string) bool) (string, error) {
	deadline := time.Now().Add(timeout)
	var last string
	for {
		url, err := s.Driver.Location(ctx)
		if err != nil {
			return last, err
		}
		last = url
		if ok(url) {
			return url, nil
		}
		if time.Now().After(deadline) {
			return last, errors.New("timed out")
		}
		if err := sleep(ctx, s.Timeouts.Poll); err != nil {
			return last, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
