// Package apisteps registers the steps of the API suite.
package apisteps

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
	"github.com/golang-jwt/jwt/v5"

	"todoe2e/internal/apiclient"
	"todoe2e/internal/scenario"
	"todoe2e/internal/steps"
)

const LoginPath = "/api/auth/login"

// Steps binds the API steps to their collaborators.
type Steps struct {
	API   *apiclient.Client
	Users steps.UserProvisioner
}

// Register adds the lifecycle hooks and every API step to sc.
func Register(sc *godog.ScenarioContext, db steps.Resetter, s *Steps) {
	steps.RegisterLifecycle(sc, db)
	steps.RegisterUserSteps(sc, s.Users)

	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		s.API.ClearToken()
		return ctx, nil
	})

	sc.Step(`^我使用用户名 "([^"]*)" 和密码 "([^"]*)" 发送登录请求$`, s.sendLogin)
	sc.Step(`^响应状态码应该是 (\d+)$`, s.statusIs)
	sc.Step(`^响应状态码应该是 (\d+) 或 (\d+)$`, s.statusIsEither)
	sc.Step(`^响应应该包含有效的 token$`, s.hasValidToken)
	sc.Step(`^响应应该包含用户信息$`, s.hasUserInfo)
	sc.Step(`^响应应该包含错误消息 "([^"]*)"$`, s.hasErrorMessage)
	sc.Step(`^我使用返回的 token 访问 "([^"]*)"$`, s.getWithToken)
	sc.Step(`^我访问 "([^"]*)"$`, s.get)
	sc.Step(`^我清除 token$`, s.clearToken)
}

func (s *Steps) sendLogin(ctx context.Context, username, password string) error {
	sc, err := scenario.From(ctx)
	if err != nil {
		return err
	}

	resp, err := s.API.Post(ctx, LoginPath, map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}

	sc.LastResponse = resp
	sc.Username = username
	sc.Password = password
	sc.Token = ""
	if resp.StatusCode == http.StatusOK {
		var body struct {
			Token string `json:"token"`
		}
		if resp.JSON(&body) == nil {
			sc.Token = body.Token
		}
	}
	return nil
}

func (s *Steps) statusIs(ctx context.Context, want int) error {
	return s.statusIn(ctx, want)
}

func (s *Steps) statusIsEither(ctx context.Context, a, b int) error {
	return s.statusIn(ctx, a, b)
}

func (s *Steps) statusIn(ctx context.Context, want ...int) error {
	resp, err := lastResponse(ctx)
	if err != nil {
		return err
	}
	for _, w := range want {
		if resp.StatusCode == w {
			return nil
		}
	}
	return fmt.Errorf("expected status %s, got %d: %s", joinInts(want, " or "), resp.StatusCode, resp.Body)
}

func (s *Steps) hasValidToken(ctx context.Context) error {
	resp, err := lastResponse(ctx)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expected status 200 for a token response, got %d", resp.StatusCode)
	}

	body, err := resp.Map()
	if err != nil {
		return err
	}
	token, _ := body["token"].(string)
	if token == "" {
		return fmt.Errorf("response has no token: %s", resp.Body)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		return fmt.Errorf("token should have 3 dot separated parts, got %d", len(parts))
	}
	// Shape only; the signing key belongs to the application.
	if _, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{}); err != nil {
		return fmt.Errorf("token is not a JWT: %w", err)
	}
	return nil
}

func (s *Steps) hasUserInfo(ctx context.Context) error {
	resp, err := lastResponse(ctx)
	if err != nil {
		return err
	}
	body, err := resp.Map()
	if err != nil {
		return err
	}

	id, ok := body["userId"].(float64)
	if !ok || id <= 0 {
		return fmt.Errorf("expected a positive userId, got %v", body["userId"])
	}
	name, _ := body["username"].(string)
	if name == "" {
		return fmt.Errorf("expected a username, got %v", body["username"])
	}
	return nil
}

func (s *Steps) hasErrorMessage(ctx context.Context, want string) error {
	resp, err := lastResponse(ctx)
	if err != nil {
		return err
	}
	body, err := resp.Map()
	if err != nil {
		return err
	}
	msg, _ := body["message"].(string)
	if !strings.Contains(msg, want) {
		return fmt.Errorf("expected error message containing %q, got %q", want, msg)
	}
	return nil
}

func (s *Steps) getWithToken(ctx context.Context, path string) error {
	sc, err := scenario.From(ctx)
	if err != nil {
		return err
	}
	if sc.Token == "" {
		return fmt.Errorf("no token from a previous login")
	}

	s.API.SetToken(sc.Token)
	resp, err := s.API.Get(ctx, path)
	if err != nil {
		return err
	}
	sc.LastResponse = resp
	return nil
}

// get sends a GET with whatever token the client currently holds.
func (s *Steps) get(ctx context.Context, path string) error {
	sc, err := scenario.From(ctx)
	if err != nil {
		return err
	}
	resp, err := s.API.Get(ctx, path)
	if err != nil {
		return err
	}
	sc.LastResponse = resp
	return nil
}

func (s *Steps) clearToken(ctx context.Context) error {
	sc, err := scenario.From(ctx)
	if err != nil {
		return err
	}
	sc.Token = ""
	s.API.ClearToken()
	return nil
}

func lastResponse(ctx context.Context) (*apiclient.Response, error) {
	sc, err := scenario.From(ctx)
	if err != nil {
		return nil, err
	}
	return sc.Response()
}

func joinInts(v []int, sep string) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = fmt.Sprint(n)
	}
	return strings.Join(s, sep)
}
