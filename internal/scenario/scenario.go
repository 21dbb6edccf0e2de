// Package scenario holds the state one scenario's steps share.
package scenario

import (
	"context"
	"errors"

	"todoe2e/internal/apiclient"
)

var (
	// ErrNoContext is returned by steps that run without a Before hook having
	// attached a Context.
	ErrNoContext = errors.New("no scenario context attached")
	// ErrSetup marks failures of a scenario's preparation, as opposed to
	// failed assertions.
	ErrSetup = errors.New("scenario setup failed")
)

// Context is created fresh for every scenario and dropped after it.
type Context struct {
	// Name of the running scenario, for log lines.
	Name string

	LastResponse *apiclient.Response
	Username     string
	Password     string
	Token        string

	CurrentURL string
	LastToast  string
}

type ctxKey struct{}

// With attaches sc to ctx.
func With(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// From returns the Context attached to ctx.
func From(ctx context.Context) (*Context, error) {
	sc, ok := ctx.Value(ctxKey{}).(*Context)
	if !ok || sc == nil {
		return nil, ErrNoContext
	}
	return sc, nil
}

// Response returns the last recorded API response or an error when no
// request has been sent yet.
func (c *Context) Response() (*apiclient.Response, error) {
	if c.LastResponse == nil {
		return nil, errors.New("no response recorded; send a request first")
	}
	return c.LastResponse, nil
}
