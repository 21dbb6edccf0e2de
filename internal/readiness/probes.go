package readiness

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"
)

const defaultHTTPProbeTimeout = 2 * time.Second

// HTTPProbe issues a GET and accepts any status listed in Accept.
type HTTPProbe struct {
	URL     string
	Accept  []int         // defaults to 200 only
	Timeout time.Duration // per request, defaults to 2s
	Client  *http.Client
}

// Check implements Probe.
func (p HTTPProbe) Check(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPProbeTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", p.URL, err)
	}
	defer resp.Body.Close()

	accept := p.Accept
	if len(accept) == 0 {
		accept = []int{http.StatusOK}
	}
	if !slices.Contains(accept, resp.StatusCode) {
		return fmt.Errorf("%s returned status %d", p.URL, resp.StatusCode)
	}
	return nil
}

// TCPProbe succeeds once Address accepts a TCP connection.
type TCPProbe struct {
	Address string
	Timeout time.Duration
}

// Check implements Probe.
func (p TCPProbe) Check(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.Address, err)
	}
	return conn.Close()
}

// Pinger is anything with a connectivity check, such as a database handle.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe adapts a Pinger.
type PingProbe struct {
	Target Pinger
}

// Check implements Probe.
func (p PingProbe) Check(ctx context.Context) error {
	return p.Target.Ping(ctx)
}
