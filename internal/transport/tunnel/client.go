package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	chclient "github.com/jpillora/chisel/client"
)

// ErrLocalPortRequired is returned by NewClient when no local port was
// configured to expose through the tunnel.
var ErrLocalPortRequired = errors.New("tunnel: local port is required")

// ClientOption configures a Client.
type ClientOption func(*Client)

// Client manages a reverse tunnel connection to the coordinator's
// tunnel server, with automatic reconnection and exponential backoff.
// Unlike the teacher's fleet-registration flow, no certificate
// issuance or identity step precedes the connection: the session
// transport carries no authentication of its own, matching the
// system's no-auth non-goal.
type Client struct {
	inner          *chclient.Client
	serverURL      string
	fingerprint    string
	localPort      int
	remoteHost     string
	keepAlive      time.Duration
	maxRetryCount  int
	baseRetryDelay time.Duration
	maxRetryDelay  time.Duration
	log            *slog.Logger
}

// WithServerURL configures the chisel tunnel server URL to dial.
func WithServerURL(serverURL string) ClientOption {
	return func(c *Client) { c.serverURL = serverURL }
}

// WithFingerprint pins the expected server SSH host key fingerprint.
// Empty disables pinning.
func WithFingerprint(fingerprint string) ClientOption {
	return func(c *Client) { c.fingerprint = fingerprint }
}

// WithLocalPort configures the local port to expose through the
// tunnel (the debuggee host's MI/text-protocol listener).
func WithLocalPort(localPort int) ClientOption {
	return func(c *Client) { c.localPort = localPort }
}

// WithRemoteHost configures the coordinator-side bind host for the
// reverse-allocated remote endpoint. Defaults to the wildcard host.
func WithRemoteHost(remoteHost string) ClientOption {
	return func(c *Client) { c.remoteHost = remoteHost }
}

// WithKeepAlive configures the tunnel keep-alive interval.
func WithKeepAlive(keepAlive time.Duration) ClientOption {
	return func(c *Client) { c.keepAlive = keepAlive }
}

// WithMaxRetryCount configures chisel's internal maximum retry count.
func WithMaxRetryCount(maxRetryCount int) ClientOption {
	return func(c *Client) { c.maxRetryCount = maxRetryCount }
}

// WithBaseRetryDelay configures the initial delay for the outer
// reconnect backoff.
func WithBaseRetryDelay(baseRetryDelay time.Duration) ClientOption {
	return func(c *Client) { c.baseRetryDelay = baseRetryDelay }
}

// WithMaxRetryDelay configures the maximum delay for the outer
// reconnect backoff.
func WithMaxRetryDelay(maxRetryDelay time.Duration) ClientOption {
	return func(c *Client) { c.maxRetryDelay = maxRetryDelay }
}

// WithClientLogger configures a structured logger. Defaults to
// slog.Default with a "component" attribute.
func WithClientLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a tunnel client. It validates required fields but
// performs no I/O.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		serverURL:      "http://127.0.0.1:8300",
		remoteHost:     "0.0.0.0",
		keepAlive:      30 * time.Second,
		maxRetryCount:  3,
		baseRetryDelay: 1 * time.Second,
		maxRetryDelay:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.localPort == 0 {
		return nil, ErrLocalPortRequired
	}
	if c.log == nil {
		c.log = slog.Default().With("component", "tunnel-client")
	}
	return c, nil
}

// Start runs the tunnel client loop. It blocks until ctx is cancelled,
// automatically reconnecting on failure with exponential backoff.
func (c *Client) Start(ctx context.Context) error {
	bo := newBackoff(c.baseRetryDelay, c.maxRetryDelay)

	for {
		if ctx.Err() != nil {
			return nil
		}

		inner, err := c.dial()
		if err != nil {
			c.log.Warn("dial failed, retrying", "error", err, "retry_in", bo.current)
			if !sleepCtx(ctx, bo.Next()) {
				return nil
			}
			continue
		}
		c.inner = inner

		c.log.Info("connecting", "server", c.serverURL)
		err = c.runSession(ctx, inner)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			c.log.Warn("session ended, reconnecting")
			bo.Reset()
			continue
		}
		if isAuthErr(err) {
			c.log.Warn("authentication failed, reconnecting", "error", err)
			bo.Reset()
			continue
		}

		c.log.Warn("connection lost, retrying", "error", err, "retry_in", bo.current)
		if !sleepCtx(ctx, bo.Next()) {
			return nil
		}
	}
}

// Stop gracefully shuts down the tunnel client.
func (c *Client) Stop(_ context.Context) error {
	if c.inner == nil {
		return nil
	}
	c.log.Info("shutting down")
	return c.inner.Close()
}

func (c *Client) dial() (*chclient.Client, error) {
	return chclient.NewClient(&chclient.Config{
		Server:           c.serverURL,
		Fingerprint:      c.fingerprint,
		Remotes:          []string{fmt.Sprintf("R:%s:0:127.0.0.1:%d", c.remoteHost, c.localPort)},
		KeepAlive:        c.keepAlive,
		MaxRetryCount:    c.maxRetryCount,
		MaxRetryInterval: c.maxRetryDelay,
	})
}

// runSession starts the inner chisel client and waits for it to finish.
// It always closes the inner client before returning.
func (c *Client) runSession(ctx context.Context, inner *chclient.Client) error {
	if err := inner.Start(ctx); err != nil {
		_ = inner.Close()
		return fmt.Errorf("start: %w", err)
	}
	err := inner.Wait()
	_ = inner.Close()
	return err
}
