package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/datachannel/metric"
)

// ClientOption configures a Client in NewClient. An option that returns an
// error aborts construction.
type ClientOption func(*Client) error

// Connection

// WithName sets the client name the server shows in its connection list.
func WithName(name string) ClientOption {
	return func(c *Client) error { c.clientName = name; return nil }
}

// WithTimeout bounds each dial attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error { c.timeout = d; return nil }
}

func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) error { c.pingInterval = d; return nil }
}

// WithDrainTimeout bounds how long Close waits for in-flight messages.
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error { c.drainTimeout = d; return nil }
}

// Reconnection and circuit breaker

// WithMaxReconnects caps reconnect attempts after a drop. -1 retries forever.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error { c.maxReconnects = n; return nil }
}

func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error { c.reconnectWait = d; return nil }
}

// WithCircuitBreakerThreshold sets how many consecutive connect failures
// open the breaker.
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			return fmt.Errorf("circuit breaker threshold must be at least 1, got %d", threshold)
		}
		c.circuitThreshold = threshold
		return nil
	}
}

// WithMaxBackoff caps the breaker's exponential backoff.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("max backoff must be positive, got %v", d)
		}
		c.maxBackoff = d
		return nil
	}
}

// Authentication

func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username, c.password = username, password
		return nil
	}
}

func WithToken(token string) ClientOption {
	return func(c *Client) error { c.token = token; return nil }
}

// WithTLS sets a client certificate and a CA bundle. Either may be empty,
// but a certificate needs its key.
func WithTLS(certFile, keyFile, caFile string) ClientOption {
	return func(c *Client) error {
		if (certFile == "") != (keyFile == "") {
			return fmt.Errorf("tls cert and key must be set together")
		}
		c.tlsCertFile, c.tlsKeyFile, c.tlsCAFile = certFile, keyFile, caFile
		return nil
	}
}

// Observability

// WithLogger sets the client logger. nil keeps the default.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger.With("component", "natsclient")
		}
		return nil
	}
}

// WithMetrics reports connection state and reconnects through the
// registry's core metrics.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		if registry != nil {
			c.metrics = registry.CoreMetrics()
		}
		return nil
	}
}

// WithHealthChangeCallback is called with the new state each time the
// connection goes up or down.
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error { c.onHealthChange = fn; return nil }
}
