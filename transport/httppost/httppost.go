// Package httppost provides the outbound HTTP endpoint. Every delivered
// payload is sent as one request to the configured URL, retrying transient
// failures with exponential backoff.
package httppost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/pkg/retry"
	"github.com/c360/datachannel/pkg/tlsutil"
	"github.com/c360/datachannel/transport/wire"
)

// Kind is the registry name of this endpoint
const Kind = "httppost"

// MetaHeaderPrefix marks context metadata copied into request headers. A
// context carrying "header.X-Trace" sends it as the X-Trace header.
const MetaHeaderPrefix = "header."

// Defaults
const (
	DefaultTimeout     = 30
	DefaultRetryCount  = 3
	DefaultContentType = "application/json"
)

// Metadata configures the HTTP POST endpoint.
type Metadata struct {
	component.MetadataBase `yaml:",inline"`

	Name        string                `json:"name,omitempty" yaml:"name,omitempty"`
	URL         string                `json:"url" yaml:"url" validate:"required,url"`
	Method      string                `json:"method,omitempty" yaml:"method,omitempty" validate:"oneof=POST PUT PATCH"`
	Headers     map[string]string     `json:"headers,omitempty" yaml:"headers,omitempty"`
	ContentType string                `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Timeout     int                   `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"gte=0,lte=300"`
	RetryCount  *int                  `json:"retry_count,omitempty" yaml:"retry_count,omitempty" validate:"omitempty,gte=0,lte=10"`
	TLS         *tlsutil.ClientConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// ParseMetadata decodes raw JSON configuration
func ParseMetadata(raw json.RawMessage) (component.CommunicationMetadata, error) {
	md := &Metadata{}
	if err := component.DecodeConfig(raw, md); err != nil {
		return nil, errors.Wrap(err, "HTTPPostMetadata", "Parse", "config decode")
	}
	return md, nil
}

// EnrichOrValidate fills defaults
func (m *Metadata) EnrichOrValidate() error {
	m.Type = component.TypeHTTP
	if m.Direction == component.DirectionNone {
		m.Direction = component.DirectionOutput
	}
	if m.Method == "" {
		m.Method = http.MethodPost
	}
	if m.ContentType == "" {
		m.ContentType = DefaultContentType
	}
	if m.Timeout == 0 {
		m.Timeout = DefaultTimeout
	}
	if m.RetryCount == nil {
		n := DefaultRetryCount
		m.RetryCount = &n
	}
	if err := component.ValidateStruct("HTTPPostMetadata", m); err != nil {
		return err
	}

	u, err := url.Parse(m.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: url must be http or https", errors.ErrInvalidConfig),
			"HTTPPostMetadata", "EnrichOrValidate", "url check")
	}
	return nil
}

func (m *Metadata) name() string {
	if m.Name != "" {
		return m.Name
	}
	return Kind
}

// NewCore builds the endpoint
func (m *Metadata) NewCore(deps component.Dependencies) (component.CommunicationCore, error) {
	c := &Core{
		BaseCore: component.NewBaseCore[*Metadata](m, component.DirectionOutput, component.Metadata{
			Name:        m.name(),
			Kind:        Kind,
			Description: fmt.Sprintf("HTTP %s to %s", m.Method, m.URL),
			Version:     "1.0.0",
		}, deps),
	}
	c.metrics = wire.NewMetrics(deps.MetricsRegistry, Kind, m.name(), c.Logger())
	return c, nil
}

// Core is the HTTP POST endpoint.
type Core struct {
	*component.BaseCore[*Metadata]

	metrics *wire.Metrics

	mu     sync.RWMutex
	client *http.Client

	sent         atomic.Int64
	retried      atomic.Int64
	failed       atomic.Int64
	lastStatus   atomic.Int32
	lastActivity atomic.Int64
}

// Init builds the HTTP client. No request is made.
func (c *Core) Init(context.Context) error {
	cfg := c.Config()
	client := &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}

	if cfg.TLS.Enabled() {
		tlsConfig, err := tlsutil.LoadClientConfig(*cfg.TLS)
		if err != nil {
			c.SetState(component.StateFailed)
			return errors.Wrap(err, "HTTPPostCore", "Init", "client TLS")
		}
		client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	c.SetState(component.StateInitialized)
	return nil
}

// Close releases idle connections.
func (c *Core) Close(context.Context) error {
	c.mu.Lock()
	if c.client != nil {
		c.client.CloseIdleConnections()
		c.client = nil
	}
	c.mu.Unlock()
	c.SetState(component.StateClosed)
	return nil
}

// Receive sends the payload. 4xx responses other than 408 and 429 are not
// retried.
func (c *Core) Receive(ctx context.Context, dc *message.DataContext) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return errors.WrapTransient(errors.ErrNotStarted, "HTTPPostCore", "Receive", "client check")
	}

	data, err := wire.ContextBytes(dc)
	if err != nil {
		return errors.Wrap(err, "HTTPPostCore", "Receive", "encode payload")
	}
	c.lastActivity.Store(time.Now().UnixNano())

	cfg := c.Config()
	rc := retry.DefaultConfig()
	rc.MaxAttempts = *cfg.RetryCount + 1

	attempt := 0
	err = retry.Do(ctx, rc, func() error {
		attempt++
		if attempt > 1 {
			c.retried.Add(1)
		}
		return c.send(ctx, client, dc, data)
	})
	if err != nil {
		c.failed.Add(1)
		c.metrics.Error()
		if retry.IsNonRetryable(err) {
			return errors.WrapInvalid(err, "HTTPPostCore", "Receive", cfg.Method+" "+cfg.URL)
		}
		return errors.WrapTransient(err, "HTTPPostCore", "Receive", cfg.Method+" "+cfg.URL)
	}

	c.sent.Add(1)
	c.metrics.Sent(len(data))
	return nil
}

func (c *Core) send(ctx context.Context, client *http.Client, dc *message.DataContext, data []byte) error {
	cfg := c.Config()
	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bytes.NewReader(data))
	if err != nil {
		return retry.NonRetryable(err)
	}

	req.Header.Set("Content-Type", cfg.ContentType)
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}
	for key, value := range dc.Metadata {
		if name, ok := strings.CutPrefix(key, MetaHeaderPrefix); ok && name != "" {
			req.Header.Set(name, fmt.Sprint(value))
		}
	}
	req.Header.Set("X-Message-ID", dc.ID.String())

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.lastStatus.Store(int32(resp.StatusCode))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	statusErr := fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return retry.NonRetryable(statusErr)
	}
	return statusErr
}

// Describe reports live state
func (c *Core) Describe() map[string]any {
	cfg := c.Config()
	last := ""
	if ns := c.lastActivity.Load(); ns > 0 {
		last = time.Unix(0, ns).UTC().Format(time.RFC3339)
	}
	return map[string]any{
		"url":           cfg.URL,
		"method":        cfg.Method,
		"sent":          c.sent.Load(),
		"retried":       c.retried.Load(),
		"failed":        c.failed.Load(),
		"last_status":   strconv.Itoa(int(c.lastStatus.Load())),
		"last_activity": last,
	}
}

// Register adds the HTTP POST endpoint kind to registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Name:        Kind,
		Role:        component.RoleEndpoint,
		Protocol:    string(component.TypeHTTP),
		Description: "Outbound HTTP requests with retries",
		Version:     "1.0.0",
		Endpoint:    ParseMetadata,
	})
}
