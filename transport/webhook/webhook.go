// Package webhook provides the inbound HTTP endpoint. It mounts one route on
// the host router and emits every request body into the pipeline. Routes can
// require an HS256/384/512 JWT bearer token and can be rate limited.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
)

// Kind is the registry name of this endpoint
const Kind = "webhook"

// Metadata keys set on inbound contexts
const (
	MetaMethod      = "http_method"
	MetaPath        = "http_path"
	MetaContentType = "content_type"
	MetaSubject     = "subject"
)

// DefaultMaxBody bounds request bodies
const DefaultMaxBody = 1 << 20

// Metadata configures the webhook endpoint.
type Metadata struct {
	component.MetadataBase `yaml:",inline"`

	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Path      string `json:"path" yaml:"path" validate:"required,startswith=/"`
	Method    string `json:"method,omitempty" yaml:"method,omitempty" validate:"oneof=POST PUT PATCH"`
	MaxBody   int64  `json:"max_body,omitempty" yaml:"max_body,omitempty" validate:"gte=0"`
	JWTSecret string `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty" validate:"omitempty,min=32"`
	JWTIssuer string `json:"jwt_issuer,omitempty" yaml:"jwt_issuer,omitempty"`

	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty" validate:"gte=0"`
	Burst     int     `json:"burst,omitempty" yaml:"burst,omitempty" validate:"gte=0"`
}

// ParseMetadata decodes raw JSON configuration
func ParseMetadata(raw json.RawMessage) (component.CommunicationMetadata, error) {
	md := &Metadata{}
	if err := component.DecodeConfig(raw, md); err != nil {
		return nil, errors.Wrap(err, "WebhookMetadata", "Parse", "config decode")
	}
	return md, nil
}

// EnrichOrValidate fills defaults
func (m *Metadata) EnrichOrValidate() error {
	m.Type = component.TypeHTTP
	if m.Direction == component.DirectionNone {
		m.Direction = component.DirectionInput
	}
	m.Method = strings.ToUpper(m.Method)
	if m.Method == "" {
		m.Method = http.MethodPost
	}
	if m.MaxBody == 0 {
		m.MaxBody = DefaultMaxBody
	}
	if m.RateLimit > 0 && m.Burst == 0 {
		m.Burst = max(1, int(m.RateLimit))
	}
	if err := component.ValidateStruct("WebhookMetadata", m); err != nil {
		return err
	}
	if err := mount(chi.NewRouter(), m.Method, m.Path, http.NotFoundHandler()); err != nil {
		return errors.WrapInvalid(err, "WebhookMetadata", "EnrichOrValidate", "path pattern")
	}
	return nil
}

// mount adds a route, reporting chi's pattern panics as errors.
func mount(r chi.Router, method, path string, h http.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: route %s %s: %v", errors.ErrInvalidConfig, method, path, rec)
		}
	}()
	r.Method(method, path, h)
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
	return &Core{
		BaseCore: component.NewBaseCore[*Metadata](m, component.DirectionInput, component.Metadata{
			Name:        m.name(),
			Kind:        Kind,
			Description: fmt.Sprintf("HTTP %s %s", m.Method, m.Path),
			Version:     "1.0.0",
		}, deps),
	}, nil
}

// Core is the webhook endpoint.
type Core struct {
	*component.BaseCore[*Metadata]

	limiter  *rate.Limiter
	mounted  atomic.Bool
	accepted atomic.Int64
	rejected atomic.Int64
	limited  atomic.Int64
}

// ConfigureRoutes mounts the route. The handler answers 503 until Init.
// A route another handler already serves for the same method is refused.
func (c *Core) ConfigureRoutes(r chi.Router) error {
	if !c.mounted.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "WebhookCore", "ConfigureRoutes", "mount")
	}

	cfg := c.Config()
	if r.Match(chi.NewRouteContext(), cfg.Method, cfg.Path) {
		c.mounted.Store(false)
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s %s", errors.ErrRouteConflict, cfg.Method, cfg.Path),
			"WebhookCore", "ConfigureRoutes", "mount")
	}

	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
		r = r.With(c.throttle)
	}
	if cfg.JWTSecret != "" {
		r = r.With(c.requireToken)
	}
	if err := mount(r, cfg.Method, cfg.Path, http.HandlerFunc(c.handle)); err != nil {
		c.mounted.Store(false)
		return errors.WrapInvalid(err, "WebhookCore", "ConfigureRoutes", "mount")
	}

	c.Logger().Info("Webhook route mounted", "method", cfg.Method, "path", cfg.Path, "auth", cfg.JWTSecret != "")
	return nil
}

// Init marks the endpoint ready. A route that was never mounted is an error.
func (c *Core) Init(context.Context) error {
	if !c.mounted.Load() {
		c.SetState(component.StateFailed)
		return errors.WrapInvalid(
			fmt.Errorf("%w: route %s not mounted on a host router", errors.ErrNotStarted, c.Config().Path),
			"WebhookCore", "Init", "route check")
	}
	c.SetState(component.StateInitialized)
	return nil
}

type subjectKey struct{}

// throttle answers 429 once the token bucket is empty.
func (c *Core) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.limiter.Allow() {
			c.limited.Add(1)
			w.Header().Set("Retry-After", "1")
			c.reject(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Core) requireToken(next http.Handler) http.Handler {
	cfg := c.Config()
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	parser := jwt.NewParser(opts...)
	secret := []byte(cfg.JWTSecret)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.reject(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims := &jwt.RegisteredClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return secret, nil
		}); err != nil {
			c.Logger().Debug("Token rejected", "error", err)
			c.reject(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, claims.Subject)))
	})
}

func (c *Core) handle(w http.ResponseWriter, r *http.Request) {
	if c.State() != component.StateInitialized {
		c.reject(w, http.StatusServiceUnavailable, "endpoint not initialized")
		return
	}

	cfg := c.Config()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, cfg.MaxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.reject(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		c.reject(w, http.StatusBadRequest, "read body failed")
		return
	}

	dc := c.CreateData(body)
	dc.Set(MetaMethod, r.Method)
	dc.Set(MetaPath, r.URL.Path)
	if ct := r.Header.Get("Content-Type"); ct != "" {
		dc.Set(MetaContentType, ct)
	}
	if sub, ok := r.Context().Value(subjectKey{}).(string); ok && sub != "" {
		dc.Set(MetaSubject, sub)
	}

	delivery, err := c.EmitContext(r.Context(), dc)
	if err != nil {
		c.CollectException(err, "webhook emit")
		c.reject(w, http.StatusServiceUnavailable, "endpoint not bound")
		return
	}

	switch delivery {
	case component.Delivered:
		c.accepted.Add(1)
		c.respond(w, http.StatusAccepted, dc.ID.String(), delivery, "")
	case component.Dropped:
		c.accepted.Add(1)
		c.respond(w, http.StatusOK, dc.ID.String(), delivery, "")
	default:
		c.rejected.Add(1)
		c.respond(w, http.StatusInternalServerError, dc.ID.String(), delivery, "dispatch faulted")
	}
}

type response struct {
	ID       string `json:"id,omitempty"`
	Delivery string `json:"delivery,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (c *Core) reject(w http.ResponseWriter, status int, reason string) {
	c.rejected.Add(1)
	c.writeJSON(w, status, response{Error: reason})
}

func (c *Core) respond(w http.ResponseWriter, status int, id string, d component.Delivery, reason string) {
	c.writeJSON(w, status, response{ID: id, Delivery: d.String(), Error: reason})
}

func (c *Core) writeJSON(w http.ResponseWriter, status int, v response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.Logger().Error("Failed to encode response", "error", err)
	}
}

// Close marks the endpoint closed. The route stays mounted and answers 503.
func (c *Core) Close(context.Context) error {
	c.SetState(component.StateClosed)
	return nil
}

// Describe reports live state
func (c *Core) Describe() map[string]any {
	cfg := c.Config()
	return map[string]any{
		"route":    cfg.Method + " " + cfg.Path,
		"auth":     cfg.JWTSecret != "",
		"mounted":  c.mounted.Load(),
		"accepted": c.accepted.Load(),
		"rejected": c.rejected.Load(),
		"limited":  c.limited.Load(),
	}
}

// Register adds the webhook endpoint kind to registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Name:        Kind,
		Role:        component.RoleEndpoint,
		Protocol:    string(component.TypeHTTP),
		Description: "Inbound HTTP route with optional JWT auth",
		Version:     "1.0.0",
		Endpoint:    ParseMetadata,
	})
}
