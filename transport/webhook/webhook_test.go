package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/pipeline"
	"github.com/c360/datachannel/testutil"
	"github.com/c360/datachannel/transport/inproc"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestEnrichOrValidate(t *testing.T) {
	md := &Metadata{Path: "/hooks/orders", Method: "put"}
	require.NoError(t, md.EnrichOrValidate())
	assert.Equal(t, http.MethodPut, md.Method)
	assert.Equal(t, int64(DefaultMaxBody), md.MaxBody)
	assert.Equal(t, component.DirectionInput, md.Direction)
	assert.Zero(t, md.Burst)

	limited := &Metadata{Path: "/h", RateLimit: 5}
	require.NoError(t, limited.EnrichOrValidate())
	assert.Equal(t, 5, limited.Burst)

	for name, bad := range map[string]*Metadata{
		"missing path":  {},
		"relative path": {Path: "hooks"},
		"get method":    {Path: "/h", Method: "GET"},
		"short secret":  {Path: "/h", JWTSecret: "short"},
		"negative rate": {Path: "/h", RateLimit: -1},
		"open brace":    {Path: "/in/{id"},
		"dup param":     {Path: "/in/{id}/{id}"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errors.IsInvalid(bad.EnrichOrValidate()))
		})
	}
}

type WebhookSuite struct {
	suite.Suite
	pipeline *pipeline.Pipeline
	core     *Core
	router   chi.Router
	received chan *message.DataContext
}

func TestWebhookSuite(t *testing.T) {
	suite.Run(t, new(WebhookSuite))
}

func (s *WebhookSuite) build(md *Metadata, mws ...component.Component) {
	b := pipeline.NewBuilder("webhook").Outer(md)
	for _, mw := range mws {
		b.Use(mw)
	}
	p, err := b.Build(component.Dependencies{})
	s.Require().NoError(err)

	s.pipeline = p
	s.core = p.Outer().(*Core)
	s.router = chi.NewRouter()
	s.received = make(chan *message.DataContext, 4)

	s.Require().NoError(s.core.ConfigureRoutes(s.router))
	s.Require().NoError(p.Init(context.Background()))
	s.Require().NoError(p.Inner().(*inproc.Core).OnReceive(context.Background(),
		func(_ context.Context, dc *message.DataContext) error {
			s.received <- dc
			return nil
		}))
}

func (s *WebhookSuite) post(path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *WebhookSuite) TestDeliversBody() {
	s.build(&Metadata{Path: "/hooks/orders"})

	rec := s.post("/hooks/orders", `{"id":1}`, "")
	s.Require().Equal(http.StatusAccepted, rec.Code)

	var resp response
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("delivered", resp.Delivery)
	s.NotEmpty(resp.ID)

	dc := <-s.received
	s.Equal([]byte(`{"id":1}`), dc.Data)
	ct, _ := dc.Get(MetaContentType)
	s.Equal("application/json", ct)
	path, _ := dc.Get(MetaPath)
	s.Equal("/hooks/orders", path)
}

func (s *WebhookSuite) TestFaultedDispatch() {
	s.build(&Metadata{Path: "/hooks/orders"}, &testutil.TransformFunc{
		Name: "reject",
		Fn: func(*message.DataContext) (*message.DataContext, error) {
			return nil, errors.New("bad payload")
		},
	})

	rec := s.post("/hooks/orders", `x`, "")
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal(1, s.pipeline.Exceptions().Count())
}

func (s *WebhookSuite) TestBodyLimit() {
	s.build(&Metadata{Path: "/hooks/small", MaxBody: 4})
	s.Equal(http.StatusRequestEntityTooLarge, s.post("/hooks/small", "too large", "").Code)
}

func (s *WebhookSuite) TestRateLimit() {
	s.build(&Metadata{Path: "/hooks/slow", RateLimit: 0.01, Burst: 2})

	s.Equal(http.StatusAccepted, s.post("/hooks/slow", "a", "").Code)
	s.Equal(http.StatusAccepted, s.post("/hooks/slow", "b", "").Code)

	rec := s.post("/hooks/slow", "c", "")
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("1", rec.Header().Get("Retry-After"))

	desc := s.core.Describe()
	s.Equal(int64(2), desc["accepted"])
	s.Equal(int64(1), desc["limited"])
}

func (s *WebhookSuite) TestClosedEndpointUnavailable() {
	s.build(&Metadata{Path: "/hooks/orders"})
	s.Require().NoError(s.pipeline.Close(context.Background()))
	s.Equal(http.StatusServiceUnavailable, s.post("/hooks/orders", "x", "").Code)
}

func (s *WebhookSuite) TestJWT() {
	s.build(&Metadata{Path: "/hooks/secure", JWTSecret: secret, JWTIssuer: "billing"})

	sign := func(claims jwt.RegisteredClaims, key string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		s.Require().NoError(err)
		return token
	}
	valid := jwt.RegisteredClaims{
		Subject:   "svc-billing",
		Issuer:    "billing",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	s.Equal(http.StatusUnauthorized, s.post("/hooks/secure", "x", "").Code)
	s.Equal(http.StatusUnauthorized, s.post("/hooks/secure", "x", sign(valid, "wrong-secret-wrong-secret-wrong-secret")).Code)

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	s.Equal(http.StatusUnauthorized, s.post("/hooks/secure", "x", sign(expired, secret)).Code)

	otherIssuer := valid
	otherIssuer.Issuer = "someone-else"
	s.Equal(http.StatusUnauthorized, s.post("/hooks/secure", "x", sign(otherIssuer, secret)).Code)

	s.Require().Equal(http.StatusAccepted, s.post("/hooks/secure", "x", sign(valid, secret)).Code)
	dc := <-s.received
	sub, _ := dc.Get(MetaSubject)
	s.Equal("svc-billing", sub)

	desc := s.core.Describe()
	s.Equal(int64(1), desc["accepted"])
	s.Equal(int64(4), desc["rejected"])
}

func TestInit_RequiresMountedRoute(t *testing.T) {
	p, err := pipeline.NewBuilder("unmounted").Outer(&Metadata{Path: "/h"}).Build(component.Dependencies{})
	require.NoError(t, err)

	err = p.Init(context.Background())
	require.Error(t, err)
	assert.True(t, p.IsNotAvailable())
}

func TestConfigureRoutes_Once(t *testing.T) {
	md := &Metadata{Path: "/h"}
	require.NoError(t, md.EnrichOrValidate())
	core, err := md.NewCore(component.Dependencies{})
	require.NoError(t, err)

	r := chi.NewRouter()
	require.NoError(t, core.(*Core).ConfigureRoutes(r))
	assert.Error(t, core.(*Core).ConfigureRoutes(r))
}

func TestConfigureRoutes_Conflicts(t *testing.T) {
	newCore := func(method, path string) *Core {
		md := &Metadata{Path: path, Method: method}
		require.NoError(t, md.EnrichOrValidate())
		core, err := md.NewCore(component.Dependencies{})
		require.NoError(t, err)
		return core.(*Core)
	}

	r := chi.NewRouter()
	r.Handle("/metrics", http.NotFoundHandler())
	require.NoError(t, newCore("POST", "/hooks/orders").ConfigureRoutes(r))

	for name, core := range map[string]*Core{
		"same route":    newCore("POST", "/hooks/orders"),
		"host endpoint": newCore("POST", "/metrics"),
	} {
		t.Run(name, func(t *testing.T) {
			err := core.ConfigureRoutes(r)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrRouteConflict)
			assert.True(t, errors.IsInvalid(err))
			assert.False(t, core.Describe()["mounted"].(bool))
		})
	}

	assert.NoError(t, newCore("PUT", "/hooks/orders").ConfigureRoutes(r))
}
