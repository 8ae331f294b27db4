package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/health"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/pipeline"
	"github.com/c360/datachannel/testutil"
)

type HTTPSuite struct {
	suite.Suite
	central *Central
	router  chi.Router
	broken  *testutil.MockMetadata
}

func TestHTTPSuite(t *testing.T) {
	suite.Run(t, new(HTTPSuite))
}

func (s *HTTPSuite) SetupTest() {
	orders, _ := mockBuilder("orders")
	orders.Use(&testutil.ObserverFunc{Name: "tap", Fn: func(context.Context, *message.DataContext) {}})
	broken, outer := mockBuilder("broken", failingInit)
	s.broken = outer

	s.central = NewCentral(component.Dependencies{}, Config{})
	s.Require().NoError(s.central.RegisterBuilder(orders))
	s.Require().NoError(s.central.RegisterBuilder(broken))
	s.Require().NoError(s.central.StartBuild(nil))
	s.Require().Error(s.central.InitAll(context.Background()))

	s.router = chi.NewRouter()
	s.central.RegisterHTTPHandlers(s.router)
}

func (s *HTTPSuite) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HTTPSuite) TestListChannels() {
	rec := s.do(http.MethodGet, "/channels")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Channels []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"channels"`
		Total int `json:"total"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(2, body.Total)
	s.Equal("orders", body.Channels[0].ID)
	s.Equal("ready", body.Channels[0].Status)
	s.Equal("not_available", body.Channels[1].Status)
}

func (s *HTTPSuite) TestGetChannel() {
	rec := s.do(http.MethodGet, "/channels/broken")
	s.Require().Equal(http.StatusOK, rec.Code)

	var body struct {
		ID             string        `json:"id"`
		ExceptionCount int           `json:"exception_count"`
		Health         health.Status `json:"health"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("broken", body.ID)
	s.Equal(1, body.ExceptionCount)
	s.Equal("unhealthy", body.Health.Status)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/channels/missing").Code)
}

func (s *HTTPSuite) TestExceptions() {
	rec := s.do(http.MethodGet, "/channels/broken/exceptions")
	s.Require().Equal(http.StatusOK, rec.Code)

	var exceptions []pipeline.PipelineException
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &exceptions))
	s.Require().Len(exceptions, 1)
	s.Equal(component.SourceEndpoint, exceptions[0].SourceType)
	s.NotEmpty(exceptions[0].Message)

	rec = s.do(http.MethodGet, "/channels/broken/exceptions?n=0")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, rec.Body.String())

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/channels/broken/exceptions?n=abc").Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/channels/missing/exceptions").Code)
}

func (s *HTTPSuite) TestClearExceptions() {
	rec := s.do(http.MethodDelete, "/channels/broken/exceptions")
	s.Equal(http.StatusNoContent, rec.Code)

	ch, err := s.central.Channel("broken")
	s.Require().NoError(err)
	s.Equal(0, ch.Pipeline().Exceptions().Count())
	s.Equal(int64(1), ch.Pipeline().Exceptions().TotalCount())
}

func (s *HTTPSuite) TestReInitialize() {
	rec := s.do(http.MethodPost, "/channels/broken/reinitialize")
	s.Equal(http.StatusServiceUnavailable, rec.Code)

	s.broken.Core.SetInitFunc(nil)
	rec = s.do(http.MethodPost, "/channels/broken/reinitialize")
	s.Require().Equal(http.StatusOK, rec.Code)

	var body ChannelStatus
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.True(body.Initialized)

	s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/channels/missing/reinitialize").Code)
}

func (s *HTTPSuite) TestMiddleware() {
	rec := s.do(http.MethodGet, "/channels/orders/middlewares/tap")
	s.Require().Equal(http.StatusOK, rec.Code)

	var info ComponentInfo
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &info))
	s.Equal("tap", info.Name)
	s.Equal("observer_func", info.Kind)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/channels/orders/middlewares/nope").Code)
}

func (s *HTTPSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health")
	s.Equal(http.StatusServiceUnavailable, rec.Code)

	var status health.Status
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	s.Equal("unhealthy", status.Status)
	s.Len(status.SubStatuses, 2)

	s.broken.Core.SetInitFunc(nil)
	s.Require().NoError(s.central.ReInitialize(context.Background(), "broken"))
	s.Require().NoError(s.central.ClearExceptions("broken"))

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health").Code)
}

func (s *HTTPSuite) TestExceptionSummary() {
	rec := s.do(http.MethodGet, "/exceptions")
	s.Require().Equal(http.StatusOK, rec.Code)

	var summary []pipeline.ExceptionSummary
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &summary))
	s.Require().Len(summary, 2)
	s.Equal(0, summary[0].Count)
	s.Equal(1, summary[1].Count)
}

func TestWriteError_MapsInvalidToBadRequest(t *testing.T) {
	central := NewCentral(component.Dependencies{}, Config{})
	rec := httptest.NewRecorder()

	central.writeError(rec, central.RegisterBuilder(nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
}
