package engine

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/health"
)

// RegisterHTTPHandlers mounts the monitoring API on r.
//
//	GET    /channels
//	GET    /channels/{id}
//	GET    /channels/{id}/exceptions?n=
//	DELETE /channels/{id}/exceptions
//	POST   /channels/{id}/reinitialize
//	GET    /channels/{id}/middlewares/{name}
//	GET    /exceptions
//	GET    /health
func (c *Central) RegisterHTTPHandlers(r chi.Router) {
	r.Get("/health", c.handleHealth)
	r.Get("/exceptions", c.handleExceptionSummary)
	r.Route("/channels", func(r chi.Router) {
		r.Get("/", c.handleChannels)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", c.handleChannel)
			r.Get("/exceptions", c.handleExceptions)
			r.Delete("/exceptions", c.handleClearExceptions)
			r.Post("/reinitialize", c.handleReInitialize)
			r.Get("/middlewares/{name}", c.handleMiddleware)
		})
	})
	c.logger.Info("Central HTTP handlers registered")
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Central) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Error("Failed to encode response", "error", err)
	}
}

func (c *Central) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrChannelNotFound), errors.Is(err, errors.ErrMiddlewareNotFound):
		status = http.StatusNotFound
	case errors.IsInvalid(err):
		status = http.StatusBadRequest
	}
	c.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (c *Central) handleHealth(w http.ResponseWriter, _ *http.Request) {
	overall := c.Health()

	status := http.StatusOK
	if overall.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	c.writeJSON(w, status, overall)
}

func (c *Central) handleChannels(w http.ResponseWriter, _ *http.Request) {
	channels := c.Status()
	c.writeJSON(w, http.StatusOK, struct {
		Channels []ChannelStatus `json:"channels"`
		Total    int             `json:"total"`
	}{channels, len(channels)})
}

func (c *Central) handleChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := c.Channel(chi.URLParam(r, "id"))
	if err != nil {
		c.writeError(w, err)
		return
	}

	c.writeJSON(w, http.StatusOK, struct {
		ChannelStatus
		Health health.Status `json:"health"`
	}{ch.Status(), ch.Health()})
}

func (c *Central) handleExceptionSummary(w http.ResponseWriter, _ *http.Request) {
	c.writeJSON(w, http.StatusOK, c.ExceptionSummary())
}

func (c *Central) handleExceptions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ch, err := c.Channel(id)
	if err != nil {
		c.writeError(w, err)
		return
	}

	n := ch.pipeline.Exceptions().MaxSize()
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err = strconv.Atoi(raw)
		if err != nil {
			c.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "n must be an integer"})
			return
		}
	}

	exceptions, err := c.Exceptions(id, n)
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, exceptions)
}

func (c *Central) handleClearExceptions(w http.ResponseWriter, r *http.Request) {
	if err := c.ClearExceptions(chi.URLParam(r, "id")); err != nil {
		c.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Central) handleReInitialize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.ReInitialize(r.Context(), id); err != nil {
		if errors.Is(err, errors.ErrChannelNotFound) {
			c.writeError(w, err)
			return
		}
		ch, _ := c.Channel(id)
		c.writeJSON(w, http.StatusServiceUnavailable, ch.Status())
		return
	}

	ch, _ := c.Channel(id)
	c.writeJSON(w, http.StatusOK, ch.Status())
}

func (c *Central) handleMiddleware(w http.ResponseWriter, r *http.Request) {
	mw, err := c.Middleware(chi.URLParam(r, "id"), chi.URLParam(r, "name"))
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, describeComponent(mw, ""))
}
