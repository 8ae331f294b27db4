package component

import (
	"log/slog"

	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/metric"
	"github.com/c360/datachannel/natsclient"
)

// PlatformMeta identifies the running process to components.
type PlatformMeta struct {
	ID string `json:"id"`
}

// Dependencies provides all external dependencies needed by components.
// Every field may be nil; adapters that require one fail in EnrichOrValidate or NewCore.
type Dependencies struct {
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
	Platform        PlatformMeta
}

// RequireNATS returns the shared NATS client, or an invalid-class
// ErrMissingConfig naming comp when the process was started without one.
func (d Dependencies) RequireNATS(comp string) (*natsclient.Client, error) {
	if d.NATSClient == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, comp, "NewCore", "nats client dependency")
	}
	return d.NATSClient, nil
}

// GetLogger returns the configured logger, or slog.Default.
func (d Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent tags the logger with component=componentName.
func (d Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
