package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/health"
	"github.com/c360/datachannel/pipeline"
	"github.com/c360/datachannel/pkg/worker"
)

// DefaultInitWorkers bounds how many channels initialize at once.
const DefaultInitWorkers = 10

// DefaultInitTimeout bounds how long InitAll waits for the last channel.
const DefaultInitTimeout = 5 * time.Minute

// Config tunes a Central.
type Config struct {
	// RecentExceptions is the pool size for builders that did not set one.
	RecentExceptions int
	// InitWorkers is the number of channels initialized concurrently.
	InitWorkers int
	// InitTimeout bounds a single InitAll run.
	InitTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RecentExceptions <= 0 {
		c.RecentExceptions = pipeline.DefaultRecentExceptions
	}
	if c.InitWorkers <= 0 {
		c.InitWorkers = DefaultInitWorkers
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	return c
}

type channelSet struct {
	byID  map[string]*Channel
	order []*Channel
}

// Central owns every channel in the process. Builders are registered first,
// StartBuild turns them into channels exactly once, and InitializeWhenReady
// brings the channels up once the host signals readiness.
//
// The channel set is published atomically at the end of StartBuild and never
// changes afterwards, so lookups take no lock.
type Central struct {
	deps    component.Dependencies
	cfg     Config
	logger  *slog.Logger
	metrics *centralMetrics

	mu       sync.Mutex
	builders []*pipeline.Builder
	pending  map[string]struct{}
	failures map[string]error

	built    atomic.Bool
	channels atomic.Pointer[channelSet]
}

var _ pipeline.BuilderRegistrar = (*Central)(nil)

// NewCentral creates an empty registry. Metrics registration failures are
// logged and leave the central running without its own metrics.
func NewCentral(deps component.Dependencies, cfg Config) *Central {
	logger := deps.GetLoggerWithComponent("central")

	metrics, err := newCentralMetrics(deps.MetricsRegistry)
	if err != nil {
		logger.Error("Failed to initialize central metrics", "error", err)
		metrics = nil
	}

	return &Central{
		deps:     deps,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		metrics:  metrics,
		pending:  make(map[string]struct{}),
		failures: make(map[string]error),
	}
}

// RegisterBuilder queues b for StartBuild. Ids must be unique.
func (c *Central) RegisterBuilder(b *pipeline.Builder) error {
	if b == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Central", "RegisterBuilder", "nil builder")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyBuilt, "Central", "RegisterBuilder",
			fmt.Sprintf("register channel %s", b.ID()))
	}
	if _, dup := c.pending[b.ID()]; dup {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrDuplicateChannel, b.ID()),
			"Central", "RegisterBuilder", "register channel")
	}

	c.pending[b.ID()] = struct{}{}
	c.builders = append(c.builders, b)
	return nil
}

// StartBuild builds every registered builder and then lets adapters that
// expose inbound routes mount them on host. It runs once.
//
// A failing build does not stop the others; every failure is logged, kept in
// BuildFailures and returned joined.
func (c *Central) StartBuild(host chi.Router) error {
	c.mu.Lock()
	if !c.built.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyBuilt, "Central", "StartBuild", "build channels")
	}
	builders := c.builders
	c.builders = nil
	c.mu.Unlock()

	start := time.Now()
	set := &channelSet{byID: make(map[string]*Channel, len(builders))}
	failures := make(map[string]error)
	var errs []error

	for _, b := range builders {
		p, err := b.Build(c.deps, pipeline.WithRecentExceptions(c.cfg.RecentExceptions))
		if err != nil {
			c.logger.Error("Channel build failed", "channel", b.ID(), "error", err)
			failures[b.ID()] = err
			errs = append(errs, errors.Wrap(err, "Central", "StartBuild", fmt.Sprintf("build channel %s", b.ID())))
			continue
		}
		ch := newChannel(p)
		set.byID[ch.ID()] = ch
		set.order = append(set.order, ch)
	}

	for _, ch := range set.order {
		if err := c.configureRoutes(ch, host); err != nil {
			errs = append(errs, err)
		}
	}

	c.mu.Lock()
	c.failures = failures
	c.mu.Unlock()
	c.channels.Store(set)

	ids := make([]string, 0, len(set.order))
	for _, ch := range set.order {
		ids = append(ids, ch.ID())
	}
	c.metrics.recordBuild(ids, slices.Sorted(maps.Keys(failures)), time.Since(start).Seconds())
	c.logger.Info("Channels built", "built", len(ids), "failed", len(failures))

	return errors.Join(errs...)
}

func (c *Central) configureRoutes(ch *Channel, host chi.Router) error {
	var errs []error
	for _, comp := range ch.pipeline.Components() {
		rc, ok := comp.(component.RouteConfigurer)
		if !ok {
			continue
		}
		if host == nil {
			c.logger.Warn("No HTTP host for inbound routes", "channel", ch.ID(), "component", component.Describe(comp))
			continue
		}
		if err := mountRoutes(rc, host); err != nil {
			ch.pipeline.CollectException(err, comp, "configure routes")
			errs = append(errs, errors.Wrap(err, "Central", "StartBuild",
				fmt.Sprintf("configure routes for %s", ch.ID())))
		}
	}
	return errors.Join(errs...)
}

// mountRoutes runs the route hook. chi panics on malformed patterns; that
// panic fails only the adapter that caused it.
func mountRoutes(rc component.RouteConfigurer, host chi.Router) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapInvalid(fmt.Errorf("%w: panic: %v", errors.ErrInvalidConfig, r),
				"Central", "configureRoutes", "mount routes")
		}
	}()
	return rc.ConfigureRoutes(host)
}

// IsBuilt reports whether StartBuild has run.
func (c *Central) IsBuilt() bool { return c.built.Load() }

// BuildFailures returns the build error of every channel that failed to build.
func (c *Central) BuildFailures() map[string]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.failures)
}

// InitializeWhenReady waits for ready to close, then initializes every channel.
// The returned channel closes once initialization finished or ctx ended.
// A nil ready starts immediately.
func (c *Central) InitializeWhenReady(ctx context.Context, ready <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if ready != nil {
			select {
			case <-ctx.Done():
				c.logger.Warn("Channel initialization abandoned before host was ready", "error", ctx.Err())
				return
			case <-ready:
			}
		}
		if err := c.InitAll(ctx); err != nil {
			c.logger.Warn("Some channels failed to initialize", "error", err)
		}
	}()
	return done
}

// InitAll initializes every channel on a bounded worker pool. A failing
// channel never blocks its siblings; its fault stays in its exception pool
// and is also part of the joined error returned here.
func (c *Central) InitAll(ctx context.Context) error {
	set := c.channels.Load()
	if set == nil || len(set.order) == 0 {
		return nil
	}

	start := time.Now()
	var (
		mu   sync.Mutex
		errs []error
	)

	pool := worker.NewPool(c.cfg.InitWorkers, len(set.order), func(ctx context.Context, ch *Channel) error {
		err := ch.pipeline.Init(ctx)
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
		return err
	}, worker.WithMetricsRegistry[*Channel](c.deps.MetricsRegistry, "channel_init"))

	if err := pool.Start(ctx); err != nil {
		return errors.WrapFatal(err, "Central", "InitAll", "start init workers")
	}
	for _, ch := range set.order {
		if err := pool.Submit(ch); err != nil {
			mu.Lock()
			errs = append(errs, errors.Wrap(err, "Central", "InitAll", fmt.Sprintf("queue channel %s", ch.ID())))
			mu.Unlock()
		}
	}
	if err := pool.Stop(c.cfg.InitTimeout); err != nil {
		mu.Lock()
		errs = append(errs, errors.WrapTransient(err, "Central", "InitAll", "wait for init workers"))
		mu.Unlock()
	}

	c.metrics.recordOperation("init", time.Since(start).Seconds())

	mu.Lock()
	defer mu.Unlock()
	ready := 0
	for _, ch := range set.order {
		if ch.pipeline.IsInitialized() {
			ready++
		}
	}
	c.logger.Info("Channels initialized", "ready", ready, "total", len(set.order))
	return errors.Join(errs...)
}

// Channel returns the channel registered under id.
func (c *Central) Channel(id string) (*Channel, error) {
	if set := c.channels.Load(); set != nil {
		if ch, ok := set.byID[id]; ok {
			return ch, nil
		}
	}
	return nil, errors.Wrap(fmt.Errorf("%w: %s", errors.ErrChannelNotFound, id), "Central", "Channel", "lookup")
}

// Channels returns every channel in registration order.
func (c *Central) Channels() []*Channel {
	set := c.channels.Load()
	if set == nil {
		return nil
	}
	return slices.Clone(set.order)
}

// Status snapshots every channel.
func (c *Central) Status() []ChannelStatus {
	channels := c.Channels()
	out := make([]ChannelStatus, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ch.Status())
	}
	return out
}

// ExceptionSummary returns the exception pool summary of every channel.
func (c *Central) ExceptionSummary() []pipeline.ExceptionSummary {
	channels := c.Channels()
	out := make([]pipeline.ExceptionSummary, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ch.pipeline.Exceptions().Summary())
	}
	return out
}

// Exceptions returns up to n most recent exceptions of channel id, newest first.
func (c *Central) Exceptions(id string, n int) ([]pipeline.PipelineException, error) {
	ch, err := c.Channel(id)
	if err != nil {
		return nil, err
	}
	return ch.pipeline.Exceptions().GetRecentExceptions(n), nil
}

// ReInitialize closes and initializes channel id again.
func (c *Central) ReInitialize(ctx context.Context, id string) error {
	ch, err := c.Channel(id)
	if err != nil {
		return err
	}

	err = ch.pipeline.ReInitialize(ctx)
	c.metrics.recordReinitialize(id, err == nil)
	if err != nil {
		c.logger.Warn("Channel re-initialization failed", "channel", id, "error", err)
		return errors.Wrap(err, "Central", "ReInitialize", fmt.Sprintf("reinitialize channel %s", id))
	}
	c.logger.Info("Channel re-initialized", "channel", id)
	return nil
}

// ClearExceptions empties the exception pool of channel id.
func (c *Central) ClearExceptions(id string) error {
	ch, err := c.Channel(id)
	if err != nil {
		return err
	}
	ch.pipeline.Exceptions().Clear()
	return nil
}

// Middleware looks up a middleware of channel id by name or kind.
func (c *Central) Middleware(id, name string) (component.Component, error) {
	ch, err := c.Channel(id)
	if err != nil {
		return nil, err
	}
	mw, ok := ch.pipeline.Middleware(name)
	if !ok {
		return nil, errors.Wrap(fmt.Errorf("%w: %s in %s", errors.ErrMiddlewareNotFound, name, id),
			"Central", "Middleware", "lookup")
	}
	return mw, nil
}

// Close closes every channel in reverse registration order.
func (c *Central) Close(ctx context.Context) error {
	start := time.Now()
	channels := c.Channels()

	var errs []error
	for i := len(channels) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			errs = append(errs, errors.WrapTransient(err, "Central", "Close", "close channels"))
			break
		}
		if err := channels[i].pipeline.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	c.metrics.recordOperation("close", time.Since(start).Seconds())
	c.logger.Info("Channels closed", "count", len(channels), "errors", len(errs))
	return errors.Join(errs...)
}

// Health aggregates the health of every channel. Channels that failed to
// build are reported unhealthy.
func (c *Central) Health() health.Status {
	if !c.built.Load() {
		return health.NewDegraded("datachannel", "Channels not built")
	}

	var subs []health.Status
	for _, ch := range c.Channels() {
		subs = append(subs, ch.Health())
	}

	failures := c.BuildFailures()
	for _, id := range slices.Sorted(maps.Keys(failures)) {
		subs = append(subs, health.NewUnhealthy(id, "Channel build failed"))
	}

	return health.Aggregate("datachannel", subs)
}
