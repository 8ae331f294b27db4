// Package sqlstore provides the SQL endpoint backed by SQLite. Output inserts
// every delivered payload as a row; input polls the table for rows added
// since the last poll and emits them in id order.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/pkg/retry"
	"github.com/c360/datachannel/transport/wire"
)

// Kind is the registry name of this endpoint
const Kind = "sqlstore"

// Metadata keys set on polled contexts
const (
	MetaRowID     = "row_id"
	MetaMessageID = "message_id"
)

// Defaults
const (
	DefaultPollInterval = time.Second
	DefaultBatchSize    = 100
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Metadata configures the SQL endpoint.
type Metadata struct {
	component.MetadataBase `yaml:",inline"`

	Name         string        `json:"name,omitempty" yaml:"name,omitempty"`
	DSN          string        `json:"dsn" yaml:"dsn" validate:"required"`
	Table        string        `json:"table" yaml:"table" validate:"required"`
	PollInterval wire.Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	BatchSize    int           `json:"batch_size,omitempty" yaml:"batch_size,omitempty" validate:"gte=0,lte=10000"`
	FromStart    bool          `json:"from_start,omitempty" yaml:"from_start,omitempty"`
	Consume      bool          `json:"consume,omitempty" yaml:"consume,omitempty"`
}

// ParseMetadata decodes raw JSON configuration
func ParseMetadata(raw json.RawMessage) (component.CommunicationMetadata, error) {
	md := &Metadata{}
	if err := component.DecodeConfig(raw, md); err != nil {
		return nil, errors.Wrap(err, "SQLStoreMetadata", "Parse", "config decode")
	}
	return md, nil
}

// EnrichOrValidate fills defaults. Without an explicit direction the
// endpoint is a sink, and also polls when poll_interval is set.
func (m *Metadata) EnrichOrValidate() error {
	m.Type = component.TypeSQL
	if m.Direction == component.DirectionNone {
		m.Direction = component.DirectionOutput
		if m.PollInterval > 0 {
			m.Direction |= component.DirectionInput
		}
	}
	if m.PollInterval <= 0 {
		m.PollInterval = wire.Duration(DefaultPollInterval)
	}
	if m.BatchSize == 0 {
		m.BatchSize = DefaultBatchSize
	}
	if err := component.ValidateStruct("SQLStoreMetadata", m); err != nil {
		return err
	}
	if !identifier.MatchString(m.Table) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: table %q is not a plain identifier", errors.ErrInvalidConfig, m.Table),
			"SQLStoreMetadata", "EnrichOrValidate", "table check")
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
		BaseCore: component.NewBaseCore[*Metadata](m, component.DirectionInputAndOutput, component.Metadata{
			Name:        m.name(),
			Kind:        Kind,
			Description: "SQLite table " + m.Table,
			Version:     "1.0.0",
		}, deps),
	}
	c.metrics = wire.NewMetrics(deps.MetricsRegistry, Kind, m.name(), c.Logger())
	return c, nil
}

// Core is the SQL endpoint.
type Core struct {
	*component.BaseCore[*Metadata]

	metrics *wire.Metrics

	mu     sync.RWMutex
	db     *sql.DB
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cursor   atomic.Int64
	inserted atomic.Int64
	polled   atomic.Int64
}

// Init opens the database, creates the table and, for input, starts polling.
func (c *Core) Init(ctx context.Context) error {
	c.SetState(component.StateInitializing)
	c.stop()

	cfg := c.Config()
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		c.SetState(component.StateFailed)
		return errors.WrapInvalid(err, "SQLStoreCore", "Init", "open "+cfg.DSN)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := retry.Do(ctx, retry.Quick(), func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		c.SetState(component.StateFailed)
		return errors.WrapTransient(err, "SQLStoreCore", "Init", "ping")
	}
	if err := createTable(ctx, db, cfg.Table); err != nil {
		_ = db.Close()
		c.SetState(component.StateFailed)
		return errors.WrapTransient(err, "SQLStoreCore", "Init", "create table "+cfg.Table)
	}

	if cfg.Direction.CanInput() {
		var start int64
		if !cfg.FromStart {
			row := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(id), 0) FROM %s`, cfg.Table))
			if err := row.Scan(&start); err != nil {
				_ = db.Close()
				c.SetState(component.StateFailed)
				return errors.WrapTransient(err, "SQLStoreCore", "Init", "read cursor")
			}
		}
		c.cursor.Store(start)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	c.db = db
	c.cancel = cancel
	c.mu.Unlock()

	if cfg.Direction.CanInput() {
		c.wg.Add(1)
		go c.pollLoop(runCtx, db)
	}

	c.SetState(component.StateInitialized)
	c.Logger().Info("SQL store ready", "table", cfg.Table, "direction", cfg.Direction.String())
	return nil
}

func createTable(ctx context.Context, db *sql.DB, table string) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL,
			source TEXT NOT NULL,
			payload BLOB NOT NULL,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`, table))
	return err
}

func (c *Core) pollLoop(ctx context.Context, db *sql.DB) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.Config().PollInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Poll(ctx, db); err != nil && ctx.Err() == nil {
				c.metrics.Error()
				c.CollectException(err, "sql poll")
			}
		}
	}
}

type row struct {
	id        int64
	messageID string
	payload   []byte
	metadata  sql.NullString
}

// Poll emits rows newer than the cursor, oldest first, and returns how many
// were emitted. With consume set, emitted rows are deleted.
func (c *Core) Poll(ctx context.Context, db *sql.DB) (int, error) {
	cfg := c.Config()
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, message_id, payload, metadata FROM %s WHERE id > ? ORDER BY id LIMIT ?`, cfg.Table),
		c.cursor.Load(), cfg.BatchSize)
	if err != nil {
		return 0, errors.WrapTransient(err, "SQLStoreCore", "Poll", "query")
	}

	var batch []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.messageID, &r.payload, &r.metadata); err != nil {
			_ = rows.Close()
			return 0, errors.WrapTransient(err, "SQLStoreCore", "Poll", "scan")
		}
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, errors.WrapTransient(err, "SQLStoreCore", "Poll", "iterate")
	}
	_ = rows.Close()

	for _, r := range batch {
		dc := c.CreateData(r.payload)
		if r.metadata.Valid && r.metadata.String != "" {
			var md map[string]any
			if err := json.Unmarshal([]byte(r.metadata.String), &md); err == nil {
				for k, v := range md {
					dc.Set(k, v)
				}
			}
		}
		dc.Set(MetaRowID, r.id)
		dc.Set(MetaMessageID, r.messageID)

		c.metrics.Received(len(r.payload))
		if _, err := c.EmitContext(ctx, dc); err != nil {
			c.CollectException(err, "sql emit")
		}
		c.cursor.Store(r.id)
		c.polled.Add(1)
	}

	if cfg.Consume && len(batch) > 0 {
		last := batch[len(batch)-1].id
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id <= ?`, cfg.Table), last); err != nil {
			return len(batch), errors.WrapTransient(err, "SQLStoreCore", "Poll", "consume")
		}
	}
	return len(batch), nil
}

// DB returns the open database, or nil before Init.
func (c *Core) DB() *sql.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

func (c *Core) stop() {
	c.mu.Lock()
	cancel, db := c.cancel, c.db
	c.cancel, c.db = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	if db != nil {
		if err := db.Close(); err != nil {
			c.Logger().Warn("Database close failed", "error", err)
		}
	}
}

// Close stops polling and closes the database.
func (c *Core) Close(context.Context) error {
	c.stop()
	c.SetState(component.StateClosed)
	return nil
}

// Receive inserts the payload as one row.
func (c *Core) Receive(ctx context.Context, dc *message.DataContext) error {
	cfg := c.Config()
	if !cfg.Direction.CanOutput() {
		return nil
	}

	db := c.DB()
	if db == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "SQLStoreCore", "Receive", "database check")
	}

	data, err := wire.ContextBytes(dc)
	if err != nil {
		return errors.Wrap(err, "SQLStoreCore", "Receive", "encode payload")
	}

	var meta sql.NullString
	if len(dc.Metadata) > 0 {
		encoded, err := json.Marshal(dc.Metadata)
		if err != nil {
			return errors.WrapInvalid(err, "SQLStoreCore", "Receive", "encode metadata")
		}
		meta = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err = db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (message_id, source, payload, metadata, created_at) VALUES (?, ?, ?, ?, ?)`, cfg.Table),
		dc.ID.String(), dc.Source.String(), data, meta, dc.CreatedAt.UTC())
	if err != nil {
		c.metrics.Error()
		return errors.WrapTransient(err, "SQLStoreCore", "Receive", "insert")
	}
	c.inserted.Add(1)
	c.metrics.Sent(len(data))
	return nil
}

// Describe reports live state
func (c *Core) Describe() map[string]any {
	cfg := c.Config()
	return map[string]any{
		"table":    cfg.Table,
		"open":     c.DB() != nil,
		"cursor":   c.cursor.Load(),
		"inserted": c.inserted.Load(),
		"polled":   c.polled.Load(),
	}
}

// Register adds the SQL endpoint kind to registry.
func Register(registry *component.Registry) error {
	return registry.Register(component.Registration{
		Name:        Kind,
		Role:        component.RoleEndpoint,
		Protocol:    string(component.TypeSQL),
		Description: "SQLite sink and poller",
		Version:     "1.0.0",
		Endpoint:    ParseMetadata,
	})
}
