package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/pkg/tlsutil"
	"github.com/c360/datachannel/transport/wire"
)

// DefaultEnvPrefix prefixes every environment override
const DefaultEnvPrefix = "DATACHANNEL"

// Config represents the complete application configuration
type Config struct {
	Platform PlatformConfig  `json:"platform" yaml:"platform"`
	HTTP     HTTPConfig      `json:"http" yaml:"http"`
	NATS     NATSConfig      `json:"nats" yaml:"nats"`
	Channels []ChannelConfig `json:"channels" yaml:"channels" validate:"dive"`
}

// PlatformConfig identifies the process and tunes channel startup.
type PlatformConfig struct {
	ID                     string        `json:"id" yaml:"id" validate:"required"`
	RecentExceptionsToKeep int           `json:"recent_exceptions_to_keep,omitempty" yaml:"recent_exceptions_to_keep,omitempty" validate:"gte=0,lte=10000"`
	InitWorkers            int           `json:"init_workers,omitempty" yaml:"init_workers,omitempty" validate:"gte=0,lte=1000"`
	ShutdownTimeout        wire.Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`
}

// HTTPConfig configures the host listener serving webhooks, metrics and the
// status API.
type HTTPConfig struct {
	Addr string               `json:"addr" yaml:"addr" validate:"required,hostname_port"`
	TLS  tlsutil.ServerConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty" yaml:"urls,omitempty" validate:"dive,url"`
	Name          string        `json:"name,omitempty" yaml:"name,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait wire.Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string        `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string        `json:"token,omitempty" yaml:"token,omitempty"`
	TLS           NATSTLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// NATSTLSConfig for secure NATS connections
type NATSTLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	CAFile   string `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
}

// URL joins the server list the way the NATS client accepts it.
func (n NATSConfig) URL() string {
	return strings.Join(n.URLs, ",")
}

// ChannelConfig describes one pipeline: the outer transport, an optional
// inner endpoint (in-process by default) and the middleware chain.
type ChannelConfig struct {
	ID             string           `json:"id" yaml:"id" validate:"required"`
	Group          string           `json:"group,omitempty" yaml:"group,omitempty"`
	Disabled       bool             `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	KeepExceptions int              `json:"keep_exceptions,omitempty" yaml:"keep_exceptions,omitempty" validate:"gte=0"`
	Outer          EndpointConfig   `json:"outer" yaml:"outer"`
	Inner          *EndpointConfig  `json:"inner,omitempty" yaml:"inner,omitempty"`
	Middlewares    []EndpointConfig `json:"middlewares,omitempty" yaml:"middlewares,omitempty" validate:"dive"`
}

// EndpointConfig names a registered kind and carries its raw configuration.
type EndpointConfig struct {
	Kind   string          `json:"kind" yaml:"kind" validate:"required"`
	Config json.RawMessage `json:"config,omitempty" yaml:"-"`
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Validate checks struct rules, then that channel ids are unique and valid
// component names.
func (c *Config) Validate() error {
	if err := component.ValidateStruct("Config", c); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Channels))
	for i, ch := range c.Channels {
		if err := component.ValidateComponentName(ch.ID); err != nil {
			return errors.Wrap(err, "Config", "Validate", fmt.Sprintf("channels[%d].id", i))
		}
		if _, dup := seen[ch.ID]; dup {
			return errors.WrapInvalid(
				fmt.Errorf("%w: channel %q", errors.ErrDuplicateChannel, ch.ID), "Config", "Validate", "channel ids")
		}
		seen[ch.ID] = struct{}{}
	}
	return c.validateTLS()
}

func (c *Config) validateTLS() error {
	srv := c.HTTP.TLS
	if !srv.Enabled {
		return nil
	}
	files := map[string]string{"http.tls.cert_file": srv.CertFile, "http.tls.key_file": srv.KeyFile}
	for field, path := range files {
		if path == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrMissingConfig, field), "Config", "Validate", "tls files")
		}
		if _, err := os.Stat(path); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", field)
		}
	}
	for i, ca := range srv.ClientCAFiles {
		if _, err := os.Stat(ca); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", fmt.Sprintf("http.tls.client_ca_files[%d]", i))
		}
	}
	return nil
}

// Enabled returns the channels that are not disabled, in file order.
func (c *Config) Enabled() []ChannelConfig {
	out := make([]ChannelConfig, 0, len(c.Channels))
	for _, ch := range c.Channels {
		if !ch.Disabled {
			out = append(out, ch)
		}
	}
	return out
}

// String returns a JSON representation with secrets masked
func (c *Config) String() string {
	clone := c.Clone()
	if clone.NATS.Password != "" {
		clone.NATS.Password = "***"
	}
	if clone.NATS.Token != "" {
		clone.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(clone, "", "  ")
	return string(data)
}

// SaveToFile writes the configuration as JSON or YAML, chosen by extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		var doc map[string]any
		if data, err = json.Marshal(c); err == nil {
			if err = json.Unmarshal(data, &doc); err == nil {
				data, err = yaml.Marshal(doc)
			}
		}
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "encode")
	}
	return errors.Wrap(writeConfigFile(path, data), "Config", "SaveToFile", "write")
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{validation: true, envPrefix: DefaultEnvPrefix}
}

// AddLayer adds a configuration file layer. Later layers override earlier
// ones key by key; lists are replaced whole.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// WithEnvPrefix changes the environment override prefix
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Defaults())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", "layer "+path)
		}
		merged = deepMergeMaps(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "encode merged layers")
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Loader", "Load", "decode merged layers")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Defaults returns the configuration every layer is merged onto.
func Defaults() *Config {
	return &Config{
		Platform: PlatformConfig{
			ID:                     "datachannel",
			RecentExceptionsToKeep: 20,
			InitWorkers:            10,
			ShutdownTimeout:        wire.Duration(30 * time.Second),
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: wire.Duration(2 * time.Second),
		},
	}
}

func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "read")
	}

	var raw map[string]any
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Loader", "loadRaw", "yaml decode")
		}
		return raw, nil
	}

	if err := checkJSONDepth(data); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "json structure")
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Loader", "loadRaw", "json decode")
	}
	return raw, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies PREFIX_* environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	lookup := func(key string) (string, bool, error) {
		name := l.envPrefix + "_" + key
		val := os.Getenv(name)
		if val == "" {
			return "", false, nil
		}
		if err := checkEnvValue(name, val); err != nil {
			return "", false, errors.WrapInvalid(err, "Loader", "applyEnvOverrides", name)
		}
		return val, true, nil
	}

	strs := []struct {
		key    string
		target *string
	}{
		{"PLATFORM_ID", &cfg.Platform.ID},
		{"HTTP_ADDR", &cfg.HTTP.Addr},
		{"NATS_NAME", &cfg.NATS.Name},
		{"NATS_USERNAME", &cfg.NATS.Username},
		{"NATS_PASSWORD", &cfg.NATS.Password},
		{"NATS_TOKEN", &cfg.NATS.Token},
	}
	for _, s := range strs {
		val, ok, err := lookup(s.key)
		if err != nil {
			return err
		}
		if ok {
			*s.target = val
		}
	}

	if val, ok, err := lookup("NATS_URLS"); err != nil {
		return err
	} else if ok {
		cfg.NATS.URLs = strings.Split(val, ",")
	}

	if val, ok, err := lookup("INIT_WORKERS"); err != nil {
		return err
	} else if ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", l.envPrefix+"_INIT_WORKERS")
		}
		cfg.Platform.InitWorkers = n
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
