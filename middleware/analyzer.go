package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
)

// DefaultLargeMessage is the size above which a payload counts as large.
const DefaultLargeMessage = 10 * 1024

const smallMessage = 100

// DefaultMessageTypes maps message type names to the patterns identifying
// them in a payload.
var DefaultMessageTypes = map[string]string{
	"order":        `"type":\s*"order"`,
	"user":         `"type":\s*"user"`,
	"payment":      `"type":\s*"payment"`,
	"inventory":    `"type":\s*"inventory"`,
	"notification": `"type":\s*"notification"`,
}

// AnalyzerConfig configures an Analyzer.
type AnalyzerConfig struct {
	Name         string            `json:"name" validate:"omitempty,max=128"`
	MessageTypes map[string]string `json:"message_types"`
	LargeBytes   int               `json:"large_bytes" validate:"gte=0"`
}

type typePattern struct {
	name string
	re   *regexp.Regexp
}

// Analyzer is a monitor middleware collecting content statistics: message
// types recognized by pattern, JSON depth and field counts, and sizes.
type Analyzer struct {
	name     string
	board    *InfoBoard
	patterns []typePattern
	large    int

	// guards the running totals behind the averages
	mu         sync.Mutex
	chars      int64
	bytes      int64
	jsonFields int64
}

var _ component.MonitorMiddleware = (*Analyzer)(nil)

// NewAnalyzer compiles cfg's patterns. Empty patterns use DefaultMessageTypes.
func NewAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	if cfg.Name == "" {
		cfg.Name = "analyzer"
	}
	if len(cfg.MessageTypes) == 0 {
		cfg.MessageTypes = DefaultMessageTypes
	}
	if cfg.LargeBytes == 0 {
		cfg.LargeBytes = DefaultLargeMessage
	}

	a := &Analyzer{name: cfg.Name, board: NewInfoBoard(), large: cfg.LargeBytes}
	for _, name := range slices.Sorted(maps.Keys(cfg.MessageTypes)) {
		re, err := regexp.Compile("(?i)" + cfg.MessageTypes[name])
		if err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: pattern for %q: %w", errors.ErrInvalidConfig, name, err),
				"Analyzer", "New", "pattern compile")
		}
		a.patterns = append(a.patterns, typePattern{name: name, re: re})
	}
	a.init()
	return a, nil
}

// CreateAnalyzer is the registry factory
func CreateAnalyzer(raw json.RawMessage, _ component.Dependencies) (component.Component, error) {
	var cfg AnalyzerConfig
	if err := component.DecodeConfig(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "Analyzer", "Create", "config decode")
	}
	if err := component.ValidateStruct("Analyzer", &cfg); err != nil {
		return nil, err
	}
	return NewAnalyzer(cfg)
}

func (a *Analyzer) init() {
	names := make([]string, len(a.patterns))
	for i, p := range a.patterns {
		names[i] = p.name
	}
	a.board.Set("version", "1.0.0")
	a.board.Set("message_types", strings.Join(names, ", "))
	a.board.Set("large_threshold_bytes", int64(a.large))
}

// Meta describes the analyzer
func (a *Analyzer) Meta() component.Metadata {
	return component.Metadata{Name: a.name, Kind: "analyzer", Description: "Message content statistics", Version: "1.0.0"}
}

// Observe analyzes dc
func (a *Analyzer) Observe(_ context.Context, dc *message.DataContext) {
	total := a.board.Increment("total_messages", 1)
	a.board.Set("last_processed", time.Now())

	if !dc.HasData() {
		a.board.Increment("empty_messages", 1)
		return
	}

	content := payloadText(dc.Data)
	size := int64(len(content))

	a.mu.Lock()
	a.chars += int64(len([]rune(content)))
	a.bytes += size
	avgChars := float64(a.chars) / float64(total)
	avgBytes := float64(a.bytes) / float64(total)
	a.mu.Unlock()

	a.board.Set("avg_length", avgChars)
	a.board.Set("avg_size_bytes", avgBytes)
	a.board.Increment("total_bytes", size)

	if kind := a.identify(content); kind != "" {
		a.board.Increment("type_"+kind, 1)
		a.board.Set("last_type", kind)
	} else {
		a.board.Increment("unknown_type_messages", 1)
	}

	if json.Valid([]byte(content)) {
		a.board.Increment("json_messages", 1)
		a.analyzeJSON(content)
	} else {
		a.board.Increment("non_json_messages", 1)
	}

	if size > int64(a.large) {
		a.board.Increment("large_messages", 1)
		a.board.Max("max_message_bytes", size)
	}
	if size < smallMessage {
		a.board.Increment("small_messages", 1)
	}
}

func (a *Analyzer) identify(content string) string {
	for _, p := range a.patterns {
		if p.re.MatchString(content) {
			return p.name
		}
	}
	return ""
}

func (a *Analyzer) analyzeJSON(content string) {
	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		a.board.Increment("json_parse_failures", 1)
		return
	}

	a.board.Max("max_json_depth", int64(jsonDepth(doc)))

	if _, ok := doc.(map[string]any); ok {
		fields := int64(jsonFields(doc))
		a.mu.Lock()
		a.jsonFields += fields
		avg := float64(a.jsonFields) / float64(max(a.board.Int("json_messages"), 1))
		a.mu.Unlock()
		a.board.Set("avg_json_fields", avg)
	}
}

func jsonDepth(v any) int {
	deepest := 0
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			deepest = max(deepest, jsonDepth(child))
		}
	case []any:
		for _, child := range t {
			deepest = max(deepest, jsonDepth(child))
		}
	default:
		return 1
	}
	return deepest + 1
}

func jsonFields(v any) int {
	n := 0
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			n += 1 + jsonFields(child)
		}
	case []any:
		for _, child := range t {
			n += jsonFields(child)
		}
	}
	return n
}

// Reset clears every statistic
func (a *Analyzer) Reset() {
	a.mu.Lock()
	a.chars, a.bytes, a.jsonFields = 0, 0, 0
	a.mu.Unlock()
	a.board.Clear()
	a.init()
}

// Describe returns the analyzer board with processing rates
func (a *Analyzer) Describe() map[string]any {
	info := a.board.Snapshot()
	if rate := a.board.perMinute("total_messages"); rate > 0 {
		info["messages_per_minute"] = rate
		info["messages_per_hour"] = rate * 60
		info["uptime_minutes"] = time.Since(a.board.Started()).Minutes()
	}
	return info
}
