package middleware

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/message"
	"github.com/c360/datachannel/metric"
	"github.com/c360/datachannel/testutil"
)

func TestCounter_CountsBySource(t *testing.T) {
	c := NewCounter("orders")
	ctx := context.Background()

	c.Observe(ctx, message.New(message.SourceOuter, "ok"))
	c.Observe(ctx, message.New(message.SourceOuter, "an ERROR happened"))
	c.Observe(ctx, message.New(message.SourceInner, []byte("reply")))

	flagged := message.New(message.SourceMiddleware, "fine")
	flagged.Set("Exception_Info", "x")
	c.Observe(ctx, flagged)

	assert.Equal(t, int64(4), c.Total())
	assert.Equal(t, int64(2), c.Input())
	assert.Equal(t, int64(1), c.Output())
	assert.Equal(t, int64(2), c.Errors())

	info := c.Describe()
	assert.Contains(t, info, KeyLastProcessed)
	assert.Contains(t, info, "messages_per_minute")

	c.Reset()
	assert.Zero(t, c.Total())
	assert.Zero(t, c.Errors())
}

func TestCounter_Concurrent(t *testing.T) {
	c := NewCounter("")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Observe(context.Background(), message.New(message.SourceOuter, "m"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1000), c.Total())
	assert.Equal(t, "counter", c.Meta().Name)
}

func TestCreateCounter_ExportsMetrics(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	comp, err := CreateCounter(json.RawMessage(`{"name":"edge"}`), component.Dependencies{MetricsRegistry: reg})
	require.NoError(t, err)
	c := comp.(*Counter)

	c.Observe(context.Background(), message.New(message.SourceOuter, "ok"))
	c.Observe(context.Background(), message.New(message.SourceOuter, "error"))

	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.vec.WithLabelValues("outer", "ok")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(c.vec.WithLabelValues("outer", "error")))

	_, err = CreateCounter(json.RawMessage(`{"name":"edge"}`), component.Dependencies{MetricsRegistry: reg})
	assert.Error(t, err)

	_, err = CreateCounter(json.RawMessage(`{"unknown":1}`), component.Dependencies{})
	assert.Error(t, err)
}

func TestDebugger_CapturesWhenActive(t *testing.T) {
	d := NewDebugger("dbg", 3)
	ctx := context.Background()

	d.Observe(ctx, message.New(message.SourceOuter, "ignored"))
	assert.Empty(t, d.Messages())

	d.SetActive(true)
	for _, text := range testutil.TestPlainText {
		d.Observe(ctx, message.New(message.SourceOuter, text))
	}
	msgs := d.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "sensor 7 reading nominal", msgs[0].Content)
	assert.Equal(t, "string", msgs[0].MessageType)
	assert.Equal(t, message.SourceOuter, msgs[0].Source)
}

func TestDebugger_FilterIgnoresCase(t *testing.T) {
	d := NewDebugger("dbg", 10)
	d.SetActive(true)
	d.SetFilter("alert")

	for _, text := range testutil.TestPlainText {
		d.Observe(context.Background(), message.New(message.SourceOuter, text))
	}

	msgs := d.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, strings.Contains(msgs[0].Content, "ALERT"))
	assert.Equal(t, "alert", d.Describe()["filter"])
}

func TestDebugger_QueueKeepsNewest(t *testing.T) {
	d := NewDebugger("dbg", 10)
	d.SetActive(true)
	for i := 0; i < 5; i++ {
		d.Observe(context.Background(), message.New(message.SourceInner, []byte{byte('a' + i)}))
	}

	d.SetMaxQueue(2)
	msgs := d.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "d", msgs[0].Content)
	assert.Equal(t, "e", msgs[1].Content)

	d.Observe(context.Background(), message.New(message.SourceInner, "f"))
	msgs = d.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "f", msgs[1].Content)

	d.Clear()
	assert.Empty(t, d.Messages())
	assert.Equal(t, int64(0), d.Describe()["captured"])
}

func TestFormatPayload(t *testing.T) {
	assert.Equal(t, "null", formatPayload(nil))
	assert.Equal(t, "text", formatPayload("text"))
	assert.Equal(t, "raw", formatPayload([]byte("raw")))
	assert.Equal(t, `{"id":1,"value":"a","count":2}`, formatPayload(testutil.Record{ID: 1, Value: "a", Count: 2}))
	assert.Contains(t, formatPayload(make(chan int)), "formatting failed")
}

func TestCreateDebugger(t *testing.T) {
	comp, err := CreateDebugger(json.RawMessage(`{"active":true,"filter":"x","max_queue":5}`), component.Dependencies{})
	require.NoError(t, err)
	d := comp.(*Debugger)
	assert.True(t, d.IsActive())
	assert.Equal(t, "x", d.Filter())
	assert.Equal(t, int64(5), d.Describe()["max_queue"])
}

func TestAnalyzer_JSONStatistics(t *testing.T) {
	a, err := NewAnalyzer(AnalyzerConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	a.Observe(ctx, message.New(message.SourceOuter, `{"type":"order","items":[{"id":1}]}`))
	a.Observe(ctx, message.New(message.SourceOuter, "hello"))
	a.Observe(ctx, message.New(message.SourceOuter, nil))

	info := a.Describe()
	assert.Equal(t, int64(3), info["total_messages"])
	assert.Equal(t, int64(1), info["type_order"])
	assert.Equal(t, "order", info["last_type"])
	assert.Equal(t, int64(1), info["unknown_type_messages"])
	assert.Equal(t, int64(1), info["json_messages"])
	assert.Equal(t, int64(1), info["non_json_messages"])
	assert.Equal(t, int64(1), info["empty_messages"])
	assert.Equal(t, int64(4), info["max_json_depth"])
	assert.Equal(t, 3.0, info["avg_json_fields"])
	assert.Equal(t, int64(2), info["small_messages"])
}

func TestAnalyzer_LargeMessages(t *testing.T) {
	a, err := NewAnalyzer(AnalyzerConfig{Name: "sizes", LargeBytes: 10})
	require.NoError(t, err)

	a.Observe(context.Background(), message.New(message.SourceOuter, strings.Repeat("x", 20)))

	info := a.Describe()
	assert.Equal(t, int64(1), info["large_messages"])
	assert.Equal(t, int64(20), info["max_message_bytes"])
	assert.Equal(t, int64(20), info["total_bytes"])

	a.Reset()
	info = a.Describe()
	assert.NotContains(t, info, "large_messages")
	assert.Equal(t, int64(10), info["large_threshold_bytes"])
}

func TestAnalyzer_CustomTypesAndBadPattern(t *testing.T) {
	a, err := NewAnalyzer(AnalyzerConfig{MessageTypes: map[string]string{"ping": `^ping`}})
	require.NoError(t, err)
	a.Observe(context.Background(), message.New(message.SourceOuter, "PING 1"))
	assert.Equal(t, int64(1), a.Describe()["type_ping"])

	_, err = NewAnalyzer(AnalyzerConfig{MessageTypes: map[string]string{"bad": `(`}})
	assert.Error(t, err)
}
