package testutil

import "github.com/c360/datachannel/message"

// TestPlainText are text payloads for middleware that inspects strings.
// The last one carries the ALERT keyword.
var TestPlainText = []string{
	"sensor 7 reading nominal",
	"sensor 9 reading nominal",
	"sensor 3 over threshold ALERT",
}

// Record is a typed payload for conversion tests.
type Record struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
	Count int    `json:"count"`
}

// RecordContexts wraps records as payloads arriving from source, each
// tagged with its index under "seq".
func RecordContexts(source message.Source, records ...Record) []*message.DataContext {
	out := make([]*message.DataContext, len(records))
	for i, r := range records {
		out[i] = message.New(source, r)
		out[i].Set("seq", i)
	}
	return out
}
