package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/datachannel/errors"
)

// Duration is a time.Duration configured as a Go duration string ("250ms",
// "1m30s"). Bare JSON numbers are read as nanoseconds.
type Duration time.Duration

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String formats d like time.Duration
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON encodes d as a duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or integer nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Duration", "UnmarshalJSON", "parse")
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %s is not a duration", errors.ErrParsingFailed, data),
			"Duration", "UnmarshalJSON", "parse")
	}
	*d = Duration(n)
	return nil
}
