// Package wire converts pipeline payloads to and from the byte form written
// by network endpoints.
package wire

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/message"
)

// Bytes returns the wire form of a payload. Byte slices and strings are sent
// as is; anything else is JSON encoded.
func Bytes(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "Bytes", "nil payload")
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case json.RawMessage:
		return v, nil
	case fmt.Stringer:
		return []byte(v.String()), nil
	}

	b, err := json.Marshal(data)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %T: %v", errors.ErrConversionFailed, data, err),
			"wire", "Bytes", "json encode")
	}
	return b, nil
}

// ContextBytes returns the wire form of dc's payload.
func ContextBytes(dc *message.DataContext) ([]byte, error) {
	if dc == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "ContextBytes", "nil context")
	}
	return Bytes(dc.Data)
}

// Copy returns a copy of b so read buffers can be reused.
func Copy(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ValidateAddr checks addr is host:port with a port in 0-65535. Port 0
// requests an ephemeral port.
func ValidateAddr(component, field, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, field, err),
			component, "EnrichOrValidate", "address validation")
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return errors.WrapInvalid(fmt.Errorf("%w: %s: bad port %q", errors.ErrInvalidConfig, field, port),
			component, "EnrichOrValidate", "address validation")
	}
	return nil
}
