package component

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CommunicationType is the protocol family of a transport adapter.
type CommunicationType string

const (
	TypeHTTP      CommunicationType = "http"
	TypeTCP       CommunicationType = "tcp"
	TypeUDP       CommunicationType = "udp"
	TypeMQ        CommunicationType = "mq"
	TypeSQL       CommunicationType = "sql"
	TypeSerial    CommunicationType = "serial"
	TypeTrigger   CommunicationType = "trigger"
	TypeWebSocket CommunicationType = "websocket"
	TypeInProcess CommunicationType = "inprocess"
)

// Direction declares which way data flows through an endpoint. Values are
// bit flags so InputAndOutput == Input|Output.
type Direction uint8

const (
	DirectionNone           Direction = 0
	DirectionInput          Direction = 1 << 0
	DirectionOutput         Direction = 1 << 1
	DirectionInputAndOutput           = DirectionInput | DirectionOutput
)

// Allows reports whether d permits every flow in want.
func (d Direction) Allows(want Direction) bool {
	return want&^d == 0
}

// CanInput reports whether the endpoint receives from its wire.
func (d Direction) CanInput() bool { return d&DirectionInput != 0 }

// CanOutput reports whether the endpoint writes to its wire.
func (d Direction) CanOutput() bool { return d&DirectionOutput != 0 }

func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "none"
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	case DirectionInputAndOutput:
		return "input_and_output"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// ParseDirection accepts the String form plus a few common spellings.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return DirectionNone, nil
	case "input", "in":
		return DirectionInput, nil
	case "output", "out":
		return DirectionOutput, nil
	case "input_and_output", "inputandoutput", "both", "inout":
		return DirectionInputAndOutput, nil
	}
	return DirectionNone, fmt.Errorf("unknown direction %q", s)
}

// MarshalJSON encodes the direction by name
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a direction name
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
