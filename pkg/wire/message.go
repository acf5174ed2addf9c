package wire

import (
	"fmt"
)

// Direction prefixes for data field keys.
const (
	// PrefixCommand marks a field the peer is commanding (peer output).
	PrefixCommand = "<"

	// PrefixReport marks a field the bridge is reporting (peer input).
	PrefixReport = ">"
)

// Unprefixed field names recognized by the protocol.
const (
	FieldInit   = "init"
	FieldSpeed  = "speed"
	FieldCount  = "count"
	FieldPeriod = "period"
)

// DeviceType identifies a device type on the wire.
type DeviceType string

// Device types spoken by the protocol. "PWM" carries actuator commands,
// "Encoder" carries sensor reports. Type names are compared exactly.
const (
	DeviceTypePWM     DeviceType = "PWM"
	DeviceTypeEncoder DeviceType = "Encoder"
)

// Role classifies a device type as commanding or reporting.
type Role uint8

const (
	// RoleActuator receives commands from the peer and drives the simulation.
	RoleActuator Role = iota + 1

	// RoleSensor reports simulated state back to the peer.
	RoleSensor
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleActuator:
		return "ACTUATOR"
	case RoleSensor:
		return "SENSOR"
	default:
		return "UNKNOWN"
	}
}

// RoleOf returns the role for a known device type.
// The second return is false for device types this bridge does not speak.
func RoleOf(t DeviceType) (Role, bool) {
	switch t {
	case DeviceTypePWM:
		return RoleActuator, true
	case DeviceTypeEncoder:
		return RoleSensor, true
	default:
		return 0, false
	}
}

// CommandKey returns the prefixed key for a field the peer commands.
func CommandKey(field string) string {
	return PrefixCommand + field
}

// ReportKey returns the prefixed key for a field the bridge reports.
func ReportKey(field string) string {
	return PrefixReport + field
}

// Message is the JSON envelope for one device-state update.
//
// The device identifier is an opaque string; peers commonly use bare
// port numbers ("0", "1") but nothing in the protocol requires that.
type Message struct {
	Type   DeviceType     `json:"type"`
	Device string         `json:"device"`
	Data   map[string]any `json:"data"`
}

// Validate checks the envelope invariants.
func (m *Message) Validate() error {
	if m.Type == "" {
		return fmt.Errorf("message has empty type")
	}
	if m.Device == "" {
		return fmt.Errorf("message has empty device")
	}
	return nil
}

// Report builds an outbound report message for the given device.
// fields maps unprefixed field names to values; keys gain the report
// prefix on the wire. A nil or empty fields map yields a nil message,
// matching the delta-only rule that empty updates are never sent.
func Report(t DeviceType, device string, fields map[string]any) *Message {
	if len(fields) == 0 {
		return nil
	}
	data := make(map[string]any, len(fields))
	for name, value := range fields {
		data[ReportKey(name)] = value
	}
	return &Message{Type: t, Device: device, Data: data}
}
