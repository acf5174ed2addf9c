package wire

import "fmt"

// EventKind discriminates the typed inbound events.
type EventKind uint8

const (
	// EventInit signals the peer has constructed its virtual device.
	EventInit EventKind = iota + 1

	// EventSpeed carries a normalized actuator speed command in [-1, 1].
	EventSpeed
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventInit:
		return "INIT"
	case EventSpeed:
		return "SPEED"
	default:
		return "UNKNOWN"
	}
}

// Event is one typed command decoded from an inbound message.
// Exactly one of Bool or Value is meaningful, selected by Kind.
type Event struct {
	Kind   EventKind
	Type   DeviceType
	Device string

	// Bool holds the init flag for EventInit.
	Bool bool

	// Value holds the command value for EventSpeed.
	Value float64
}

// Events extracts the typed command events from an inbound message,
// in a fixed per-message order (init before value commands, so a peer
// that initializes and commands in one frame is applied consistently).
//
// Fields without the command prefix are reports echoed by some peers
// and are skipped. Command fields with values of the wrong JSON type
// produce a *DecodeError; unknown command fields are skipped silently
// for forward compatibility.
func Events(m *Message) ([]Event, error) {
	role, known := RoleOf(m.Type)
	if !known {
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown device type %q", m.Type)}
	}

	var events []Event

	if raw, ok := m.Data[CommandKey(FieldInit)]; ok {
		flag, ok := raw.(bool)
		if !ok {
			return nil, &DecodeError{Reason: fmt.Sprintf("%s %s: init is not a bool", m.Type, m.Device)}
		}
		events = append(events, Event{Kind: EventInit, Type: m.Type, Device: m.Device, Bool: flag})
	}

	if role == RoleActuator {
		if raw, ok := m.Data[CommandKey(FieldSpeed)]; ok {
			speed, ok := raw.(float64)
			if !ok {
				return nil, &DecodeError{Reason: fmt.Sprintf("%s %s: speed is not a number", m.Type, m.Device)}
			}
			events = append(events, Event{Kind: EventSpeed, Type: m.Type, Device: m.Device, Value: speed})
		}
	}

	return events, nil
}
