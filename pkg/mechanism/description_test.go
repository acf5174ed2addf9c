package mechanism

import (
	"errors"
	"testing"
)

const armYAML = `
name: simple-arm
busVoltage: 12.0
tickRate: 50
joints:
  - id: shoulder
    kind: revolute-continuous
    axis: [0, 0, 1]
  - id: extension
    kind: prismatic
    axis: [1, 0, 0]
actuators:
  - device: "0"
    joint: shoulder
    motor: neo
    gearRatio: 60
sensors:
  - device: "0"
    joint: shoulder
    ticksPerRevolution: 4096
  - device: "1"
    joint: extension
    ticksPerRevolution: 2048
    offset: 100
    inverted: true
    wrap: never
`

func TestParseDescription(t *testing.T) {
	d, err := Parse([]byte(armYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if d.Name != "simple-arm" {
		t.Errorf("name: got %q", d.Name)
	}
	if len(d.Joints) != 2 || len(d.Actuators) != 1 || len(d.Sensors) != 2 {
		t.Fatalf("unexpected counts: %d joints, %d actuators, %d sensors",
			len(d.Joints), len(d.Actuators), len(d.Sensors))
	}

	shoulder, ok := d.JointByID("shoulder")
	if !ok {
		t.Fatal("shoulder joint missing")
	}
	if shoulder.Kind != RevoluteContinuous {
		t.Errorf("shoulder kind: got %v", shoulder.Kind)
	}
	if shoulder.Axis != [3]float64{0, 0, 1} {
		t.Errorf("shoulder axis: got %v", shoulder.Axis)
	}

	if d.Sensors[1].Wrap != WrapNever {
		t.Errorf("sensor 1 wrap: got %v", d.Sensors[1].Wrap)
	}
	if !d.Sensors[1].Inverted || d.Sensors[1].Offset != 100 {
		t.Errorf("sensor 1 fields: %+v", d.Sensors[1])
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	d, err := Parse([]byte(`
name: bare
joints:
  - id: j1
    kind: revolute-bounded
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if d.BusVoltage != DefaultBusVoltage {
		t.Errorf("bus voltage default: got %v", d.BusVoltage)
	}
	if d.TickRate != DefaultTickRate {
		t.Errorf("tick rate default: got %v", d.TickRate)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no name", `
joints:
  - {id: j1, kind: prismatic}
`},
		{"no joints", `
name: empty
`},
		{"duplicate joint", `
name: dup
joints:
  - {id: j1, kind: prismatic}
  - {id: j1, kind: prismatic}
`},
		{"unknown joint kind", `
name: badkind
joints:
  - {id: j1, kind: helical}
`},
		{"actuator unknown joint", `
name: badref
joints:
  - {id: j1, kind: prismatic}
actuators:
  - {device: "0", joint: nope, motor: neo, gearRatio: 10}
`},
		{"actuator zero gear ratio", `
name: zeroratio
joints:
  - {id: j1, kind: prismatic}
actuators:
  - {device: "0", joint: j1, motor: neo, gearRatio: 0}
`},
		{"sensor zero resolution", `
name: zerores
joints:
  - {id: j1, kind: prismatic}
sensors:
  - {device: "0", joint: j1, ticksPerRevolution: 0}
`},
		{"bad wrap mode", `
name: badwrap
joints:
  - {id: j1, kind: prismatic}
sensors:
  - {device: "0", joint: j1, ticksPerRevolution: 100, wrap: sometimes}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalidDescription) {
				t.Errorf("expected ErrInvalidDescription, got %v", err)
			}
		})
	}
}

func TestShouldWrap(t *testing.T) {
	tests := []struct {
		name string
		mode WrapMode
		kind JointKind
		want bool
	}{
		{"auto continuous", WrapAuto, RevoluteContinuous, true},
		{"auto bounded", WrapAuto, RevoluteBounded, false},
		{"auto prismatic", WrapAuto, Prismatic, false},
		{"always bounded", WrapAlways, RevoluteBounded, true},
		{"never continuous", WrapNever, RevoluteContinuous, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Sensor{Wrap: tt.mode}
			if got := s.ShouldWrap(tt.kind); got != tt.want {
				t.Errorf("ShouldWrap = %v, want %v", got, tt.want)
			}
		})
	}
}
