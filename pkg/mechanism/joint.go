package mechanism

import "fmt"

// JointKind classifies a degree of freedom.
type JointKind uint8

const (
	// RevoluteContinuous is an unbounded rotational joint. Its raw
	// position may grow without bound; only reported values are wrapped.
	RevoluteContinuous JointKind = iota + 1

	// RevoluteBounded is a rotational joint with travel limits,
	// enforced by the physics engine against the raw position.
	RevoluteBounded

	// Prismatic is a linear joint.
	Prismatic
)

// String returns the joint kind name as spelled in configuration files.
func (k JointKind) String() string {
	switch k {
	case RevoluteContinuous:
		return "revolute-continuous"
	case RevoluteBounded:
		return "revolute-bounded"
	case Prismatic:
		return "prismatic"
	default:
		return "unknown"
	}
}

// ParseJointKind parses a configuration-file joint kind name.
func ParseJointKind(s string) (JointKind, error) {
	switch s {
	case "revolute-continuous":
		return RevoluteContinuous, nil
	case "revolute-bounded":
		return RevoluteBounded, nil
	case "prismatic":
		return Prismatic, nil
	default:
		return 0, fmt.Errorf("%w: unknown joint kind %q", ErrInvalidDescription, s)
	}
}

// UnmarshalYAML parses a joint kind from its config spelling.
func (k *JointKind) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	kind, err := ParseJointKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// MarshalYAML writes the config spelling.
func (k JointKind) MarshalYAML() (any, error) {
	return k.String(), nil
}

// Joint is one degree of freedom of the mechanism.
// Raw position and velocity are owned by the physics engine and are
// read back each tick; they are never stored here.
type Joint struct {
	ID   string     `yaml:"id"`
	Kind JointKind  `yaml:"kind"`
	Axis [3]float64 `yaml:"axis,flow"`
}
