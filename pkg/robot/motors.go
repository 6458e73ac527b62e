// Package robot describes the actuators on a panel: their names, kinds and
// angle limits, the built-in layouts and the readouts shown to the operator.
package robot

import "errors"

// ErrUnsupported is returned by a transport for a command it cannot carry.
var ErrUnsupported = errors.New("robot: command not supported by transport")

// ActuatorKind distinguishes angle-commanded servos from the rotary axis.
type ActuatorKind string

const (
	Servo   ActuatorKind = "servo"
	Stepper ActuatorKind = "stepper"
)

// DefaultPresets are the quick angles offered for every servo.
var DefaultPresets = []int{0, 45, 90, 135, 180}

// StepperPresets are the quick angles offered for the rotary axis.
var StepperPresets = []int{0, 90, 180, 270, 360}

// Actuator is one command channel.
type Actuator struct {
	Name     string       `mapstructure:"name"`
	Kind     ActuatorKind `mapstructure:"kind"`
	Channel  int          `mapstructure:"channel"` // servo index on the wire
	MaxAngle int          `mapstructure:"max_angle"`
}

// Clamp limits angle to [0, MaxAngle].
func (a Actuator) Clamp(angle int) int {
	return min(max(angle, 0), a.MaxAngle)
}

// Home is the reset position: 90 degrees (or the max when lower) for servos,
// zero for the rotary axis.
func (a Actuator) Home() int {
	if a.Kind == Stepper {
		return 0
	}
	return min(90, a.MaxAngle)
}

// Presets returns the quick angles that fit within the actuator's range.
func (a Actuator) Presets() []int {
	src := DefaultPresets
	if a.Kind == Stepper {
		src = StepperPresets
	}
	out := make([]int, 0, len(src))
	for _, p := range src {
		if p <= a.MaxAngle {
			out = append(out, p)
		}
	}
	return out
}
