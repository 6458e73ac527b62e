package robot

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gwillem/armpanel/pkg/protocol"
)

// ErrUnknownProfile is returned when a profile name is not defined.
var ErrUnknownProfile = errors.New("robot: unknown profile")

// ProfileKind selects between an angle panel and the linear stage.
type ProfileKind string

const (
	KindArm   ProfileKind = "arm"
	KindStage ProfileKind = "stage"
)

// Profile is a named actuator layout.
type Profile struct {
	Name        string      `mapstructure:"name"`
	Description string      `mapstructure:"description"`
	Kind        ProfileKind `mapstructure:"kind"`
	BaudRate    int         `mapstructure:"baud_rate"`
	Actuators   []Actuator  `mapstructure:"actuators"`
}

func servos(maxAngles ...int) []Actuator {
	out := make([]Actuator, len(maxAngles))
	for i, m := range maxAngles {
		out[i] = Actuator{
			Name:     fmt.Sprintf("Servo %d", i+1),
			Kind:     Servo,
			Channel:  i,
			MaxAngle: m,
		}
	}
	return out
}

var builtinProfiles = map[string]Profile{
	"arm5": {
		Name:        "arm5",
		Description: "Five servo arm with rotary base stepper",
		Kind:        KindArm,
		BaudRate:    115200,
		Actuators: append(servos(180, 180, 180, 180, 90), Actuator{
			Name:     "Stepper",
			Kind:     Stepper,
			MaxAngle: protocol.MaxAngle,
		}),
	},
	"arm4": {
		Name:        "arm4",
		Description: "Four servo arm with 45 degree gripper",
		Kind:        KindArm,
		BaudRate:    115200,
		Actuators:   servos(45, 180, 180, 180),
	},
	"arm4-basic": {
		Name:        "arm4-basic",
		Description: "Four servo arm, full 180 degree range",
		Kind:        KindArm,
		BaudRate:    115200,
		Actuators:   servos(180, 180, 180, 180),
	},
	"slide": {
		Name:        "slide",
		Description: "Stepper driven linear stage (speed and direction)",
		Kind:        KindStage,
		BaudRate:    9600,
	},
}

// DefaultProfile is used when none is configured.
const DefaultProfile = "arm5"

// BuiltinProfile returns a copy of a built-in profile.
func BuiltinProfile(name string) (Profile, error) {
	p, ok := builtinProfiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	p.Actuators = append([]Actuator(nil), p.Actuators...)
	return p, nil
}

// BuiltinProfileNames returns the built-in profile names, sorted.
func BuiltinProfileNames() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the layout can be driven.
func (p Profile) Validate() error {
	switch p.Kind {
	case KindStage:
		if len(p.Actuators) > 0 {
			return fmt.Errorf("profile %q: stage profiles have no actuators", p.Name)
		}
		return nil
	case KindArm:
	default:
		return fmt.Errorf("profile %q: unknown kind %q", p.Name, p.Kind)
	}

	if len(p.Actuators) == 0 {
		return fmt.Errorf("profile %q: no actuators", p.Name)
	}
	channels := make(map[int]bool)
	steppers := 0
	for _, a := range p.Actuators {
		if a.MaxAngle <= 0 || a.MaxAngle > protocol.MaxAngle {
			return fmt.Errorf("profile %q: %s: max angle %d out of range", p.Name, a.Name, a.MaxAngle)
		}
		switch a.Kind {
		case Servo:
			if a.Channel < 0 || a.Channel > 9 {
				return fmt.Errorf("profile %q: %s: %w", p.Name, a.Name, protocol.ErrServoIndex)
			}
			if channels[a.Channel] {
				return fmt.Errorf("profile %q: duplicate servo channel %d", p.Name, a.Channel)
			}
			channels[a.Channel] = true
		case Stepper:
			steppers++
		default:
			return fmt.Errorf("profile %q: %s: unknown kind %q", p.Name, a.Name, a.Kind)
		}
	}
	if steppers > 1 {
		return fmt.Errorf("profile %q: at most one stepper", p.Name)
	}
	return nil
}

// Servos returns the servo actuators in channel order as declared.
func (p Profile) Servos() []Actuator {
	var out []Actuator
	for _, a := range p.Actuators {
		if a.Kind == Servo {
			out = append(out, a)
		}
	}
	return out
}

// StepperIndex returns the actuator index of the rotary axis, if the profile
// has one.
func (p Profile) StepperIndex() (int, bool) {
	for i, a := range p.Actuators {
		if a.Kind == Stepper {
			return i, true
		}
	}
	return 0, false
}
