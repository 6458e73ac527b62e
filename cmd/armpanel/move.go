package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gwillem/armpanel/pkg/control"
	"github.com/gwillem/armpanel/pkg/robot"
)

type MoveCommand struct {
	connectionFlags
	All  bool `long:"all" description:"Move every servo to ANGLE (clamped per servo)"`
	Home bool `long:"home" description:"Reset servos to 90° (or their max) and the stepper to 0°"`

	Args struct {
		Actuator string `positional-arg-name:"ACTUATOR" description:"Actuator name or number (1-based), or the angle with --all"`
		Angle    string `positional-arg-name:"ANGLE" description:"Target angle in degrees"`
	} `positional-args:"yes"`
}

func (c *MoveCommand) Execute(args []string) error {
	ctrl, log, err := c.session(false)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer ctrl.Close()

	ctx := context.Background()

	// validate before waiting out the settle delay
	var run func() error
	switch {
	case c.Home:
		run = func() error { return ctrl.Home(ctx) }
	case c.All:
		angle, err := parseAngle(c.Args.Actuator)
		if err != nil {
			return err
		}
		run = func() error { return ctrl.SetAll(ctx, angle) }
	default:
		i, err := findActuator(ctrl.Profile(), c.Args.Actuator)
		if err != nil {
			return err
		}
		angle, err := parseAngle(c.Args.Angle)
		if err != nil {
			return err
		}
		run = func() error {
			sent, err := ctrl.SetServo(ctx, i, angle)
			if err == nil && sent != angle {
				fmt.Println(dimStyle.Render(fmt.Sprintf("clamped to %d°", sent)))
			}
			return err
		}
	}

	if err := ctrl.Connect(ctx, ""); err != nil {
		return err
	}
	if err := run(); err != nil {
		return err
	}

	printReadouts(ctrl)
	return nil
}

func parseAngle(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("missing angle")
	}
	angle, err := strconv.Atoi(strings.TrimSuffix(s, "°"))
	if err != nil {
		return 0, fmt.Errorf("invalid angle %q", s)
	}
	return angle, nil
}

// findActuator resolves a 1-based number or a case insensitive name.
func findActuator(p robot.Profile, ref string) (int, error) {
	if ref == "" {
		return 0, fmt.Errorf("missing actuator")
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(p.Actuators) {
			return 0, fmt.Errorf("actuator %d out of range 1-%d", n, len(p.Actuators))
		}
		return n - 1, nil
	}
	for i, a := range p.Actuators {
		if strings.EqualFold(a.Name, ref) || strings.EqualFold(strings.ReplaceAll(a.Name, " ", ""), ref) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no actuator %q in profile %s", ref, p.Name)
}

func printReadouts(ctrl *control.Controller) {
	for _, r := range ctrl.Panel().Readouts() {
		if !r.Known {
			continue
		}
		fmt.Printf("  %-10s %s\n", r.Actuator.Name, successStyle.Render(fmt.Sprintf("%d°", r.Angle)))
	}
}
