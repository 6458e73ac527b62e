// Package protocol encodes actuator commands and parses the status lines a
// controller board echoes back over the serial link.
//
// The wire format is line oriented ASCII. Commands are written without the
// trailing newline here; the link appends the terminator.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrServoIndex is returned for a servo channel that cannot be encoded.
// The index is written as a single digit directly followed by the angle,
// so only channels 0-9 are unambiguous.
var ErrServoIndex = errors.New("protocol: servo index out of range")

// CommandKind identifies the type of an outbound command.
type CommandKind int

const (
	CmdServo CommandKind = iota
	CmdStepper
	CmdSpeed
	CmdDirection
	CmdRaw
)

func (k CommandKind) String() string {
	switch k {
	case CmdServo:
		return "servo"
	case CmdStepper:
		return "stepper"
	case CmdSpeed:
		return "speed"
	case CmdDirection:
		return "direction"
	case CmdRaw:
		return "raw"
	}
	return "unknown"
}

// Direction of travel for the linear stage.
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Backward {
		return Forward
	}
	return Backward
}

// Command is a single outbound instruction for the board.
type Command struct {
	Kind    CommandKind
	Channel int    // servo index, CmdServo only
	Value   int    // angle, speed or direction
	Token   string // CmdRaw only
}

// Servo builds a command moving servo channel to angle.
func Servo(channel, angle int) Command {
	return Command{Kind: CmdServo, Channel: channel, Value: angle}
}

// Stepper builds a command moving the rotary axis to angle.
func Stepper(angle int) Command {
	return Command{Kind: CmdStepper, Value: angle}
}

// Speed builds a stage speed command. Speed is a percentage.
func Speed(speed int) Command {
	return Command{Kind: CmdSpeed, Value: min(max(speed, 0), 100)}
}

// SetDirection builds a stage direction command.
func SetDirection(d Direction) Command {
	return Command{Kind: CmdDirection, Value: int(d)}
}

// Raw wraps a device specific token, such as the single letter jog
// commands understood by older firmware.
func Raw(token string) Command {
	return Command{Kind: CmdRaw, Token: token}
}

// Encode returns the wire text for the command, without line terminator.
func (c Command) Encode() (string, error) {
	switch c.Kind {
	case CmdServo:
		if c.Channel < 0 || c.Channel > 9 {
			return "", fmt.Errorf("%w: %d", ErrServoIndex, c.Channel)
		}
		return strconv.Itoa(c.Channel) + strconv.Itoa(c.Value), nil
	case CmdStepper:
		return "S" + strconv.Itoa(c.Value), nil
	case CmdSpeed:
		return "SPD:" + strconv.Itoa(c.Value), nil
	case CmdDirection:
		if c.Value != int(Forward) && c.Value != int(Backward) {
			return "", fmt.Errorf("protocol: invalid direction %d", c.Value)
		}
		return "DIR:" + strconv.Itoa(c.Value), nil
	case CmdRaw:
		if c.Token == "" {
			return "", errors.New("protocol: empty raw command")
		}
		return c.Token, nil
	}
	return "", fmt.Errorf("protocol: unknown command kind %d", c.Kind)
}

func (c Command) String() string {
	s, err := c.Encode()
	if err != nil {
		return fmt.Sprintf("<invalid %s command>", c.Kind)
	}
	return s
}
