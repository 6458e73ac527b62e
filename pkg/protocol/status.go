package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned for a status line that cannot be parsed.
var ErrMalformed = errors.New("protocol: malformed status line")

const (
	anglesPrefix  = "Angles:"
	stepperPrefix = "StepperPos:"

	// MaxAngle is the largest angle any actuator reports.
	MaxAngle = 360

	// NoReading marks an empty field in an Angles line.
	NoReading = -1
)

// StatusKind tags a parsed status line.
type StatusKind int

const (
	StatusAngles StatusKind = iota + 1
	StatusStepperPos
)

func (k StatusKind) String() string {
	switch k {
	case StatusAngles:
		return "angles"
	case StatusStepperPos:
		return "stepper"
	}
	return "unknown"
}

// Status is one parsed inbound line.
type Status struct {
	Kind StatusKind

	// Angles holds per-servo readings in channel order for StatusAngles.
	// Empty fields are NoReading.
	Angles []int

	// Position is the stepper angle for StatusStepperPos.
	Position int
}

// ParseStatus parses a single line received from the board. Leading and
// trailing whitespace, including a carriage return, is ignored.
func ParseStatus(line string) (Status, error) {
	line = strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(line, anglesPrefix):
		return parseAngles(line[len(anglesPrefix):], line)
	case strings.HasPrefix(line, stepperPrefix):
		pos, err := parseAngle(line[len(stepperPrefix):])
		if err != nil {
			return Status{}, fmt.Errorf("%w: %q: %v", ErrMalformed, line, err)
		}
		return Status{Kind: StatusStepperPos, Position: pos}, nil
	}
	return Status{}, fmt.Errorf("%w: %q", ErrMalformed, line)
}

// parseAngles rejects the whole line when any field is bad, so a partly
// garbled line never moves a readout. Empty fields are NoReading.
func parseAngles(body, line string) (Status, error) {
	if strings.TrimSpace(body) == "" {
		return Status{}, fmt.Errorf("%w: %q: no angles", ErrMalformed, line)
	}

	fields := strings.Split(body, ",")
	angles := make([]int, len(fields))
	for i, f := range fields {
		if strings.TrimSpace(f) == "" {
			angles[i] = NoReading
			continue
		}
		a, err := parseAngle(f)
		if err != nil {
			return Status{}, fmt.Errorf("%w: %q: field %d: %v", ErrMalformed, line, i, err)
		}
		angles[i] = a
	}
	return Status{Kind: StatusAngles, Angles: angles}, nil
}

func parseAngle(s string) (int, error) {
	a, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if a < 0 || a > MaxAngle {
		return 0, fmt.Errorf("angle %d out of range", a)
	}
	return a, nil
}

// String renders the status back into its wire form.
func (s Status) String() string {
	switch s.Kind {
	case StatusAngles:
		parts := make([]string, len(s.Angles))
		for i, a := range s.Angles {
			if a != NoReading {
				parts[i] = strconv.Itoa(a)
			}
		}
		return anglesPrefix + strings.Join(parts, ",")
	case StatusStepperPos:
		return stepperPrefix + strconv.Itoa(s.Position)
	}
	return "<unknown status>"
}
