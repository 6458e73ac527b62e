package robot

import (
	"math"
	"strings"
)

// TicksPerTurn is the resolution of a Feetech STS servo.
const TicksPerTurn = 4096

// MotorCalibration maps a bus servo's raw position onto an actuator's
// angle range: RangeMin is 0 degrees, RangeMax is the actuator's MaxAngle.
type MotorCalibration struct {
	ID       int `mapstructure:"id"`
	RangeMin int `mapstructure:"range_min"`
	RangeMax int `mapstructure:"range_max"`
}

// Calibration holds bus calibration for all servos, keyed by actuator name.
type Calibration map[string]MotorCalibration

// DefaultCalibration centres maxAngle degrees of travel on the servo's
// midpoint.
func DefaultCalibration(id, maxAngle int) MotorCalibration {
	span := maxAngle * TicksPerTurn / 360
	mid := TicksPerTurn / 2
	return MotorCalibration{
		ID:       id,
		RangeMin: mid - span/2,
		RangeMax: mid - span/2 + span,
	}
}

// ToAngle converts a raw servo position to degrees in [0, maxAngle].
func (c MotorCalibration) ToAngle(raw, maxAngle int) int {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	a := int(math.Round(float64(raw-c.RangeMin) / rangeSize * float64(maxAngle)))
	return min(max(a, 0), maxAngle)
}

// ToTicks converts degrees in [0, maxAngle] to a raw servo position.
func (c MotorCalibration) ToTicks(angle, maxAngle int) int {
	if maxAngle == 0 {
		return c.RangeMin
	}
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int(math.Round(float64(angle)/float64(maxAngle)*rangeSize)) + c.RangeMin
}

// ForProfile returns calibration for every servo of p, falling back to
// DefaultCalibration with bus ID channel+1 where c has no entry.
func (c Calibration) ForProfile(p Profile) Calibration {
	out := make(Calibration, len(p.Actuators))
	for _, a := range p.Servos() {
		if mc, ok := c.lookup(a.Name); ok {
			out[a.Name] = mc
			continue
		}
		out[a.Name] = DefaultCalibration(a.Channel+1, a.MaxAngle)
	}
	return out
}

// lookup finds name ignoring case; config files lower-case their keys.
func (c Calibration) lookup(name string) (MotorCalibration, bool) {
	if mc, ok := c[name]; ok {
		return mc, true
	}
	for k, mc := range c {
		if strings.EqualFold(k, name) {
			return mc, true
		}
	}
	return MotorCalibration{}, false
}

// MotorIDs returns the bus IDs in the profile's servo order.
func (c Calibration) MotorIDs(p Profile) []int {
	var ids []int
	for _, a := range p.Servos() {
		if mc, ok := c[a.Name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns the actuator name and calibration for a bus ID.
func (c Calibration) ByID(id int) (string, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}
