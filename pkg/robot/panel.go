package robot

import "github.com/gwillem/armpanel/pkg/protocol"

// Readout is what the panel shows for one actuator.
type Readout struct {
	Actuator Actuator
	Angle    int
	Known    bool // false until a value was sent or received
}

// Panel holds the last known state of every actuator in a profile. It is
// not safe for concurrent use; the UI goroutine owns it.
type Panel struct {
	profile   Profile
	angles    []int
	known     []bool
	speed     int
	direction protocol.Direction
}

// NewPanel creates a panel with every readout unknown.
func NewPanel(p Profile) *Panel {
	return &Panel{
		profile:   p,
		angles:    make([]int, len(p.Actuators)),
		known:     make([]bool, len(p.Actuators)),
		direction: protocol.Forward,
	}
}

// Profile returns the layout the panel was built from.
func (p *Panel) Profile() Profile {
	return p.profile
}

// Len returns the number of actuators.
func (p *Panel) Len() int {
	return len(p.profile.Actuators)
}

// Actuator returns actuator i.
func (p *Panel) Actuator(i int) Actuator {
	return p.profile.Actuators[i]
}

// Angle returns the readout of actuator i and whether it is known.
func (p *Panel) Angle(i int) (int, bool) {
	if i < 0 || i >= len(p.angles) {
		return 0, false
	}
	return p.angles[i], p.known[i]
}

// Set records angle as the readout of actuator i.
func (p *Panel) Set(i, angle int) {
	if i < 0 || i >= len(p.angles) {
		return
	}
	p.angles[i] = angle
	p.known[i] = true
}

// ServoIndex returns the actuator index of the servo on channel.
func (p *Panel) ServoIndex(channel int) (int, bool) {
	for i, a := range p.profile.Actuators {
		if a.Kind == Servo && a.Channel == channel {
			return i, true
		}
	}
	return 0, false
}

// StepperIndex returns the actuator index of the rotary axis.
func (p *Panel) StepperIndex() (int, bool) {
	return p.profile.StepperIndex()
}

// Apply updates readouts from a status line and returns the indices that
// changed. Angles fields map to servo channels in order; fields without a
// matching servo and empty fields are ignored.
func (p *Panel) Apply(st protocol.Status) []int {
	var changed []int
	switch st.Kind {
	case protocol.StatusAngles:
		for ch, a := range st.Angles {
			if a == protocol.NoReading {
				continue
			}
			i, ok := p.ServoIndex(ch)
			if !ok {
				continue
			}
			p.Set(i, a)
			changed = append(changed, i)
		}
	case protocol.StatusStepperPos:
		if i, ok := p.StepperIndex(); ok {
			p.Set(i, st.Position)
			changed = append(changed, i)
		}
	}
	return changed
}

// Readouts returns the current readouts in actuator order.
func (p *Panel) Readouts() []Readout {
	out := make([]Readout, len(p.angles))
	for i := range p.angles {
		out[i] = Readout{
			Actuator: p.profile.Actuators[i],
			Angle:    p.angles[i],
			Known:    p.known[i],
		}
	}
	return out
}

// Speed returns the last stage speed sent.
func (p *Panel) Speed() int {
	return p.speed
}

// SetSpeed records the stage speed.
func (p *Panel) SetSpeed(s int) {
	p.speed = s
}

// Direction returns the last stage direction sent.
func (p *Panel) Direction() protocol.Direction {
	return p.direction
}

// SetDirection records the stage direction.
func (p *Panel) SetDirection(d protocol.Direction) {
	p.direction = d
}
