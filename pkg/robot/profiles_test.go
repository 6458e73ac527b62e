package robot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinProfiles_Valid(t *testing.T) {
	for _, name := range BuiltinProfileNames() {
		p, err := BuiltinProfile(name)
		require.NoError(t, err, name)
		assert.NoError(t, p.Validate(), name)
	}
}

func TestBuiltinProfile_Layouts(t *testing.T) {
	p := mustProfile(t, "arm5")
	var maxes []int
	for _, a := range p.Servos() {
		maxes = append(maxes, a.MaxAngle)
	}
	assert.Equal(t, []int{180, 180, 180, 180, 90}, maxes)
	i, ok := p.StepperIndex()
	assert.True(t, ok)
	assert.Equal(t, 5, i)
	assert.Equal(t, 360, p.Actuators[i].MaxAngle)
	assert.Equal(t, 115200, p.BaudRate)

	p = mustProfile(t, "arm4")
	assert.Equal(t, 45, p.Servos()[0].MaxAngle)
	_, ok = p.StepperIndex()
	assert.False(t, ok)

	p = mustProfile(t, "slide")
	assert.Equal(t, KindStage, p.Kind)
	assert.Equal(t, 9600, p.BaudRate)
}

func TestBuiltinProfile_ReturnsCopy(t *testing.T) {
	p := mustProfile(t, "arm4")
	p.Actuators[0].MaxAngle = 1

	again := mustProfile(t, "arm4")
	assert.Equal(t, 45, again.Actuators[0].MaxAngle)
}

func TestBuiltinProfile_Unknown(t *testing.T) {
	_, err := BuiltinProfile("hexapod")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestProfile_ValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		p    Profile
	}{
		{"no actuators", Profile{Kind: KindArm}},
		{"bad kind", Profile{Kind: "crane", Actuators: servos(180)}},
		{"zero max", Profile{Kind: KindArm, Actuators: servos(0)}},
		{"max over 360", Profile{Kind: KindArm, Actuators: servos(400)}},
		{"channel 10", Profile{Kind: KindArm, Actuators: []Actuator{{Name: "x", Kind: Servo, Channel: 10, MaxAngle: 90}}}},
		{"duplicate channel", Profile{Kind: KindArm, Actuators: []Actuator{
			{Name: "a", Kind: Servo, Channel: 1, MaxAngle: 90},
			{Name: "b", Kind: Servo, Channel: 1, MaxAngle: 90},
		}}},
		{"two steppers", Profile{Kind: KindArm, Actuators: []Actuator{
			{Name: "a", Kind: Stepper, MaxAngle: 360},
			{Name: "b", Kind: Stepper, MaxAngle: 360},
		}}},
		{"stage with actuators", Profile{Kind: KindStage, Actuators: servos(90)}},
	}

	for _, tt := range tests {
		assert.Error(t, tt.p.Validate(), tt.name)
	}
}
