package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus_Angles(t *testing.T) {
	tests := []struct {
		line string
		want []int
	}{
		{"Angles:10,20,30,40", []int{10, 20, 30, 40}},
		{"Angles:90,90,90,90,45\r", []int{90, 90, 90, 90, 45}},
		{"  Angles: 1, 2 ,3 ", []int{1, 2, 3}},
		{"Angles:10,,30", []int{10, NoReading, 30}},
		{"Angles:0,360", []int{0, 360}},
	}

	for _, tt := range tests {
		got, err := ParseStatus(tt.line)
		require.NoError(t, err, "ParseStatus(%q)", tt.line)
		assert.Equal(t, StatusAngles, got.Kind)
		assert.Equal(t, tt.want, got.Angles, "ParseStatus(%q)", tt.line)
	}
}

func TestParseStatus_StepperPos(t *testing.T) {
	got, err := ParseStatus("StepperPos:270\r\n")
	require.NoError(t, err)
	assert.Equal(t, StatusStepperPos, got.Kind)
	assert.Equal(t, 270, got.Position)
}

func TestParseStatus_Malformed(t *testing.T) {
	lines := []string{
		"",
		"hello",
		"angles:10,20",
		"Angles:",
		"Angles:10,abc",
		"Angles:10,400",
		"Angles:-5",
		"StepperPos:",
		"StepperPos:ninety",
		"StepperPos:361",
		"Servo 1: 90",
	}

	for _, line := range lines {
		_, err := ParseStatus(line)
		assert.ErrorIs(t, err, ErrMalformed, "ParseStatus(%q)", line)
	}
}

func TestParseStatus_OneBadFieldRejectsLine(t *testing.T) {
	st, err := ParseStatus("Angles:10,20,x,40")
	require.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "field 2")
	assert.Nil(t, st.Angles)

	_, err = ParseStatus("Angles:10,20,361,40")
	assert.ErrorIs(t, err, ErrMalformed)

	// an empty field is a missing reading, not a bad one
	st, err = ParseStatus("Angles:10,20,,40")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, NoReading, 40}, st.Angles)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "Angles:10,,30", Status{Kind: StatusAngles, Angles: []int{10, NoReading, 30}}.String())
	assert.Equal(t, "StepperPos:90", Status{Kind: StatusStepperPos, Position: 90}.String())
}
