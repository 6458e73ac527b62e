package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_Encode(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{Servo(0, 135), "0135"},
		{Servo(4, 0), "40"},
		{Servo(9, 90), "990"},
		{Stepper(270), "S270"},
		{Stepper(0), "S0"},
		{Speed(55), "SPD:55"},
		{Speed(150), "SPD:100"}, // clamped
		{Speed(-3), "SPD:0"},
		{SetDirection(Forward), "DIR:1"},
		{SetDirection(Backward), "DIR:-1"},
		{Raw("L"), "L"},
	}

	for _, tt := range tests {
		got, err := tt.cmd.Encode()
		require.NoError(t, err, "Encode(%+v)", tt.cmd)
		assert.Equal(t, tt.want, got)
	}
}

func TestCommand_EncodeErrors(t *testing.T) {
	_, err := Servo(10, 90).Encode()
	assert.ErrorIs(t, err, ErrServoIndex)

	_, err = Servo(-1, 90).Encode()
	assert.ErrorIs(t, err, ErrServoIndex)

	_, err = Command{Kind: CmdDirection, Value: 0}.Encode()
	assert.Error(t, err)

	_, err = Raw("").Encode()
	assert.Error(t, err)
}

func TestDirection_Reverse(t *testing.T) {
	assert.Equal(t, Backward, Forward.Reverse())
	assert.Equal(t, Forward, Backward.Reverse())
}
