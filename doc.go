// Package armpanel is a terminal control panel for hobby servo arms and
// stepper driven stages attached to a microcontroller over a serial port.
//
// The board is commanded with short text lines (servo "<index><angle>",
// stepper "S<angle>", stage "SPD:<0-100>" and "DIR:<1|-1>") and echoes
// "Angles:" and "StepperPos:" status lines that drive the on-screen
// readouts. Arms built from Feetech STS bus servos can be driven directly
// without a board.
//
// # Installation
//
//	go install github.com/gwillem/armpanel/cmd/armpanel@latest
//
// # Usage
//
// First, run setup to pick the port and actuator profile:
//
//	armpanel setup
//
// Then open the panel:
//
//	armpanel panel
//
// Or script single moves:
//
//	armpanel move 2 135
//	armpanel move --all 90
//	armpanel send S270
//	armpanel monitor --duration 10s
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/armpanel: CLI with ports, setup, panel, slide, move, send and monitor commands
//   - pkg/protocol: Command encoding and status line parsing
//   - pkg/link: Serial connection with background status polling
//   - pkg/robot: Actuator profiles, panel readouts, configuration and the Feetech bus backend
//   - pkg/control: Operator session tying a transport to the panel
//   - pkg/logger: Structured logging with file rotation
package armpanel
