package link

import (
	"errors"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

var (
	ErrPortOpen         = errors.New("link: cannot open port")
	ErrWrite            = errors.New("link: write failed")
	ErrWriteTimeout     = errors.New("link: write timed out")
	ErrRead             = errors.New("link: read failed")
	ErrNotConnected     = errors.New("link: not connected")
	ErrAlreadyConnected = errors.New("link: already connected")
)

// portErrorFields adds the go.bug.st error code to a log entry when the
// error carries one.
func portErrorFields(err error) []zap.Field {
	var perr *serial.PortError
	if !errors.As(err, &perr) {
		return nil
	}
	return []zap.Field{zap.String("port_error", portErrorName(perr.Code()))}
}

func portErrorName(code serial.PortErrorCode) string {
	switch code {
	case serial.PortBusy:
		return "busy"
	case serial.PortNotFound:
		return "not_found"
	case serial.PermissionDenied:
		return "permission_denied"
	case serial.InvalidSerialPort:
		return "invalid_port"
	case serial.PortClosed:
		return "closed"
	}
	return "other"
}
