package link

import (
	"bytes"
	"errors"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the part of a go.bug.st serial port the link uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// allow tests to override the serial driver
var openPort = func(name string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// writeAll writes b, retrying short writes a bounded number of times.
func writeAll(w io.Writer, b []byte) (int, error) {
	const maxRetries = 3

	var total int
	for retries := 0; total < len(b) && retries < maxRetries; retries++ {
		n, err := w.Write(b[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	if total < len(b) {
		return total, errors.New("partial write")
	}
	return total, nil
}

// lineSplitter accumulates bytes from the port and yields complete lines.
// A line growing past max is discarded up to its terminator.
type lineSplitter struct {
	buf      []byte
	max      int
	overflow bool
}

// feed appends p and returns the completed lines and the number of lines
// dropped for being too long.
func (s *lineSplitter) feed(p []byte) (lines []string, dropped int) {
	s.buf = append(s.buf, p...)
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		if s.overflow {
			s.overflow = false
		} else {
			lines = append(lines, string(s.buf[:i]))
		}
		s.buf = s.buf[i+1:]
	}
	if len(s.buf) > s.max {
		if !s.overflow {
			dropped++
		}
		s.overflow = true
		s.buf = s.buf[:0]
	}
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return lines, dropped
}
