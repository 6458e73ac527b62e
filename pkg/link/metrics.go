package link

import (
	"fmt"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Metrics tracks link activity. All counters are safe for concurrent use.
type Metrics struct {
	ConnectAttempts atomic.Int64
	ConnectFailures atomic.Int64
	Disconnects     atomic.Int64

	CommandsSent  atomic.Int64
	BytesWritten  atomic.Int64
	WriteErrors   atomic.Int64
	WriteTimeouts atomic.Int64

	BytesRead      atomic.Int64
	ReadErrors     atomic.Int64
	StatusLines    atomic.Int64
	MalformedLines atomic.Int64
	DroppedLines   atomic.Int64 // over MaxLineLength
}

// MetricsSnapshot is a point in time copy of Metrics.
type MetricsSnapshot struct {
	ConnectAttempts int64
	ConnectFailures int64
	Disconnects     int64
	CommandsSent    int64
	BytesWritten    int64
	WriteErrors     int64
	WriteTimeouts   int64
	BytesRead       int64
	ReadErrors      int64
	StatusLines     int64
	MalformedLines  int64
	DroppedLines    int64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ConnectAttempts: m.ConnectAttempts.Load(),
		ConnectFailures: m.ConnectFailures.Load(),
		Disconnects:     m.Disconnects.Load(),
		CommandsSent:    m.CommandsSent.Load(),
		BytesWritten:    m.BytesWritten.Load(),
		WriteErrors:     m.WriteErrors.Load(),
		WriteTimeouts:   m.WriteTimeouts.Load(),
		BytesRead:       m.BytesRead.Load(),
		ReadErrors:      m.ReadErrors.Load(),
		StatusLines:     m.StatusLines.Load(),
		MalformedLines:  m.MalformedLines.Load(),
		DroppedLines:    m.DroppedLines.Load(),
	}
}

// String is a one line summary for operators.
func (s MetricsSnapshot) String() string {
	return fmt.Sprintf("%d commands sent, %d status lines, %d malformed, %d dropped, %d write errors, %d write timeouts, %d read errors",
		s.CommandsSent, s.StatusLines, s.MalformedLines, s.DroppedLines, s.WriteErrors, s.WriteTimeouts, s.ReadErrors)
}

func (s MetricsSnapshot) fields() []zap.Field {
	return []zap.Field{
		zap.Int64("commands_sent", s.CommandsSent),
		zap.Int64("bytes_written", s.BytesWritten),
		zap.Int64("bytes_read", s.BytesRead),
		zap.Int64("status_lines", s.StatusLines),
		zap.Int64("malformed_lines", s.MalformedLines),
		zap.Int64("write_timeouts", s.WriteTimeouts),
	}
}
