// Package link manages a single serial connection to an actuator controller
// board: opening the port, writing commands and polling for status lines.
package link

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/gwillem/armpanel/pkg/protocol"
)

// closeGrace is added to the read timeout when waiting for the poll loop
// to notice cancellation.
const closeGrace = 250 * time.Millisecond

// State is the connection state of a Link.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Sink receives what the poll loop reads. Both methods are called from the
// poll goroutine (Disconnected may also be called from the goroutine calling
// Disconnect or a failing Send) and must not block.
type Sink interface {
	// Status is called for every well formed status line.
	Status(s protocol.Status)
	// Disconnected is called once per connection when the link drops.
	// err is nil for an explicit Disconnect.
	Disconnected(err error)
}

// Link is a serial session. Send may be called concurrently with the poll
// loop; Connect and Disconnect are serialised internally. Disconnect returns
// even when a write is stuck in the driver.
type Link struct {
	cfg  Config
	sink Sink
	log  *zap.Logger

	connected atomic.Bool
	metrics   Metrics

	// mu guards port, name and writeMu only. I/O runs outside it so that
	// closing the port can interrupt a blocked read or write.
	mu   sync.Mutex
	port Port
	name string
	// writeMu keeps concurrent Sends from interleaving on the wire. Each
	// connection gets its own, so a write stuck on a dead port cannot hold
	// up the next one.
	writeMu *sync.Mutex

	// lifeMu serialises connect and teardown.
	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a disconnected link. sink may be nil.
func New(cfg Config, sink Sink, log *zap.Logger) *Link {
	if log == nil {
		log = zap.NewNop()
	}
	return &Link{
		cfg:  cfg.withDefaults(),
		sink: sink,
		log:  log.Named("link"),
	}
}

// Connect opens portName at baudRate (the configured rate when <= 0), waits
// for the board to settle and starts polling.
func (l *Link) Connect(ctx context.Context, portName string, baudRate int) error {
	l.lifeMu.Lock()
	defer l.lifeMu.Unlock()

	if l.connected.Load() {
		return ErrAlreadyConnected
	}
	if baudRate <= 0 {
		baudRate = l.cfg.BaudRate
	}

	log := l.log.With(zap.String("port", portName), zap.Int("baud", baudRate))
	l.metrics.ConnectAttempts.Inc()

	port, err := openPort(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		l.metrics.ConnectFailures.Inc()
		log.Error("open serial port", append([]zap.Field{zap.Error(err)}, portErrorFields(err)...)...)
		return fmt.Errorf("%w %s: %w", ErrPortOpen, portName, err)
	}

	if err := port.SetReadTimeout(l.cfg.ReadTimeout); err != nil {
		l.metrics.ConnectFailures.Inc()
		_ = port.Close()
		log.Error("set read timeout", zap.Error(err))
		return fmt.Errorf("%w %s: set read timeout: %w", ErrPortOpen, portName, err)
	}

	if l.cfg.SettleDelay > 0 {
		log.Debug("waiting for board to settle", zap.Duration("delay", l.cfg.SettleDelay))
		select {
		case <-ctx.Done():
			l.metrics.ConnectFailures.Inc()
			_ = port.Close()
			return ctx.Err()
		case <-time.After(l.cfg.SettleDelay):
		}
	}

	// drop whatever the board printed while booting
	if err := port.ResetInputBuffer(); err != nil {
		log.Warn("reset input buffer", zap.Error(err))
	}

	l.mu.Lock()
	l.port = port
	l.name = portName
	l.writeMu = &sync.Mutex{}
	l.mu.Unlock()

	pollCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.connected.Store(true)

	go l.poll(pollCtx, port, l.done)

	log.Info("serial link connected")
	return nil
}

// Disconnect stops polling and closes the port. Calling it on a
// disconnected link is a no-op.
func (l *Link) Disconnect() error {
	return l.teardown(nil, nil)
}

// teardown closes the connection owning port (any connection when port is
// nil) and notifies the sink with cause. It never waits on a pending write.
func (l *Link) teardown(port Port, cause error) error {
	l.lifeMu.Lock()
	defer l.lifeMu.Unlock()

	l.mu.Lock()
	current, name := l.port, l.name
	if current == nil || (port != nil && port != current) {
		l.mu.Unlock()
		return nil
	}
	l.port = nil
	l.mu.Unlock()

	l.connected.Store(false)
	if l.cancel != nil {
		l.cancel()
	}
	// closing unblocks the poll read and any stuck write
	err := current.Close()
	if l.done != nil {
		select {
		case <-l.done:
		case <-time.After(l.cfg.ReadTimeout + closeGrace):
			l.log.Warn("poll loop did not stop in time", zap.String("port", name))
		}
	}
	l.cancel, l.done = nil, nil

	l.metrics.Disconnects.Inc()
	fields := append([]zap.Field{zap.String("port", name)}, l.metrics.Snapshot().fields()...)
	if cause != nil {
		l.log.Error("serial link lost", append(fields, zap.Error(cause))...)
	} else {
		l.log.Info("serial link disconnected", fields...)
	}
	if l.sink != nil {
		l.sink.Disconnected(cause)
	}

	if err != nil {
		return fmt.Errorf("link: close %s: %w", name, err)
	}
	return nil
}

// Send writes text followed by a newline. It returns ErrNotConnected without
// writing anything when the link is down. A failed or timed out write
// disconnects the link.
func (l *Link) Send(ctx context.Context, text string) error {
	if !l.connected.Load() {
		return ErrNotConnected
	}
	data := []byte(strings.TrimRight(text, "\r\n") + "\n")

	l.mu.Lock()
	port, writeMu := l.port, l.writeMu
	l.mu.Unlock()
	if port == nil {
		return ErrNotConnected
	}

	type result struct {
		n   int
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		writeMu.Lock()
		defer writeMu.Unlock()
		n, err := writeAll(port, data)
		resCh <- result{n, err}
	}()

	var timeout <-chan time.Time
	if l.cfg.WriteTimeout > 0 {
		timer := time.NewTimer(l.cfg.WriteTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-resCh:
		l.metrics.BytesWritten.Add(int64(res.n))
		if res.err != nil {
			l.metrics.WriteErrors.Inc()
			err := fmt.Errorf("%w: %q: %w", ErrWrite, text, res.err)
			_ = l.teardown(port, err)
			return err
		}
		l.metrics.CommandsSent.Inc()
		l.log.Debug("sent", zap.String("cmd", text))
		return nil
	case <-timeout:
		l.metrics.WriteTimeouts.Inc()
		err := fmt.Errorf("%w: %q", ErrWriteTimeout, text)
		// the writer goroutine is abandoned; teardown does not wait for it
		_ = l.teardown(port, err)
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendCommand encodes cmd and sends it.
func (l *Link) SendCommand(ctx context.Context, cmd protocol.Command) error {
	text, err := cmd.Encode()
	if err != nil {
		return err
	}
	return l.Send(ctx, text)
}

func (l *Link) poll(ctx context.Context, port Port, done chan struct{}) {
	defer close(done)

	buf := make([]byte, 256)
	lines := lineSplitter{max: l.cfg.MaxLineLength}

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := port.Read(buf)

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.metrics.ReadErrors.Inc()
			cause := fmt.Errorf("%w: %w", ErrRead, err)
			// teardown waits for this goroutine, so it cannot run here
			go func() { _ = l.teardown(port, cause) }()
			return
		}

		if n > 0 {
			l.metrics.BytesRead.Add(int64(n))
			complete, dropped := lines.feed(buf[:n])
			if dropped > 0 {
				l.metrics.DroppedLines.Add(int64(dropped))
				l.log.Debug("dropped overlong line", zap.Int("max", l.cfg.MaxLineLength))
			}
			for _, line := range complete {
				l.dispatch(line)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Link) dispatch(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	st, err := protocol.ParseStatus(line)
	if err != nil {
		l.metrics.MalformedLines.Inc()
		l.log.Debug("ignoring line", zap.String("line", line), zap.Error(err))
		return
	}
	l.metrics.StatusLines.Inc()
	if l.sink != nil {
		l.sink.Status(st)
	}
}

// State reports whether the link is connected.
func (l *Link) State() State {
	if l.connected.Load() {
		return Connected
	}
	return Disconnected
}

// Connected is shorthand for State() == Connected.
func (l *Link) Connected() bool {
	return l.connected.Load()
}

// Port returns the name of the open port, or "" when disconnected.
func (l *Link) Port() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return ""
	}
	return l.name
}

// Metrics returns the link counters.
func (l *Link) Metrics() *Metrics {
	return &l.metrics
}
