package link

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gwillem/armpanel/pkg/protocol"
)

type fakePort struct {
	reads chan []byte

	mu         sync.Mutex
	readErr    error
	writeErr   error
	writeBlock chan struct{}
	writes     []string
	closed     int
	resets     int
}

func newFakePort() *fakePort {
	return &fakePort{reads: make(chan []byte, 16)}
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.readErr != nil {
		err := f.readErr
		f.mu.Unlock()
		return 0, err
	}
	f.mu.Unlock()

	select {
	case b := <-f.reads:
		return copy(p, b), nil
	case <-time.After(5 * time.Millisecond):
		return 0, nil // read timeout
	}
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	block := f.writeBlock
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes = append(f.writes, string(p))
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (f *fakePort) ResetInputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakePort) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakePort) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type recordingSink struct {
	mu          sync.Mutex
	statuses    []protocol.Status
	disconnects []error
}

func (s *recordingSink) Status(st protocol.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *recordingSink) Disconnected(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects = append(s.disconnects, err)
}

func (s *recordingSink) statusCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statuses)
}

func (s *recordingSink) disconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.disconnects)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	cfg.ReadTimeout = 20 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	return cfg
}

// useFakePort makes openPort hand out fp and records the requested mode.
func useFakePort(t *testing.T, fp *fakePort) *serial.Mode {
	t.Helper()
	var mode serial.Mode
	orig := openPort
	openPort = func(name string, m *serial.Mode) (Port, error) {
		mode = *m
		return fp, nil
	}
	t.Cleanup(func() { openPort = orig })
	return &mode
}

func connectFake(t *testing.T, cfg Config) (*Link, *fakePort, *recordingSink) {
	t.Helper()
	fp := newFakePort()
	useFakePort(t, fp)
	sink := &recordingSink{}
	l := New(cfg, sink, zap.NewNop())
	require.NoError(t, l.Connect(context.Background(), "/dev/ttyFAKE0", 0))
	t.Cleanup(func() { _ = l.Disconnect() })
	return l, fp, sink
}

func TestConnect_UnavailablePort(t *testing.T) {
	orig := openPort
	openPort = func(string, *serial.Mode) (Port, error) {
		return nil, errors.New("no such file or directory")
	}
	defer func() { openPort = orig }()

	l := New(testConfig(), nil, nil)
	err := l.Connect(context.Background(), "/dev/ttyMISSING", 0)

	assert.ErrorIs(t, err, ErrPortOpen)
	assert.Equal(t, Disconnected, l.State())
	assert.Equal(t, "", l.Port())
	assert.Equal(t, int64(1), l.Metrics().ConnectFailures.Load())
}

func TestConnect_RealDriverMissingDevice(t *testing.T) {
	l := New(testConfig(), nil, nil)
	err := l.Connect(context.Background(), "/dev/armpanel-does-not-exist", 9600)

	assert.ErrorIs(t, err, ErrPortOpen)
	assert.False(t, l.Connected())
}

func TestConnect_UsesBaudRate(t *testing.T) {
	fp := newFakePort()
	mode := useFakePort(t, fp)

	l := New(testConfig(), nil, nil)
	require.NoError(t, l.Connect(context.Background(), "/dev/ttyFAKE0", 9600))
	defer l.Disconnect()

	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, Connected, l.State())
	assert.Equal(t, "/dev/ttyFAKE0", l.Port())
	assert.Equal(t, 1, fp.resets)

	require.NoError(t, l.Disconnect())
	require.NoError(t, l.Connect(context.Background(), "/dev/ttyFAKE0", 0))
	assert.Equal(t, 115200, mode.BaudRate)
}

func TestConnect_AlreadyConnected(t *testing.T) {
	l, _, _ := connectFake(t, testConfig())
	err := l.Connect(context.Background(), "/dev/ttyFAKE1", 0)
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, "/dev/ttyFAKE0", l.Port())
}

func TestConnect_SettleDelayCancelled(t *testing.T) {
	fp := newFakePort()
	useFakePort(t, fp)

	cfg := testConfig()
	cfg.SettleDelay = time.Hour
	l := New(cfg, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Connect(ctx, "/dev/ttyFAKE0", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Disconnected, l.State())
	assert.Equal(t, 1, fp.closeCount())
}

func TestSend_WhileDisconnectedDoesNotWrite(t *testing.T) {
	called := false
	orig := openPort
	openPort = func(string, *serial.Mode) (Port, error) {
		called = true
		return newFakePort(), nil
	}
	defer func() { openPort = orig }()

	l := New(testConfig(), nil, nil)
	err := l.Send(context.Background(), "0135")

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, called)
	assert.Zero(t, l.Metrics().BytesWritten.Load())
}

func TestSend_AppendsTerminator(t *testing.T) {
	l, fp, _ := connectFake(t, testConfig())

	require.NoError(t, l.Send(context.Background(), "0135"))
	require.NoError(t, l.Send(context.Background(), "S90\n"))
	require.NoError(t, l.SendCommand(context.Background(), protocol.Servo(4, 45)))

	assert.Equal(t, []string{"0135\n", "S90\n", "445\n"}, fp.written())
	assert.Equal(t, int64(3), l.Metrics().CommandsSent.Load())
}

func TestSendCommand_EncodeErrorDoesNotWrite(t *testing.T) {
	l, fp, _ := connectFake(t, testConfig())

	err := l.SendCommand(context.Background(), protocol.Servo(12, 45))
	assert.ErrorIs(t, err, protocol.ErrServoIndex)
	assert.Empty(t, fp.written())
	assert.True(t, l.Connected())
}

func TestSend_WriteErrorDisconnects(t *testing.T) {
	l, fp, sink := connectFake(t, testConfig())
	fp.mu.Lock()
	fp.writeErr = errors.New("device unplugged")
	fp.mu.Unlock()

	err := l.Send(context.Background(), "0135")

	assert.ErrorIs(t, err, ErrWrite)
	assert.Equal(t, Disconnected, l.State())
	assert.Equal(t, 1, fp.closeCount())
	require.Equal(t, 1, sink.disconnectCount())
	assert.ErrorIs(t, sink.disconnects[0], ErrWrite)
}

// stuckWrites makes every write on fp hang until the test ends, whether or
// not the port is closed.
func stuckWrites(t *testing.T, fp *fakePort) {
	t.Helper()
	block := make(chan struct{})
	fp.mu.Lock()
	fp.writeBlock = block
	fp.mu.Unlock()
	t.Cleanup(func() { close(block) })
}

func TestSend_WriteTimeoutDisconnects(t *testing.T) {
	cfg := testConfig()
	cfg.WriteTimeout = 10 * time.Millisecond
	l, fp, sink := connectFake(t, cfg)
	stuckWrites(t, fp)

	err := l.Send(context.Background(), "0135")
	require.ErrorIs(t, err, ErrWriteTimeout)

	// down before Send returns, with the write still hanging
	assert.Equal(t, Disconnected, l.State())
	assert.Equal(t, "", l.Port())
	assert.Equal(t, 1, fp.closeCount())
	require.Equal(t, 1, sink.disconnectCount())
	assert.ErrorIs(t, sink.disconnects[0], ErrWriteTimeout)
	assert.Equal(t, int64(1), l.Metrics().WriteTimeouts.Load())

	assert.ErrorIs(t, l.Send(context.Background(), "0190"), ErrNotConnected)
}

func TestDisconnect_ReturnsWhileWriteIsStuck(t *testing.T) {
	cfg := testConfig()
	cfg.WriteTimeout = 10 * time.Millisecond
	l, fp, sink := connectFake(t, cfg)
	stuckWrites(t, fp)

	require.ErrorIs(t, l.Send(context.Background(), "0135"), ErrWriteTimeout)

	done := make(chan error, 1)
	go func() { done <- l.Disconnect() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Disconnect blocked behind a stuck write")
	}
	assert.Equal(t, 1, fp.closeCount())
	assert.Equal(t, 1, sink.disconnectCount())

	// the link is reusable on a fresh port
	fresh := newFakePort()
	useFakePort(t, fresh)
	require.NoError(t, l.Connect(context.Background(), "/dev/ttyFAKE0", 0))
	require.NoError(t, l.Send(context.Background(), "0190"))
	assert.Equal(t, []string{"0190\n"}, fresh.written())
}

func TestDisconnect_WithWriteInFlight(t *testing.T) {
	cfg := testConfig()
	cfg.WriteTimeout = time.Hour
	l, fp, _ := connectFake(t, cfg)
	stuckWrites(t, fp)

	sent := make(chan error, 1)
	go func() { sent <- l.Send(context.Background(), "0135") }()
	time.Sleep(10 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- l.Disconnect() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Disconnect blocked behind a pending write")
	}
	assert.Equal(t, Disconnected, l.State())
	assert.Equal(t, 1, fp.closeCount())
}

func TestPoll_DispatchesStatusLines(t *testing.T) {
	l, fp, sink := connectFake(t, testConfig())

	fp.reads <- []byte("Angles:10,20,30,40\r\nStepp")
	fp.reads <- []byte("erPos:90\n")
	fp.reads <- []byte("garbage\n\n")

	require.Eventually(t, func() bool { return sink.statusCount() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return l.Metrics().MalformedLines.Load() == 1 }, time.Second, time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, protocol.StatusAngles, sink.statuses[0].Kind)
	assert.Equal(t, []int{10, 20, 30, 40}, sink.statuses[0].Angles)
	assert.Equal(t, protocol.StatusStepperPos, sink.statuses[1].Kind)
	assert.Equal(t, 90, sink.statuses[1].Position)
}

func TestPoll_ReadErrorDisconnects(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	fp := newFakePort()
	useFakePort(t, fp)
	sink := &recordingSink{}
	l := New(testConfig(), sink, zap.New(core))
	require.NoError(t, l.Connect(context.Background(), "/dev/ttyFAKE0", 0))

	fp.mu.Lock()
	fp.readErr = errors.New("input/output error")
	fp.mu.Unlock()

	require.Eventually(t, func() bool { return sink.disconnectCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, Disconnected, l.State())
	assert.ErrorIs(t, sink.disconnects[0], ErrRead)
	assert.Equal(t, 1, fp.closeCount())
	assert.Equal(t, 1, logs.FilterMessage("serial link lost").Len())

	// no retry: stays down, and Disconnect is still safe
	assert.NoError(t, l.Disconnect())
	assert.Equal(t, 1, sink.disconnectCount())
}

func TestDisconnect_Idempotent(t *testing.T) {
	l, fp, sink := connectFake(t, testConfig())

	assert.NoError(t, l.Disconnect())
	assert.NoError(t, l.Disconnect())

	assert.Equal(t, Disconnected, l.State())
	assert.Equal(t, 1, fp.closeCount())
	require.Equal(t, 1, sink.disconnectCount())
	assert.NoError(t, sink.disconnects[0])

	assert.NoError(t, New(testConfig(), nil, nil).Disconnect())
}

func TestDisconnect_StopsPolling(t *testing.T) {
	l, fp, sink := connectFake(t, testConfig())
	require.NoError(t, l.Disconnect())

	fp.reads <- []byte("Angles:1,2\n")
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, sink.statusCount())
}

func TestLineSplitter(t *testing.T) {
	s := lineSplitter{max: 8}

	lines, dropped := s.feed([]byte("ab\ncd"))
	assert.Equal(t, []string{"ab"}, lines)
	assert.Zero(t, dropped)

	lines, _ = s.feed([]byte("e\n"))
	assert.Equal(t, []string{"cde"}, lines)

	// overlong line is discarded up to its newline
	lines, dropped = s.feed([]byte("0123456789"))
	assert.Empty(t, lines)
	assert.Equal(t, 1, dropped)

	lines, dropped = s.feed([]byte("more\nok\n"))
	assert.Equal(t, []string{"ok"}, lines)
	assert.Zero(t, dropped)
}

func TestMetrics_Snapshot(t *testing.T) {
	l, fp, sink := connectFake(t, testConfig())

	require.NoError(t, l.Send(context.Background(), "0135"))
	fp.reads <- []byte("Angles:1,2\nnoise\n")
	require.Eventually(t, func() bool { return sink.statusCount() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, l.Disconnect())

	snap := l.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.ConnectAttempts)
	assert.Equal(t, int64(1), snap.CommandsSent)
	assert.Equal(t, int64(5), snap.BytesWritten)
	assert.Equal(t, int64(1), snap.StatusLines)
	assert.Equal(t, int64(1), snap.MalformedLines)
	assert.Equal(t, int64(1), snap.Disconnects)
	assert.Contains(t, snap.String(), "1 commands sent, 1 status lines, 1 malformed")
}
