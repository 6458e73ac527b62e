// Package control ties a transport to an actuator panel for an operator
// session.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gwillem/armpanel/pkg/link"
	"github.com/gwillem/armpanel/pkg/protocol"
	"github.com/gwillem/armpanel/pkg/robot"
)

// Transport carries commands to the hardware and reports back through the
// link.Sink it was created with. *link.Link and *robot.Arm implement it.
type Transport interface {
	Connect(ctx context.Context, port string, baudRate int) error
	Disconnect() error
	Connected() bool
	SendCommand(ctx context.Context, cmd protocol.Command) error
}

// EventKind tells connection events apart.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
)

func (k EventKind) String() string {
	if k == EventConnected {
		return "connected"
	}
	return "disconnected"
}

// Event is a change of connection state.
type Event struct {
	Kind EventKind
	Port string
	Err  error // set when the link dropped on an I/O error
	Time time.Time
}

// Config holds configuration for the controller.
type Config struct {
	Profile     robot.Profile
	Port        string
	BaudRate    int // 0 uses the profile's rate
	Driver      string
	Link        link.Config
	Calibration robot.Calibration
	Logger      *zap.Logger
}

// ConfigFrom builds a controller config from the file configuration and a
// profile name ("" for the configured one).
func ConfigFrom(rc *robot.Config, profile string) (Config, error) {
	p, err := rc.ResolveProfile(profile)
	if err != nil {
		return Config{}, err
	}
	lc := rc.LinkConfig(p)
	return Config{
		Profile:     p,
		Port:        rc.Port,
		BaudRate:    lc.BaudRate,
		Driver:      rc.Driver,
		Link:        lc,
		Calibration: rc.Calibration,
	}, nil
}

// Controller is one operator session: a transport, the panel it updates and
// the channels the UI reads from. Panel and the command methods belong to
// the UI goroutine; the transport only ever writes to the channels.
type Controller struct {
	transport Transport
	panel     *robot.Panel
	baudRate  int
	log       *zap.Logger

	mu   sync.Mutex
	port string

	statusCh chan protocol.Status
	eventCh  chan Event
	logCh    chan string
}

// NewController creates a disconnected controller with a transport chosen by
// cfg.Driver.
func NewController(cfg Config) (*Controller, error) {
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}

	var newTransport func(link.Sink) Transport
	switch cfg.Driver {
	case "", robot.DriverSerial:
		newTransport = func(s link.Sink) Transport {
			return link.New(cfg.Link, s, cfg.Logger)
		}
	case robot.DriverFeetech:
		if cfg.Profile.Kind != robot.KindArm {
			return nil, fmt.Errorf("driver %s: %w: profile %q is a %s", cfg.Driver, robot.ErrUnsupported, cfg.Profile.Name, cfg.Profile.Kind)
		}
		if cfg.BaudRate == cfg.Profile.BaudRate {
			// the profile rate is the controller board's, not the bus's
			cfg.BaudRate = robot.BusBaudRate
		}
		newTransport = func(s link.Sink) Transport {
			return robot.NewArm(cfg.Profile, cfg.Calibration, cfg.Link.PollInterval, s, cfg.Logger)
		}
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
	return newController(cfg, newTransport), nil
}

func newController(cfg Config, newTransport func(link.Sink) Transport) *Controller {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	baud := cfg.BaudRate
	if baud <= 0 {
		baud = cfg.Profile.BaudRate
	}
	c := &Controller{
		panel:    robot.NewPanel(cfg.Profile),
		baudRate: baud,
		log:      log.Named("control"),
		port:     cfg.Port,
		statusCh: make(chan protocol.Status, 16),
		eventCh:  make(chan Event, 8),
		logCh:    make(chan string, 10),
	}
	c.transport = newTransport(c)
	return c
}

// Statuses returns a channel that receives parsed status lines.
func (c *Controller) Statuses() <-chan protocol.Status {
	return c.statusCh
}

// Events returns a channel that receives connection changes.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Logs returns a channel that receives log messages for the operator.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Panel returns the actuator readouts.
func (c *Controller) Panel() *robot.Panel {
	return c.panel
}

// Profile returns the actuator layout.
func (c *Controller) Profile() robot.Profile {
	return c.panel.Profile()
}

// Port returns the port last connected to, or the configured one.
func (c *Controller) Port() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// BaudRate returns the rate Connect uses.
func (c *Controller) BaudRate() int {
	return c.baudRate
}

// Connected reports whether the transport is up.
func (c *Controller) Connected() bool {
	return c.transport.Connected()
}

// Metrics returns the transport's traffic counters. ok is false for
// transports that do not keep any, such as the Feetech bus.
func (c *Controller) Metrics() (snap link.MetricsSnapshot, ok bool) {
	m, ok := c.transport.(interface{ Metrics() *link.Metrics })
	if !ok {
		return link.MetricsSnapshot{}, false
	}
	return m.Metrics().Snapshot(), true
}

func (c *Controller) logf(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Status implements link.Sink. Called on the transport's goroutine.
func (c *Controller) Status(s protocol.Status) {
	select {
	case c.statusCh <- s:
	default:
		// Drop the oldest status, the newest is what the panel should show
		select {
		case <-c.statusCh:
		default:
		}
		select {
		case c.statusCh <- s:
		default:
		}
	}
}

// Disconnected implements link.Sink.
func (c *Controller) Disconnected(err error) {
	port := c.Port()
	if err != nil {
		c.logf("Connection to %s lost: %v", port, err)
	} else {
		c.logf("Disconnected from %s", port)
	}
	c.sendEvent(Event{Kind: EventDisconnected, Port: port, Err: err, Time: time.Now()})
}

func (c *Controller) sendEvent(e Event) {
	select {
	case c.eventCh <- e:
	default:
		c.log.Warn("event dropped", zap.Stringer("kind", e.Kind))
	}
}

// Connect opens port ("" for the configured one).
func (c *Controller) Connect(ctx context.Context, port string) error {
	if port == "" {
		port = c.Port()
	}
	if port == "" {
		return errors.New("no port selected")
	}

	c.logf("Connecting to %s at %d baud...", port, c.baudRate)
	if err := c.transport.Connect(ctx, port, c.baudRate); err != nil {
		c.logf("Connect failed: %v", err)
		return err
	}

	c.mu.Lock()
	c.port = port
	c.mu.Unlock()

	c.logf("Connected to %s", port)
	c.sendEvent(Event{Kind: EventConnected, Port: port, Time: time.Now()})
	return nil
}

// Disconnect closes the transport. Disconnecting twice is not an error.
func (c *Controller) Disconnect() error {
	return c.transport.Disconnect()
}

// Close releases the transport.
func (c *Controller) Close() error {
	return c.Disconnect()
}

// send refuses to touch the transport while disconnected.
func (c *Controller) send(ctx context.Context, cmd protocol.Command) error {
	if !c.transport.Connected() {
		return link.ErrNotConnected
	}
	if err := c.transport.SendCommand(ctx, cmd); err != nil {
		c.logf("Send %s failed: %v", cmd, err)
		return err
	}
	c.log.Debug("command sent", zap.Stringer("cmd", cmd))
	return nil
}

// SetServo moves actuator i to angle, clamped to its range, and returns the
// angle sent. The readout changes only when the send succeeds.
func (c *Controller) SetServo(ctx context.Context, i, angle int) (int, error) {
	if i < 0 || i >= c.panel.Len() {
		return 0, fmt.Errorf("actuator %d: %w", i, protocol.ErrServoIndex)
	}
	act := c.panel.Actuator(i)
	angle = act.Clamp(angle)

	cmd := protocol.Servo(act.Channel, angle)
	if act.Kind == robot.Stepper {
		cmd = protocol.Stepper(angle)
	}
	if err := c.send(ctx, cmd); err != nil {
		return 0, err
	}
	c.panel.Set(i, angle)
	return angle, nil
}

// SetStepper moves the rotary axis.
func (c *Controller) SetStepper(ctx context.Context, angle int) (int, error) {
	i, ok := c.panel.StepperIndex()
	if !ok {
		return 0, fmt.Errorf("profile %q has no stepper: %w", c.panel.Profile().Name, robot.ErrUnsupported)
	}
	return c.SetServo(ctx, i, angle)
}

// SetAll moves every servo to angle, each clamped to its own max. It stops
// at the first failed send.
func (c *Controller) SetAll(ctx context.Context, angle int) error {
	for i := 0; i < c.panel.Len(); i++ {
		if c.panel.Actuator(i).Kind != robot.Servo {
			continue
		}
		if _, err := c.SetServo(ctx, i, angle); err != nil {
			return err
		}
	}
	c.logf("All servos to %d°", angle)
	return nil
}

// Home moves servos to their home angle and the stepper to zero.
func (c *Controller) Home(ctx context.Context) error {
	for i := 0; i < c.panel.Len(); i++ {
		if _, err := c.SetServo(ctx, i, c.panel.Actuator(i).Home()); err != nil {
			return err
		}
	}
	c.logf("Reset to home position")
	return nil
}

// SetSpeed sets the stage speed, clamped to 0-100.
func (c *Controller) SetSpeed(ctx context.Context, speed int) (int, error) {
	cmd := protocol.Speed(speed)
	if err := c.send(ctx, cmd); err != nil {
		return 0, err
	}
	c.panel.SetSpeed(cmd.Value)
	return cmd.Value, nil
}

// ToggleDirection reverses the stage and returns the new direction.
func (c *Controller) ToggleDirection(ctx context.Context) (protocol.Direction, error) {
	d := c.panel.Direction().Reverse()
	if err := c.SetDirection(ctx, d); err != nil {
		return c.panel.Direction(), err
	}
	return d, nil
}

// SetDirection sets the stage direction.
func (c *Controller) SetDirection(ctx context.Context, d protocol.Direction) error {
	if err := c.send(ctx, protocol.SetDirection(d)); err != nil {
		return err
	}
	c.panel.SetDirection(d)
	return nil
}

// Raw sends a device specific token as is.
func (c *Controller) Raw(ctx context.Context, token string) error {
	return c.send(ctx, protocol.Raw(token))
}

// Apply folds a status into the panel and returns the changed actuator
// indices. Call it on the goroutine that owns the panel.
func (c *Controller) Apply(s protocol.Status) []int {
	return c.panel.Apply(s)
}
