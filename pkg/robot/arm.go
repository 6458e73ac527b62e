package robot

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/gwillem/armpanel/pkg/link"
	"github.com/gwillem/armpanel/pkg/protocol"
)

const (
	// BusBaudRate is the Feetech STS default.
	BusBaudRate = 1_000_000

	busTimeout = 100 * time.Millisecond
)

// servoGroup is the part of feetech.ServoGroup the arm uses.
type servoGroup interface {
	EnableAll(ctx context.Context) error
	DisableAll(ctx context.Context) error
	Positions(ctx context.Context) (feetech.PositionMap, error)
	SetPositions(ctx context.Context, positions feetech.PositionMap) error
}

// Arm drives the servos of a profile directly over a Feetech STS bus,
// without a controller board in between. It reports positions to the sink
// as Angles statuses, like the serial link does.
type Arm struct {
	profile      Profile
	calibration  Calibration
	sink         link.Sink
	log          *zap.Logger
	pollInterval time.Duration

	connected atomic.Bool

	// mu guards the bus; the library is not documented as goroutine safe.
	mu     sync.Mutex
	bus    io.Closer
	group  servoGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// NewArm creates a disconnected bus arm. Servos without calibration get
// DefaultCalibration.
func NewArm(p Profile, cal Calibration, pollInterval time.Duration, sink link.Sink, log *zap.Logger) *Arm {
	if log == nil {
		log = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	return &Arm{
		profile:      p,
		calibration:  cal.ForProfile(p),
		sink:         sink,
		log:          log.Named("arm"),
		pollInterval: pollInterval,
	}
}

// Connect opens the bus, enables torque and starts reading positions.
func (a *Arm) Connect(ctx context.Context, port string, baudRate int) error {
	if a.connected.Load() {
		return link.ErrAlreadyConnected
	}
	if baudRate <= 0 {
		baudRate = BusBaudRate
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  busTimeout,
	})
	if err != nil {
		a.log.Error("open bus", zap.String("port", port), zap.Error(err))
		return fmt.Errorf("%w %s: %w", link.ErrPortOpen, port, err)
	}

	group := feetech.NewServoGroupByIDs(bus, a.calibration.MotorIDs(a.profile)...)
	if err := group.EnableAll(ctx); err != nil {
		bus.Close()
		return fmt.Errorf("enable torque: %w", err)
	}

	a.attach(bus, group)
	a.log.Info("bus connected", zap.String("port", port), zap.Int("servos", len(a.profile.Servos())))
	return nil
}

// attach takes over an open bus and starts polling it.
func (a *Arm) attach(bus io.Closer, group servoGroup) {
	pollCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.bus, a.group = bus, group
	a.cancel, a.done = cancel, make(chan struct{})
	done := a.done
	a.mu.Unlock()
	a.connected.Store(true)

	go a.poll(pollCtx, done)
}

// Disconnect disables torque and closes the bus. It is idempotent.
func (a *Arm) Disconnect() error {
	return a.teardown(nil)
}

// teardown must not be called from the poll goroutine or with mu held.
func (a *Arm) teardown(cause error) error {
	if !a.connected.Swap(false) {
		return nil
	}

	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()
	cancel()
	<-done

	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	if err := a.group.DisableAll(ctx); err != nil {
		a.log.Warn("disable torque", zap.Error(err))
	}
	err := a.bus.Close()
	a.bus, a.group = nil, nil

	if cause != nil {
		a.log.Error("bus lost", zap.Error(cause))
	} else {
		a.log.Info("bus disconnected")
	}
	if a.sink != nil {
		a.sink.Disconnected(cause)
	}
	return err
}

// Connected reports whether the bus is open.
func (a *Arm) Connected() bool {
	return a.connected.Load()
}

// SendCommand moves one servo. Only servo commands exist on the bus. A
// failed write closes the bus, like a failed write on the serial link.
func (a *Arm) SendCommand(ctx context.Context, cmd protocol.Command) error {
	if !a.connected.Load() {
		return link.ErrNotConnected
	}
	if cmd.Kind != protocol.CmdServo {
		return fmt.Errorf("%w: %s", ErrUnsupported, cmd.Kind)
	}

	id, ticks, err := a.target(cmd.Channel, cmd.Value)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.group == nil {
		a.mu.Unlock()
		return link.ErrNotConnected
	}
	err = a.group.SetPositions(ctx, feetech.PositionMap{id: ticks})
	a.mu.Unlock()

	if err != nil {
		werr := fmt.Errorf("%w: %w", link.ErrWrite, err)
		_ = a.teardown(werr)
		return werr
	}
	return nil
}

// target resolves a servo channel and angle to a bus ID and raw position.
func (a *Arm) target(channel, angle int) (id, ticks int, err error) {
	for _, act := range a.profile.Servos() {
		if act.Channel != channel {
			continue
		}
		mc := a.calibration[act.Name]
		return mc.ID, mc.ToTicks(act.Clamp(angle), act.MaxAngle), nil
	}
	return 0, 0, fmt.Errorf("%w: no servo on channel %d", protocol.ErrServoIndex, channel)
}

func (a *Arm) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		a.mu.Lock()
		if a.group == nil {
			a.mu.Unlock()
			return
		}
		raw, err := a.group.Positions(ctx)
		a.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			// teardown waits for this goroutine to exit
			go a.teardown(fmt.Errorf("%w: %w", link.ErrRead, err))
			return
		}
		if a.sink != nil {
			a.sink.Status(a.anglesStatus(raw))
		}
	}
}

// anglesStatus converts raw bus positions into an Angles status indexed by
// servo channel.
func (a *Arm) anglesStatus(raw map[int]int) protocol.Status {
	servos := a.profile.Servos()
	width := 0
	for _, s := range servos {
		width = max(width, s.Channel+1)
	}
	angles := make([]int, width)
	for i := range angles {
		angles[i] = protocol.NoReading
	}

	byName := make(map[string]Actuator, len(servos))
	for _, s := range servos {
		byName[s.Name] = s
	}
	for id, pos := range raw {
		name, mc, ok := a.calibration.ByID(id)
		if !ok {
			continue
		}
		act := byName[name]
		angles[act.Channel] = mc.ToAngle(pos, act.MaxAngle)
	}
	return protocol.Status{Kind: protocol.StatusAngles, Angles: angles}
}
