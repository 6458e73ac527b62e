package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/armpanel/pkg/robot"
)

type SetupCommand struct {
	Calibrate bool `long:"calibrate" description:"Record servo ranges (feetech driver only)"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("armpanel Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Step 1: port
	port, err := selectPort("Which port is the controller on?")
	if err != nil {
		return err
	}
	cfg.Port = port

	// Step 2: profile
	profile, err := selectProfile(cfg)
	if err != nil {
		return err
	}
	cfg.Profile = profile.Name

	// Step 3: transport
	cfg.Driver = robot.DriverSerial
	if profile.Kind == robot.KindArm {
		if cfg.Driver, err = selectDriver(); err != nil {
			return err
		}
	}

	if cfg.Driver == robot.DriverFeetech {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Feetech bus ━━━"))
		fmt.Println()
		if err := setupBus(cfg, profile, c.Calibrate); err != nil {
			return err
		}
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", cfg.Path())
	fmt.Println()
	next := "armpanel panel"
	if profile.Kind == robot.KindStage {
		next = "armpanel slide"
	}
	fmt.Println("Start the panel with: " + headerStyle.Render(next))
	return nil
}

func selectProfile(cfg *robot.Config) (robot.Profile, error) {
	var options []huh.Option[string]
	for _, name := range cfg.ProfileNames() {
		p, err := cfg.ResolveProfile(name)
		if err != nil {
			continue
		}
		label := name
		if p.Description != "" {
			label = fmt.Sprintf("%s - %s", name, p.Description)
		}
		options = append(options, huh.NewOption(label, name))
	}

	name := cfg.Profile
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which hardware is connected?").
				Description("Actuator layout and baud rate").
				Options(options...).
				Value(&name),
		),
	)
	if err := form.Run(); err != nil {
		return robot.Profile{}, err
	}
	return cfg.ResolveProfile(name)
}

func selectDriver() (string, error) {
	driver := robot.DriverSerial
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("How are the servos driven?").
				Options(
					huh.NewOption("Controller board (text commands over serial)", robot.DriverSerial),
					huh.NewOption("Feetech STS bus servos (no controller board)", robot.DriverFeetech),
				).
				Value(&driver),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return driver, nil
}

// setupBus checks that every servo of the profile answers on the bus and
// optionally records their ranges.
func setupBus(cfg *robot.Config, profile robot.Profile, calibrate bool) error {
	bus, found, err := scanBus(cfg.Port, len(profile.Servos()))
	if err != nil {
		return err
	}
	defer bus.Close()

	cal := cfg.Calibration.ForProfile(profile)
	present := make(map[int]feetech.FoundServo, len(found))
	for _, s := range found {
		present[s.ID] = s
	}

	servoMap := make(map[int]*feetech.Servo)
	var missing []string
	for _, act := range profile.Servos() {
		mc := cal[act.Name]
		s, ok := present[mc.ID]
		if !ok {
			missing = append(missing, fmt.Sprintf("%s (ID %d)", act.Name, mc.ID))
			continue
		}
		servoMap[mc.ID] = feetech.NewServo(bus, s.ID, s.Model)
	}
	fmt.Printf("Found %d servo(s) on %s\n", len(found), cfg.Port)
	if len(missing) > 0 {
		return fmt.Errorf("servos not found on bus: %s", strings.Join(missing, ", "))
	}

	if !calibrate {
		fmt.Println(dimStyle.Render("Using default calibration. Run 'armpanel setup --calibrate' to record ranges."))
		return nil
	}

	cal, err = calibrateBus(profile, cal, servoMap)
	if err != nil {
		return err
	}
	if cfg.Calibration == nil {
		cfg.Calibration = make(robot.Calibration)
	}
	for name, mc := range cal {
		cfg.Calibration[name] = mc
	}
	return nil
}

func scanBus(port string, servos int) (*feetech.Bus, []feetech.FoundServo, error) {
	fmt.Printf("Scanning %s for servos...\n", port)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: robot.BusBaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, nil, err
	}

	// IDs default to channel+1; scan a little past the profile in case
	// servos were renumbered.
	found, err := bus.Scan(ctx, 1, max(servos, 6)+4)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	return bus, found, nil
}

func calibrateBus(profile robot.Profile, cal robot.Calibration, servoMap map[int]*feetech.Servo) (robot.Calibration, error) {
	ctx := context.Background()
	// Disable torque so the operator can move the arm freely
	for _, servo := range servoMap {
		servo.Disable(ctx)
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint from the position that should read 0°")
	fmt.Println("to the position that should read its maximum angle.")
	fmt.Println()

	actuators := profile.Servos()
	curPositions := make(map[string]int)
	minPositions := make(map[string]int)
	maxPositions := make(map[string]int)
	for _, act := range actuators {
		pos, _ := servoMap[cal[act.Name].ID].Position(ctx)
		curPositions[act.Name] = pos
		minPositions[act.Name] = pos
		maxPositions[act.Name] = pos
	}

	model := newCalibrationModel(actuators, cal, servoMap, curPositions, minPositions, maxPositions)
	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("running calibration: %w", err)
	}

	cm := finalModel.(calibrationModel)
	out := make(robot.Calibration, len(actuators))
	for _, act := range actuators {
		out[act.Name] = robot.MotorCalibration{
			ID:       cal[act.Name].ID,
			RangeMin: cm.minPositions[act.Name],
			RangeMax: cm.maxPositions[act.Name],
		}
	}
	fmt.Println()
	fmt.Println("Bus servos calibrated.")
	return out, nil
}

// Calibration TUI model
type calibrationModel struct {
	actuators    []robot.Actuator
	calibration  robot.Calibration
	servoMap     map[int]*feetech.Servo
	curPositions map[string]int
	minPositions map[string]int
	maxPositions map[string]int
	quitting     bool
}

type tickMsg time.Time

func newCalibrationModel(
	actuators []robot.Actuator,
	cal robot.Calibration,
	servoMap map[int]*feetech.Servo,
	curPositions, minPositions, maxPositions map[string]int,
) calibrationModel {
	return calibrationModel{
		actuators:    actuators,
		calibration:  cal,
		servoMap:     servoMap,
		curPositions: curPositions,
		minPositions: minPositions,
		maxPositions: maxPositions,
	}
}

func calibrationTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return calibrationTick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		ctx := context.Background()
		for _, act := range m.actuators {
			servo := m.servoMap[m.calibration[act.Name].ID]
			pos, err := servo.Position(ctx)
			if err != nil {
				continue
			}
			m.curPositions[act.Name] = pos
			m.minPositions[act.Name] = min(m.minPositions[act.Name], pos)
			m.maxPositions[act.Name] = max(m.maxPositions[act.Name], pos)
		}
		return m, calibrationTick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableMotorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.actuators))
	enough := make([]bool, 0, len(m.actuators))
	for _, act := range m.actuators {
		rangeSize := m.maxPositions[act.Name] - m.minPositions[act.Name]
		// a full turn is TicksPerTurn; expect at least half the travel
		enough = append(enough, rangeSize >= act.MaxAngle*robot.TicksPerTurn/360/2)
		rows = append(rows, []string{
			act.Name,
			fmt.Sprintf("%d°", act.MaxAngle),
			fmt.Sprintf("%d", m.curPositions[act.Name]),
			fmt.Sprintf("%d", m.minPositions[act.Name]),
			fmt.Sprintf("%d", m.maxPositions[act.Name]),
			fmt.Sprintf("%d", rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Servo", "Max", "Current", "Min", "Max ticks", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableMotorStyle
			case 2:
				return tableCurrentStyle
			case 5:
				if row >= 0 && row < len(enough) && enough[row] {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))

	return sb.String()
}
