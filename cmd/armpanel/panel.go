package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/armpanel/pkg/control"
	"github.com/gwillem/armpanel/pkg/link"
	"github.com/gwillem/armpanel/pkg/protocol"
	"github.com/gwillem/armpanel/pkg/robot"
)

type PanelCommand struct {
	connectionFlags
	Step    int  `long:"step" default:"5" description:"Degrees per arrow key press"`
	NoChart bool `long:"no-chart" description:"Hide the angle history chart"`
}

const (
	headerHeight = 2 // title + blank line
	footerHeight = 7 // log box height
	helpHeight   = 2
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
	gaugeWidth   = 24
)

// Actuator colors, cycled when a profile has more actuators
var actuatorColors = []string{"196", "208", "226", "46", "51", "201", "99", "214"}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	onlineStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	offlineStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	selectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12")).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	unknownStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	logBorderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
)

func actuatorColor(i int) string {
	return actuatorColors[i%len(actuatorColors)]
}

// Messages from the controller
type statusMsg protocol.Status
type eventMsg control.Event
type logMsg string
type connectResultMsg struct{ err error }
type disconnectResultMsg struct{ err error }

func waitForStatus(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-ctrl.Statuses())
	}
}

func waitForEvent(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ctrl.Events())
	}
}

func waitForLog(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// connectCmd runs Connect off the UI goroutine; it blocks for the settle
// delay.
func connectCmd(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return connectResultMsg{err: ctrl.Connect(context.Background(), "")}
	}
}

// connection is the part of a controller the "c" key toggles.
type connection interface {
	Connected() bool
	Disconnect() error
}

// disconnectCmd runs Disconnect off the UI goroutine; it waits for the poll
// loop to stop.
func disconnectCmd(conn connection) tea.Cmd {
	return func() tea.Msg {
		return disconnectResultMsg{err: conn.Disconnect()}
	}
}

// toggleConnection disconnects when the link is up and asks for a connect
// otherwise. It reports whether a disconnect was started.
func toggleConnection(conn connection, disconnecting bool) (tea.Cmd, bool) {
	if disconnecting {
		return nil, false
	}
	if conn.Connected() {
		return disconnectCmd(conn), true
	}
	return func() tea.Msg { return connectRequestMsg{} }, false
}

// inputMode is what the number entry line is collecting.
type inputMode int

const (
	inputNone inputMode = iota
	inputAngle
	inputAll
)

// logBox keeps the last few operator messages.
type logBox struct {
	lines []string
}

func (b *logBox) add(msg string) {
	b.lines = append(b.lines, msg)
	if len(b.lines) > maxLogs {
		b.lines = b.lines[len(b.lines)-maxLogs:]
	}
}

func (b logBox) render(width int, hint string) string {
	style := logBorderStyle.Foreground(lipgloss.Color("9"))
	if width > 4 {
		style = style.Width(width - 4)
	}
	if len(b.lines) == 0 {
		return style.Render(statusStyle.Render(hint))
	}
	return style.Render(strings.Join(b.lines, "\n"))
}

type panelModel struct {
	ctrl       *control.Controller
	chart      *streamlinechart.Model
	showChart  bool
	step       int
	selected   int
	width      int // terminal width
	height     int // terminal height
	logs       logBox
	connecting bool
	mode       inputMode
	input      textinput.Model
	quitting   bool

	// set while a disconnectCmd is in flight
	disconnecting bool
}

func initialPanelModel(ctrl *control.Controller, step int, showChart bool) panelModel {
	chart := streamlinechart.New(80, 12,
		streamlinechart.WithYRange(0, protocol.MaxAngle),
	)
	for i, act := range ctrl.Profile().Actuators {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(actuatorColor(i)))
		chart.SetDataSetStyles(act.Name, runes.ThinLineStyle, style)
	}

	ti := textinput.New()
	ti.CharLimit = 3
	ti.Width = 5

	if step <= 0 {
		step = 5
	}
	return panelModel{
		ctrl:      ctrl,
		chart:     &chart,
		showChart: showChart,
		step:      step,
		input:     ti,
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *panelModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 12 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	tableHeight := m.ctrl.Panel().Len() + 4
	height = max(m.height-headerHeight-tableHeight-helpHeight-footerHeight-borderSize, 6)
	return width, height
}

func (m *panelModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

// pushChart records every known readout so the history lines stay aligned.
func (m *panelModel) pushChart() {
	for _, r := range m.ctrl.Panel().Readouts() {
		if r.Known {
			m.chart.PushDataSet(r.Actuator.Name, float64(r.Angle))
		}
	}
	m.chart.DrawAll()
}

func (m panelModel) Init() tea.Cmd {
	// Start listening for controller updates and connect right away
	return tea.Batch(
		waitForStatus(m.ctrl),
		waitForEvent(m.ctrl),
		waitForLog(m.ctrl),
		func() tea.Msg { return connectRequestMsg{} },
	)
}

type connectRequestMsg struct{}

func (m panelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)

	case connectRequestMsg:
		if m.connecting || m.ctrl.Connected() {
			return m, nil
		}
		m.connecting = true
		return m, connectCmd(m.ctrl)

	case connectResultMsg:
		m.connecting = false
		return m, nil

	case disconnectResultMsg:
		m.disconnecting = false
		if msg.err != nil {
			m.logs.add("Disconnect: " + msg.err.Error())
		}
		return m, nil

	case statusMsg:
		if changed := m.ctrl.Apply(protocol.Status(msg)); len(changed) > 0 {
			m.pushChart()
		}
		return m, waitForStatus(m.ctrl)

	case eventMsg:
		return m, waitForEvent(m.ctrl)

	case logMsg:
		m.logs.add(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m panelModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	panel := m.ctrl.Panel()

	switch key := msg.String(); key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		m.selected = (m.selected + panel.Len() - 1) % panel.Len()
	case "down", "j", "tab":
		m.selected = (m.selected + 1) % panel.Len()

	case "left", "h", "right", "l", "H", "L":
		delta := m.step
		if key == "H" || key == "L" {
			delta = 1
		}
		if key == "left" || key == "h" || key == "H" {
			delta = -delta
		}
		cur, known := panel.Angle(m.selected)
		if !known {
			cur = panel.Actuator(m.selected).Home()
		}
		m.setAngle(ctx, cur+delta)

	case "1", "2", "3", "4", "5":
		presets := panel.Actuator(m.selected).Presets()
		n, _ := strconv.Atoi(key)
		if n <= len(presets) {
			m.setAngle(ctx, presets[n-1])
		}

	case "g", "enter":
		m.startInput(inputAngle)
		return m, textinput.Blink
	case "a":
		m.startInput(inputAll)
		return m, textinput.Blink

	case "r":
		if err := m.ctrl.Home(ctx); err == nil {
			m.pushChart()
		} else {
			m.report(err)
		}

	case "c":
		cmd, started := toggleConnection(m.ctrl, m.disconnecting)
		if started {
			m.disconnecting = true
		}
		return m, cmd
	}
	return m, nil
}

func (m *panelModel) startInput(mode inputMode) {
	m.mode = mode
	m.input.SetValue("")
	m.input.Focus()
}

func (m panelModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.mode = inputNone
		m.input.Blur()
		return m, nil
	case "enter":
		mode := m.mode
		m.mode = inputNone
		m.input.Blur()
		angle, err := strconv.Atoi(strings.TrimSpace(m.input.Value()))
		if err != nil {
			m.logs.add("Invalid angle: " + m.input.Value())
			return m, nil
		}
		ctx := context.Background()
		if mode == inputAll {
			if err := m.ctrl.SetAll(ctx, angle); err != nil {
				m.report(err)
			} else {
				m.pushChart()
			}
		} else {
			m.setAngle(ctx, angle)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *panelModel) setAngle(ctx context.Context, angle int) {
	if _, err := m.ctrl.SetServo(ctx, m.selected, angle); err != nil {
		m.report(err)
		return
	}
	m.pushChart()
}

// report surfaces errors the controller does not log itself.
func (m *panelModel) report(err error) {
	switch {
	case errors.Is(err, link.ErrNotConnected):
		m.logs.add("Not connected, press 'c' to connect")
	case errors.Is(err, protocol.ErrServoIndex), errors.Is(err, robot.ErrUnsupported):
		m.logs.add(err.Error())
	}
}

func (m panelModel) View() string {
	if m.quitting {
		return "Panel closed.\n"
	}

	var sb strings.Builder
	profile := m.ctrl.Profile()

	// Header
	sb.WriteString(titleStyle.Render("armpanel"))
	sb.WriteString(fmt.Sprintf(" - %s", profile.Name))
	sb.WriteString("  " + m.connectionStatus())
	sb.WriteString("\n\n")

	sb.WriteString(m.renderReadouts())
	sb.WriteString("\n")

	if m.showChart {
		sb.WriteString(chartStyle.Render(m.chart.View()))
		sb.WriteString("\n")
	}

	switch m.mode {
	case inputAngle:
		sb.WriteString(promptStyle.Render(fmt.Sprintf("%s to: ", profile.Actuators[m.selected].Name)) + m.input.View())
	case inputAll:
		sb.WriteString(promptStyle.Render("All servos to: ") + m.input.View())
	default:
		sb.WriteString(statusStyle.Render("↑/↓ select  ←/→ ±" + strconv.Itoa(m.step) + "°  H/L ±1°  1-5 presets  g angle  a all  r reset  c connect  q quit"))
	}
	sb.WriteString("\n")

	sb.WriteString(m.logs.render(m.width, "Press 'c' to connect, 'q' to quit"))
	sb.WriteString("\n")

	return sb.String()
}

func (m panelModel) connectionStatus() string {
	switch {
	case m.connecting:
		return statusStyle.Render(fmt.Sprintf("connecting to %s...", m.ctrl.Port()))
	case m.disconnecting:
		return statusStyle.Render("disconnecting...")
	case m.ctrl.Connected():
		return onlineStyle.Render("● "+m.ctrl.Port()) + statusStyle.Render(fmt.Sprintf(" %d baud", m.ctrl.BaudRate()))
	default:
		return offlineStyle.Render("○ disconnected")
	}
}

func (m panelModel) renderReadouts() string {
	readouts := m.ctrl.Panel().Readouts()
	rows := make([][]string, 0, len(readouts))
	for i, r := range readouts {
		angle := "unknown"
		if r.Known {
			angle = fmt.Sprintf("%d°", r.Angle)
		}
		presets := make([]string, 0, 5)
		for _, p := range r.Actuator.Presets() {
			presets = append(presets, strconv.Itoa(p))
		}
		marker := lipgloss.NewStyle().Foreground(lipgloss.Color(actuatorColor(i))).Bold(true).Render("━━")
		rows = append(rows, []string{
			marker + " " + r.Actuator.Name,
			angle,
			gauge(r),
			fmt.Sprintf("%d°", r.Actuator.MaxAngle),
			strings.Join(presets, " "),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Actuator", "Angle", "", "Max", "Presets").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case row == m.selected && col == 0:
				return selectedStyle
			case col == 1 && row >= 0 && row < len(readouts) && !readouts[row].Known:
				return unknownStyle
			default:
				return cellStyle
			}
		}).
		Render()
}

func gauge(r robot.Readout) string {
	if !r.Known || r.Actuator.MaxAngle == 0 {
		return statusStyle.Render(strings.Repeat("·", gaugeWidth))
	}
	filled := r.Angle * gaugeWidth / r.Actuator.MaxAngle
	filled = min(max(filled, 0), gaugeWidth)
	return strings.Repeat("█", filled) + statusStyle.Render(strings.Repeat("░", gaugeWidth-filled))
}

func (c *PanelCommand) Execute(args []string) error {
	ctrl, log, err := c.session(true)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer ctrl.Close()

	if ctrl.Profile().Kind == robot.KindStage {
		return fmt.Errorf("profile %q is a linear stage, use 'armpanel slide'", ctrl.Profile().Name)
	}

	p := tea.NewProgram(initialPanelModel(ctrl, c.Step, !c.NoChart), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running panel: %w", err)
	}
	return nil
}
