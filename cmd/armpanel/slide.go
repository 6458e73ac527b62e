package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/armpanel/pkg/control"
	"github.com/gwillem/armpanel/pkg/link"
	"github.com/gwillem/armpanel/pkg/protocol"
	"github.com/gwillem/armpanel/pkg/robot"
)

type SlideCommand struct {
	connectionFlags
}

var speedBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

type slideModel struct {
	ctrl       *control.Controller
	width      int
	logs       logBox
	connecting bool
	quitting   bool

	// set while a disconnectCmd is in flight
	disconnecting bool
}

func (m slideModel) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.ctrl),
		waitForLog(m.ctrl),
		func() tea.Msg { return connectRequestMsg{} },
	)
}

func (m slideModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
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

	case eventMsg:
		return m, waitForEvent(m.ctrl)

	case logMsg:
		m.logs.add(string(msg))
		return m, waitForLog(m.ctrl)
	}
	return m, nil
}

func (m slideModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	panel := m.ctrl.Panel()

	var err error
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "right", "l", "up", "k":
		_, err = m.ctrl.SetSpeed(ctx, panel.Speed()+5)
	case "left", "h", "down", "j":
		_, err = m.ctrl.SetSpeed(ctx, panel.Speed()-5)
	case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
		// 1-9 are tenths, 0 is full speed
		n := int(key[0] - '0')
		if n == 0 {
			n = 10
		}
		_, err = m.ctrl.SetSpeed(ctx, n*10)
	case "s", "x":
		_, err = m.ctrl.SetSpeed(ctx, 0)
	case "d", " ":
		_, err = m.ctrl.ToggleDirection(ctx)
	case "c":
		cmd, started := toggleConnection(m.ctrl, m.disconnecting)
		if started {
			m.disconnecting = true
		}
		return m, cmd
	}
	if errors.Is(err, link.ErrNotConnected) {
		m.logs.add("Not connected, press 'c' to connect")
	}
	return m, nil
}

func (m slideModel) View() string {
	if m.quitting {
		return "Stage control closed.\n"
	}

	var sb strings.Builder
	panel := m.ctrl.Panel()

	sb.WriteString(titleStyle.Render("armpanel"))
	sb.WriteString(fmt.Sprintf(" - %s  ", m.ctrl.Profile().Name))
	switch {
	case m.connecting:
		sb.WriteString(statusStyle.Render(fmt.Sprintf("connecting to %s...", m.ctrl.Port())))
	case m.disconnecting:
		sb.WriteString(statusStyle.Render("disconnecting..."))
	case m.ctrl.Connected():
		sb.WriteString(onlineStyle.Render("● " + m.ctrl.Port()))
	default:
		sb.WriteString(offlineStyle.Render("○ disconnected"))
	}
	sb.WriteString("\n\n")

	const barWidth = 40
	filled := panel.Speed() * barWidth / 100
	sb.WriteString(subHeaderStyle.Render("Speed     "))
	sb.WriteString(speedBarStyle.Render(strings.Repeat("█", filled)))
	sb.WriteString(statusStyle.Render(strings.Repeat("░", barWidth-filled)))
	sb.WriteString(fmt.Sprintf(" %3d%%\n", panel.Speed()))

	arrow := "→ forward"
	if panel.Direction() == protocol.Backward {
		arrow = "← backward"
	}
	sb.WriteString(subHeaderStyle.Render("Direction "))
	sb.WriteString(arrow)
	sb.WriteString("\n\n")

	sb.WriteString(statusStyle.Render("←/→ ±5%  1-9,0 set speed  s stop  d reverse  c connect  q quit"))
	sb.WriteString("\n")
	sb.WriteString(m.logs.render(m.width, "Press 'c' to connect, 'q' to quit"))
	sb.WriteString("\n")
	return sb.String()
}

func (c *SlideCommand) Execute(args []string) error {
	if c.Profile == "" {
		c.Profile = "slide"
	}
	ctrl, log, err := c.session(true)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer ctrl.Close()

	if ctrl.Profile().Kind != robot.KindStage {
		return fmt.Errorf("profile %q has no stage, use 'armpanel panel'", ctrl.Profile().Name)
	}

	p := tea.NewProgram(slideModel{ctrl: ctrl}, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running stage control: %w", err)
	}
	return nil
}
