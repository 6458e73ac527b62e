package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.bug.st/serial/enumerator"
)

type PortsCommand struct {
	All bool `short:"a" long:"all" description:"Include Bluetooth and other non-USB ports"`
}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := listPorts(c.All)
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println(dimStyle.Render("Connect the controller board and try again."))
		return nil
	}

	rows := make([][]string, 0, len(ports))
	for _, p := range ports {
		usb := ""
		if p.IsUSB {
			usb = fmt.Sprintf("%s:%s", p.VID, p.PID)
		}
		rows = append(rows, []string{p.Name, usb, p.SerialNumber, p.Product})
	}

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Port", "USB ID", "Serial", "Product").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 0:
				return subHeaderStyle.Padding(0, 1)
			default:
				return cellStyle
			}
		})
	fmt.Println(t.Render())
	return nil
}

// listPorts returns the detected ports, skipping Bluetooth ports unless all
// is set.
func listPorts(all bool) ([]*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	if all {
		return ports, nil
	}
	out := ports[:0]
	for _, p := range ports {
		if strings.Contains(p.Name, "Bluetooth") {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func portLabel(p *enumerator.PortDetails) string {
	if p.IsUSB && p.Product != "" {
		return fmt.Sprintf("%s (%s)", p.Name, p.Product)
	}
	return p.Name
}

// selectPort asks the operator to pick one of the detected ports.
func selectPort(title string) (string, error) {
	ports, err := listPorts(false)
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", errors.New("no serial ports found")
	}

	options := make([]huh.Option[string], 0, len(ports))
	for _, p := range ports {
		options = append(options, huh.NewOption(portLabel(p), p.Name))
	}

	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Description("Detected serial ports").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return port, nil
}
