package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/gwillem/armpanel/pkg/control"
	"github.com/gwillem/armpanel/pkg/logger"
	"github.com/gwillem/armpanel/pkg/robot"
)

type Options struct {
	Config  string `short:"c" long:"config" description:"Config file (default armpanel.yaml in the working directory)"`
	Verbose bool   `short:"v" long:"verbose" description:"Debug logging"`

	Ports   PortsCommand   `command:"ports" description:"List serial ports"`
	Setup   SetupCommand   `command:"setup" description:"Choose port and profile, optionally calibrate a Feetech bus arm"`
	Panel   PanelCommand   `command:"panel" description:"Interactive actuator panel"`
	Slide   SlideCommand   `command:"slide" description:"Interactive linear stage control"`
	Move    MoveCommand    `command:"move" description:"Move one actuator, all servos, or home"`
	Send    SendCommand    `command:"send" description:"Send raw command tokens"`
	Monitor MonitorCommand `command:"monitor" description:"Print status lines as they arrive"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func main() {
	parser.LongDescription = "armpanel - serial control panel for servo arms and stepper stages"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func loadConfig() (*robot.Config, error) {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. Full screen commands log to file only.
func newLogger(cfg *robot.Config, tui bool) (*zap.Logger, error) {
	lc := cfg.Log
	if tui {
		lc = lc.ForTUI()
	}
	log, err := logger.New(lc)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}

// connectionFlags are shared by every command that talks to hardware.
type connectionFlags struct {
	Port    string `short:"p" long:"port" description:"Serial port (overrides config)"`
	Profile string `long:"profile" description:"Actuator profile (overrides config)"`
	Baud    int    `short:"b" long:"baud" description:"Baud rate (overrides profile)"`
	Driver  string `long:"driver" choice:"serial" choice:"feetech" description:"Transport (overrides config)"`
}

// session loads config, applies flag overrides and builds a controller.
func (f connectionFlags) session(tui bool) (*control.Controller, *zap.Logger, error) {
	rc, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if f.Port != "" {
		rc.Port = f.Port
	}
	if f.Driver != "" {
		rc.Driver = f.Driver
	}

	cfg, err := control.ConfigFrom(rc, f.Profile)
	if err != nil {
		return nil, nil, err
	}
	if f.Baud > 0 {
		cfg.BaudRate = f.Baud
	}
	if cfg.Port == "" {
		if cfg.Port, err = selectPort("Which port is the controller on?"); err != nil {
			return nil, nil, err
		}
	}

	log, err := newLogger(rc, tui)
	if err != nil {
		return nil, nil, err
	}
	cfg.Logger = log

	ctrl, err := control.NewController(cfg)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return ctrl, log, nil
}
