package robot

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/gwillem/armpanel/pkg/link"
	"github.com/gwillem/armpanel/pkg/logger"
)

const DefaultConfigFile = "armpanel.yaml"

// EnvPrefix prefixes environment overrides, e.g. ARMPANEL_PORT or
// ARMPANEL_LINK_SETTLE_DELAY.
const EnvPrefix = "ARMPANEL"

// Transport drivers.
const (
	DriverSerial  = "serial"
	DriverFeetech = "feetech"
)

// Config holds the panel configuration
type Config struct {
	Port        string             `mapstructure:"port"`
	Profile     string             `mapstructure:"profile"`
	Driver      string             `mapstructure:"driver"`
	Link        link.Config        `mapstructure:"link"`
	Log         logger.Config      `mapstructure:"log"`
	Profiles    map[string]Profile `mapstructure:"profiles"`
	Calibration Calibration        `mapstructure:"calibration"`

	path string
}

func setDefaults(v *viper.Viper) {
	l := link.DefaultConfig()
	v.SetDefault("port", "")
	v.SetDefault("profile", DefaultProfile)
	v.SetDefault("driver", DriverSerial)
	v.SetDefault("link.baud_rate", 0) // profile decides
	v.SetDefault("link.read_timeout", l.ReadTimeout)
	v.SetDefault("link.write_timeout", l.WriteTimeout)
	v.SetDefault("link.settle_delay", l.SettleDelay)
	v.SetDefault("link.poll_interval", l.PollInterval)
	v.SetDefault("link.max_line_length", l.MaxLineLength)

	lg := logger.DefaultConfig()
	v.SetDefault("log.level", lg.Level)
	v.SetDefault("log.format", lg.Format)
	v.SetDefault("log.output", lg.Output)
	v.SetDefault("log.file.path", lg.File.Path)
	v.SetDefault("log.file.max_size", lg.File.MaxSize)
	v.SetDefault("log.file.max_age", lg.File.MaxAge)
	v.SetDefault("log.file.max_backups", lg.File.MaxBackups)
	v.SetDefault("log.file.compress", lg.File.Compress)
}

// LoadConfigFrom loads configuration from a specific file, or from
// DefaultConfigFile in the working directory when path is empty.
func LoadConfigFrom(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultConfigFile, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		path = DefaultConfigFile
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Link.Validate(); err != nil {
		return nil, err
	}
	for name, p := range cfg.Profiles {
		if p.Name == "" {
			p.Name = name
		}
		if p.Kind == "" {
			p.Kind = KindArm
		}
		for i := range p.Actuators {
			if p.Actuators[i].Kind == "" {
				p.Actuators[i].Kind = Servo
			}
		}
		cfg.Profiles[name] = p
	}
	cfg.path = path
	return &cfg, nil
}

// Path returns the file the config was loaded from or will be saved to.
func (c *Config) Path() string {
	if c.path == "" {
		return DefaultConfigFile
	}
	return c.path
}

// ResolveProfile returns the named profile (the configured one when name is
// empty). Profiles declared in the file shadow built-ins. Config keys are
// case insensitive, so file profiles are matched on the lower-cased name.
func (c *Config) ResolveProfile(name string) (Profile, error) {
	if name == "" {
		name = c.Profile
	}
	if name == "" {
		name = DefaultProfile
	}

	p, ok := c.Profiles[strings.ToLower(name)]
	if !ok {
		var err error
		if p, err = BuiltinProfile(name); err != nil {
			return Profile{}, err
		}
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// ProfileNames returns built-in and configured profile names.
func (c *Config) ProfileNames() []string {
	names := BuiltinProfileNames()
	for name := range c.Profiles {
		if _, err := BuiltinProfile(name); err != nil {
			names = append(names, name)
		}
	}
	return names
}

// LinkConfig returns the link settings with the baud rate of p applied
// unless one is configured explicitly.
func (c *Config) LinkConfig(p Profile) link.Config {
	lc := c.Link
	if lc.BaudRate == 0 {
		lc.BaudRate = p.BaudRate
	}
	return lc
}

// Save saves configuration to the file it was loaded from
func (c *Config) Save() error {
	return c.SaveTo(c.Path())
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	v := viper.New()
	v.Set("port", c.Port)
	v.Set("profile", c.Profile)
	v.Set("driver", c.Driver)
	v.Set("link", map[string]any{
		"baud_rate":       c.Link.BaudRate,
		"read_timeout":    c.Link.ReadTimeout.String(),
		"write_timeout":   c.Link.WriteTimeout.String(),
		"settle_delay":    c.Link.SettleDelay.String(),
		"poll_interval":   c.Link.PollInterval.String(),
		"max_line_length": c.Link.MaxLineLength,
	})
	v.Set("log", map[string]any{
		"level":  c.Log.Level,
		"format": c.Log.Format,
		"output": c.Log.Output,
		"file": map[string]any{
			"path":        c.Log.File.Path,
			"max_size":    c.Log.File.MaxSize,
			"max_age":     c.Log.File.MaxAge,
			"max_backups": c.Log.File.MaxBackups,
			"compress":    c.Log.File.Compress,
		},
	})
	if len(c.Profiles) > 0 {
		profiles := make(map[string]any, len(c.Profiles))
		for name, p := range c.Profiles {
			profiles[name] = profileMap(p)
		}
		v.Set("profiles", profiles)
	}
	if len(c.Calibration) > 0 {
		cal := make(map[string]any, len(c.Calibration))
		for name, mc := range c.Calibration {
			cal[name] = map[string]any{
				"id":        mc.ID,
				"range_min": mc.RangeMin,
				"range_max": mc.RangeMax,
			}
		}
		v.Set("calibration", cal)
	}

	v.SetConfigType("yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	c.path = path
	return nil
}

func profileMap(p Profile) map[string]any {
	acts := make([]map[string]any, len(p.Actuators))
	for i, a := range p.Actuators {
		acts[i] = map[string]any{
			"name":      a.Name,
			"kind":      string(a.Kind),
			"channel":   a.Channel,
			"max_angle": a.MaxAngle,
		}
	}
	return map[string]any{
		"name":        p.Name,
		"description": p.Description,
		"kind":        string(p.Kind),
		"baud_rate":   p.BaudRate,
		"actuators":   acts,
	}
}
