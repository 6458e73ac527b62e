package link

import (
	"fmt"
	"time"
)

// Config holds serial link parameters.
type Config struct {
	BaudRate int `mapstructure:"baud_rate"`

	// ReadTimeout bounds a single read of the poll loop.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout bounds a command write. Zero waits indefinitely.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// SettleDelay is the pause after opening the port while the board
	// resets. Zero skips it.
	SettleDelay time.Duration `mapstructure:"settle_delay"`

	// PollInterval is the sleep between poll iterations.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// MaxLineLength caps a buffered status line; longer lines are dropped.
	MaxLineLength int `mapstructure:"max_line_length"`
}

// DefaultConfig returns the settings used by the controller boards.
func DefaultConfig() Config {
	return Config{
		BaudRate:      115200,
		ReadTimeout:   time.Second,
		WriteTimeout:  time.Second,
		SettleDelay:   2 * time.Second,
		PollInterval:  10 * time.Millisecond,
		MaxLineLength: 1024,
	}
}

// Validate checks the configuration for obvious issues.
func (c Config) Validate() error {
	if c.BaudRate < 0 {
		return fmt.Errorf("link: invalid baud rate %d", c.BaudRate)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.SettleDelay < 0 || c.PollInterval < 0 {
		return fmt.Errorf("link: negative duration in config")
	}
	if c.MaxLineLength < 0 {
		return fmt.Errorf("link: invalid max line length %d", c.MaxLineLength)
	}
	return nil
}

// withDefaults fills zero fields that have no meaningful zero value.
// SettleDelay and WriteTimeout keep zero as "none".
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaudRate == 0 {
		c.BaudRate = def.BaudRate
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = def.PollInterval
	}
	if c.MaxLineLength == 0 {
		c.MaxLineLength = def.MaxLineLength
	}
	return c
}
