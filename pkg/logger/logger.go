// Package logger builds the zap logger used by the CLI.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, encoding and destination.
type Config struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"` // console or json
	Output string     `mapstructure:"output"` // stderr, file, both or none
	File   FileConfig `mapstructure:"file"`
}

// FileConfig configures the rotated log file.
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxAge     int    `mapstructure:"max_age"`  // days
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "stderr",
		File: FileConfig{
			Path:       "armpanel.log",
			MaxSize:    10,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// New builds a logger from cfg. The returned logger should be synced
// before exit.
func New(cfg Config) (*zap.Logger, error) {
	return newWithStderr(cfg, os.Stderr)
}

func newWithStderr(cfg Config, stderr io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console", "":
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("log format %q: want console or json", cfg.Format)
	}

	var cores []zapcore.Core
	switch cfg.Output {
	case "none":
		return zap.NewNop(), nil
	case "stderr", "":
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(stderr), level))
	case "file", "both":
		if cfg.Output == "both" {
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(stderr), level))
		}
		if dir := filepath.Dir(cfg.File.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("log dir: %w", err)
			}
		}
		// colour codes do not belong in a file
		fileEncoder := encoder
		if cfg.Format != "json" {
			fileConfig := encoderConfig
			fileConfig.EncodeLevel = zapcore.CapitalLevelEncoder
			fileEncoder = zapcore.NewConsoleEncoder(fileConfig)
		}
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		}
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(fileWriter), level))
	default:
		return nil, fmt.Errorf("log output %q: want stderr, file, both or none", cfg.Output)
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// ForTUI redirects terminal output to the log file so a full screen UI is
// not overwritten.
func (c Config) ForTUI() Config {
	switch c.Output {
	case "stderr", "":
		c.Output = "file"
	case "both":
		c.Output = "file"
	}
	return c
}
