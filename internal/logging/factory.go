package logging

import "io"

// LogConfig configures the logger returned by NewLogger
type LogConfig struct {
	Level           LogLevel
	OutputFile      string
	EnableConsole   bool
	EnableDebug     bool
	RedactSensitive bool
	EnableColor     bool
	EnableTimestamp bool
	// Console overrides the console sink (stderr when nil)
	Console io.Writer
}

// DefaultLogConfig returns the configuration used when nothing is specified
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:           INFO,
		EnableConsole:   true,
		RedactSensitive: true,
		EnableColor:     false,
		EnableTimestamp: true,
	}
}

// NewLogger creates a logger from config. With no sink enabled it returns a NoOpLogger.
func NewLogger(config LogConfig) (Logger, error) {
	if config.EnableDebug {
		config.Level = DEBUG
	}
	if !config.EnableConsole && config.OutputFile == "" {
		return NewNoOpLogger(), nil
	}
	return newZapLogger(config)
}
