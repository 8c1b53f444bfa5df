package logging

import (
	"encoding/hex"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging
// verbosity. When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "TUYALAN_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks TUYALAN_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	// If no level provided, check environment variable
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	// If still no level, use silent mode (nop logger)
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		// Unknown level - use info as default when explicitly set to something
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	// Customize encoder for better readability
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// InitializeFromEnv initializes the logger from the TUYALAN_LOG_LEVEL
// environment variable. This is the recommended way to initialize logging
// for CLI commands that want silent mode by default.
func InitializeFromEnv() error {
	return Initialize("")
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback to silent logger if not initialized
		// This ensures no unexpected log output in CLI commands
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogConnection logs a TCP connect/disconnect event against a device.
func LogConnection(deviceID, remoteAddr, event string) {
	Info("device connection event",
		zap.String("device_id", deviceID),
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogHandshake logs one step of the v3.4/v3.5 session-key negotiation.
func LogHandshake(deviceID, step string, ok bool) {
	Info("session key handshake step",
		zap.String("device_id", deviceID),
		zap.String("step", step),
		zap.Bool("ok", ok),
	)
}

// LogExchange logs one request/response round trip against a device.
func LogExchange(deviceID string, cmd uint32, seqno uint32, retcode uint32, integrityOK bool) {
	fields := []zap.Field{
		zap.String("device_id", deviceID),
		zap.Uint32("cmd", cmd),
		zap.Uint32("seqno", seqno),
		zap.Uint32("retcode", retcode),
		zap.Bool("integrity_ok", integrityOK),
	}
	if integrityOK {
		Debug("exchange completed", fields...)
	} else {
		Warn("exchange completed with failed integrity check", fields...)
	}
}

// LogRawFrame logs raw on-wire bytes (useful for debugging protocol
// issues). Only emitted at debug level - the bytes are ciphertext, but
// still best kept out of normal operation logs.
func LogRawFrame(label string, data []byte) {
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
	)
}

// LogMonitorClient logs a client connecting to or disconnecting from the
// live DP-map fan-out server (internal/monitor).
func LogMonitorClient(remoteAddr, event string) {
	Info("monitor client event",
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

func hexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	// Limit to first 256 bytes for logging
	if len(data) > 256 {
		return hex.EncodeToString(data[:256]) + "..."
	}
	return hex.EncodeToString(data)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
