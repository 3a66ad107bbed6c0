package logger

import (
	"sync"

	"github.com/mstgnz/walletpay/infra/config"
)

const serviceName = "walletpay"

var (
	globalLogger *SystemLogger
	globalMu     sync.RWMutex
)

// InitGlobalLogger initializes the global system logger. sink may be nil.
func InitGlobalLogger(sink Sink) {
	environment := config.GetEnv("ENVIRONMENT", "development")
	level := ParseLevel(config.GetEnv("LOGGING_LEVEL", "info"))
	if environment == "development" {
		level = LevelDebug
	}

	SetGlobalLogger(NewSystemLogger(sink, SystemLoggerConfig{
		EnableConsole: true,
		EnableSink:    sink != nil,
		MinLevel:      level,
		Service:       serviceName,
		Version:       config.Version,
		Environment:   environment,
	}))
}

// SetGlobalLogger replaces the global logger.
func SetGlobalLogger(l *SystemLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *SystemLogger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		// console-only fallback when not initialized
		globalLogger = NewSystemLogger(nil, SystemLoggerConfig{
			EnableConsole: true,
			MinLevel:      LevelInfo,
			Service:       serviceName,
			Version:       config.Version,
			Environment:   "development",
		})
	}
	return globalLogger
}

// Debug logs a debug message using the global logger
func Debug(message string, ctx ...LogContext) {
	GetGlobalLogger().Debug(message, ctx...)
}

// Info logs an info message using the global logger
func Info(message string, ctx ...LogContext) {
	GetGlobalLogger().Info(message, ctx...)
}

// Warn logs a warning message using the global logger
func Warn(message string, ctx ...LogContext) {
	GetGlobalLogger().Warn(message, ctx...)
}

// Error logs an error message using the global logger
func Error(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Error(message, err, ctx...)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Fatal(message, err, ctx...)
}

// WithContext creates a context logger from the global logger
func WithContext(ctx LogContext) *ContextLogger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithGateway creates a context logger with gateway
func WithGateway(gateway string) *ContextLogger {
	return WithContext(LogContext{Gateway: gateway})
}
