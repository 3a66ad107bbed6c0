package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// levels holds the rank used for filtering and the console color per level
var levels = map[LogLevel]struct {
	rank  int
	color string
}{
	LevelDebug: {0, "\033[36m"},
	LevelInfo:  {1, "\033[32m"},
	LevelWarn:  {2, "\033[33m"},
	LevelError: {3, "\033[31m"},
	LevelFatal: {4, "\033[35m"},
}

const colorReset = "\033[0m"

// ParseLevel maps a level name to a LogLevel, falling back to info.
func ParseLevel(s string) LogLevel {
	level := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levels[level]; ok {
		return level
	}
	return LevelInfo
}

// SystemLog represents a structured system log entry
type SystemLog struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Component   string         `json:"component"`
	Function    string         `json:"function"`
	File        string         `json:"file"`
	Line        int            `json:"line"`
	Gateway     string         `json:"gateway,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	Environment string         `json:"environment"`
	Service     string         `json:"service"`
	Version     string         `json:"version"`
}

// Sink receives log entries for remote storage.
type Sink interface {
	LogSystemEvent(ctx context.Context, entry any) error
}

// SystemLogger handles structured logging to the console and an optional sink
type SystemLogger struct {
	sink          Sink
	out           io.Writer
	outMu         sync.Mutex
	enableConsole bool
	enableSink    bool
	minLevel      LogLevel
	service       string
	version       string
	environment   string
}

// SystemLoggerConfig represents configuration for system logger
type SystemLoggerConfig struct {
	EnableConsole bool      `yaml:"enable_console"`
	EnableSink    bool      `yaml:"enable_sink"`
	MinLevel      LogLevel  `yaml:"min_level"`
	Service       string    `yaml:"service"`
	Version       string    `yaml:"version"`
	Environment   string    `yaml:"environment"`
	Output        io.Writer `yaml:"-"`
}

// NewSystemLogger creates a new system logger
func NewSystemLogger(sink Sink, config SystemLoggerConfig) *SystemLogger {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	return &SystemLogger{
		sink:          sink,
		out:           out,
		enableConsole: config.EnableConsole,
		enableSink:    config.EnableSink && sink != nil,
		minLevel:      config.MinLevel,
		service:       config.Service,
		version:       config.Version,
		environment:   config.Environment,
	}
}

// LogContext holds contextual information for logging
type LogContext struct {
	Gateway   string
	RequestID string
	Fields    map[string]any
}

// Debug logs a debug message
func (sl *SystemLogger) Debug(message string, ctx ...LogContext) {
	sl.log(LevelDebug, message, ctx...)
}

// Info logs an info message
func (sl *SystemLogger) Info(message string, ctx ...LogContext) {
	sl.log(LevelInfo, message, ctx...)
}

// Warn logs a warning message
func (sl *SystemLogger) Warn(message string, ctx ...LogContext) {
	sl.log(LevelWarn, message, ctx...)
}

// Error logs an error message
func (sl *SystemLogger) Error(message string, err error, ctx ...LogContext) {
	sl.log(LevelError, message, withError(err, ctx))
}

// Fatal logs a fatal message and exits
func (sl *SystemLogger) Fatal(message string, err error, ctx ...LogContext) {
	sl.log(LevelFatal, message, withError(err, ctx))
	os.Exit(1)
}

func withError(err error, ctx []LogContext) LogContext {
	logCtx := LogContext{}
	if len(ctx) > 0 {
		logCtx = ctx[0]
	}

	fields := make(map[string]any, len(logCtx.Fields)+1)
	for k, v := range logCtx.Fields {
		fields[k] = v
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logCtx.Fields = fields
	return logCtx
}

// log is the core logging function
func (sl *SystemLogger) log(level LogLevel, message string, ctx ...LogContext) {
	if !sl.shouldLog(level) {
		return
	}

	// skip log, the level method and the package level helper
	pc, file, line, ok := runtime.Caller(3)
	function := "unknown"
	if !ok {
		file = "unknown"
		line = 0
	} else if fn := runtime.FuncForPC(pc); fn != nil {
		function = fn.Name()
		if idx := strings.LastIndex(function, "."); idx != -1 {
			function = function[idx+1:]
		}
	}

	entry := SystemLog{
		Timestamp:   time.Now().UTC(),
		Level:       level,
		Message:     message,
		Component:   sl.extractComponent(file),
		Function:    function,
		File:        file,
		Line:        line,
		Environment: sl.environment,
		Service:     sl.service,
		Version:     sl.version,
	}

	if len(ctx) > 0 {
		logCtx := ctx[0]
		entry.Gateway = logCtx.Gateway
		entry.RequestID = logCtx.RequestID
		entry.Fields = redactFields(logCtx.Fields)

		if errMsg, ok := entry.Fields["error"].(string); ok {
			entry.Error = errMsg
		}
	}

	if sl.enableConsole {
		sl.logToConsole(entry)
	}

	if sl.enableSink {
		go sl.logToSink(entry)
	}
}

// shouldLog checks if the log level should be logged
func (sl *SystemLogger) shouldLog(level LogLevel) bool {
	return levels[level].rank >= levels[sl.minLevel].rank
}

// extractComponent extracts component name from file path
// e.g. /src/walletpay/provider/stripe/stripe.go -> provider/stripe
func (sl *SystemLogger) extractComponent(file string) string {
	parts := strings.Split(file, "/")

	for i, part := range parts {
		if part == "walletpay" && i+1 < len(parts) {
			if i+2 < len(parts) {
				return parts[i+1] + "/" + parts[i+2]
			}
			return parts[i+1]
		}
	}

	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}

	return "unknown"
}

// sensitiveKeys never reach any output, whatever the caller passes.
var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"payment_token": {},
	"secret_key":    {},
	"access_token":  {},
	"api_key":       {},
	"authorization": {},
}

func redactFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
			out[k] = "***REDACTED***"
			continue
		}
		out[k] = v
	}
	return out
}

// logToConsole writes one header line and then one line per field:
//
//	2026-01-02 15:04:05 [INFO] [payment] [gateway=stripe req_id=0123abcd] message - Error: ...
func (sl *SystemLogger) logToConsole(entry SystemLog) {
	var b strings.Builder
	b.WriteString(entry.Timestamp.Format(time.DateTime))
	fmt.Fprintf(&b, " [%s%s%s] [%s] ", levels[entry.Level].color, strings.ToUpper(string(entry.Level)), colorReset, entry.Component)

	tags := make([]string, 0, 2)
	if entry.Gateway != "" {
		tags = append(tags, "gateway="+entry.Gateway)
	}
	if id := entry.RequestID; id != "" {
		tags = append(tags, "req_id="+id[:min(len(id), 8)])
	}
	if len(tags) > 0 {
		fmt.Fprintf(&b, "[%s] ", strings.Join(tags, " "))
	}

	b.WriteString(entry.Message)
	if entry.Error != "" {
		b.WriteString(" - Error: " + entry.Error)
	}
	b.WriteByte('\n')

	keys := make([]string, 0, len(entry.Fields))
	for key := range entry.Fields {
		if key != "error" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", key, entry.Fields[key])
	}

	sl.write(b.String())
}

func (sl *SystemLogger) write(s string) {
	sl.outMu.Lock()
	defer sl.outMu.Unlock()
	_, _ = io.WriteString(sl.out, s)
}

// logToSink ships the entry asynchronously
func (sl *SystemLogger) logToSink(entry SystemLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sl.sink.LogSystemEvent(ctx, entry); err != nil && sl.enableConsole {
		sl.write(fmt.Sprintf("%s [%s] failed to ship log entry: %v\n",
			time.Now().UTC().Format(time.DateTime), strings.ToUpper(string(LevelError)), err))
	}
}

// WithContext creates a new logger with context
func (sl *SystemLogger) WithContext(ctx LogContext) *ContextLogger {
	return &ContextLogger{
		systemLogger: sl,
		context:      ctx,
	}
}

// ContextLogger wraps SystemLogger with context
type ContextLogger struct {
	systemLogger *SystemLogger
	context      LogContext
}

func (cl *ContextLogger) Debug(message string) {
	cl.systemLogger.Debug(message, cl.context)
}

func (cl *ContextLogger) Info(message string) {
	cl.systemLogger.Info(message, cl.context)
}

func (cl *ContextLogger) Warn(message string) {
	cl.systemLogger.Warn(message, cl.context)
}

func (cl *ContextLogger) Error(message string, err error) {
	cl.systemLogger.Error(message, err, cl.context)
}

// AddField adds a field to the context
func (cl *ContextLogger) AddField(key string, value any) *ContextLogger {
	if cl.context.Fields == nil {
		cl.context.Fields = make(map[string]any)
	}
	cl.context.Fields[key] = value
	return cl
}

// SetGateway sets the gateway in context
func (cl *ContextLogger) SetGateway(gateway string) *ContextLogger {
	cl.context.Gateway = gateway
	return cl
}

// SetRequestID sets the request ID in context
func (cl *ContextLogger) SetRequestID(requestID string) *ContextLogger {
	cl.context.RequestID = requestID
	return cl
}
