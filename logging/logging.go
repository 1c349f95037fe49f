// Package logging provides structured logging for netsnmp components on top
// of the standard log/slog package.
//
// Sessions and transports log through the Logger interface so applications
// can hand in their own logger. When none is supplied, components fall back
// to a ComponentLogger derived from the package-level logger.
//
// # Basic Usage
//
//	if err := logging.InitWithDefaults(); err != nil {
//		panic(err)
//	}
//	defer logging.Shutdown()
//
//	logging.Info("session created", "target", "192.0.2.1")
//
// # Custom Configuration
//
//	cfg := logging.Config{
//		Level:  "debug",
//		Format: "json",
//		Output: "stderr",
//	}
//	if err := logging.Init(cfg); err != nil {
//		panic(err)
//	}
//
// # Component Loggers
//
//	log := logging.NewComponentLogger("session", "snmp")
//	log.Debug("request sent", "request_id", 42)
//	// Output: ... component=session component_type=snmp request_id=42
//
// # Context Fields
//
// Request scoped values attached with WithRequestID, WithTarget and
// WithOperation are added to every *Context log call:
//
//	ctx = logging.WithOperation(ctx, "get")
//	log.InfoContext(ctx, "waiting for response")
//	// Output: ... operation=get
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Output formats.
const (
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

// Config holds logger settings. Output is "stdout", "stderr" or a file path.
type Config struct {
	Level     string `json:"level" yaml:"level"`
	Format    string `json:"format" yaml:"format"`
	Output    string `json:"output" yaml:"output"`
	AddSource bool   `json:"add_source" yaml:"add_source"`
}

// DefaultConfig returns info level logfmt output on stdout.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatLogfmt,
		Output: "stdout",
	}
}

var (
	globalMu       sync.RWMutex
	globalLogger   *slog.Logger
	globalCloser   io.Closer
	globalLevelVar *slog.LevelVar
)

// New builds an independent logger from config. The returned closer is non-nil
// only when output goes to a file.
func New(config Config) (*slog.Logger, io.Closer, error) {
	if err := validate(config); err != nil {
		return nil, nil, err
	}
	writer, closer, err := openOutput(config.Output)
	if err != nil {
		return nil, nil, err
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(parseLevel(config.Level))
	return slog.New(newHandler(writer, config, levelVar)), closer, nil
}

// NewWithWriter builds a logger that writes to w, ignoring config.Output.
func NewWithWriter(config Config, w io.Writer) (*slog.Logger, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(parseLevel(config.Level))
	return slog.New(newHandler(w, config, levelVar)), nil
}

// Init replaces the package-level logger and sets it as the slog default.
// A previously opened log file is closed.
func Init(config Config) error {
	if err := validate(config); err != nil {
		return err
	}
	writer, closer, err := openOutput(config.Output)
	if err != nil {
		return err
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(parseLevel(config.Level))
	logger := slog.New(newHandler(writer, config, levelVar))

	globalMu.Lock()
	previous := globalCloser
	globalLogger = logger
	globalCloser = closer
	globalLevelVar = levelVar
	globalMu.Unlock()

	slog.SetDefault(logger)
	if previous != nil {
		_ = previous.Close()
	}
	return nil
}

// InitWithDefaults initializes the package-level logger with DefaultConfig.
func InitWithDefaults() error {
	return Init(DefaultConfig())
}

// Shutdown closes the log file opened by Init, if any.
func Shutdown() error {
	globalMu.Lock()
	closer := globalCloser
	globalCloser = nil
	globalMu.Unlock()

	if closer != nil {
		return closer.Close()
	}
	return nil
}

// SetLevel changes the level of the package-level logger at runtime.
func SetLevel(level string) error {
	if !ValidateLevel(level) {
		return fmt.Errorf("invalid log level: %q, must be one of: %s, %s, %s, %s",
			level, LevelDebug, LevelInfo, LevelWarn, LevelError)
	}
	globalMu.RLock()
	levelVar := globalLevelVar
	globalMu.RUnlock()

	if levelVar != nil {
		levelVar.Set(parseLevel(level))
	}
	return nil
}

// ValidateLevel reports whether level is a known level name.
func ValidateLevel(level string) bool {
	switch strings.ToLower(level) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	default:
		return false
	}
}

// ValidateFormat reports whether format is a known output format.
func ValidateFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatLogfmt, FormatJSON:
		return true
	default:
		return false
	}
}

// Get returns the package-level logger, initializing it with defaults on
// first use.
func Get() *slog.Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}
	if err := InitWithDefaults(); err != nil {
		return slog.Default()
	}
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) {
	Get().DebugContext(ctx, msg, withContextFields(ctx, args)...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	Get().InfoContext(ctx, msg, withContextFields(ctx, args)...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	Get().WarnContext(ctx, msg, withContextFields(ctx, args)...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	Get().ErrorContext(ctx, msg, withContextFields(ctx, args)...)
}

// Logger is the logging contract accepted by netsnmp components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
	With(args ...any) Logger
}

// FromSlog adapts a *slog.Logger to Logger.
func FromSlog(logger *slog.Logger) Logger {
	return &slogWrapper{logger: logger}
}

// NewLogger is New returning the Logger interface.
func NewLogger(config Config) (Logger, io.Closer, error) {
	logger, closer, err := New(config)
	if err != nil {
		return nil, closer, err
	}
	return &slogWrapper{logger: logger}, closer, nil
}

// Discard returns a Logger that drops every record.
func Discard() Logger {
	return &slogWrapper{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

type slogWrapper struct {
	logger *slog.Logger
}

func (s *slogWrapper) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s *slogWrapper) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s *slogWrapper) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s *slogWrapper) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

func (s *slogWrapper) DebugContext(ctx context.Context, msg string, args ...any) {
	s.logger.DebugContext(ctx, msg, withContextFields(ctx, args)...)
}

func (s *slogWrapper) InfoContext(ctx context.Context, msg string, args ...any) {
	s.logger.InfoContext(ctx, msg, withContextFields(ctx, args)...)
}

func (s *slogWrapper) WarnContext(ctx context.Context, msg string, args ...any) {
	s.logger.WarnContext(ctx, msg, withContextFields(ctx, args)...)
}

func (s *slogWrapper) ErrorContext(ctx context.Context, msg string, args ...any) {
	s.logger.ErrorContext(ctx, msg, withContextFields(ctx, args)...)
}

func (s *slogWrapper) With(args ...any) Logger {
	return &slogWrapper{logger: s.logger.With(args...)}
}

// ComponentLogger tags every record with the component name and type.
//
// A zero ComponentLogger is usable: it resolves the package-level logger on
// each call.
type ComponentLogger struct {
	logger        *slog.Logger
	component     string
	componentType string
}

// NewComponentLogger returns a logger derived from the package-level logger.
func NewComponentLogger(component, componentType string) *ComponentLogger {
	return &ComponentLogger{
		logger:        Get().With("component", component, "component_type", componentType),
		component:     component,
		componentType: componentType,
	}
}

// Component returns the component name.
func (cl *ComponentLogger) Component() string { return cl.component }

// ComponentType returns the component type.
func (cl *ComponentLogger) ComponentType() string { return cl.componentType }

func (cl *ComponentLogger) base() *slog.Logger {
	if cl.logger != nil {
		return cl.logger
	}
	return Get().With("component", cl.component, "component_type", cl.componentType)
}

func (cl *ComponentLogger) Debug(msg string, args ...any) { cl.base().Debug(msg, args...) }
func (cl *ComponentLogger) Info(msg string, args ...any)  { cl.base().Info(msg, args...) }
func (cl *ComponentLogger) Warn(msg string, args ...any)  { cl.base().Warn(msg, args...) }
func (cl *ComponentLogger) Error(msg string, args ...any) { cl.base().Error(msg, args...) }

func (cl *ComponentLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	cl.base().DebugContext(ctx, msg, withContextFields(ctx, args)...)
}

func (cl *ComponentLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	cl.base().InfoContext(ctx, msg, withContextFields(ctx, args)...)
}

func (cl *ComponentLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	cl.base().WarnContext(ctx, msg, withContextFields(ctx, args)...)
}

func (cl *ComponentLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	cl.base().ErrorContext(ctx, msg, withContextFields(ctx, args)...)
}

// With returns a ComponentLogger carrying extra attributes.
func (cl *ComponentLogger) With(args ...any) Logger {
	return &ComponentLogger{
		logger:        cl.base().With(args...),
		component:     cl.component,
		componentType: cl.componentType,
	}
}

type contextKey int

const (
	requestIDKey contextKey = iota
	targetKey
	operationKey
	pduTypeKey
)

// contextFields lists the keys extracted into log records, in output order.
var contextFields = []struct {
	key  contextKey
	name string
}{
	{requestIDKey, "request_id"},
	{targetKey, "target"},
	{operationKey, "operation"},
	{pduTypeKey, "pdu_type"},
}

// WithRequestID attaches an SNMP request id to ctx.
func WithRequestID(ctx context.Context, id int32) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithTarget attaches the agent address to ctx.
func WithTarget(ctx context.Context, target string) context.Context {
	return context.WithValue(ctx, targetKey, target)
}

// WithOperation attaches an operation name such as "get" or "set" to ctx.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey, operation)
}

// WithPDUType attaches a PDU type name to ctx.
func WithPDUType(ctx context.Context, pduType string) context.Context {
	return context.WithValue(ctx, pduTypeKey, pduType)
}

func withContextFields(ctx context.Context, args []any) []any {
	if ctx == nil {
		return args
	}
	for _, f := range contextFields {
		if v := ctx.Value(f.key); v != nil {
			args = append(args, f.name, v)
		}
	}
	return args
}

func validate(config Config) error {
	if !ValidateLevel(config.Level) {
		return fmt.Errorf("invalid log level: %q, must be one of: %s, %s, %s, %s",
			config.Level, LevelDebug, LevelInfo, LevelWarn, LevelError)
	}
	if !ValidateFormat(config.Format) {
		return fmt.Errorf("invalid log format: %q, must be one of: %s, %s",
			config.Format, FormatLogfmt, FormatJSON)
	}
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "warning":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, config Config, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}
	if strings.EqualFold(config.Format, FormatJSON) {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case "stdout", "":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	file, err := openLogFile(output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", output, err)
	}
	return file, file, nil
}

// openLogFile opens path for appending. Traversal, system directories and
// symlinks are refused.
func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, errors.New("log file path cannot be empty")
	}
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return nil, fmt.Errorf("invalid log file path: contains directory traversal: %s", clean)
	}
	if filepath.IsAbs(clean) {
		for _, p := range []string{"/etc/", "/proc/", "/sys/", "/dev/", "/run/secrets"} {
			if strings.HasPrefix(clean+"/", p) || clean == strings.TrimSuffix(p, "/") {
				return nil, fmt.Errorf("log file path not allowed: %s", clean)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(clean), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if info, err := os.Lstat(clean); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("refusing to open symlink for log file: %s", clean)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("log path must be a regular file: %s", clean)
		}
	}
	return os.OpenFile(clean, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
