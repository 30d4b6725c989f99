// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so the rest of the bot never touches zerolog directly:
//   - Logger is a small value type with a safe zero value (no-op).
//   - Fields are closures, applied in order; later fields win on key clash.
//   - The Service can hot-apply a new Config (level, sinks) without the
//     callers having to re-derive their loggers.
//   - An optional Sink relays WARN+ lines to an external channel (the bot
//     wires a rate-limited Discord log channel here).
package logx

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Relay   RelayConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// RelayConfig controls forwarding of log lines to an external Sink.
type RelayConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Field mutates a zerolog event. Applied in order; setting the same key
// twice means the later field wins.
type Field func(e *zerolog.Event)

func String(k, v string) Field         { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field        { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field    { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Bool(k string, v bool) Field      { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }

func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}

func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Sink receives rendered log lines destined for an external channel.
// Implementations must be non-blocking and must not log back through the
// same Service on failure, or a failing send would feed the relay forever.
type Sink interface {
	Relay(level string, msg string)
}

// Logger is a lightweight handle derived from a Service.
// The zero value is a safe no-op.
type Logger struct {
	svc    *Service
	fields []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger { return Logger{} }

func (l Logger) IsZero() bool { return l.svc == nil }

// With returns a derived logger carrying additional fixed fields.
func (l Logger) With(fields ...Field) Logger {
	if l.svc == nil {
		return l
	}
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return Logger{svc: l.svc, fields: merged}
}

func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) emit(lvl zerolog.Level, msg string, fields []Field) {
	if l.svc == nil {
		return
	}
	z := l.svc.current()
	e := z.WithLevel(lvl)
	if e == nil {
		return
	}
	for _, f := range l.fields {
		f(e)
	}
	for _, f := range fields {
		f(e)
	}
	e.Msg(msg)
	l.svc.relay(lvl, msg)
}

// Service owns the zerolog writers and the relay state.
type Service struct {
	mu sync.RWMutex
	z  zerolog.Logger

	file *os.File

	sink     Sink
	limiter  *rate.Limiter
	minLevel zerolog.Level
	relayOn  bool
}

// New builds a Service from cfg and returns it with a root Logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

// Logger returns a root logger bound to this service.
func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetSink installs (or clears, with nil) the external relay target.
func (s *Service) SetSink(sink Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Apply rebuilds the writer stack. Safe to call while loggers are in use;
// in-flight events finish against the previous writers.
func (s *Service) Apply(cfg Config) {
	level := parseLevel(cfg.Level, zerolog.InfoLevel)

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled && strings.TrimSpace(cfg.File.Path) != "" {
		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			s.file = f
			writers = append(writers, f)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat})
	}

	s.z = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()

	s.relayOn = cfg.Relay.Enabled
	s.minLevel = parseLevel(cfg.Relay.MinLevel, zerolog.WarnLevel)
	rps := cfg.Relay.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
}

// Close releases the file sink, if any.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

func (s *Service) current() zerolog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.z
}

func (s *Service) relay(lvl zerolog.Level, msg string) {
	s.mu.RLock()
	sink := s.sink
	on := s.relayOn
	min := s.minLevel
	lim := s.limiter
	s.mu.RUnlock()

	if !on || sink == nil || lvl < min {
		return
	}
	if lim != nil && !lim.Allow() {
		return
	}
	sink.Relay(strings.ToUpper(lvl.String()), msg)
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}
