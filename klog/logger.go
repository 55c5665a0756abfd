package klog

import (
	"io"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-utilpkg/logiface"
	lfzerolog "github.com/joeycumines/go-utilpkg/logiface/zerolog"
	"github.com/rs/zerolog"
)

// Field is one structured key/value pair attached to a log line.
type Field struct {
	Key string
	Val any
}

// Str builds a string Field.
func Str(key, val string) Field { return Field{Key: key, Val: val} }

// Uint64 builds a uint64 Field, the common shape for addresses, vectors and
// register dumps on the fatal-exception path.
func Uint64(key string, val uint64) Field { return Field{Key: key, Val: val} }

// Int builds an int Field.
func Int(key string, val int) Field { return Field{Key: key, Val: val} }

// Err builds an error Field carrying err's message text, so it is logged
// as a JSON string.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Val: nil}
	}
	return Field{Key: "error", Val: err.Error()}
}

// Logger is the kernel's structured-logging handle: one logiface.Logger
// writing through logiface/zerolog, plus a catrate.Limiter guarding the
// Throttled path. The zero value is not usable; construct with New.
type Logger struct {
	base    *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
}

// New returns a Logger that writes newline-delimited JSON to w at
// logiface.LevelTrace (i.e. nothing is filtered by level; callers choose
// Boot vs Warn vs Throttled to express severity). rates configures the
// sliding-window limiter used by Throttled; a nil or empty map disables
// throttling (every call passes through).
func New(w io.Writer, rates map[time.Duration]int) *Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()
	// catrate rejects an empty rate set outright; a nil Limiter's Allow
	// reports everything allowed, which is the disabled behavior we want.
	var limiter *catrate.Limiter
	if len(rates) != 0 {
		limiter = catrate.NewLimiter(rates)
	}
	return &Logger{
		base:    lfzerolog.L.New(lfzerolog.L.WithZerolog(zl), lfzerolog.L.WithLevel(lfzerolog.L.LevelTrace())).Logger(),
		limiter: limiter,
	}
}

func apply(b *logiface.Builder[logiface.Event], fields []Field) *logiface.Builder[logiface.Event] {
	for _, f := range fields {
		b = b.Field(f.Key, f.Val)
	}
	return b
}

// Boot logs a one-shot startup/shutdown milestone at informational level.
func (k *Logger) Boot(msg string, fields ...Field) {
	apply(k.base.Info(), fields).Log(msg)
}

// Warn logs an unconditional non-fatal diagnostic.
func (k *Logger) Warn(msg string, fields ...Field) {
	apply(k.base.Warning(), fields).Log(msg)
}

// Throttled logs msg at warning level, rate-limited per category: once the
// configured window's quota is exhausted for that category, the call is
// dropped rather than queued, so a hot diagnostic condition cannot back up
// behind a slow serial writer.
func (k *Logger) Throttled(category string, msg string, fields ...Field) {
	if _, ok := k.limiter.Allow(category); !ok {
		return
	}
	apply(k.base.Warning().Str("category", category), fields).Log(msg)
}

// Fatal logs msg at the emergency level used on the unrecoverable
// fatal-exception path, where the kernel logs once and then halts.
func (k *Logger) Fatal(msg string, fields ...Field) {
	apply(k.base.Emerg(), fields).Log(msg)
}
