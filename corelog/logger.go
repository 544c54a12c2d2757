package corelog

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Logger is the ambient logging interface consumed throughout the core
// (Timer alarm-drop warnings, Priority Scheduler job-failure reports),
// wrapping a
// *logiface.Logger[*jsonEvent] so call sites don't need to know the
// concrete event type.
type Logger struct {
	l       *logiface.Logger[*jsonEvent]
	limiter *catrate.Limiter
}

// New constructs a Logger writing level-filtered JSON lines through the
// writer given with logiface.WithWriter (see NewWriter and DefaultWriter).
// New adds no writer of its own; only Default falls back to DefaultWriter.
func New(options ...logiface.Option[*jsonEvent]) *Logger {
	opts := append([]logiface.Option[*jsonEvent]{
		logiface.WithEventFactory[*jsonEvent](eventFactory{}),
	}, options...)
	return &Logger{l: logiface.New(opts...)}
}

// NewLimited is New plus a go-catrate category rate limiter (keyed by
// WarnfLimited's caller) governing WarnfLimited. rates maps a sliding
// window duration to the maximum events permitted within it, per
// catrate.NewLimiter.
func NewLimited(rates map[time.Duration]int, options ...logiface.Option[*jsonEvent]) *Logger {
	l := New(options...)
	l.limiter = catrate.NewLimiter(rates)
	return l
}

func (l *Logger) Debug() *logiface.Builder[*jsonEvent]   { return l.l.Debug() }
func (l *Logger) Info() *logiface.Builder[*jsonEvent]    { return l.l.Info() }
func (l *Logger) Notice() *logiface.Builder[*jsonEvent]  { return l.l.Notice() }
func (l *Logger) Warning() *logiface.Builder[*jsonEvent] { return l.l.Warning() }

// Warnf logs a simple formatted warning, without rate limiting (the core's
// own call sites use WarnfLimited).
func (l *Logger) Warnf(format string, args ...any) {
	l.l.Warning().Log(sprintf(format, args...))
}

// Debugf logs a simple formatted debug message.
func (l *Logger) Debugf(format string, args ...any) {
	l.l.Debug().Log(sprintf(format, args...))
}

// WarnfLimited logs a formatted warning through the caller-keyed category
// rate limiter configured via NewLimited/ParameterizeCategoryRateLimits,
// for high-frequency ambient call sites that would otherwise flood the
// sink - Timer reentrancy drops and Priority Scheduler job failures under
// sustained load. With no limiter configured it behaves like Warnf.
func (l *Logger) WarnfLimited(format string, args ...any) {
	if l.limiter != nil {
		if _, ok := l.limiter.Allow(callerCategory(1)); !ok {
			return
		}
	}
	l.Warnf(format, args...)
}

// callerCategory identifies the caller skip frames above callerCategory
// itself, used as the go-catrate rate-limiting category so each distinct
// ambient call site (e.g. Timer's reentrancy drop, Priority Scheduler's
// job-failure report) gets its own independent sliding window.
func callerCategory(skip int) any {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	fn := ""
	if f := runtime.FuncForPC(pc); f != nil {
		fn = f.Name()
	}
	return [2]any{fn, [2]any{file, line}}
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

var defaultOnce sync.Once
var defaultLogger *Logger

// Default returns the process-wide default Logger, built the first time
// it's requested from whatever Parameterize configured (or the built-in
// defaults, if Parameterize was never called).
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger = defaultParams.build()
	})
	return defaultLogger
}

type defaultParameters struct {
	writer logiface.Writer[*jsonEvent]
	level  logiface.Level
	rates  map[time.Duration]int
}

func (p defaultParameters) build() *Logger {
	opts := []logiface.Option[*jsonEvent]{
		logiface.WithWriter[*jsonEvent](p.writer),
		logiface.WithLevel[*jsonEvent](p.level),
	}
	if len(p.rates) != 0 {
		return NewLimited(p.rates, opts...)
	}
	return New(opts...)
}

var defaultParams = defaultParameters{
	writer: DefaultWriter(),
	level:  logiface.LevelInformational,
}

// Parameterize configures the process-wide default Logger's sink and
// level. Must be called before the first call to Default; calls after the
// default has been built have no effect.
func Parameterize(writer logiface.Writer[*jsonEvent], level logiface.Level) {
	defaultParams = defaultParameters{writer: writer, level: level, rates: defaultParams.rates}
}

// ParameterizeCategoryRateLimits configures the process-wide default
// Logger's per-category rate limits (window duration to max event count),
// enabling WarnfLimited. Must be called before the first call to Default.
func ParameterizeCategoryRateLimits(rates map[time.Duration]int) {
	defaultParams.rates = rates
}
