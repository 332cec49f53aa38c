package logger

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// defaultTimestampFormat is the format used for the timestamp prefixed to
// every log line.
const defaultTimestampFormat = "2006-01-02 15:04:05.000"

// Level is the level at which a logger is configured. All messages sent
// to a level which is below the current level are filtered.
type Level uint32

// Level constants.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

// levelStrs defines the human-readable names for each logging level.
var levelStrs = [...]string{"TRC", "DBG", "INF", "WRN", "ERR", "CRT", "OFF"}

// LevelFromString returns a level based on the input string s. If the input
// can't be interpreted as a valid log level, the info level and false is
// returned.
func LevelFromString(s string) (l Level, ok bool) {
	switch strings.ToLower(s) {
	case "trace", "trc":
		return LevelTrace, true
	case "debug", "dbg":
		return LevelDebug, true
	case "info", "inf":
		return LevelInfo, true
	case "warn", "wrn":
		return LevelWarn, true
	case "error", "err":
		return LevelError, true
	case "critical", "crt":
		return LevelCritical, true
	case "off":
		return LevelOff, true
	default:
		return LevelInfo, false
	}
}

// String returns the tag of the logger used in log messages, or "OFF" if
// the level will not produce any log output.
func (l Level) String() string {
	if l >= LevelOff {
		return "OFF"
	}
	return levelStrs[l]
}

// logEntry is a single rendered log line queued for a Backend's writers.
type logEntry struct {
	level Level
	log   []byte
}

// Logger writes messages to a chan serviced by the Backend that created it.
// Each subsystem of the node owns one Logger, tagged with the subsystem's
// short name (e.g. "BLKT", "FLOW", "VM  ").
type Logger struct {
	lvl          Level
	subsystemTag string
	b            *Backend
	writeChan    chan logEntry
}

// Level returns the current logging level of the logger.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32((*uint32)(&l.lvl)))
}

// SetLevel changes the logging level of the logger.
func (l *Logger) SetLevel(level Level) {
	atomic.StoreUint32((*uint32)(&l.lvl), uint32(level))
}

func (l *Logger) write(level Level, msg string) {
	if level < l.Level() {
		return
	}
	var buf bytes.Buffer
	buf.WriteString(time.Now().Format(defaultTimestampFormat))
	buf.WriteByte(' ')
	buf.WriteString("[" + level.String() + "]")
	buf.WriteByte(' ')
	buf.WriteString(l.subsystemTag)
	buf.WriteByte(' ')
	if callsite := l.callsite(l.b.flag); callsite != "" {
		buf.WriteString(callsite)
		buf.WriteByte(' ')
	}
	buf.WriteString(msg)
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		buf.WriteByte('\n')
	}

	select {
	case l.writeChan <- logEntry{level: level, log: buf.Bytes()}:
	default:
		// The backend isn't running or its buffer is full; drop the
		// line rather than block the caller.
	}
}

func (l *Logger) callsite(flag uint32) string {
	if flag&(LogFlagLongFile|LogFlagShortFile) == 0 {
		return ""
	}
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return ""
	}
	if flag&LogFlagShortFile != 0 {
		short := file
		for i := len(file) - 1; i > 0; i-- {
			if file[i] == '/' {
				short = file[i+1:]
				break
			}
		}
		file = short
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Tracef formats and writes a trace-level log message.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.write(LevelTrace, fmt.Sprintf(format, args...))
}

// Debugf formats and writes a debug-level log message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.write(LevelDebug, fmt.Sprintf(format, args...))
}

// Infof formats and writes an info-level log message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.write(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf formats and writes a warn-level log message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.write(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf formats and writes an error-level log message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.write(LevelError, fmt.Sprintf(format, args...))
}

// Criticalf formats and writes a critical-level log message.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.write(LevelCritical, fmt.Sprintf(format, args...))
}

// Trace writes a trace-level log message built from its arguments with
// fmt.Sprint semantics.
func (l *Logger) Trace(args ...interface{}) {
	l.write(LevelTrace, fmt.Sprint(args...))
}

// Debug writes a debug-level log message built from its arguments with
// fmt.Sprint semantics.
func (l *Logger) Debug(args ...interface{}) {
	l.write(LevelDebug, fmt.Sprint(args...))
}

// Info writes an info-level log message built from its arguments with
// fmt.Sprint semantics.
func (l *Logger) Info(args ...interface{}) {
	l.write(LevelInfo, fmt.Sprint(args...))
}

// Warn writes a warn-level log message built from its arguments with
// fmt.Sprint semantics.
func (l *Logger) Warn(args ...interface{}) {
	l.write(LevelWarn, fmt.Sprint(args...))
}

// Error writes an error-level log message built from its arguments with
// fmt.Sprint semantics.
func (l *Logger) Error(args ...interface{}) {
	l.write(LevelError, fmt.Sprint(args...))
}

// Critical writes a critical-level log message built from its arguments
// with fmt.Sprint semantics.
func (l *Logger) Critical(args ...interface{}) {
	l.write(LevelCritical, fmt.Sprint(args...))
}

// LogAndMeasureExecutionTime logs functionName's entry immediately and
// returns a func to call on exit that logs how long it ran, for wrapping a
// call with `defer logger.LogAndMeasureExecutionTime(log, "f")()`.
func LogAndMeasureExecutionTime(log *Logger, functionName string) (onEnd func()) {
	start := time.Now()
	log.Debugf("%s start", functionName)
	return func() {
		log.Debugf("%s end. Took: %s", functionName, time.Since(start))
	}
}

// logClosure wraps a function returning a string so fmt.Stringer
// evaluation - and, transitively, the formatting work it performs - is
// deferred until the message is actually going to be written.
type logClosure func() string

func (c logClosure) String() string {
	return c()
}

// NewLogClosure returns a fmt.Stringer that defers evaluating c until a
// logger actually formats it, so an expensive dump (e.g. spew.Sdump of a
// wire message) is skipped entirely below the logger's configured level:
//
//	log.Tracef("received: %s", logger.NewLogClosure(func() string {
//	    return spew.Sdump(msg)
//	}))
func NewLogClosure(c func() string) fmt.Stringer {
	return logClosure(c)
}
