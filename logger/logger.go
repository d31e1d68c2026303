package logger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var noop = func() {}

// Trace returns a function that logs the elapsed time of an operation.
// Usage: defer logger.Trace("operation")()
func Trace(name string) func() {
	l := current()
	if !l.enabled(LogLevelTrace) {
		return noop
	}
	start := time.Now()
	return func() {
		l.log(LogLevelTrace, "%s: %v", name, time.Since(start))
	}
}

// MaxLogLines bounds the log file. When exceeded the oldest lines are dropped.
const MaxLogLines = 5000

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps a config string to a LogLevel, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LogLevelTrace
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LimitedLogger is a leveled logger backed by a size-capped file.
type LimitedLogger struct {
	mu    sync.Mutex
	out   io.Writer
	file  *os.File // nil when out is not a rotatable file
	lines int
	level LogLevel
}

var (
	globalMu sync.RWMutex
	global   *LimitedLogger
	fallback = &LimitedLogger{out: os.Stderr, level: LogLevelInfo}
)

func current() *LimitedLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if global != nil {
		return global
	}
	return fallback
}

// NewLimitedLogger creates a logger appending to file and installs it as the
// package logger. Lines already in the file count towards MaxLogLines.
func NewLimitedLogger(file *os.File, level LogLevel) *LimitedLogger {
	l := &LimitedLogger{out: file, file: file, level: level}
	l.lines = countLines(file)
	setGlobal(l)
	return l
}

// newWriterLogger returns a logger writing to w without rotation.
func newWriterLogger(w io.Writer, level LogLevel) *LimitedLogger {
	return &LimitedLogger{out: w, level: level}
}

func setGlobal(l *LimitedLogger) {
	globalMu.Lock()
	global = l
	globalMu.Unlock()
}

func (l *LimitedLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// SetGlobalLevel sets the logging level on the package logger.
func SetGlobalLevel(level LogLevel) {
	current().SetLevel(level)
}

func (l *LimitedLogger) enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

func (l *LimitedLogger) log(level LogLevel, format string, v ...any) {
	if !l.enabled(level) {
		return
	}
	msg := fmt.Sprintf("%s [%s] %s\n", time.Now().Format("2006/01/02 15:04:05"), level, fmt.Sprintf(format, v...))
	_, _ = l.Write([]byte(msg))
}

func (l *LimitedLogger) Debug(format string, v ...any) { l.log(LogLevelDebug, format, v...) }
func (l *LimitedLogger) Info(format string, v ...any)  { l.log(LogLevelInfo, format, v...) }
func (l *LimitedLogger) Warn(format string, v ...any)  { l.log(LogLevelWarn, format, v...) }
func (l *LimitedLogger) Error(format string, v ...any) { l.log(LogLevelError, format, v...) }

// Printf logs at debug level. It matches the log func signature expected by
// the nvim RPC client.
func (l *LimitedLogger) Printf(format string, v ...any) { l.log(LogLevelDebug, format, v...) }

func Debug(format string, v ...any) { current().Debug(format, v...) }
func Info(format string, v ...any)  { current().Info(format, v...) }
func Warn(format string, v ...any)  { current().Warn(format, v...) }
func Error(format string, v ...any) { current().Error(format, v...) }
func Printf(format string, v ...any) {
	current().Printf(format, v...)
}

// Fatal logs at error level and exits.
func Fatal(format string, v ...any) {
	current().Error(format, v...)
	os.Exit(1)
}

// Write implements io.Writer so the logger can back a standard log.Logger.
func (l *LimitedLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.out.Write(p)
	if err != nil {
		return n, err
	}
	l.lines += strings.Count(string(p), "\n")
	if l.file != nil && l.lines > MaxLogLines {
		l.truncate()
	}
	return n, nil
}

// truncate keeps the newest MaxLogLines/2 lines so rotation is not triggered
// on every subsequent write.
func (l *LimitedLogger) truncate() {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return
	}
	var lines []string
	scanner := bufio.NewScanner(l.file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if keep := MaxLogLines / 2; len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	if err := l.file.Truncate(0); err != nil {
		return
	}
	_, _ = l.file.Seek(0, io.SeekStart)
	w := bufio.NewWriter(l.file)
	for _, line := range lines {
		_, _ = w.WriteString(line)
		_ = w.WriteByte('\n')
	}
	_ = w.Flush()
	l.lines = len(lines)
}

func (l *LimitedLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func countLines(f *os.File) int {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0
	}
	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	_, _ = f.Seek(0, io.SeekEnd)
	return count
}
