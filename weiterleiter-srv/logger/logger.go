package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Level represents the severity of a log message.
type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	currentLevel atomic.Int32
	stdLogger    atomic.Pointer[log.Logger]
)

func init() {
	currentLevel.Store(int32(INFO))
	stdLogger.Store(log.New(os.Stdout, "", log.LstdFlags))
}

// SetLevel sets the minimum level that will be logged.
func SetLevel(level Level) {
	currentLevel.Store(int32(level))
}

// SetOutput redirects log output, mainly useful in tests.
func SetOutput(w io.Writer) {
	stdLogger.Store(log.New(w, "", log.LstdFlags))
}

// IsLevelEnabled reports whether messages at the given level are emitted.
func IsLevelEnabled(level Level) bool {
	return level >= Level(currentLevel.Load())
}

// LevelFromString converts a level name to a Level, defaulting to INFO.
func LevelFromString(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func logMessage(level Level, format string, v ...any) {
	if !IsLevelEnabled(level) {
		return
	}
	stdLogger.Load().Printf("[%s] %s", level, fmt.Sprintf(format, v...))
}

// Debug logs a debug message.
// Arguments are handled in the manner of [fmt.Printf].
func Debug(format string, v ...any) {
	logMessage(DEBUG, format, v...)
}

// Info logs an informational message.
// Arguments are handled in the manner of [fmt.Printf].
func Info(format string, v ...any) {
	logMessage(INFO, format, v...)
}

// Warn logs a warning message.
// Arguments are handled in the manner of [fmt.Printf].
func Warn(format string, v ...any) {
	logMessage(WARN, format, v...)
}

// Error logs an error message.
// Arguments are handled in the manner of [fmt.Printf].
func Error(format string, v ...any) {
	logMessage(ERROR, format, v...)
}

// Fatal logs a fatal message and exits the process.
// Arguments are handled in the manner of [fmt.Printf].
func Fatal(format string, v ...any) {
	logMessage(FATAL, format, v...)
	os.Exit(1)
}
