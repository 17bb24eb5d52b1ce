// Package logger provides leveled logging with support for debug, info, warn, and error levels.
// It wraps the standard log package to provide level-based filtering and formatted output.
//
// The text format prefixes each line with its level and the calling file;
// the json format writes one object per line with level, ts and msg keys.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Level represents a logging level
type Level int

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in production.
	DebugLevel Level = iota
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual human review.
	WarnLevel
	// ErrorLevel logs are high-priority. If an application is running smoothly, it shouldn't generate any error-level logs.
	ErrorLevel
	fatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// ParseLevel maps a level name to its Level. Unknown names map to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger provides leveled logging
type Logger struct {
	level  Level
	json   bool
	logger *log.Logger
}

var (
	// Global logger instance
	defaultLogger *Logger
)

// Init initializes the default logger with the specified level and format
func Init(level string, format string) {
	isJSON := strings.ToLower(format) == "json"

	flags := log.LstdFlags | log.Lmicroseconds | log.Lshortfile
	if isJSON {
		flags = 0
	}

	defaultLogger = &Logger{
		level:  ParseLevel(level),
		json:   isJSON,
		logger: log.New(os.Stderr, "", flags),
	}
}

// SetOutput redirects the default logger, e.g. to a buffer in tests.
func SetOutput(w io.Writer) {
	if defaultLogger != nil {
		defaultLogger.logger.SetOutput(w)
	}
}

type jsonEntry struct {
	Level string `json:"level"`
	TS    string `json:"ts"`
	Msg   string `json:"msg"`
}

func output(l Level, format string, args ...interface{}) {
	if defaultLogger == nil || defaultLogger.level > l {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if defaultLogger.json {
		line, err := json.Marshal(jsonEntry{
			Level: strings.ToLower(l.String()),
			TS:    time.Now().UTC().Format(time.RFC3339Nano),
			Msg:   msg,
		})
		if err == nil {
			_ = defaultLogger.logger.Output(3, string(line))
			return
		}
	}
	_ = defaultLogger.logger.Output(3, "["+l.String()+"] "+msg)
}

// Debug logs a message at DebugLevel
func Debug(format string, args ...interface{}) {
	output(DebugLevel, format, args...)
}

// Info logs a message at InfoLevel
func Info(format string, args ...interface{}) {
	output(InfoLevel, format, args...)
}

// Warn logs a message at WarnLevel
func Warn(format string, args ...interface{}) {
	output(WarnLevel, format, args...)
}

// Error logs a message at ErrorLevel
func Error(format string, args ...interface{}) {
	output(ErrorLevel, format, args...)
}

// Fatal logs a message at ErrorLevel and exits
func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		output(fatalLevel, format, args...)
	} else {
		log.Printf("[FATAL] "+format, args...)
	}
	os.Exit(1)
}
