package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Logger struct {
	file   *os.File
	logger *log.Logger
	debug  bool
}

// NewServiceLogger logs to stdout and to logs/<name>/<name>_<timestamp>.log.
func NewServiceLogger(logsDir, name string) (*Logger, error) {
	// Sanitize service name for file system
	sanitized := strings.ReplaceAll(strings.ToLower(name), " ", "_")

	serviceDir := filepath.Join(logsDir, sanitized)
	if err := os.MkdirAll(serviceDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(serviceDir, fmt.Sprintf("%s_%s.log", sanitized, timestamp))

	file, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	l := NewLogger(io.MultiWriter(os.Stdout, file))
	l.file = file
	return l, nil
}

// NewLogger logs to w only.
func NewLogger(w io.Writer) *Logger {
	return &Logger{
		logger: log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		debug:  true,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l := NewLogger(io.Discard)
	l.debug = false
	return l
}

func (l *Logger) SetDebug(enabled bool) {
	l.debug = enabled
}

func (l *Logger) LogInfo(format string, v ...interface{}) {
	l.log("INFO", format, v...)
}

func (l *Logger) LogError(format string, v ...interface{}) {
	l.log("ERROR", format, v...)
}

func (l *Logger) LogDebug(format string, v ...interface{}) {
	if !l.debug {
		return
	}
	l.log("DEBUG", format, v...)
}

func (l *Logger) log(level string, format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	l.logger.Printf("[%s] %s", level, message)
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
