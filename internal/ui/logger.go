// Package ui provides the console and file output for baktarun.
//
// The Logger is the structured-event sink injected into the gateway and
// the runner as their LogFn; components never reach into ambient global
// logging state.
package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	debugColor   = color.New(color.FgHiBlack)
)

// Logger writes leveled messages to the console and, when configured, to
// a timestamped session log file.
type Logger struct {
	mu    sync.Mutex
	file  *os.File
	debug bool
}

// NewLogger creates a logger. If logDir is non-empty, a session log file
// named after runID is created there; console output works regardless.
func NewLogger(logDir, runID string, debug bool) (*Logger, error) {
	l := &Logger{debug: debug}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		path := filepath.Join(logDir, "baktarun_"+runID+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = f
		fmt.Fprintf(f, "=== baktarun session %s started: %s ===\n",
			runID, time.Now().Format("2006-01-02 15:04:05"))
	}
	return l, nil
}

// Log writes one leveled message. Debug messages reach the console only
// in debug mode but always land in the session file.
func (l *Logger) Log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch level {
	case "success":
		successColor.Printf("✅ %s\n", msg)
	case "warning":
		warningColor.Printf("⚠️  %s\n", msg)
	case "error":
		errorColor.Fprintf(os.Stderr, "❌ %s\n", msg)
	case "debug":
		if l.debug {
			debugColor.Printf("[DEBUG] %s\n", msg)
		}
	default:
		fmt.Printf("%s\n", msg)
	}

	if l.file != nil {
		timestamp := time.Now().Format("2006-01-02 15:04:05.000")
		fmt.Fprintf(l.file, "[%s] %s - %s\n", timestamp, level, msg)
	}
}

// Logf formats and logs one message.
func (l *Logger) Logf(level, format string, args ...any) {
	l.Log(level, fmt.Sprintf(format, args...))
}

// Close flushes and closes the session log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
