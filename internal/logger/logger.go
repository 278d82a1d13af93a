// Package logger provides leveled logging for the collector.
// Debug, Info, Warn and Section lines are printed to stderr only in verbose
// mode; Error lines always are. When a log file is configured every line is
// also appended to it, regardless of verbosity.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	file    *lumberjack.Logger
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for console logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// SetFile appends every log line to a size-rotated file at path.
// An empty path disables file logging.
func SetFile(path string, maxSizeMB, maxBackups int) error {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		if err := file.Close(); err != nil {
			return fmt.Errorf("closing log file: %w", err)
		}
		file = nil
	}
	if path == "" {
		return nil
	}

	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     28,
		Compress:   true,
	}
	return nil
}

// Close flushes and closes the log file, if any.
func Close() error {
	return SetFile("", 0, 0)
}

func emit(always bool, line string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose || always {
		fmt.Fprint(output, line)
	}
	if file != nil {
		fmt.Fprintf(file, "%s %s", time.Now().Format(time.RFC3339), line)
	}
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	emit(false, fmt.Sprintf("[DEBUG] "+format+"\n", args...))
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	emit(false, fmt.Sprintf("\n=== %s ===\n", name))
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	emit(false, fmt.Sprintf("[INFO] "+format+"\n", args...))
}

// Warn prints a warning message if verbose mode is enabled.
func Warn(format string, args ...any) {
	emit(false, fmt.Sprintf("[WARN] "+format+"\n", args...))
}

// Error prints an error message regardless of verbosity.
func Error(format string, args ...any) {
	emit(true, fmt.Sprintf("[ERROR] "+format+"\n", args...))
}
