// Package logging provides log management for stickycheese. Chat sessions log
// to a file so streamed text on stdout stays clean; the relay logs to stdout.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jedarden/stickycheese/internal/secrets"
)

// Prefix is prepended to every process log line.
const Prefix = "[STICKYCHEESE]"

const (
	maxLogSize      = 10 * 1024 * 1024
	maxDebugLogSize = 50 * 1024 * 1024
	keepLogs        = 5
	keepDebugLogs   = 3
)

var (
	logDir        string
	logFile       *os.File
	logFilePath   string
	debugFile     *os.File
	debugFilePath string
	debugLogger   *log.Logger
	mu            sync.Mutex
	isFileMode    bool
	debugEnabled  bool
)

// SetDir overrides the log directory. An empty dir restores the default.
func SetDir(dir string) {
	mu.Lock()
	defer mu.Unlock()
	logDir = dir
}

func dir() string {
	if logDir != "" {
		return logDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".stickycheese", "logs")
}

// GetLogPath returns the path to the stickycheese log file.
func GetLogPath() string {
	mu.Lock()
	defer mu.Unlock()
	return filepath.Join(dir(), "stickycheese.log")
}

// GetDebugLogPath returns the path to the debug log file.
func GetDebugLogPath() string {
	mu.Lock()
	defer mu.Unlock()
	return filepath.Join(dir(), "debug.log")
}

// ConfigureForFile redirects the standard logger to the log file.
func ConfigureForFile() error {
	mu.Lock()
	defer mu.Unlock()

	logFilePath = filepath.Join(dir(), "stickycheese.log")
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	if info, err := os.Stat(logFilePath); err == nil && info.Size() > maxLogSize {
		rotate(logFilePath, keepLogs)
	}

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logFile = f
	isFileMode = true
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("%s === Session started ===", Prefix)
	return nil
}

// ConfigureForStdout sends logs to stdout, as the relay does.
func ConfigureForStdout() {
	mu.Lock()
	defer mu.Unlock()

	isFileMode = false
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)
}

// ConfigureQuiet suppresses all log output.
func ConfigureQuiet() {
	mu.Lock()
	defer mu.Unlock()

	isFileMode = false
	log.SetOutput(io.Discard)
}

// rotate renames path with a timestamp suffix and prunes old rotations.
func rotate(path string, keep int) {
	timestamp := time.Now().Format("20060102-150405")
	os.Rename(path, path+"."+timestamp)

	files, err := filepath.Glob(path + ".*")
	if err != nil || len(files) <= keep {
		return
	}
	sort.Strings(files)
	for _, f := range files[:len(files)-keep] {
		os.Remove(f)
	}
}

// Close closes the log and debug files if open.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		log.Printf("%s === Session ended ===", Prefix)
		log.SetOutput(os.Stderr)
		logFile.Close()
		logFile = nil
	}
	isFileMode = false
	closeDebug()
}

// IsFileMode returns true if logging to file.
func IsFileMode() bool {
	mu.Lock()
	defer mu.Unlock()
	return isFileMode
}

// GetCurrentLogPath returns the current log file path, or empty if not logging to file.
func GetCurrentLogPath() string {
	mu.Lock()
	defer mu.Unlock()
	if isFileMode {
		return logFilePath
	}
	return ""
}

// EnableDebugLogging enables raw request and frame logging to debug.log.
func EnableDebugLogging() error {
	mu.Lock()
	defer mu.Unlock()

	debugFilePath = filepath.Join(dir(), "debug.log")
	if err := os.MkdirAll(filepath.Dir(debugFilePath), 0755); err != nil {
		return fmt.Errorf("failed to create debug log directory: %w", err)
	}

	if info, err := os.Stat(debugFilePath); err == nil && info.Size() > maxDebugLogSize {
		rotate(debugFilePath, keepDebugLogs)
	}

	f, err := os.OpenFile(debugFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open debug log file: %w", err)
	}

	debugFile = f
	debugEnabled = true
	debugLogger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
	debugLogger.Printf("=== Debug session started ===")
	return nil
}

// EnableDebugTo sends debug output to w instead of a file.
func EnableDebugTo(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	debugEnabled = true
	debugLogger = log.New(w, "", 0)
}

// DisableDebugLogging disables debug logging.
func DisableDebugLogging() {
	mu.Lock()
	defer mu.Unlock()
	closeDebug()
}

func closeDebug() {
	debugEnabled = false
	if debugFile != nil {
		debugLogger.Printf("=== Debug session ended ===")
		debugFile.Close()
		debugFile = nil
	}
	debugLogger = nil
}

// IsDebugEnabled returns true if debug logging is enabled.
func IsDebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debugEnabled
}

// LogDebugRequest logs an outbound request body, pretty-printed.
func LogDebugRequest(direction string, endpoint string, payload interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if !debugEnabled || debugLogger == nil {
		return
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		debugLogger.Printf("[%s] %s - Error marshaling payload: %v", direction, endpoint, err)
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, secrets.MaskJSON(jsonData), "", "  "); err != nil {
		out.Reset()
		out.Write(secrets.MaskJSON(jsonData))
	}
	debugLogger.Printf("[%s] %s\n%s\n", direction, secrets.MaskString(endpoint), out.String())
}

// LogDebugFrame logs one decoded stream line with its classification.
func LogDebugFrame(provider string, kind string, line string) {
	mu.Lock()
	defer mu.Unlock()

	if !debugEnabled || debugLogger == nil {
		return
	}
	debugLogger.Printf("[%s SSE] %s: %s", provider, kind, line)
}

// LogDebugMessage logs a simple message to the debug log.
func LogDebugMessage(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if !debugEnabled || debugLogger == nil {
		return
	}
	debugLogger.Printf(format, args...)
}

// GetDebugLogFilePath returns the current debug log file path.
func GetDebugLogFilePath() string {
	mu.Lock()
	defer mu.Unlock()
	if debugEnabled && debugFile != nil {
		return debugFilePath
	}
	return ""
}
