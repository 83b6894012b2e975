package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedarden/stickycheese/internal/logging"
)

const tailLines = 50

func runLogs(args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	showPath := fs.Bool("path", false, "Show log file paths")
	clearLogs := fs.Bool("clear", false, "Remove all log files")
	debug := fs.Bool("debug", false, "Use the debug log (requests and stream frames)")
	follow := fs.Bool("follow", false, "Follow the log file (like tail -f)")
	fs.Parse(args)

	logPath := logging.GetLogPath()
	debugLogPath := logging.GetDebugLogPath()

	switch {
	case *showPath:
		fmt.Printf("Main log:  %s\n", logPath)
		fmt.Printf("Debug log: %s\n", debugLogPath)
		return nil
	case *clearLogs:
		for _, p := range []string{logPath, debugLogPath} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to clear %s: %w", p, err)
			}
		}
		fmt.Println("Logs cleared.")
		return nil
	}

	path, kind := logPath, "Main"
	if *debug {
		path, kind = debugLogPath, "Debug"
	}

	if *follow {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return tailLogFile(ctx, path, kind, os.Stdout)
	}
	return showLogFile(path, kind, os.Stdout)
}

// showLogFile prints the last lines of a log file.
func showLogFile(path, kind string, w io.Writer) error {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(w, "No %s logs found yet.\n", strings.ToLower(kind))
		fmt.Fprintf(w, "Log file location: %s\n", path)
		if kind == "Debug" {
			fmt.Fprintln(w, "Enable debug logging with: stickycheese chat -debug")
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s logs: %w", strings.ToLower(kind), err)
	}

	fmt.Fprintf(w, "=== stickycheese %s Logs (%s) ===\n\n", kind, path)
	for _, line := range lastLines(string(content), tailLines) {
		fmt.Fprintln(w, line)
	}
	return nil
}

// tailLogFile prints new content as it is appended to the log file until ctx
// is done. A file that shrinks is treated as rotated and read from the start.
func tailLogFile(ctx context.Context, path, kind string, w io.Writer) error {
	fmt.Fprintf(w, "=== Following stickycheese %s Logs (%s) ===\n", kind, path)
	fmt.Fprintln(w, "Press Ctrl+C to exit.")
	fmt.Fprintln(w)

	var lastPos int64
	if content, err := os.ReadFile(path); err == nil {
		lastPos = int64(len(content))
		for _, line := range lastLines(string(content), 10) {
			fmt.Fprintln(w, line)
		}
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w, "\nStopped following logs.")
			return nil
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.Size() < lastPos {
				lastPos = 0
				fmt.Fprintln(w, "--- Log file rotated ---")
			}
			if info.Size() == lastPos {
				continue
			}

			f, err := os.Open(path)
			if err != nil {
				continue
			}
			if _, err := f.Seek(lastPos, io.SeekStart); err == nil {
				n, _ := io.Copy(w, f)
				lastPos += n
			}
			f.Close()
		}
	}
}

// lastLines returns up to n trailing non-empty lines.
func lastLines(content string, n int) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
