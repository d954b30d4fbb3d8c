// Package logging wires slog to stdout plus the relay's append-only log
// file, and exposes the tail of that file for the /logs endpoint.
package logging

import (
	"bufio"
	"io"
	"log/slog"
	"os"
)

// Setup installs the default slog handler, teeing output to stdout and the
// given log file. Returns a close func for the file. A file open failure is
// not fatal: logging falls back to stdout only.
func Setup(logFile string, verbose bool) func() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stdout
	closeFn := func() {}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			w = io.MultiWriter(os.Stdout, f)
			closeFn = func() { f.Close() }
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})))

	return closeFn
}

// Tail returns up to n trailing lines of the log file. A missing file yields
// an empty slice.
func Tail(logFile string, n int) []string {
	f, err := os.Open(logFile)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}
