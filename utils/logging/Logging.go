// Package logging builds the structured logger used throughout a
// training run
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Config describes where log records are written
type Config struct {
	// Level is one of debug, info, warn or error
	Level string `json:"level"`

	// JSONFile, if not empty, receives every record as a JSON line
	JSONFile string `json:"jsonFile"`

	// Journal enables the systemd journal handler when the process
	// runs as a systemd service
	Journal bool `json:"journal"`
}

// ParseLevel converts a level name into a slog.Level
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("parseLevel: %v", err)
	}
	return level, nil
}

// New returns a logger which fans each record out to a text handler
// on terminal, an optional JSON file and the systemd journal. Every
// record carries the run ID. The returned io.Closer closes the JSON
// file, if any.
func New(terminal io.Writer, c Config, runID uuid.UUID) (*slog.Logger,
	io.Closer, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("new: %v", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	var closer io.Closer = nopCloser{}

	isSystemdService := c.Journal && runningAsService()

	var terminalHandler slog.Handler
	if terminal != nil && !isSystemdService {
		terminalHandler = slog.NewTextHandler(terminal, opts)
		handlers = append(handlers, terminalHandler)
	}

	if c.JSONFile != "" {
		file, err := os.OpenFile(c.JSONFile,
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("new: could not open log file: %v",
				err)
		}
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
		closer = file
	}

	if isSystemdService {
		journalHandler, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: level,
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			record := slog.NewRecord(time.Now(), slog.LevelWarn,
				"could not create systemd journal handler", 0)
			record.Add("error", err)
			if terminalHandler != nil {
				_ = terminalHandler.Handle(context.Background(), record)
			}
		} else {
			handlers = append(handlers, journalHandler)
		}
	}

	logger := slog.New(slogmulti.Fanout(handlers...))
	return logger.With("run", runID.String()), closer, nil
}

// Discard returns a logger which drops every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard,
		&slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	str = strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' ||
			r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, str)
	return str
}

// runningAsService reports whether the process cgroup belongs to a
// systemd .service unit
func runningAsService() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	parts := strings.Split(strings.TrimSpace(string(content)), ":")
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(parts[2]), ".service")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
