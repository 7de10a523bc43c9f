// Package logging provides the structured logger used across every Aegix
// component. It wraps logrus the way the rest of the service-layer stack
// does: a thin adapter that fixes the output format and exposes
// WithField(s) helpers, so callers never import logrus directly.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a configured logrus.Logger.
type Logger struct {
	*logrus.Logger
}

// Config controls logger construction.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

// New builds a Logger from Config, defaulting to info/json/stderr.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.ToLower(cfg.Format) == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.Output != nil {
		l.SetOutput(cfg.Output)
	} else {
		l.SetOutput(os.Stderr)
	}

	return &Logger{Logger: l}
}

// NewDefault returns an info-level JSON logger writing to stderr.
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "json"})
}

// Component returns a logger pre-tagged with a "component" field, the
// convention every Aegix package uses to identify its log lines.
func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}

// ShortKey truncates a base58/base64 public key to an 8-character prefix
// for safe logging; full keys are not secret but truncation keeps log
// lines short and consistent across the codebase.
func ShortKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "…"
}
