package log

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// BadgerLogrusAdapter implements badger.Logger using logrus.
// Badger is chatty at info level, so its info lines are demoted to debug.
type BadgerLogrusAdapter struct {
	*logrus.Entry
}

// NewBadgerLogrusAdapter creates a new adapter tagged with component=badger
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry.WithField("component", "badger")}
}

// Errorf logs an error message
func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{}) { l.Entry.Errorf(trimNewline(f), v...) }

// Warningf logs a warning message
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) {
	l.Entry.Warningf(trimNewline(f), v...)
}

// Infof logs badger info output at debug level
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{}) { l.Entry.Debugf(trimNewline(f), v...) }

// Debugf logs a debug message
func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{}) { l.Entry.Debugf(trimNewline(f), v...) }

// RedisLogrusAdapter implements the go-redis internal logger interface using logrus
type RedisLogrusAdapter struct {
	entry *logrus.Entry
}

// NewRedisLogrusAdapter creates a new adapter tagged with component=redis
func NewRedisLogrusAdapter(entry *logrus.Entry) *RedisLogrusAdapter {
	return &RedisLogrusAdapter{entry: entry.WithField("component", "redis")}
}

// Printf logs go-redis internal messages as warnings; they report pool and reconnect trouble
func (l *RedisLogrusAdapter) Printf(ctx context.Context, format string, v ...interface{}) {
	l.entry.WithContext(ctx).Warn(trimNewline(fmt.Sprintf(format, v...)))
}

// NewLogger builds the process logger from a level name and a format ("text" or "json")
func NewLogger(level, format string) (*logrus.Logger, error) {
	logger := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level '%s': %w", level, err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format '%s' (want text or json)", format)
	}
	return logger, nil
}

func trimNewline(s string) string {
	return strings.TrimRight(s, "\n")
}
