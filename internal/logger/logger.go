package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level controls which messages are emitted
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the structured logging interface used across strata
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	level  Level     = LevelWarn
	prefix           = "strata"
)

// SetLevel sets the global minimum level
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput redirects log output (used in tests)
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

type entry struct {
	fields map[string]interface{}
}

func (e *entry) log(l Level, name, msg string, kv ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if l < level {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", prefix, name, msg)

	merged := make(map[string]interface{}, len(e.fields)+len(kv)/2)
	for k, v := range e.fields {
		merged[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		merged[key] = kv[i+1]
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, merged[k])
	}

	fmt.Fprintln(out, b.String())
}

func (e *entry) Debug(msg string, kv ...interface{}) { e.log(LevelDebug, "DEBUG", msg, kv...) }
func (e *entry) Info(msg string, kv ...interface{})  { e.log(LevelInfo, "INFO", msg, kv...) }
func (e *entry) Warn(msg string, kv ...interface{})  { e.log(LevelWarn, "WARN", msg, kv...) }
func (e *entry) Error(msg string, kv ...interface{}) { e.log(LevelError, "ERROR", msg, kv...) }

func (e *entry) WithField(key string, value interface{}) Logger {
	return e.WithFields(map[string]interface{}{key: value})
}

func (e *entry) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &entry{fields: merged}
}

var root = &entry{}

// Package-level convenience functions on the root logger

func Debug(msg string, kv ...interface{}) { root.Debug(msg, kv...) }
func Info(msg string, kv ...interface{})  { root.Info(msg, kv...) }
func Warn(msg string, kv ...interface{})  { root.Warn(msg, kv...) }
func Error(msg string, kv ...interface{}) { root.Error(msg, kv...) }

// WithField returns a logger with one bound field
func WithField(key string, value interface{}) Logger {
	return root.WithField(key, value)
}

// WithFields returns a logger with bound fields
func WithFields(fields map[string]interface{}) Logger {
	return root.WithFields(fields)
}
