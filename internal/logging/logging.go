// Package logging provides the small structured-field wrapper ployer layers
// over the standard logger, generalizing the ad-hoc "Context: message"
// prefixing the teacher codebase uses at every call site.
package logging

import (
	"fmt"
	"log"
	"strings"
)

// Logger prints lines through the standard log package with a chain of
// key=value fields prepended, e.g. "deployment=<id> app=myapp building image".
type Logger struct {
	fields []string
}

// New returns a Logger with no fields attached.
func New() *Logger {
	return &Logger{}
}

// With returns a copy of l with an additional key=value field.
func (l *Logger) With(key string, value interface{}) *Logger {
	next := make([]string, len(l.fields), len(l.fields)+1)
	copy(next, l.fields)
	next = append(next, fmt.Sprintf("%s=%v", key, value))
	return &Logger{fields: next}
}

func (l *Logger) prefix() string {
	if len(l.fields) == 0 {
		return ""
	}
	return strings.Join(l.fields, " ") + " "
}

// Printf logs a formatted message with the logger's fields prefixed.
func (l *Logger) Printf(format string, args ...interface{}) {
	log.Printf(l.prefix()+format, args...)
}

// Println logs a message with the logger's fields prefixed.
func (l *Logger) Println(args ...interface{}) {
	log.Println(l.prefix() + fmt.Sprint(args...))
}
