package tameng

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger is the minimal structured logging interface used for debug output.
// Adapters for richer logging frameworks only need these four methods.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SimpleLogger writes level-prefixed key=value lines via the standard log
// package. It is intended for examples and local debugging.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a SimpleLogger writing to stderr.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *SimpleLogger) write(level, msg string, keysAndValues ...interface{}) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	if len(keysAndValues)%2 == 1 {
		fmt.Fprintf(&b, " %v=<missing>", keysAndValues[len(keysAndValues)-1])
	}
	l.logger.Println(b.String())
}

// Debug logs at debug level.
func (l *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.write("DEBUG", msg, keysAndValues...)
}

// Info logs at info level.
func (l *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.write("INFO", msg, keysAndValues...)
}

// Warn logs at warn level.
func (l *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.write("WARN", msg, keysAndValues...)
}

// Error logs at error level.
func (l *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.write("ERROR", msg, keysAndValues...)
}
