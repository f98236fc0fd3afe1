package testutil

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TestLogLevel is a helper to set log level for a specific test
func TestLogLevel(t *testing.T, level zerolog.Level) {
	t.Helper()
	prevLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(level)
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
	})
}

// InitTestLogger initializes a test-friendly logger at the level from LOG_LEVEL
func InitTestLogger(defaultLevel zerolog.Level) {
	// Configure console writer for better test output
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	log.Logger = zerolog.New(output).With().Timestamp().Caller().Logger()
	zerolog.SetGlobalLevel(ParseLogLevel(defaultLevel))
}

// ParseLogLevel parses log level from environment variable or returns default
func ParseLogLevel(defaultLevel zerolog.Level) zerolog.Level {
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		return defaultLevel
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return defaultLevel
	}
	return level
}

// LogBuffer collects JSON log lines written from any goroutine
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CaptureLogs points the global logger at a buffer until the test ends.
// Components copy the global logger when they are created, so create them after.
func CaptureLogs(t *testing.T, level zerolog.Level) *LogBuffer {
	t.Helper()
	buf := &LogBuffer{}
	prevLogger := log.Logger
	log.Logger = zerolog.New(buf).With().Timestamp().Logger()
	TestLogLevel(t, level)
	t.Cleanup(func() {
		log.Logger = prevLogger
	})
	return buf
}
