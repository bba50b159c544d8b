package log

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu       sync.Mutex
	logger   = stdlog.New(os.Stderr, "", 0)
	minLevel = LevelInfo
)

// SetLevel sets the minimum level that will be emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// ParseLevel maps a config string ("debug", "info", "error") onto a Level,
// defaulting to info for anything unrecognized.
func ParseLevel(v string) Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return LevelDebug
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	write(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	write(LevelInfo, msg, kv...)
}

// Error logs msg with the error prepended to the key-value pairs.
func Error(msg string, err error, kv ...any) {
	write(LevelError, msg, append([]any{"err", err}, kv...)...)
}

// write emits one line of the form:
//
//	2025-01-01T00:00:00Z [LEVEL] msg key=value ...
func write(level Level, msg string, kv ...any) {
	mu.Lock()
	enabled := levelEnabled(level)
	mu.Unlock()
	if !enabled {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	b.WriteString(" [")
	b.WriteString(string(level))
	b.WriteString("] ")
	b.WriteString(msg)

	// kv comes in pairs; a trailing odd value is ignored.
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(kv[i+1]))
	}

	logger.Println(b.String())
}

func levelEnabled(level Level) bool {
	switch minLevel {
	case LevelDebug:
		return true
	case LevelError:
		return level == LevelError
	default:
		return level == LevelInfo || level == LevelError
	}
}
