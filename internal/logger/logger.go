// Package logger builds the zerolog logger used by the command line tool.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures New.
type Options struct {
	// Level is a zerolog level name; empty falls back to LOG_LEVEL, then info
	Level string

	// Format is console or json
	Format string

	// Caller adds file:line to every event
	Caller bool
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) (zerolog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	switch strings.ToLower(opts.Format) {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", opts.Format)
	}

	ctx := zerolog.New(w).With().Timestamp()
	if opts.Caller {
		ctx = ctx.CallerWithSkipFrameCount(2)
	}
	if pname, err := os.Executable(); err == nil {
		ctx = ctx.Str("executable", filepath.Base(pname))
	}
	return ctx.Logger().Level(level), nil
}

// ParseLevel maps a level name onto a zerolog level. An empty name reads
// LOG_LEVEL and defaults to info.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		name = os.Getenv("LOG_LEVEL")
	}
	if name == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

func init() {
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}
}
