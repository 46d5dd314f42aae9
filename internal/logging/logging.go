package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the global logger.
type Options struct {
	Level  string
	Format string
	// File, when set, receives JSON logs through a rotating writer in addition to stderr.
	File string
}

// Init configures the global zerolog logger and returns the writer closer for
// the log file, if any.
func Init(opts Options) io.Closer {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = os.Stderr
	if !strings.EqualFold(opts.Format, "json") {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	var closer io.Closer = nopCloser{}
	writer := console
	if strings.TrimSpace(opts.File) != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		writer = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
