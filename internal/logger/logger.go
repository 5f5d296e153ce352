package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSize    = 50 // megabytes
	maxBackups = 30
	maxAge     = 28 // days
)

// Setup configures the global zerolog logger. In development mode output is
// human readable; when logFile is set JSON lines are also written to a
// rotating file.
func Setup(level, logFile, mode string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	if mode == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	if logFile != "" {
		out = zerolog.MultiLevelWriter(out, rotateWriter(logFile))
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

func rotateWriter(logFile string) io.Writer {
	return &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
	}
}

// Component returns a child of the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
