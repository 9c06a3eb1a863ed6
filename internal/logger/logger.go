package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35

	colorBold = 1
)

var (
	once   sync.Once
	logger *zerolog.Logger
)

// Get returns the process logger, building it on first use from ENV and LOG_LEVEL.
func Get() *zerolog.Logger {
	once.Do(func() {
		logger = newLogger(os.Stderr, os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
	})
	return logger
}

// Component returns a child of the process logger tagged with component=name.
func Component(name string) *zerolog.Logger {
	l := Get().With().Str("component", name).Logger()
	return &l
}

func colorize(s interface{}, c int) string {
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

func newLogger(out io.Writer, env, level string) *zerolog.Logger {
	var l *zerolog.Logger
	switch strings.ToLower(env) {
	case "", "dev", "development", "test":
		l = newDevelopment(out)
	default:
		l = newProduction(out)
	}

	// Level the instance, not the package: injected loggers keep their own.
	leveled := l.Level(parseLevel(level))
	return &leveled
}

// parseLevel defaults to info when the level is empty or unknown.
func parseLevel(level string) zerolog.Level {
	if level == "" {
		return zerolog.InfoLevel
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		fmt.Fprintf(os.Stderr, "Invalid LOG_LEVEL %q; defaulting to 'info'\n", level)
		return zerolog.InfoLevel
	}
	return parsed
}

func newDevelopment(out io.Writer) *zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		FormatLevel: func(i interface{}) string {
			ll, ok := i.(string)
			if !ok {
				return strings.ToUpper(fmt.Sprintf("%s", i))
			}
			switch ll {
			case "trace":
				return colorize("TRC", colorMagenta)
			case "debug":
				return colorize("DBG", colorYellow)
			case "info":
				return colorize("INF", colorGreen)
			case "warn":
				return colorize("WRN", colorRed)
			case "error", "fatal", "panic":
				return colorize(strings.ToUpper(ll)[0:3], colorRed)
			default:
				if len(ll) > 3 {
					ll = ll[0:3]
				}
				return colorize(strings.ToUpper(ll), colorBold)
			}
		},
	}

	zl := zerolog.New(output).With().Timestamp().Logger()
	return &zl
}

// newProduction emits JSON lines with UNIX timestamps.
func newProduction(out io.Writer) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zl := zerolog.New(out).With().Timestamp().Logger()
	return &zl
}
