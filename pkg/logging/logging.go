package logging

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Format selects how log lines are written.
type Format string

const (
	FormatAuto    Format = "auto"
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Setup configures the global zerolog logger. Auto format picks the console
// writer when stderr is a terminal and JSON otherwise.
func Setup(level string, format Format) error {
	return SetupWriter(os.Stderr, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level string, format Format) error {
	lvl := zerolog.InfoLevel
	if trimmed := strings.TrimSpace(level); trimmed != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(trimmed))
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", level)
		}
		lvl = parsed
	}
	zerolog.SetGlobalLevel(lvl)

	out := w
	switch format {
	case FormatConsole:
		out = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) { cw.Out = w })
	case FormatJSON:
	case FormatAuto, "":
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			out = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) { cw.Out = w })
		}
	default:
		return errors.Errorf("invalid log format %q", format)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}
