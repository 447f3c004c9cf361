package common

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// ParseLogLevel accepts debug, info, warn and error in any case.
func ParseLogLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", value, err)
	}
	return level, nil
}

// NewLogger writes human readable records to w, colored only when noColor is false.
func NewLogger(w io.Writer, level slog.Leveler, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	}))
}

// SetupLogging installs the stderr logger as the slog default.
func SetupLogging(level string) error {
	parsed, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	logger := NewLogger(colorable.NewColorable(os.Stderr), parsed, !isatty.IsTerminal(os.Stderr.Fd()))
	slog.SetDefault(logger)
	return nil
}
