package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls where and how bmsync's structured logs are written.
type Config struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string
	// FilePath is the rotating log file's path.
	FilePath string
	// MaxSizeMB is the size a log file rotates at.
	MaxSizeMB int
	// MaxFiles is how many rotated files are kept.
	MaxFiles int
	// WriteToStderr additionally tees output to stderr, for foreground runs.
	WriteToStderr bool
}

// DefaultConfig returns the configuration used by `bmsync watch` and other
// long-running commands: info level, rotating file under DefaultLogDir,
// also echoed to stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig is DefaultConfig with the level raised to debug, used when a
// command is run with --debug.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup builds a JSON slog.Logger writing to cfg's rotating file (and
// stderr, if enabled) and returns it alongside a cleanup func that flushes
// and closes the underlying file. Callers must defer the cleanup func.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if err := EnsureLogDir(); err != nil {
		return nil, nil, err
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var dest io.Writer = writer
	if cfg.WriteToStderr {
		dest = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(dest, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	logger := slog.New(handler)

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return logger, cleanup, nil
}

// SetupDefault wires Setup(DebugConfig()) as the process-wide default
// logger (slog.SetDefault) and returns its cleanup func.
func SetupDefault() (func(), error) {
	logger, cleanup, err := Setup(DebugConfig())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString exposes parseLevel outside the package: "debug",
// "warn"/"warning" and "error" map to their levels, anything else to info.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
