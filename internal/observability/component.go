package observability

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSink configures the rotating request log.
type FileSink struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ComponentOptions configures the zap logger handed to the chat request path
// (retry client, driver, orchestrator, credential chain).
type ComponentOptions struct {
	Level string

	// Console receives human-readable lines. Nil disables console output.
	Console io.Writer
	// JSON switches the console encoder to JSON (server mode).
	JSON bool

	File FileSink
}

// NewComponentLogger builds a *zap.Logger from opts. It tees console output and
// an optional lumberjack file. The returned closer flushes and closes the file.
func NewComponentLogger(opts ComponentOptions) (*zap.Logger, func() error) {
	level := zapLevel(opts.Level)

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var cores []zapcore.Core
	if opts.Console != nil {
		var encoder zapcore.Encoder
		if opts.JSON {
			encoder = zapcore.NewJSONEncoder(encoderCfg)
		} else {
			consoleCfg := encoderCfg
			consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
			consoleCfg.TimeKey = ""
			encoder = zapcore.NewConsoleEncoder(consoleCfg)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(opts.Console)), level))
	}

	var rotator *lumberjack.Logger
	if path := strings.TrimSpace(opts.File.Path); path != "" {
		rotator = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.File.MaxSizeMB,
			MaxBackups: opts.File.MaxBackups,
			MaxAge:     opts.File.MaxAgeDays,
			Compress:   opts.File.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), level))
	}

	if len(cores) == 0 {
		return zap.NewNop(), func() error { return nil }
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	closer := func() error {
		_ = logger.Sync()
		if rotator != nil {
			return rotator.Close()
		}
		return nil
	}
	return logger, closer
}

// CLIComponentLogger is the request-path logger for one-shot commands: warnings
// only on stderr unless verbose.
func CLIComponentLogger(verbose bool, file FileSink) (*zap.Logger, func() error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return NewComponentLogger(ComponentOptions{Level: level, Console: os.Stderr, File: file})
}

func zapLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
