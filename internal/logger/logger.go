package logger

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the global logger. It discards everything until Initialize runs,
// so packages can log unconditionally from tests.
var Log = zap.NewNop()

// SugaredLog is the printf-style view of Log.
var SugaredLog = Log.Sugar()

// Options controls logger construction.
type Options struct {
	Level string
	// File is the JSON log path; empty disables the file core.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Console enables the human-readable stdout core.
	Console bool
}

// Initialize sets up the console and rotating JSON file outputs.
func Initialize(opts Options) error {
	level := parseLogLevel(opts.Level)

	var cores []zapcore.Core
	if opts.Console {
		consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level))
	}

	if opts.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 7),
			Compress:   true,
		})

		jsonEncoderConfig := zap.NewProductionEncoderConfig()
		jsonEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig), fileWriter, level))
	}

	if len(cores) == 0 {
		Log = zap.NewNop()
		SugaredLog = Log.Sugar()
		return nil
	}

	Log = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	SugaredLog = Log.Sugar()

	Log.Info("Logger initialized",
		zap.String("level", level.String()),
		zap.String("file", opts.File),
	)
	return nil
}

// Close flushes the logger before shutdown
func Close() error {
	if Log != nil {
		return Log.Sync()
	}
	return nil
}

func parseLogLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func WithRequestID(requestID string) zap.Field {
	return zap.String("request_id", requestID)
}

func WithUserID(userID string) zap.Field {
	return zap.String("user_id", userID)
}

func WithViewerID(viewerID string) zap.Field {
	return zap.String("viewer_id", viewerID)
}

func WithPostID(postID string) zap.Field {
	return zap.String("post_id", postID)
}

func WithSource(source string) zap.Field {
	return zap.String("source", source)
}

func WithCursor(cursor string) zap.Field {
	return zap.String("cursor", cursor)
}

func WithBatchSize(n int) zap.Field {
	return zap.Int("batch_size", n)
}

func WithIP(ip string) zap.Field {
	return zap.String("ip", ip)
}

func WithStatus(status int) zap.Field {
	return zap.Int("status", status)
}

func WithDuration(d time.Duration) zap.Field {
	return zap.Duration("duration", d)
}
