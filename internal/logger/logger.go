// internal/logger/logger.go

package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

type Mode int

const (
	MINIMAL Mode = iota
	NORMAL
	FULL
)

var zapLevels = map[Level]zapcore.Level{
	DEBUG: zapcore.DebugLevel,
	INFO:  zapcore.InfoLevel,
	WARN:  zapcore.WarnLevel,
	ERROR: zapcore.ErrorLevel,
	FATAL: zapcore.FatalLevel,
}

type Logger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
	mode  Mode
	file  *lumberjack.Logger
}

type Config struct {
	Level       Level
	Mode        Mode
	Format      string
	LogFilePath string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	UseColors   bool
}

func New(cfg Config) (*Logger, error) {
	atom := zap.NewAtomicLevelAt(zapLevels[cfg.Level])

	base := zap.NewProductionEncoderConfig()
	base.TimeKey = "timestamp"
	base.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	base.EncodeLevel = zapcore.CapitalLevelEncoder
	base.EncodeDuration = zapcore.StringDurationEncoder

	console := base
	if cfg.Mode == MINIMAL {
		console.TimeKey = ""
	}
	if cfg.UseColors && cfg.Format != "json" {
		console.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var consoleEncoder zapcore.Encoder
	if cfg.Format == "json" {
		consoleEncoder = zapcore.NewJSONEncoder(console)
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(console)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), atom),
	}

	l := &Logger{level: atom, mode: cfg.Mode}

	if cfg.LogFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to setup log file: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   cfg.LogFilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(base), zapcore.AddSync(l.file), atom))
	}

	var opts []zap.Option
	if cfg.Mode == FULL {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	l.sugar = zap.New(zapcore.NewTee(cores...), opts...).Sugar()
	return l, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		sugar: zap.NewNop().Sugar(),
		level: zap.NewAtomicLevelAt(zapcore.InfoLevel),
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// With returns a child logger carrying one extra structured field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{
		sugar: l.sugar.With(key, value),
		level: l.level,
		mode:  l.mode,
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *Logger) Fatal(format string, args ...interface{}) {
	l.sugar.Fatalf(format, args...)
}

func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(zapLevels[level])
}

func (l *Logger) Enabled(level Level) bool {
	return l.level.Enabled(zapLevels[level])
}

func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "minimal":
		return MINIMAL
	case "normal":
		return NORMAL
	case "full":
		return FULL
	default:
		return NORMAL
	}
}

var defaultLogger *Logger

func init() {
	defaultLogger, _ = New(Config{
		Level:     INFO,
		Mode:      NORMAL,
		UseColors: true,
	})
}

// SetDefault replaces the package-level logger used by the helpers below.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

func Debug(format string, args ...interface{}) {
	defaultLogger.Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.Error(format, args...)
}

func Fatal(format string, args ...interface{}) {
	defaultLogger.Fatal(format, args...)
}

func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}

func Close() error {
	return defaultLogger.Close()
}
