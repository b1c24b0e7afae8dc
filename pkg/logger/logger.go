package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger оборачивает zap и сохраняет привычный API: сообщение + пары ключ/значение.
type Logger struct {
	zl    *zap.Logger
	level Level
}

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// New создает logger с JSON-выводом в stdout.
func New(level string) *Logger {
	return NewWithFormat(level, "json")
}

// NewWithFormat создает logger с указанным форматом ("json" или "console").
func NewWithFormat(level, format string) *Logger {
	lvl := parseLevel(level)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(format, "console") {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), toZapLevel(lvl))

	return &Logger{
		zl:    zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		level: lvl,
	}
}

// NewNop возвращает logger, который ничего не пишет.
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop(), level: ERROR}
}

func parseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// With возвращает дочерний logger с постоянными полями.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		zl:    l.zl.With(fields(args)...),
		level: l.level,
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.zl.Debug(msg, fields(args)...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.zl.Info(msg, fields(args)...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.zl.Warn(msg, fields(args)...)
}

func (l *Logger) Error(msg string, err error, args ...interface{}) {
	fs := fields(args)
	if err != nil {
		fs = append(fs, zap.Error(err))
	}
	l.zl.Error(msg, fs...)
}

// Sync сбрасывает буферы zap, вызывается при shutdown.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// Zap отдает нижележащий zap.Logger для библиотек, которые его принимают.
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

func fields(args []interface{}) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	out := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			out = append(out, zap.String("extra", key))
			break
		}
		switch v := args[i+1].(type) {
		case error:
			out = append(out, zap.NamedError(key, v))
		default:
			out = append(out, zap.Any(key, v))
		}
	}

	return out
}
