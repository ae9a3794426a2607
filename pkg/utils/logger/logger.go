package logger

import (
	"context"
	"fmt"
	"os"
	"time"

	"codeexec/pkg/utils/contextkey"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and sinks. Sinks are "stdout", "stderr" or a
// file path; entries at error level are copied to ErrorPath when it differs.
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or console
	OutputPath string `yaml:"outputPath"`
	ErrorPath  string `yaml:"errorPath"`
}

// Logger adds request-scoped ids from a context to every entry.
type Logger struct {
	zap *zap.Logger
}

var global *Logger

// contextFields maps context keys to the log field they fill.
var contextFields = []struct {
	key   interface{}
	field string
}{
	{contextkey.TraceID, "trace_id"},
	{contextkey.RequestID, "request_id"},
	{contextkey.ExecutionID, "execution_id"},
}

// Init builds a logger from cfg and makes it the package logger.
func Init(cfg Config) error {
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	global = l
	return nil
}

func NewLogger(cfg Config) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	out, err := openSink(orDefault(cfg.OutputPath, "stdout"))
	if err != nil {
		return nil, err
	}
	encoder := newEncoder(cfg.Format)
	core := zapcore.NewCore(encoder, out, level)

	if errPath := orDefault(cfg.ErrorPath, "stderr"); errPath != orDefault(cfg.OutputPath, "stdout") {
		errOut, err := openSink(errPath)
		if err != nil {
			return nil, err
		}
		onlyErrors := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.ErrorLevel && level.Enabled(l)
		})
		core = zapcore.NewTee(core, zapcore.NewCore(encoder, errOut, onlyErrors))
	}

	return &Logger{zap: zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(2),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)}, nil
}

// New wraps z; tests use it with an observer core.
func New(z *zap.Logger) *Logger {
	return &Logger{zap: z}
}

// SetGlobal swaps the package logger and returns the old one.
func SetGlobal(l *Logger) *Logger {
	prev := global
	global = l
	return prev
}

func newEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.FunctionKey = "func"
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(time.RFC3339))
	}
	cfg.EncodeDuration = zapcore.MillisDurationEncoder
	if format == "json" {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func openSink(path string) (zapcore.WriteSyncer, error) {
	switch path {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return zapcore.AddSync(f), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// WithContext returns a zap logger carrying the ids found in ctx.
func (l *Logger) WithContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return l.zap
	}
	var fields []zap.Field
	for _, cf := range contextFields {
		if v := ctx.Value(cf.key); v != nil {
			fields = append(fields, zap.String(cf.field, fmt.Sprint(v)))
		}
	}
	if len(fields) == 0 {
		return l.zap
	}
	return l.zap.With(fields...)
}

func log(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	if global == nil {
		return
	}
	if ce := global.WithContext(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	log(ctx, zapcore.DebugLevel, msg, fields)
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	log(ctx, zapcore.InfoLevel, msg, fields)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	log(ctx, zapcore.WarnLevel, msg, fields)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	log(ctx, zapcore.ErrorLevel, msg, fields)
}

// Sync flushes the package logger, if any.
func Sync() error {
	if global == nil {
		return nil
	}
	return global.Sync()
}
