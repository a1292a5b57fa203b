package logger

import (
	"os"
	"sync"
	"time"

	"github.com/leandrodaf/voicemidi/sdk/contracts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger is an implementation of the Logger contract backed by Uber's zap.
type ZapLogger struct {
	mu      sync.Mutex
	logger  *zap.Logger
	level   zap.AtomicLevel // Shared by every core built for this logger.
	encoder zapcore.Encoder
	closer  func()
}

// NewZapLogger creates a logger writing JSON lines to stderr, suited to services.
func NewZapLogger() contracts.Logger {
	return newZapLogger(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()))
}

// NewStandardLogger creates a human readable console logger, suited to the command line.
func NewStandardLogger() contracts.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return newZapLogger(zapcore.NewConsoleEncoder(cfg))
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() contracts.Logger {
	return &ZapLogger{
		logger:  zap.NewNop(),
		level:   zap.NewAtomicLevelAt(zapcore.InfoLevel),
		encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
	}
}

func newZapLogger(enc zapcore.Encoder) *ZapLogger {
	z := &ZapLogger{
		level:   zap.NewAtomicLevelAt(zapcore.InfoLevel),
		encoder: enc,
	}
	z.logger = z.build(zapcore.Lock(os.Stderr))
	return z
}

func (z *ZapLogger) build(ws zapcore.WriteSyncer) *zap.Logger {
	core := zapcore.NewCore(z.encoder.Clone(), ws, z.level)
	// Skip log() and the exported level method so the caller is the code that logged.
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
}

// Info logs a message at the INFO level
func (z *ZapLogger) Info(msg string, fields ...contracts.Field) {
	z.log(zapcore.InfoLevel, msg, fields...)
}

// Error logs a message at the ERROR level
func (z *ZapLogger) Error(msg string, fields ...contracts.Field) {
	z.log(zapcore.ErrorLevel, msg, fields...)
}

// Debug logs a message at the DEBUG level
func (z *ZapLogger) Debug(msg string, fields ...contracts.Field) {
	z.log(zapcore.DebugLevel, msg, fields...)
}

// Warn logs a message at the WARN level
func (z *ZapLogger) Warn(msg string, fields ...contracts.Field) {
	z.log(zapcore.WarnLevel, msg, fields...)
}

// Fatal logs a message at the FATAL level and terminates the application
func (z *ZapLogger) Fatal(msg string, fields ...contracts.Field) {
	z.log(zapcore.FatalLevel, msg, fields...)
	os.Exit(1)
}

// Field returns a new field builder.
func (z *ZapLogger) Field() contracts.Field {
	return zapField{}
}

// SetLevel sets the minimum level that is written.
func (z *ZapLogger) SetLevel(level contracts.LogLevel) {
	z.level.SetLevel(toZapLevel(level))
}

// SetDestination switches output between the console and a file. A file destination
// without a path, or a path that cannot be opened, keeps the current destination.
func (z *ZapLogger) SetDestination(dest contracts.LogDestination, filePath ...string) {
	z.mu.Lock()
	defer z.mu.Unlock()

	switch dest {
	case contracts.ConsoleLog:
		z.swap(z.build(zapcore.Lock(os.Stderr)), nil)
	case contracts.FileLog:
		if len(filePath) == 0 || filePath[0] == "" {
			z.logger.Warn("file log destination requires a path")
			return
		}
		ws, closeFn, err := zap.Open(filePath[0])
		if err != nil {
			z.logger.Error("failed to open log file", zap.String("path", filePath[0]), zap.Error(err))
			return
		}
		z.swap(z.build(ws), closeFn)
	}
}

func (z *ZapLogger) swap(l *zap.Logger, closer func()) {
	_ = z.logger.Sync()
	if z.closer != nil {
		z.closer()
	}
	z.logger = l
	z.closer = closer
}

// Sync flushes buffered log entries.
func (z *ZapLogger) Sync() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.logger.Sync()
}

// log is the internal function used to record messages
func (z *ZapLogger) log(level zapcore.Level, msg string, fields ...contracts.Field) {
	z.mu.Lock()
	l := z.logger
	z.mu.Unlock()

	ce := l.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(toZapFields(fields)...)
}

func toZapFields(fields []contracts.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if f, ok := field.(zapField); ok && f.set {
			out = append(out, f.field)
		}
	}
	return out
}

func toZapLevel(level contracts.LogLevel) zapcore.Level {
	switch level {
	case contracts.DebugLevel:
		return zapcore.DebugLevel
	case contracts.WarnLevel:
		return zapcore.WarnLevel
	case contracts.ErrorLevel:
		return zapcore.ErrorLevel
	case contracts.FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// zapField implements contracts.Field
type zapField struct {
	field zap.Field
	set   bool
}

func wrap(f zap.Field) contracts.Field {
	return zapField{field: f, set: true}
}

func (zapField) Bool(key string, val bool) contracts.Field {
	return wrap(zap.Bool(key, val))
}

func (zapField) Int(key string, val int) contracts.Field {
	return wrap(zap.Int(key, val))
}

func (zapField) Float64(key string, val float64) contracts.Field {
	return wrap(zap.Float64(key, val))
}

func (zapField) String(key string, val string) contracts.Field {
	return wrap(zap.String(key, val))
}

func (zapField) Time(key string, val time.Time) contracts.Field {
	return wrap(zap.Time(key, val))
}

func (zapField) Duration(key string, val time.Duration) contracts.Field {
	return wrap(zap.Duration(key, val))
}

func (zapField) Int64(key string, val int64) contracts.Field {
	return wrap(zap.Int64(key, val))
}

func (zapField) Error(key string, val error) contracts.Field {
	return wrap(zap.NamedError(key, val))
}

func (zapField) Uint64(key string, val uint64) contracts.Field {
	return wrap(zap.Uint64(key, val))
}

func (zapField) Uint8(key string, val uint8) contracts.Field {
	return wrap(zap.Uint8(key, val))
}
