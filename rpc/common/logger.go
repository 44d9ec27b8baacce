package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"os"
	"strings"
	"sync"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// zapLogger implements the ILogger interface on top of a zap core. The level
// is tracked per package name, the core itself logs everything it receives.
type zapLogger struct {
	name  string
	mu    sync.RWMutex
	level logger.LogLevel
	sugar *zap.SugaredLogger
}

func newZapLogger(name string, core zapcore.Core) *zapLogger {
	return &zapLogger{
		name:  name,
		level: logger.INFO,
		sugar: zap.New(core).Named(name).Sugar(),
	}
}

func (l *zapLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *zapLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *zapLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.sugar.Debugf(format, args...)
	}
}

func (l *zapLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.sugar.Infof(format, args...)
	}
}

func (l *zapLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.sugar.Warnf(format, args...)
	}
}

func (l *zapLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.sugar.Errorf(format, args...)
	}
}

func (l *zapLogger) Panicf(format string, args ...interface{}) {
	if l.enabled(logger.CRITICAL) {
		l.sugar.Errorf(format, args...)
		panic(fmt.Sprintf(format, args...))
	}
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	coreMu     sync.RWMutex
	sharedCore zapcore.Core
)

// NewLogCore builds the zap core used by every named logger. Output always
// goes to stdout; when file is set it additionally goes to a rolling log file.
func NewLogCore(file string) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), zapcore.DebugLevel),
	}

	if file != "" {
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), writer, zapcore.DebugLevel))
	}

	return zapcore.NewTee(cores...)
}

// CreateLogger implements the dragonboat logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	coreMu.RLock()
	core := sharedCore
	coreMu.RUnlock()

	if core == nil {
		core = NewLogCore("")
	}
	return newZapLogger(pkgName, core)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// loggerNames lists the named loggers used across the module
var loggerNames = []string{
	"transport/rpc",
	"rpc",
	"server",
	"client",
	"metrics",
}

// InitLoggers installs the zap backed logger factory and sets the level of
// all loggers used by this module
func InitLoggers(level, file string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	coreMu.Lock()
	sharedCore = NewLogCore(file)
	coreMu.Unlock()

	// Set as the global logger factory for Dragonboat
	logger.SetLoggerFactory(CreateLogger)

	for _, name := range loggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
