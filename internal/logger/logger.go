package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"binance-grid-engine-go/internal/models"
)

var sugaredLogger *zap.SugaredLogger

func init() {
	// Default logger so packages can log before InitLogger runs.
	l, _ := zap.NewDevelopment()
	sugaredLogger = l.Sugar()
}

// S returns the global sugared logger.
func S() *zap.SugaredLogger {
	return sugaredLogger
}

// InitLogger rebuilds the global logger from config. Output may be
// "console", "file" or "both"; unknown values fall back to console.
func InitLogger(cfg models.LogConfig) {
	level := zap.NewAtomicLevel()
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "warn":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core

	output := strings.ToLower(cfg.Output)
	if output != "file" {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.Lock(os.Stdout),
			level,
		))
	}
	if output == "file" || output == "both" {
		path := cfg.FilePath
		if path == "" {
			path = "logs/engine.log"
		}
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
		fileCfg := encCfg
		fileCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileCfg),
			writer,
			level,
		))
	}

	core := zapcore.NewTee(cores...)
	sugaredLogger = zap.New(core, zap.AddCaller()).Sugar()
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	_ = sugaredLogger.Sync()
}
