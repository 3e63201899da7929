package logger

import (
	"os"
	"path/filepath"

	"pos-billing/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the application logger. Console output follows the
// environment (development vs production encoder); everything is additionally
// written to a rotating log file whose retention follows LOG_RETENTION_DAYS.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Environment == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Important: Enable Caller to get Function Name
	zapConfig.EncoderConfig.FunctionKey = "func"

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, err
	}

	fileSink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    50, // megabytes per file
		MaxBackups: 10,
		MaxAge:     cfg.LogRetentionDays,
		Compress:   true,
	})

	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	fileCore := zapcore.NewCore(fileEncoder, fileSink, zapcore.InfoLevel)

	finalCore := zapcore.NewTee(baseLogger.Core(), fileCore)

	return zap.New(finalCore, zap.AddCaller()), nil
}
