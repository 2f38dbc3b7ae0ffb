package logging

import (
	"go.uber.org/zap"
)

// Logger is the process-wide structured logger. It discards everything until Init is called.
var Logger = zap.NewNop().Sugar()

// Init builds the logger. Debug enables development output; otherwise only warnings and errors are logged.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	Logger = logger.Sugar()
	return nil
}

// Sync flushes buffered log entries
func Sync() {
	_ = Logger.Sync()
}
