package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newWriteSyncer builds the sink for log entries: a rotated file under the
// configured director, mirrored to stdout when LogInTerminal is set.
func newWriteSyncer(config Config) zapcore.WriteSyncer {
	_ = os.MkdirAll(config.Director, 0o755)

	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(config.Director, "server.log"),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
		LocalTime:  true,
	}

	if config.LogInTerminal {
		return zapcore.NewMultiWriteSyncer(
			zapcore.AddSync(os.Stdout),
			zapcore.AddSync(fileWriter),
		)
	}
	return zapcore.AddSync(fileWriter)
}
