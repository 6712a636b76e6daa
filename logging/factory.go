package logging

import (
	"sync"

	"go.uber.org/zap"
)

// Factory derives cached per-plugin loggers from one parent logger, so
// every module's output carries its plugin name without rebuilding a child
// logger on each start.
type Factory struct {
	parent  Logger
	mu      sync.Mutex
	loggers map[string]Logger
}

// NewFactory creates a factory deriving from parent.
func NewFactory(parent Logger) *Factory {
	if parent == nil {
		parent = Nop()
	}
	return &Factory{
		parent:  parent,
		loggers: make(map[string]Logger),
	}
}

// Plugin returns the logger for one plugin, creating it on first use.
// Repeated calls with the same name return the same logger.
func (f *Factory) Plugin(name string) Logger {
	f.mu.Lock()
	defer f.mu.Unlock()

	if logger, ok := f.loggers[name]; ok {
		return logger
	}
	logger := f.parent.Named(name).With(zap.String("plugin", name))
	f.loggers[name] = logger
	return logger
}
