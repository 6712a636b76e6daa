package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Validator is implemented by settings structs that check themselves after binding.
type Validator interface {
	Validate() error
}

// Config wraps a loaded viper instance. It is read once at process start;
// the optional watcher rebinds on file change for development setups.
type Config struct {
	instance   *viper.Viper
	opts       Options
	watchOnce  sync.Once
	watchMutex sync.RWMutex
}

// Options controls where the configuration document is loaded from.
type Options struct {
	BasePath  string
	FileName  string
	FileType  string
	EnvPrefix string
	WatchAble bool
	OnChange  func(e fsnotify.Event)
}
