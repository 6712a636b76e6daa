// Package config loads the process-wide configuration document once at
// construction and binds it onto typed settings structs.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DefaultOptions locates config/config.yaml, overridable via CONFIG_PATH.
func DefaultOptions() Options {
	basePath := os.Getenv("CONFIG_PATH")
	if basePath == "" {
		basePath = "config"
	}

	return Options{
		BasePath:  basePath,
		FileName:  "config",
		FileType:  "yaml",
		EnvPrefix: "",
		WatchAble: false,
		OnChange:  nil,
	}
}

// DevOptions is DefaultOptions with file watching enabled.
func DevOptions() Options {
	opts := DefaultOptions()
	opts.WatchAble = true
	return opts
}

// New reads the configuration document described by opts.
func New(optsArr ...Options) (*Config, error) {
	var opts Options
	if len(optsArr) == 0 {
		opts = DefaultOptions()
	} else {
		opts = optsArr[0]
	}

	instance, err := createViper(opts)
	if err != nil {
		return nil, err
	}

	return &Config{
		instance: instance,
		opts:     opts,
	}, nil
}

func createViper(opts Options) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(opts.FileName)
	v.SetConfigType(opts.FileType)
	v.AddConfigPath(opts.BasePath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", opts.BasePath, err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.AutomaticEnv()

	return v, nil
}

// Bind unmarshals the document onto instance. When watching is enabled the
// binding is refreshed on every file change.
func (c *Config) Bind(instance any) error {
	if c == nil || c.instance == nil {
		return fmt.Errorf("config instance is nil")
	}
	if instance == nil {
		return fmt.Errorf("target instance is nil")
	}

	c.watchMutex.Lock()
	defer c.watchMutex.Unlock()

	if err := c.instance.Unmarshal(instance); err != nil {
		return fmt.Errorf("unmarshal config (path: %s, file: %s.%s): %w",
			c.opts.BasePath, c.opts.FileName, c.opts.FileType, err)
	}

	if c.opts.WatchAble {
		c.watchOnce.Do(func() {
			c.instance.WatchConfig()
			c.instance.OnConfigChange(func(e fsnotify.Event) {
				c.watchMutex.Lock()
				defer c.watchMutex.Unlock()

				if err := c.instance.Unmarshal(instance); err != nil {
					fmt.Printf("config watch error: %v\n", err)
					return
				}
				if c.opts.OnChange != nil {
					c.opts.OnChange(e)
				}
			})
		})
	}

	return nil
}

// BindWithDefaults binds and applies `default:` struct tags to unset fields.
func (c *Config) BindWithDefaults(instance any) error {
	if err := defaults.Set(instance); err != nil {
		return fmt.Errorf("set defaults: %w", err)
	}

	if err := c.Bind(instance); err != nil {
		return err
	}

	if err := defaults.Set(instance); err != nil {
		return fmt.Errorf("set defaults after unmarshal: %w", err)
	}

	if v, ok := instance.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
	}

	return nil
}

// Get returns a raw value by dotted key.
func (c *Config) Get(key string) any {
	return c.instance.Get(key)
}

// Sub returns the map under a dotted key, or nil when absent.
func (c *Config) Sub(key string) map[string]any {
	return c.instance.GetStringMap(key)
}
