package plugin

import "github.com/halcyonmp/framework/json"

// ConfigProvider gives modules typed access to their scoped configuration.
type ConfigProvider interface {
	Get(key string) (any, bool)
	GetString(key string, defaultVal string) string
	GetInt(key string, defaultVal int) int
	GetBool(key string, defaultVal bool) bool
	Bind(target any) error
}

// SettingsProvider is a ConfigProvider backed by a merged settings map.
type SettingsProvider struct {
	plugin   string
	settings map[string]any
}

// NewSettingsProvider creates a provider over a settings map.
func NewSettingsProvider(plugin string, settings map[string]any) *SettingsProvider {
	if settings == nil {
		settings = make(map[string]any)
	}
	return &SettingsProvider{plugin: plugin, settings: settings}
}

func (c *SettingsProvider) Get(key string) (any, bool) {
	v, ok := c.settings[key]
	return v, ok
}

func (c *SettingsProvider) GetString(key string, defaultVal string) string {
	v, ok := c.settings[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func (c *SettingsProvider) GetInt(key string, defaultVal int) int {
	v, ok := c.settings[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return defaultVal
	}
}

func (c *SettingsProvider) GetBool(key string, defaultVal bool) bool {
	v, ok := c.settings[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

// Bind unmarshals the settings map onto target via JSON, applying the
// target's default tags for absent keys.
func (c *SettingsProvider) Bind(target any) error {
	data, err := json.Marshal(c.settings)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// EmptyConfig returns a ConfigProvider with no settings.
func EmptyConfig() ConfigProvider {
	return NewSettingsProvider("", nil)
}
