package config

import (
	"fmt"

	"github.com/halcyonmp/framework/logging"
)

// Settings is the typed schema of the process configuration document.
type Settings struct {
	Core       CoreSettings                         `mapstructure:"core" json:"core" yaml:"core"`
	Logging    logging.Config                       `mapstructure:"logging" json:"logging" yaml:"logging"`
	Game       map[string]any                       `mapstructure:"game" json:"game" yaml:"game"`
	NUI        map[string]any                       `mapstructure:"nui" json:"nui" yaml:"nui"`
	DiscordRPC map[string]any                       `mapstructure:"discordRPC" json:"discordRPC" yaml:"discordRPC"`
	Plugins    map[string]map[string]map[string]any `mapstructure:"plugins" json:"plugins" yaml:"plugins"`
}

// CoreSettings configures the runtime itself.
type CoreSettings struct {
	// Resource is the host resource identity this process answers to.
	Resource string `mapstructure:"resource" json:"resource" yaml:"resource" default:"halcyon"`

	// PluginRoot is the directory scanned for plugin manifests.
	PluginRoot string `mapstructure:"pluginRoot" json:"pluginRoot" yaml:"pluginRoot" default:"plugins"`

	// IsWhitelisted is consumed by the session validation collaborator.
	IsWhitelisted bool `mapstructure:"isWhitelisted" json:"isWhitelisted" yaml:"isWhitelisted"`

	// LocationUpdateInterval is forwarded to clients, in milliseconds.
	LocationUpdateInterval int `mapstructure:"locationUpdateInterval" json:"locationUpdateInterval" yaml:"locationUpdateInterval" default:"5000"`

	DB      DatabaseSettings `mapstructure:"db" json:"db" yaml:"db"`
	Crypter CrypterSettings  `mapstructure:"crypter" json:"crypter" yaml:"crypter"`
}

// DatabaseSettings selects and parameterizes the storage backend.
type DatabaseSettings struct {
	// Driver is one of sqlite, redis, memory.
	Driver string `mapstructure:"driver" json:"driver" yaml:"driver" default:"sqlite"`

	// Name is the logical database or key namespace.
	Name string `mapstructure:"name" json:"name" yaml:"name" default:"halcyon"`

	// Path is the database file location (sqlite).
	Path string `mapstructure:"path" json:"path" yaml:"path" default:"data/halcyon.db"`

	Host     string `mapstructure:"host" json:"host" yaml:"host" default:"127.0.0.1"`
	Port     int    `mapstructure:"port" json:"port" yaml:"port" default:"6379"`
	Password string `mapstructure:"password" json:"password" yaml:"password"`
	DB       int    `mapstructure:"db" json:"db" yaml:"db"`

	// Bootstrap holds raw statements executed once at construction to
	// ensure the schema exists. Failures here abort startup.
	Bootstrap []string `mapstructure:"bootstrap" json:"bootstrap" yaml:"bootstrap"`
}

// Addr returns host:port for network backends.
func (d DatabaseSettings) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// CrypterSettings configure the auxiliary encryption utility.
type CrypterSettings struct {
	Algorithm string `mapstructure:"algorithm" json:"algorithm" yaml:"algorithm" default:"aes-256-gcm"`
	Secret    string `mapstructure:"secret" json:"secret" yaml:"secret"`
}

// Validate checks cross-field constraints after binding.
func (s *Settings) Validate() error {
	switch s.Core.DB.Driver {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", s.Core.DB.Driver)
	}
	return nil
}

// PluginSettings returns the configuration block for a plugin surface,
// defaulting to an empty map when the document has none.
func (s *Settings) PluginSettings(plugin, surface string) map[string]any {
	surfaces, ok := s.Plugins[plugin]
	if !ok {
		return map[string]any{}
	}
	settings, ok := surfaces[surface]
	if !ok {
		return map[string]any{}
	}
	return settings
}
