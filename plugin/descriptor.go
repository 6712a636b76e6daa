package plugin

// Descriptor is one resolved activation unit: a (plugin, module id) pair for
// code surfaces, or plugin presence for the UI surface. Produced by
// discovery, consumed by the initializer, never mutated after creation.
type Descriptor struct {
	// Plugin is the owning plugin name.
	Plugin string

	// Module is the manifest module id. Empty for UI descriptors.
	Module string

	// Requires lists plugin names that must start before this plugin.
	Requires []string

	// Settings is the plugin configuration for this surface: the manifest
	// settings block overlaid with the global plugins.<name>.<surface>
	// section. Never nil.
	Settings map[string]any
}

// Provider wraps the descriptor settings as a ConfigProvider.
func (d Descriptor) Provider() ConfigProvider {
	return NewSettingsProvider(d.Plugin, d.Settings)
}
