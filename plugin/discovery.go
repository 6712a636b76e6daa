package plugin

import (
	"io/fs"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/halcyonmp/framework/config"
	"github.com/halcyonmp/framework/logging"
)

// Discovery scans the plugin root for manifests and resolves the active
// descriptor list per surface. Manifests are read once; results are cached
// for the process lifetime.
type Discovery struct {
	fsys     fs.FS
	settings *config.Settings
	validate *validator.Validate
	logger   logging.Logger

	mu        sync.Mutex
	manifests map[string]*Manifest // keyed by plugin name, nil until the first scan
	dirs      map[string]string    // plugin name -> directory; they differ when ordering prefixes are used
	order     []string             // directory enumeration order of active plugins
	cache     map[Surface][]Descriptor
}

// NewDiscovery creates a Discovery over the plugin root filesystem.
func NewDiscovery(fsys fs.FS, settings *config.Settings, logger logging.Logger) *Discovery {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Discovery{
		fsys:     fsys,
		settings: settings,
		validate: validator.New(),
		logger:   logger.Named("discovery"),
		cache:    make(map[Surface][]Descriptor),
	}
}

// Resolve returns the descriptor list for a surface. The first call per
// surface scans; subsequent calls are served from cache.
func (d *Discovery) Resolve(surface Surface) ([]Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cached, ok := d.cache[surface]; ok {
		return cached, nil
	}
	if err := d.scanLocked(); err != nil {
		return nil, err
	}

	var descriptors []Descriptor
	for _, name := range d.order {
		manifest := d.manifests[name]

		if surface == SurfaceUI {
			if d.hasUI(name) {
				descriptors = append(descriptors, d.describe(manifest, surface, ""))
			}
			continue
		}

		for _, module := range manifest.ModulesFor(surface) {
			descriptors = append(descriptors, d.describe(manifest, surface, module))
		}
	}

	d.cache[surface] = descriptors
	return descriptors, nil
}

// Manifest returns a loaded manifest by plugin name. Only meaningful after
// the first Resolve call.
func (d *Discovery) Manifest(name string) (*Manifest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.manifests[name]
	return m, ok
}

// ActivePlugins returns active plugin names in enumeration order.
func (d *Discovery) ActivePlugins() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.order...)
}

// scanLocked enumerates plugin directories once. A malformed or unreadable
// manifest skips that plugin only; the scan itself never aborts.
func (d *Discovery) scanLocked() error {
	if d.manifests != nil {
		return nil
	}

	entries, err := fs.ReadDir(d.fsys, ".")
	if err != nil {
		return err
	}

	d.manifests = make(map[string]*Manifest)
	d.dirs = make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := entry.Name()

		manifest, err := LoadManifest(d.fsys, dir, d.validate)
		if err != nil {
			d.logger.Warn("skipping plugin with unreadable manifest",
				zap.String("plugin", dir), zap.Error(err))
			continue
		}
		if !manifest.Active {
			d.logger.Debug("skipping inactive plugin", zap.String("plugin", manifest.Name))
			continue
		}
		if claimed, dup := d.dirs[manifest.Name]; dup {
			d.logger.Warn("skipping plugin directory with duplicate name",
				zap.String("plugin", manifest.Name),
				zap.String("dir", dir),
				zap.String("claimedBy", claimed))
			continue
		}

		d.manifests[manifest.Name] = manifest
		d.dirs[manifest.Name] = dir
		d.order = append(d.order, manifest.Name)
	}

	d.logger.Info("plugin scan completed", zap.Int("active", len(d.order)))
	return nil
}

// hasUI checks the plugin's directory, not its manifest name; the two
// differ when authors prefix directories to control enumeration order.
func (d *Discovery) hasUI(name string) bool {
	dir, ok := d.dirs[name]
	if !ok {
		return false
	}
	info, err := fs.Stat(d.fsys, dir+"/"+uiDir)
	return err == nil && info.IsDir()
}

// describe merges the manifest settings block with the global
// plugins.<name>.<surface> section; the global document wins.
func (d *Discovery) describe(manifest *Manifest, surface Surface, module string) Descriptor {
	merged := make(map[string]any, len(manifest.Settings))
	for k, v := range manifest.Settings {
		merged[k] = v
	}
	if d.settings != nil {
		for k, v := range d.settings.PluginSettings(manifest.Name, string(surface)) {
			merged[k] = v
		}
	}

	return Descriptor{
		Plugin:   manifest.Name,
		Module:   module,
		Requires: append([]string{}, manifest.Requires...),
		Settings: merged,
	}
}
