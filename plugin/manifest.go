package plugin

import (
	"io/fs"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/halcyonmp/framework/errors"
	"github.com/halcyonmp/framework/json"
)

// Surface is one of the three activation targets for a plugin.
type Surface string

const (
	SurfaceServer Surface = "server"
	SurfaceClient Surface = "client"
	SurfaceUI     Surface = "ui"
)

// manifestFiles are tried in order inside each plugin directory.
var manifestFiles = []string{"manifest.yaml", "manifest.yml", "manifest.json"}

// uiDir marks a plugin as having an in-game UI surface.
const uiDir = "ui"

// Manifest is the per-plugin declaration of activation state and which
// module ids belong to which surface. Immutable once loaded.
type Manifest struct {
	Name     string         `yaml:"name" json:"name" validate:"required"`
	Active   bool           `yaml:"active" json:"active"`
	Requires []string       `yaml:"requires" json:"requires"`
	Modules  ModuleLists    `yaml:"modules" json:"modules"`
	Settings map[string]any `yaml:"settings" json:"settings"`
}

// ModuleLists carries the ordered module ids per code surface.
type ModuleLists struct {
	Server []string `yaml:"server" json:"server"`
	Client []string `yaml:"client" json:"client"`
}

// ModulesFor returns the ordered module ids for a code surface.
func (m *Manifest) ModulesFor(surface Surface) []string {
	switch surface {
	case SurfaceServer:
		return m.Modules.Server
	case SurfaceClient:
		return m.Modules.Client
	default:
		return nil
	}
}

// LoadManifest reads and validates a plugin manifest from dir, trying the
// YAML form first and the JSON form as fallback.
func LoadManifest(fsys fs.FS, dir string, validate *validator.Validate) (*Manifest, error) {
	var lastErr error
	for _, file := range manifestFiles {
		data, err := fs.ReadFile(fsys, dir+"/"+file)
		if err != nil {
			lastErr = err
			continue
		}

		manifest := &Manifest{}
		if file == "manifest.json" {
			err = json.Unmarshal(data, manifest)
		} else {
			err = yaml.Unmarshal(data, manifest)
		}
		if err != nil {
			return nil, errors.NewManifestParse(dir).
				WithDetail("file", file).
				WithInnerError(err)
		}

		if manifest.Name == "" {
			manifest.Name = dir
		}
		if validate != nil {
			if err := validate.Struct(manifest); err != nil {
				return nil, errors.NewManifestParse(dir).
					WithDetail("file", file).
					WithInnerError(err)
			}
		}
		return manifest, nil
	}
	return nil, errors.NewManifestParse(dir).WithInnerError(lastErr)
}
