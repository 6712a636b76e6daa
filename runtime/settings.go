package runtime

import (
	"context"

	"github.com/halcyonmp/framework/config"
	"github.com/halcyonmp/framework/plugin"
)

// ClientSettings is the bootstrap payload a connecting client requests over
// the core.clientSettings topic: which client modules and UI bundles to
// load, plus configuration passthrough.
type ClientSettings struct {
	PluginLists map[string][]string `json:"pluginLists"`
	NUILists    []string            `json:"nuiLists"`
	DiscordRPC  map[string]any      `json:"discordRPC"`
	Game        map[string]any      `json:"game"`
	NUI         map[string]any      `json:"nui"`
	Config      ClientConfig        `json:"config"`
}

// ClientConfig is the subset of core settings clients are allowed to see.
type ClientConfig struct {
	LocationUpdateInterval int `json:"locationUpdateInterval"`
}

// clientSettingsHandler assembles the payload from discovery output. The
// discovery cache makes repeated requests cheap; the payload is rebuilt per
// request so it reflects settings updated through the config watcher.
func clientSettingsHandler(discovery *plugin.Discovery, settings *config.Settings) plugin.RequestHandler {
	return func(ctx context.Context, event plugin.Event) (any, error) {
		clientDescriptors, err := discovery.Resolve(plugin.SurfaceClient)
		if err != nil {
			return nil, err
		}
		uiDescriptors, err := discovery.Resolve(plugin.SurfaceUI)
		if err != nil {
			return nil, err
		}

		pluginLists := make(map[string][]string)
		for _, desc := range clientDescriptors {
			pluginLists[desc.Plugin] = append(pluginLists[desc.Plugin], desc.Module)
		}
		nuiLists := make([]string, 0, len(uiDescriptors))
		for _, desc := range uiDescriptors {
			nuiLists = append(nuiLists, desc.Plugin)
		}

		return ClientSettings{
			PluginLists: pluginLists,
			NUILists:    nuiLists,
			DiscordRPC:  settings.DiscordRPC,
			Game:        settings.Game,
			NUI:         settings.NUI,
			Config: ClientConfig{
				LocationUpdateInterval: settings.Core.LocationUpdateInterval,
			},
		}, nil
	}
}
