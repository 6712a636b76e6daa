// Package runtime composes storage, events, commands, discovery and the
// plugin initializer into the single facade handed to every plugin.
package runtime

import (
	"context"
	"io/fs"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/halcyonmp/framework/config"
	"github.com/halcyonmp/framework/errors"
	"github.com/halcyonmp/framework/logging"
	"github.com/halcyonmp/framework/plugin"
	"github.com/halcyonmp/framework/security"
	"github.com/halcyonmp/framework/storage"
)

// Phase is the lifecycle phase of the facade.
type Phase int32

const (
	PhaseNew Phase = iota // Constructed, storage bound, waiting for the ready signal
	PhaseStarting
	PhaseReady
	PhaseStopped
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseStarting:
		return "starting"
	case PhaseReady:
		return "ready"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the collaborators for creating a Runtime.
type Config struct {
	// Settings is the bound process configuration. Required.
	Settings *config.Settings

	// PluginFS is the filesystem rooted at the plugin directory. Required.
	PluginFS fs.FS

	// Entries resolves manifest module ids. Defaults to the table plugins
	// register into at init time.
	Entries *plugin.EntryTable

	Logger logging.Logger
	Router chi.Router

	// Validator handles player admission. Nil admits every session.
	Validator SessionValidator

	// VersionCheck runs between core.starting and core.initializing. A
	// failure is logged, never fatal.
	VersionCheck func(ctx context.Context) error
}

// Runtime is the process-wide extensibility handle. It exclusively owns the
// storage driver, event bus and command registry; plugins reach all of them
// through the AppContext it hands out.
type Runtime struct {
	settings    *config.Settings
	logger      logging.Logger
	store       storage.Driver
	bus         plugin.EventBus
	commands    plugin.CommandRegistry
	discovery   *plugin.Discovery
	initializer *Initializer
	services    *plugin.ServiceRegistry
	app         *plugin.AppContext
	validator   SessionValidator
	version     func(ctx context.Context) error

	phase atomic.Int32
}

// New binds the storage driver and wires the extensibility surface. Schema
// bootstrap statements run here; a bootstrap failure aborts construction.
func New(cfg Config) (*Runtime, error) {
	if cfg.Settings == nil {
		return nil, errors.NewBootstrap("runtime requires settings")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.Entries == nil {
		cfg.Entries = plugin.DefaultEntries()
	}

	store, err := storage.Open(cfg.Settings.Core.DB)
	if err != nil {
		return nil, errors.WrapWithType(err, errors.ErrorTypeBootstrap, "storage open failed")
	}
	for _, stmt := range cfg.Settings.Core.DB.Bootstrap {
		if _, err := store.Exec(context.Background(), stmt); err != nil {
			store.Close()
			return nil, errors.WrapWithType(err, errors.ErrorTypeBootstrap, "schema bootstrap failed")
		}
	}

	// Plugins see typed storage errors; the raw driver stays internal.
	store = wrapDriver(store)

	bus := newEventBus(logger)
	commands := newCommandRegistry(bus, logger)
	discovery := plugin.NewDiscovery(cfg.PluginFS, cfg.Settings, logger)
	services := plugin.NewServiceRegistry()

	app := &plugin.AppContext{
		Storage:  store,
		Events:   bus,
		Commands: commands,
		Logger:   logger,
		Router:   cfg.Router,
		Services: services,
		Settings: cfg.Settings,
	}

	rt := &Runtime{
		settings:    cfg.Settings,
		logger:      logger.Named("runtime"),
		store:       store,
		bus:         bus,
		commands:    commands,
		discovery:   discovery,
		initializer: NewInitializer(discovery, cfg.Entries, app, logger),
		services:    services,
		app:         app,
		validator:   cfg.Validator,
		version:     cfg.VersionCheck,
	}

	if cfg.Settings.Core.Crypter.Secret != "" {
		crypter, err := security.NewCrypter(cfg.Settings.Core.Crypter)
		if err != nil {
			store.Close()
			return nil, errors.WrapWithType(err, errors.ErrorTypeBootstrap, "crypter setup failed")
		}
		services.MustRegister("core.crypter", crypter)
	}

	bus.SubscribeRequest(plugin.TopicClientSettings, clientSettingsHandler(discovery, cfg.Settings))

	if cfg.Router != nil {
		rt.mountStatusRoutes(cfg.Router)
	}

	return rt, nil
}

// Start runs the startup sequence on the host ready signal. The lifecycle
// topics fire in fixed order; plugins sequence their own setup against them.
func (r *Runtime) Start(ctx context.Context) error {
	if !r.phase.CompareAndSwap(int32(PhaseNew), int32(PhaseStarting)) {
		return errors.NewBootstrap("runtime already started")
	}

	r.bus.Publish(ctx, plugin.Event{Name: plugin.TopicStarting, Source: "runtime"})

	if r.version != nil {
		if err := r.version(ctx); err != nil {
			r.logger.Warn("version check failed", zap.Error(err))
		}
	}

	r.bus.Publish(ctx, plugin.Event{Name: plugin.TopicInitializing, Source: "runtime"})

	if err := r.initializer.Start(ctx); err != nil {
		// Aborted startup still terminates cleanly: subscribers hear the
		// stopped topic and the backend connection is released, so a later
		// Stop has nothing left to do.
		r.phase.Store(int32(PhaseStopped))
		r.bus.Publish(ctx, plugin.Event{Name: plugin.TopicStopped, Source: "runtime"})
		if closeErr := r.store.Close(); closeErr != nil {
			r.logger.Error("storage close failed", zap.Error(closeErr))
		}
		return err
	}

	r.bus.Publish(ctx, plugin.Event{Name: plugin.TopicReady, Source: "runtime"})
	r.phase.Store(int32(PhaseReady))
	r.logger.Info("runtime ready",
		zap.String("resource", r.settings.Core.Resource),
		zap.Int("plugins", len(r.discovery.ActivePlugins())))
	return nil
}

// Stop shuts the runtime down: modules stop in reverse start order, the
// stopped topic fires, then storage closes. Safe to call once.
func (r *Runtime) Stop(ctx context.Context) error {
	prev := Phase(r.phase.Swap(int32(PhaseStopped)))
	if prev == PhaseStopped {
		return nil
	}

	r.initializer.Stop(ctx)
	r.bus.Publish(ctx, plugin.Event{Name: plugin.TopicStopped, Source: "runtime"})

	err := r.store.Close()
	if err != nil {
		r.logger.Error("storage close failed", zap.Error(err))
	}
	r.logger.Info("runtime stopped")
	return err
}

// OnResourceStart handles the host resource-start notification. Signals for
// other resources are ignored.
func (r *Runtime) OnResourceStart(ctx context.Context, resource string) error {
	if resource != r.settings.Core.Resource {
		return nil
	}
	return r.Start(ctx)
}

// OnResourceStop handles the host resource-stop notification.
func (r *Runtime) OnResourceStop(ctx context.Context, resource string) error {
	if resource != r.settings.Core.Resource {
		return nil
	}
	return r.Stop(ctx)
}

// OnPlayerConnecting forwards an incoming session to the configured
// validator. The runtime does not interpret the outcome; without a
// validator every session is admitted.
func (r *Runtime) OnPlayerConnecting(ctx context.Context, player PlayerInfo, deferral Deferral) {
	if r.validator == nil {
		deferral.Done("")
		return
	}
	if err := r.validate(ctx, player, deferral); err != nil {
		r.logger.Error("session validation failed",
			zap.String("player", player.Name),
			zap.Error(err))
	}
}

// validate isolates the collaborator so a panicking validator cannot take
// the host down mid-handshake.
func (r *Runtime) validate(ctx context.Context, player PlayerInfo, deferral Deferral) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = recoveredError(rec)
		}
	}()
	return r.validator.ValidateSession(ctx, player, deferral)
}

// Phase returns the current lifecycle phase.
func (r *Runtime) Phase() Phase {
	return Phase(r.phase.Load())
}

// Events returns the event bus.
func (r *Runtime) Events() plugin.EventBus { return r.bus }

// Commands returns the command registry.
func (r *Runtime) Commands() plugin.CommandRegistry { return r.commands }

// Storage returns the bound storage driver.
func (r *Runtime) Storage() storage.Driver { return r.store }

// Services returns the cross-plugin service registry.
func (r *Runtime) Services() *plugin.ServiceRegistry { return r.services }

// AppContext returns the interaction surface handed to modules.
func (r *Runtime) AppContext() *plugin.AppContext { return r.app }

// PluginStates returns a snapshot of per-plugin lifecycle states.
func (r *Runtime) PluginStates() map[string]plugin.State {
	return r.initializer.States()
}
