package runtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/halcyonmp/framework/errors"
	"github.com/halcyonmp/framework/logging"
	"github.com/halcyonmp/framework/plugin"
)

// pluginUnit is the activation unit the initializer works on: one plugin
// with its ordered server module descriptors.
type pluginUnit struct {
	name     string
	requires []string
	modules  []plugin.Descriptor
}

// startedModule remembers a successfully started module for reverse-order
// shutdown and capability dispatch.
type startedModule struct {
	plugin     string
	id         string
	mod        plugin.Module
	descriptor plugin.Descriptor
}

// Initializer starts the server modules of every active plugin in
// dependency order. One plugin failing never aborts the sweep; only a
// dependency cycle does, because no order exists at all.
type Initializer struct {
	discovery *plugin.Discovery
	entries   *plugin.EntryTable
	app       *plugin.AppContext
	logger    logging.Logger
	loggers   *logging.Factory

	mu           sync.RWMutex
	states       map[string]plugin.State
	failures     map[string]error
	started      []startedModule
	healthChecks map[string]func(context.Context) error
}

// NewInitializer creates an initializer resolving manifest module ids
// against the entry table.
func NewInitializer(discovery *plugin.Discovery, entries *plugin.EntryTable, app *plugin.AppContext, logger logging.Logger) *Initializer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Initializer{
		discovery:    discovery,
		entries:      entries,
		app:          app,
		logger:       logger.Named("initializer"),
		loggers:      logging.NewFactory(app.Logger),
		states:       make(map[string]plugin.State),
		failures:     make(map[string]error),
		healthChecks: make(map[string]func(context.Context) error),
	}
}

// Start resolves the server surface and starts every plugin's modules
// strictly sequentially in dependency order. A plugin whose dependency is
// missing or failed is skipped with its own failure recorded; a cycle
// aborts startup.
func (in *Initializer) Start(ctx context.Context) error {
	descriptors, err := in.discovery.Resolve(plugin.SurfaceServer)
	if err != nil {
		return err
	}

	units := groupByPlugin(descriptors)

	in.mu.Lock()
	for _, unit := range units {
		in.states[unit.name] = plugin.StateDiscovered
	}
	in.mu.Unlock()

	// A requirement outside the active set fails that plugin only.
	active := make(map[string]bool, len(units))
	for _, unit := range units {
		active[unit.name] = true
	}
	runnable := units[:0:0]
	for _, unit := range units {
		missing := ""
		for _, dep := range unit.requires {
			if !active[dep] {
				missing = dep
				break
			}
		}
		if missing != "" {
			in.fail(unit.name, errors.NewMissingDependency(unit.name, missing))
			continue
		}
		runnable = append(runnable, unit)
	}

	order, err := resolveOrder(runnable)
	if err != nil {
		return err
	}

	byName := make(map[string]pluginUnit, len(runnable))
	for _, unit := range runnable {
		byName[unit.name] = unit
	}

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return errors.WrapWithType(err, errors.ErrorTypeBootstrap, "plugin startup canceled")
		}

		unit := byName[name]
		if dep := in.failedDependency(unit); dep != "" {
			in.fail(name, errors.NewMissingDependency(name, dep))
			continue
		}
		in.startPlugin(ctx, unit)
	}

	in.logger.Info("plugin startup completed",
		zap.Int("plugins", len(units)),
		zap.Int("failed", len(in.Failures())))
	return nil
}

// startPlugin starts every module of one plugin in manifest order. The
// first failing module fails the whole plugin; modules of that plugin
// already started stay started and are stopped on shutdown.
func (in *Initializer) startPlugin(ctx context.Context, unit pluginUnit) {
	for _, desc := range unit.modules {
		mod, ok := in.entries.Lookup(desc.Module)
		if !ok {
			in.fail(unit.name, errors.NewPluginLoad(unit.name, desc.Module))
			return
		}

		if err := in.startModule(ctx, desc, mod); err != nil {
			in.fail(unit.name, errors.NewPluginLoad(unit.name, desc.Module).WithInnerError(err))
			return
		}

		in.mu.Lock()
		in.started = append(in.started, startedModule{
			plugin:     unit.name,
			id:         desc.Module,
			mod:        mod,
			descriptor: desc,
		})
		in.mu.Unlock()

		in.wireCapabilities(unit.name, desc.Module, mod)
	}

	in.mu.Lock()
	in.states[unit.name] = plugin.StateStarted
	in.mu.Unlock()
	in.logger.Info("plugin started",
		zap.String("plugin", unit.name),
		zap.Int("modules", len(unit.modules)))
}

// startModule runs one module entry point, converting a panic into a load
// failure so a broken plugin cannot take down the server. The module gets
// its own view of the app context whose logger carries the plugin name.
func (in *Initializer) startModule(ctx context.Context, desc plugin.Descriptor, mod plugin.Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredError(r)
		}
	}()
	scoped := *in.app
	scoped.Logger = in.loggers.Plugin(desc.Plugin)
	return mod.Start(ctx, &scoped, desc.Provider())
}

// wireCapabilities dispatches the optional interfaces of a started module.
func (in *Initializer) wireCapabilities(pluginName, id string, mod plugin.Module) {
	if p, ok := mod.(plugin.RouteProvider); ok && in.app.Router != nil {
		p.RegisterRoutes(in.app.Router)
	}
	if p, ok := mod.(plugin.EventSubscriber); ok {
		p.SubscribeEvents(in.app.Events)
	}
	if p, ok := mod.(plugin.HealthReporter); ok {
		in.mu.Lock()
		in.healthChecks[pluginName+"."+id] = p.HealthCheck
		in.mu.Unlock()
	}
}

// Stop stops started modules in reverse start order. Stop failures are
// logged, never propagated; shutdown always completes.
func (in *Initializer) Stop(ctx context.Context) {
	in.mu.Lock()
	started := in.started
	in.started = nil
	in.mu.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		entry := started[i]
		if p, ok := entry.mod.(plugin.Stoppable); ok {
			if err := in.stopModule(ctx, p); err != nil {
				in.logger.Error("module stop failed",
					zap.String("plugin", entry.plugin),
					zap.String("module", entry.id),
					zap.Error(err))
			}
		}
		in.mu.Lock()
		in.states[entry.plugin] = plugin.StateStopped
		in.mu.Unlock()
	}
}

func (in *Initializer) stopModule(ctx context.Context, p plugin.Stoppable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredError(r)
		}
	}()
	return p.Stop(ctx, in.app)
}

// fail records a plugin failure and keeps going.
func (in *Initializer) fail(name string, err error) {
	in.mu.Lock()
	in.states[name] = plugin.StateFailed
	in.failures[name] = err
	in.mu.Unlock()
	in.logger.Warn("plugin failed, continuing",
		zap.String("plugin", name),
		zap.Error(err))
}

// failedDependency returns the first requirement in failed state, if any.
func (in *Initializer) failedDependency(unit pluginUnit) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	for _, dep := range unit.requires {
		if in.states[dep] == plugin.StateFailed {
			return dep
		}
	}
	return ""
}

// States returns a snapshot of all plugin states.
func (in *Initializer) States() map[string]plugin.State {
	in.mu.RLock()
	defer in.mu.RUnlock()
	result := make(map[string]plugin.State, len(in.states))
	for k, v := range in.states {
		result[k] = v
	}
	return result
}

// Failures returns a snapshot of per-plugin failure causes.
func (in *Initializer) Failures() map[string]error {
	in.mu.RLock()
	defer in.mu.RUnlock()
	result := make(map[string]error, len(in.failures))
	for k, v := range in.failures {
		result[k] = v
	}
	return result
}

// HealthChecks returns the registered health checks keyed plugin.module.
func (in *Initializer) HealthChecks() map[string]func(context.Context) error {
	in.mu.RLock()
	defer in.mu.RUnlock()
	result := make(map[string]func(context.Context) error, len(in.healthChecks))
	for k, v := range in.healthChecks {
		result[k] = v
	}
	return result
}

// groupByPlugin folds the per-module descriptor list into one unit per
// plugin, preserving discovery order for both plugins and modules.
func groupByPlugin(descriptors []plugin.Descriptor) []pluginUnit {
	var units []pluginUnit
	index := make(map[string]int)
	for _, desc := range descriptors {
		i, ok := index[desc.Plugin]
		if !ok {
			i = len(units)
			index[desc.Plugin] = i
			units = append(units, pluginUnit{
				name:     desc.Plugin,
				requires: desc.Requires,
			})
		}
		units[i].modules = append(units[i].modules, desc)
	}
	return units
}

// resolveOrder runs Kahn's algorithm over the requires graph. Ties break
// by discovery order so startup is deterministic without manifests having
// to declare a total order.
func resolveOrder(units []pluginUnit) ([]string, error) {
	inDegree := make(map[string]int, len(units))
	dependents := make(map[string][]string)

	for _, unit := range units {
		inDegree[unit.name] = 0
	}
	for _, unit := range units {
		for _, dep := range unit.requires {
			inDegree[unit.name]++
			dependents[dep] = append(dependents[dep], unit.name)
		}
	}

	placed := make(map[string]bool, len(units))
	order := make([]string, 0, len(units))
	for len(order) < len(units) {
		advanced := false
		for _, unit := range units {
			if placed[unit.name] || inDegree[unit.name] != 0 {
				continue
			}
			placed[unit.name] = true
			order = append(order, unit.name)
			for _, dependent := range dependents[unit.name] {
				inDegree[dependent]--
			}
			advanced = true
			break
		}
		if !advanced {
			var cycle []string
			for _, unit := range units {
				if !placed[unit.name] {
					cycle = append(cycle, unit.name)
				}
			}
			return nil, errors.NewCyclicDependency(cycle)
		}
	}
	return order, nil
}
