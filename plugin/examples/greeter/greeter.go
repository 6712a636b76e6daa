// Package greeter is a reference plugin module showing manifest-driven
// registration, command handling and event subscription. Its plugin
// directory ships a manifest like:
//
//	name: greeter
//	active: true
//	modules:
//	  server: [srv_greeter]
//	settings:
//	  greeting: "Welcome"
package greeter

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/halcyonmp/framework/logging"
	"github.com/halcyonmp/framework/plugin"
	"github.com/halcyonmp/framework/storage"
)

func init() {
	plugin.RegisterEntry("srv_greeter", &Module{})
}

// Module greets joining players and records how often each one joined.
//
// Implements: Module, Stoppable, EventSubscriber, HealthReporter
type Module struct {
	logger   logging.Logger
	visits   storage.Store
	greeting string
}

func (m *Module) Start(ctx context.Context, app *plugin.AppContext, cfg plugin.ConfigProvider) error {
	m.logger = app.Logger.Named("greeter")
	m.visits = app.Storage.Collection("greeter_visits")
	m.greeting = cfg.GetString("greeting", "Welcome")

	if err := app.Services.Register("greeter.visits", m.visits); err != nil {
		return err
	}

	return app.Commands.Register(plugin.Registration{
		Names:   []string{"greet", "hello"},
		Handler: m.handleGreet,
		Meta: plugin.CommandMeta{
			Description: "Greet a player by name",
			Usage:       "/greet <name>",
		},
	})
}

func (m *Module) handleGreet(ctx context.Context, inv plugin.Invocation) (any, error) {
	name := strings.TrimSpace(strings.Join(inv.Args, " "))
	if name == "" {
		name = inv.Source
	}
	return fmt.Sprintf("%s, %s!", m.greeting, name), nil
}

// --- EventSubscriber ---

func (m *Module) SubscribeEvents(bus plugin.EventBus) {
	bus.Subscribe("player.joined", func(ctx context.Context, e plugin.Event) error {
		name, _ := e.Data.(string)
		if name == "" {
			return nil
		}

		existing, err := m.visits.FindFirst(ctx, storage.Criteria{Where: storage.Record{"name": name}})
		if err != nil {
			return err
		}
		if existing == nil {
			_, err = m.visits.Write(ctx, storage.Record{"name": name, "count": 1})
			return err
		}

		_, err = m.visits.Update(ctx,
			storage.Record{"count": visitCount(existing) + 1},
			storage.Criteria{Where: storage.Record{"name": name}})
		return err
	})
}

// visitCount tolerates the numeric type differences between backends.
func visitCount(rec storage.Record) int {
	switch v := rec["count"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// --- Stoppable ---

func (m *Module) Stop(ctx context.Context, app *plugin.AppContext) error {
	m.logger.Info("greeter stopping", zap.String("greeting", m.greeting))
	return nil
}

// --- HealthReporter ---

func (m *Module) HealthCheck(ctx context.Context) error {
	if m.visits == nil {
		return fmt.Errorf("greeter storage not bound")
	}
	return nil
}

var (
	_ plugin.Module          = (*Module)(nil)
	_ plugin.Stoppable       = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthReporter  = (*Module)(nil)
)
