package plugin

import (
	"github.com/go-chi/chi/v5"

	"github.com/halcyonmp/framework/config"
	"github.com/halcyonmp/framework/logging"
	"github.com/halcyonmp/framework/storage"
)

// AppContext is the typed interaction surface handed to every server module.
// It is the module's only handle on the host process: storage, events,
// commands, shared services and the status router all flow through it.
type AppContext struct {
	Storage  storage.Driver
	Events   EventBus
	Commands CommandRegistry
	Logger   logging.Logger
	Router   chi.Router
	Services *ServiceRegistry
	Settings *config.Settings
}
