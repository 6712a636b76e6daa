package runtime

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/halcyonmp/framework/json"
)

// healthTimeout bounds one HealthReporter check.
const healthTimeout = 5 * time.Second

// pluginStatus is one row of the GET /core/plugins response.
type pluginStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// healthStatus is the GET /core/health response.
type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// mountStatusRoutes exposes the runtime's introspection surface on the
// status router. Modules mount their own routes next to these through the
// RouteProvider capability.
func (r *Runtime) mountStatusRoutes(router chi.Router) {
	router.Route("/core", func(core chi.Router) {
		core.Get("/plugins", r.handlePlugins)
		core.Get("/health", r.handleHealth)
		core.Get("/commands", r.handleCommands)
	})
}

func (r *Runtime) handlePlugins(w http.ResponseWriter, req *http.Request) {
	states := r.initializer.States()
	failures := r.initializer.Failures()

	rows := make([]pluginStatus, 0, len(states))
	for _, name := range r.discovery.ActivePlugins() {
		state, ok := states[name]
		if !ok {
			continue
		}
		row := pluginStatus{Name: name, State: state.String()}
		if err, failed := failures[name]; failed {
			row.Error = err.Error()
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), healthTimeout)
	defer cancel()

	status := healthStatus{Status: "ok", Checks: make(map[string]string)}
	code := http.StatusOK
	for name, check := range r.initializer.HealthChecks() {
		if err := check(ctx); err != nil {
			status.Checks[name] = err.Error()
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}
	writeJSON(w, code, status)
}

func (r *Runtime) handleCommands(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.commands.List())
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
