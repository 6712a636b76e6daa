package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/go-chi/chi/v5"

	"github.com/halcyonmp/framework/json"
	"github.com/halcyonmp/framework/plugin"
)

func TestStatusRoutes_Plugins(t *testing.T) {
	fsys := fstest.MapFS{
		"banking/manifest.yaml": manifest("name: banking\nactive: true\nmodules:\n  server: [srv_bank]\n"),
		"garage/manifest.yaml":  manifest("name: garage\nactive: true\nmodules:\n  server: [srv_missing]\n"),
	}

	var log []string
	entries := plugin.NewEntryTable()
	entries.MustRegister("srv_bank", &recordingModule{id: "srv_bank", log: &log})

	router := chi.NewRouter()
	rt, err := New(Config{
		Settings: testSettings(),
		PluginFS: fsys,
		Entries:  entries,
		Router:   router,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer rt.Stop(context.Background())

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/core/plugins", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var rows []pluginStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2: %+v", len(rows), rows)
	}

	byName := make(map[string]pluginStatus)
	for _, row := range rows {
		byName[row.Name] = row
	}
	if byName["banking"].State != "started" {
		t.Errorf("banking state = %q, want started", byName["banking"].State)
	}
	if byName["garage"].State != "failed" || byName["garage"].Error == "" {
		t.Errorf("garage row = %+v, want failed with an error", byName["garage"])
	}
}

func TestStatusRoutes_Health(t *testing.T) {
	fsys := fstest.MapFS{
		"banking/manifest.yaml": manifest("name: banking\nactive: true\nmodules:\n  server: [srv_bank]\n"),
	}

	var log []string
	entries := plugin.NewEntryTable()
	entries.MustRegister("srv_bank", &healthyModule{recordingModule{id: "srv_bank", log: &log}})

	router := chi.NewRouter()
	rt, err := New(Config{
		Settings: testSettings(),
		PluginFS: fsys,
		Entries:  entries,
		Router:   router,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer rt.Stop(context.Background())

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/core/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status healthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if status.Status != "ok" || status.Checks["banking.srv_bank"] != "ok" {
		t.Errorf("health = %+v", status)
	}
}
