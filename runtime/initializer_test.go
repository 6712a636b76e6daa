package runtime

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/halcyonmp/framework/errors"
	"github.com/halcyonmp/framework/logging"
	"github.com/halcyonmp/framework/plugin"
)

// recordingModule appends its id to a shared log when started.
type recordingModule struct {
	id      string
	log     *[]string
	startFn func(ctx context.Context, app *plugin.AppContext, cfg plugin.ConfigProvider) error
}

func (m *recordingModule) Start(ctx context.Context, app *plugin.AppContext, cfg plugin.ConfigProvider) error {
	*m.log = append(*m.log, m.id)
	if m.startFn != nil {
		return m.startFn(ctx, app, cfg)
	}
	return nil
}

// stoppableModule additionally records its stop.
type stoppableModule struct {
	recordingModule
}

func (m *stoppableModule) Stop(ctx context.Context, app *plugin.AppContext) error {
	*m.log = append(*m.log, "stop:"+m.id)
	return nil
}

func manifest(data string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(data)}
}

func newTestInitializer(t *testing.T, fsys fstest.MapFS, entries *plugin.EntryTable) *Initializer {
	t.Helper()
	discovery := plugin.NewDiscovery(fsys, nil, logging.Nop())
	app := &plugin.AppContext{
		Events:   newEventBus(logging.Nop()),
		Services: plugin.NewServiceRegistry(),
	}
	return NewInitializer(discovery, entries, app, logging.Nop())
}

func TestInitializer_RequiresOrdersStartup(t *testing.T) {
	// garage requires banking; directory enumeration alone would start
	// garage first.
	fsys := fstest.MapFS{
		"a_garage/manifest.yaml": manifest("name: garage\nactive: true\nrequires: [banking]\nmodules:\n  server: [srv_garage]\n"),
		"banking/manifest.yaml":  manifest("name: banking\nactive: true\nmodules:\n  server: [srv_bank]\n"),
	}

	var log []string
	entries := plugin.NewEntryTable()
	entries.MustRegister("srv_bank", &recordingModule{id: "srv_bank", log: &log})
	entries.MustRegister("srv_garage", &recordingModule{id: "srv_garage", log: &log})

	in := newTestInitializer(t, fsys, entries)
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if len(log) != 2 || log[0] != "srv_bank" || log[1] != "srv_garage" {
		t.Fatalf("start order = %v, want [srv_bank srv_garage]", log)
	}
	if in.States()["garage"] != plugin.StateStarted {
		t.Errorf("garage state = %v, want started", in.States()["garage"])
	}
}

func TestInitializer_CycleIsFatal(t *testing.T) {
	fsys := fstest.MapFS{
		"a/manifest.yaml": manifest("name: a\nactive: true\nrequires: [b]\nmodules:\n  server: [srv_a]\n"),
		"b/manifest.yaml": manifest("name: b\nactive: true\nrequires: [a]\nmodules:\n  server: [srv_b]\n"),
	}

	var log []string
	entries := plugin.NewEntryTable()
	entries.MustRegister("srv_a", &recordingModule{id: "srv_a", log: &log})
	entries.MustRegister("srv_b", &recordingModule{id: "srv_b", log: &log})

	in := newTestInitializer(t, fsys, entries)
	err := in.Start(context.Background())
	if !errors.IsType(err, errors.ErrorTypeCyclicDependency) {
		t.Fatalf("err = %v, want cyclic_dependency", err)
	}
	if len(log) != 0 {
		t.Errorf("modules started despite cycle: %v", log)
	}
}

func TestInitializer_MissingDependencySkipsPluginOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"banking/manifest.yaml": manifest("name: banking\nactive: true\nmodules:\n  server: [srv_bank]\n"),
		"garage/manifest.yaml":  manifest("name: garage\nactive: true\nrequires: [fuel]\nmodules:\n  server: [srv_garage]\n"),
	}

	var log []string
	entries := plugin.NewEntryTable()
	entries.MustRegister("srv_bank", &recordingModule{id: "srv_bank", log: &log})
	entries.MustRegister("srv_garage", &recordingModule{id: "srv_garage", log: &log})

	in := newTestInitializer(t, fsys, entries)
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if len(log) != 1 || log[0] != "srv_bank" {
		t.Fatalf("started = %v, want [srv_bank]", log)
	}
	states := in.States()
	if states["garage"] != plugin.StateFailed {
		t.Errorf("garage state = %v, want failed", states["garage"])
	}
	if states["banking"] != plugin.StateStarted {
		t.Errorf("banking state = %v, want started", states["banking"])
	}
}

func TestInitializer_StartFailureSkipsPluginAndDependents(t *testing.T) {
	fsys := fstest.MapFS{
		"banking/manifest.yaml": manifest("name: banking\nactive: true\nmodules:\n  server: [srv_bank]\n"),
		"garage/manifest.yaml":  manifest("name: garage\nactive: true\nrequires: [banking]\nmodules:\n  server: [srv_garage]\n"),
		"taxi/manifest.yaml":    manifest("name: taxi\nactive: true\nmodules:\n  server: [srv_taxi]\n"),
	}

	var log []string
	entries := plugin.NewEntryTable()
	entries.MustRegister("srv_bank", &recordingModule{id: "srv_bank", log: &log,
		startFn: func(ctx context.Context, app *plugin.AppContext, cfg plugin.ConfigProvider) error {
			panic("bank exploded")
		}})
	entries.MustRegister("srv_garage", &recordingModule{id: "srv_garage", log: &log})
	entries.MustRegister("srv_taxi", &recordingModule{id: "srv_taxi", log: &log})

	in := newTestInitializer(t, fsys, entries)
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	states := in.States()
	if states["banking"] != plugin.StateFailed {
		t.Errorf("banking state = %v, want failed", states["banking"])
	}
	if states["garage"] != plugin.StateFailed {
		t.Errorf("garage state = %v, want failed (dependency failed)", states["garage"])
	}
	if states["taxi"] != plugin.StateStarted {
		t.Errorf("taxi state = %v, want started", states["taxi"])
	}

	// active plugins minus failed ones
	started := 0
	for _, s := range states {
		if s == plugin.StateStarted {
			started++
		}
	}
	if started != 1 {
		t.Errorf("started count = %d, want 1", started)
	}
}

func TestInitializer_MissingEntryFailsPlugin(t *testing.T) {
	fsys := fstest.MapFS{
		"banking/manifest.yaml": manifest("name: banking\nactive: true\nmodules:\n  server: [srv_missing]\n"),
	}

	in := newTestInitializer(t, fsys, plugin.NewEntryTable())
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if in.States()["banking"] != plugin.StateFailed {
		t.Errorf("banking state = %v, want failed", in.States()["banking"])
	}
	if !errors.IsType(in.Failures()["banking"], errors.ErrorTypePluginLoad) {
		t.Errorf("failure = %v, want plugin_load", in.Failures()["banking"])
	}
}

func TestInitializer_StopReversesStartOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"banking/manifest.yaml": manifest("name: banking\nactive: true\nmodules:\n  server: [srv_bank]\n"),
		"garage/manifest.yaml":  manifest("name: garage\nactive: true\nrequires: [banking]\nmodules:\n  server: [srv_garage]\n"),
	}

	var log []string
	entries := plugin.NewEntryTable()
	entries.MustRegister("srv_bank", &stoppableModule{recordingModule{id: "srv_bank", log: &log}})
	entries.MustRegister("srv_garage", &stoppableModule{recordingModule{id: "srv_garage", log: &log}})

	in := newTestInitializer(t, fsys, entries)
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	in.Stop(context.Background())

	want := []string{"srv_bank", "srv_garage", "stop:srv_garage", "stop:srv_bank"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}

func TestInitializer_ModulesGetPluginScopedLoggers(t *testing.T) {
	fsys := fstest.MapFS{
		"banking/manifest.yaml": manifest("name: banking\nactive: true\nmodules:\n  server: [srv_bank, srv_transfers]\n"),
		"garage/manifest.yaml":  manifest("name: garage\nactive: true\nmodules:\n  server: [srv_garage]\n"),
	}

	var log []string
	loggers := make(map[string]logging.Logger)
	capture := func(id string) *recordingModule {
		return &recordingModule{id: id, log: &log,
			startFn: func(ctx context.Context, app *plugin.AppContext, cfg plugin.ConfigProvider) error {
				loggers[id] = app.Logger
				return nil
			}}
	}

	entries := plugin.NewEntryTable()
	entries.MustRegister("srv_bank", capture("srv_bank"))
	entries.MustRegister("srv_transfers", capture("srv_transfers"))
	entries.MustRegister("srv_garage", capture("srv_garage"))

	in := newTestInitializer(t, fsys, entries)
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for id, logger := range loggers {
		if logger == nil {
			t.Fatalf("module %s started with nil logger", id)
		}
	}
	if loggers["srv_bank"] != loggers["srv_transfers"] {
		t.Error("modules of one plugin should share its logger")
	}
	if loggers["srv_bank"] == loggers["srv_garage"] {
		t.Error("different plugins should get distinct loggers")
	}
}

func TestInitializer_HealthReporterWired(t *testing.T) {
	fsys := fstest.MapFS{
		"banking/manifest.yaml": manifest("name: banking\nactive: true\nmodules:\n  server: [srv_bank]\n"),
	}

	var log []string
	entries := plugin.NewEntryTable()
	entries.MustRegister("srv_bank", &healthyModule{recordingModule{id: "srv_bank", log: &log}})

	in := newTestInitializer(t, fsys, entries)
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	checks := in.HealthChecks()
	check, ok := checks["banking.srv_bank"]
	if !ok {
		t.Fatalf("health check not registered: %v", checks)
	}
	if err := check(context.Background()); err != nil {
		t.Errorf("health check failed: %v", err)
	}
}

type healthyModule struct {
	recordingModule
}

func (m *healthyModule) HealthCheck(ctx context.Context) error { return nil }
