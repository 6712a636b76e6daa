package runtime

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/halcyonmp/framework/config"
	"github.com/halcyonmp/framework/errors"
	"github.com/halcyonmp/framework/plugin"
	"github.com/halcyonmp/framework/storage"

	_ "github.com/halcyonmp/framework/storage/memory"
	_ "github.com/halcyonmp/framework/storage/sqlite"
)

func testSettings() *config.Settings {
	return &config.Settings{
		Core: config.CoreSettings{
			Resource: "halcyon",
			DB: config.DatabaseSettings{
				Driver: "memory",
				Name:   "test",
			},
		},
	}
}

func newTestRuntime(t *testing.T, fsys fstest.MapFS, entries *plugin.EntryTable) *Runtime {
	t.Helper()
	if entries == nil {
		entries = plugin.NewEntryTable()
	}
	rt, err := New(Config{
		Settings: testSettings(),
		PluginFS: fsys,
		Entries:  entries,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return rt
}

func TestRuntime_LifecycleTopicOrder(t *testing.T) {
	rt := newTestRuntime(t, fstest.MapFS{}, nil)

	var topics []string
	record := func(ctx context.Context, e plugin.Event) error {
		topics = append(topics, e.Name)
		return nil
	}
	for _, topic := range []string{plugin.TopicStarting, plugin.TopicInitializing, plugin.TopicReady, plugin.TopicStopped} {
		rt.Events().Subscribe(topic, record)
	}

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if rt.Phase() != PhaseReady {
		t.Errorf("phase = %v, want ready", rt.Phase())
	}
	if err := rt.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	want := []string{plugin.TopicStarting, plugin.TopicInitializing, plugin.TopicReady, plugin.TopicStopped}
	if len(topics) != len(want) {
		t.Fatalf("topics = %v, want %v", topics, want)
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Fatalf("topics = %v, want %v", topics, want)
		}
	}
}

func TestRuntime_StartTwiceFails(t *testing.T) {
	rt := newTestRuntime(t, fstest.MapFS{}, nil)
	defer rt.Stop(context.Background())

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := rt.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
}

func TestRuntime_ResourceIdentityMatching(t *testing.T) {
	rt := newTestRuntime(t, fstest.MapFS{}, nil)
	defer rt.Stop(context.Background())

	if err := rt.OnResourceStart(context.Background(), "someoneelse"); err != nil {
		t.Fatalf("foreign resource start errored: %v", err)
	}
	if rt.Phase() != PhaseNew {
		t.Errorf("phase = %v after foreign signal, want new", rt.Phase())
	}

	if err := rt.OnResourceStart(context.Background(), "halcyon"); err != nil {
		t.Fatalf("OnResourceStart failed: %v", err)
	}
	if rt.Phase() != PhaseReady {
		t.Errorf("phase = %v, want ready", rt.Phase())
	}

	rt.OnResourceStop(context.Background(), "someoneelse")
	if rt.Phase() != PhaseReady {
		t.Errorf("phase = %v after foreign stop, want ready", rt.Phase())
	}
	rt.OnResourceStop(context.Background(), "halcyon")
	if rt.Phase() != PhaseStopped {
		t.Errorf("phase = %v, want stopped", rt.Phase())
	}
}

func TestRuntime_UnknownDriverIsFatal(t *testing.T) {
	settings := testSettings()
	settings.Core.DB.Driver = "mssql"

	_, err := New(Config{
		Settings: settings,
		PluginFS: fstest.MapFS{},
		Entries:  plugin.NewEntryTable(),
	})
	if !errors.IsType(err, errors.ErrorTypeBootstrap) {
		t.Fatalf("err = %v, want bootstrap", err)
	}
}

func TestRuntime_SchemaBootstrapFailureIsFatal(t *testing.T) {
	settings := testSettings()
	settings.Core.DB.Driver = "sqlite"
	settings.Core.DB.Path = filepath.Join(t.TempDir(), "test.db")
	settings.Core.DB.Bootstrap = []string{"CREATE TABLE ("}

	_, err := New(Config{
		Settings: settings,
		PluginFS: fstest.MapFS{},
		Entries:  plugin.NewEntryTable(),
	})
	if !errors.IsType(err, errors.ErrorTypeBootstrap) {
		t.Fatalf("err = %v, want bootstrap", err)
	}
}

func TestRuntime_StorageRoundTripThroughFacade(t *testing.T) {
	rt := newTestRuntime(t, fstest.MapFS{}, nil)
	defer rt.Stop(context.Background())

	users := rt.Storage().Collection("users")
	created, err := users.Write(context.Background(), storage.Record{"name": "avery"})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if created["id"] == nil {
		t.Fatal("created record has no id")
	}

	found, err := users.FindFirst(context.Background(), storage.Criteria{Where: storage.Record{"name": "avery"}})
	if err != nil {
		t.Fatalf("FindFirst failed: %v", err)
	}
	if found == nil || found["name"] != "avery" {
		t.Fatalf("found = %v, want the written record", found)
	}
}

func TestRuntime_StorageErrorsAreTyped(t *testing.T) {
	rt := newTestRuntime(t, fstest.MapFS{}, nil)
	defer rt.Stop(context.Background())

	ctx := context.Background()
	users := rt.AppContext().Storage.Collection("users")
	if _, err := users.Write(ctx, storage.Record{"id": "u1"}); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	_, err := users.Write(ctx, storage.Record{"id": "u1"})
	if !errors.IsType(err, errors.ErrorTypeDuplicateKey) {
		t.Fatalf("err = %v, want duplicate_key", err)
	}
	if !stderrors.Is(err, storage.ErrDuplicateKey) {
		t.Fatal("backend sentinel not reachable through the wrapped error")
	}

	found, err := users.FindFirst(ctx, storage.Criteria{Where: map[string]any{"id": "nobody"}})
	if err != nil || found != nil {
		t.Fatalf("FindFirst = (%v, %v), want absence as (nil, nil)", found, err)
	}
}

func TestRuntime_StartAbortPublishesStopped(t *testing.T) {
	fsys := fstest.MapFS{
		"a/manifest.yaml": manifest("name: a\nactive: true\nrequires: [b]\nmodules:\n  server: [srv_a]\n"),
		"b/manifest.yaml": manifest("name: b\nactive: true\nrequires: [a]\nmodules:\n  server: [srv_b]\n"),
	}
	rt := newTestRuntime(t, fsys, nil)

	var stopped int
	rt.Events().Subscribe(plugin.TopicStopped, func(ctx context.Context, e plugin.Event) error {
		stopped++
		return nil
	})

	err := rt.Start(context.Background())
	if !errors.IsType(err, errors.ErrorTypeCyclicDependency) {
		t.Fatalf("Start err = %v, want cyclic_dependency", err)
	}
	if rt.Phase() != PhaseStopped {
		t.Errorf("phase = %v, want stopped", rt.Phase())
	}
	if stopped != 1 {
		t.Errorf("stopped topic fired %d times during abort, want 1", stopped)
	}

	if err := rt.Stop(context.Background()); err != nil {
		t.Fatalf("Stop after aborted Start errored: %v", err)
	}
	if stopped != 1 {
		t.Errorf("stopped topic fired %d times after Stop, want still 1", stopped)
	}
}

func TestRuntime_ModuleSeesFacadeSurface(t *testing.T) {
	fsys := fstest.MapFS{
		"banking/manifest.yaml": manifest("name: banking\nactive: true\nmodules:\n  server: [srv_bank]\nsettings:\n  startingBalance: 2500\n"),
	}

	var gotBalance int
	entries := plugin.NewEntryTable()
	entries.MustRegister("srv_bank", plugin.ModuleFunc(func(ctx context.Context, app *plugin.AppContext, cfg plugin.ConfigProvider) error {
		gotBalance = cfg.GetInt("startingBalance", 0)
		return app.Commands.Register(plugin.Registration{
			Names: []string{"balance"},
			Handler: func(ctx context.Context, inv plugin.Invocation) (any, error) {
				return gotBalance, nil
			},
		})
	}))

	rt := newTestRuntime(t, fsys, entries)
	defer rt.Stop(context.Background())

	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if gotBalance != 2500 {
		t.Errorf("module config startingBalance = %d, want 2500", gotBalance)
	}

	result, err := rt.Commands().Dispatch(context.Background(), "balance", plugin.Invocation{})
	if err != nil || result != 2500 {
		t.Fatalf("Dispatch = (%v, %v), want (2500, nil)", result, err)
	}
}

func TestRuntime_ClientSettingsRequest(t *testing.T) {
	fsys := fstest.MapFS{
		"banking/manifest.yaml":  manifest("name: banking\nactive: true\nmodules:\n  client: [cl_hud, cl_atm]\n"),
		"banking/ui/index.html":  &fstest.MapFile{Data: []byte("<html></html>")},
		"garage/manifest.yaml":   manifest("name: garage\nactive: true\nmodules:\n  server: [srv_garage]\n"),
	}

	settings := testSettings()
	settings.Core.LocationUpdateInterval = 3000
	settings.Game = map[string]any{"maxPlayers": 64}

	rt, err := New(Config{
		Settings: settings,
		PluginFS: fsys,
		Entries:  plugin.NewEntryTable(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer rt.Stop(context.Background())

	result, err := rt.Events().Request(context.Background(), plugin.Event{Name: plugin.TopicClientSettings})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	payload, ok := result.(ClientSettings)
	if !ok {
		t.Fatalf("result type %T, want ClientSettings", result)
	}
	if len(payload.PluginLists["banking"]) != 2 {
		t.Errorf("banking client modules = %v, want 2 entries", payload.PluginLists["banking"])
	}
	if len(payload.NUILists) != 1 || payload.NUILists[0] != "banking" {
		t.Errorf("nuiLists = %v, want [banking]", payload.NUILists)
	}
	if payload.Config.LocationUpdateInterval != 3000 {
		t.Errorf("locationUpdateInterval = %d, want 3000", payload.Config.LocationUpdateInterval)
	}
	if payload.Game["maxPlayers"] != 64 {
		t.Errorf("game passthrough = %v", payload.Game)
	}
}

// fakeDeferral records the handshake calls.
type fakeDeferral struct {
	deferred bool
	messages []string
	done     []string
}

func (d *fakeDeferral) Defer()                { d.deferred = true }
func (d *fakeDeferral) Update(message string) { d.messages = append(d.messages, message) }
func (d *fakeDeferral) Done(reason string)    { d.done = append(d.done, reason) }

func TestRuntime_PlayerConnectingForwarded(t *testing.T) {
	rt := newTestRuntime(t, fstest.MapFS{}, nil)
	defer rt.Stop(context.Background())

	rt.validator = SessionValidatorFunc(func(ctx context.Context, player PlayerInfo, deferral Deferral) error {
		deferral.Defer()
		deferral.Update("checking " + player.Name)
		deferral.Done("")
		return nil
	})

	d := &fakeDeferral{}
	rt.OnPlayerConnecting(context.Background(), PlayerInfo{Name: "avery"}, d)

	if !d.deferred {
		t.Error("validator handshake did not defer")
	}
	if len(d.messages) != 1 || d.messages[0] != "checking avery" {
		t.Errorf("messages = %v", d.messages)
	}
	if len(d.done) != 1 || d.done[0] != "" {
		t.Errorf("done = %v, want one empty accept", d.done)
	}
}

func TestRuntime_PlayerConnectingWithoutValidatorAdmits(t *testing.T) {
	rt := newTestRuntime(t, fstest.MapFS{}, nil)
	defer rt.Stop(context.Background())

	d := &fakeDeferral{}
	rt.OnPlayerConnecting(context.Background(), PlayerInfo{Name: "avery"}, d)

	if len(d.done) != 1 || d.done[0] != "" {
		t.Fatalf("done = %v, want one empty accept", d.done)
	}
}
