package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crystal-mush/profstats/pkg/command"
	"github.com/crystal-mush/profstats/pkg/stats"
)

type testActor struct {
	name  string
	caps  command.Capabilities
	mu    sync.Mutex
	sends []string
}

func newActor(name string, perms ...string) *testActor {
	return &testActor{name: name, caps: command.NewCapabilities(perms...)}
}

func (a *testActor) Name() string                       { return a.name }
func (a *testActor) Capabilities() command.Capabilities { return a.caps }
func (a *testActor) Send(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sends = append(a.sends, msg)
}

func (a *testActor) Messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sends...)
}

// countingStore wraps a store and counts every read.
type countingStore struct {
	stats.Store
	calls atomic.Int32
}

func (c *countingStore) AllStats(ctx context.Context, player string) (map[string]string, error) {
	c.calls.Add(1)
	return c.Store.AllStats(ctx, player)
}

func (c *countingStore) Stat(ctx context.Context, player, key string) (string, error) {
	c.calls.Add(1)
	return c.Store.Stat(ctx, player, key)
}

// downStore fails every read as if the database were unreachable.
type downStore struct{}

var errConnRefused = errors.New("dial tcp: connection refused")

func (downStore) AllStats(ctx context.Context, player string) (map[string]string, error) {
	return nil, fmt.Errorf("test: all stats: %w: %w", stats.ErrUnavailable, errConnRefused)
}

func (downStore) Stat(ctx context.Context, player, key string) (string, error) {
	return "", fmt.Errorf("test: stat: %w: %w", stats.ErrUnavailable, errConnRefused)
}

func seeded(t *testing.T) *stats.MemStore {
	t.Helper()
	m := stats.NewMemStore()
	ctx := context.Background()
	for k, v := range map[string]string{"kills": "10", "deaths": "2"} {
		if err := m.SetStat(ctx, "Alice", k, v); err != nil {
			t.Fatalf("SetStat: %v", err)
		}
	}
	if err := m.SetStat(ctx, "Carol", "crafts", "7"); err != nil {
		t.Fatalf("SetStat: %v", err)
	}
	return m
}

func quiet(l *Lookup) *Lookup {
	l.Logf = func(string, ...any) {}
	return l
}

func TestLookupScenarios(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
		ok   bool
	}{
		{"no args", nil, "Usage: /prof lookup [PlayerName] [Statistic]", false},
		{"blank player", []string{"  "}, "Usage: /prof lookup [PlayerName] [Statistic]", false},
		{"all stats sorted", []string{"Alice"}, "deaths: 2\nkills: 10", true},
		{"case insensitive", []string{"ALICE", "Kills"}, "Kills: 10", true},
		{"one stat", []string{"Alice", "kills"}, "kills: 10", true},
		{"unknown player stat", []string{"Bob", "kills"}, "no such statistic kills for Bob", true},
		{"unknown player all", []string{"Bob"}, "no stats found for Bob", true},
		{"extra args ignored", []string{"Alice", "kills", "deaths", "x"}, "kills: 10", true},
		{"no partial names", []string{"Ali", "kills"}, "no such statistic kills for Ali", true},
	}
	l := quiet(NewLookup(seeded(t)))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := newActor("admin")
			got := l.Execute(context.Background(), actor, tt.args)
			if got != tt.ok {
				t.Errorf("Execute(%q) = %v, want %v", tt.args, got, tt.ok)
			}
			if diff := cmp.Diff([]string{tt.want}, actor.Messages()); diff != "" {
				t.Errorf("messages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLookupNonLeakage(t *testing.T) {
	l := quiet(NewLookup(seeded(t)))
	known := newActor("admin")
	unknown := newActor("admin")
	l.Execute(context.Background(), known, []string{"Carol", "kills"})
	l.Execute(context.Background(), unknown, []string{"Zed", "kills"})

	want := func(player string) string { return "no such statistic kills for " + player }
	if got := known.Messages()[0]; got != want("Carol") {
		t.Errorf("existing player missing key: %q", got)
	}
	if got := unknown.Messages()[0]; got != want("Zed") {
		t.Errorf("absent player: %q", got)
	}
}

func TestLookupIdempotent(t *testing.T) {
	l := quiet(NewLookup(seeded(t)))
	var first []string
	for i := 0; i < 3; i++ {
		actor := newActor("admin")
		l.Execute(context.Background(), actor, []string{"Alice"})
		if i == 0 {
			first = actor.Messages()
			continue
		}
		if diff := cmp.Diff(first, actor.Messages()); diff != "" {
			t.Errorf("lookup %d differs (-first +got):\n%s", i, diff)
		}
	}
}

func TestLookupStoreUnavailable(t *testing.T) {
	var logged []string
	l := NewLookup(downStore{})
	l.Logf = func(format string, args ...any) { logged = append(logged, fmt.Sprintf(format, args...)) }

	for _, args := range [][]string{{"Alice"}, {"Alice", "kills"}} {
		actor := newActor("admin")
		if l.Execute(context.Background(), actor, args) {
			t.Errorf("Execute(%q) = true on outage", args)
		}
		if diff := cmp.Diff([]string{MsgUnavailable}, actor.Messages()); diff != "" {
			t.Errorf("messages mismatch (-want +got):\n%s", diff)
		}
	}
	if len(logged) != 2 {
		t.Fatalf("logged %d warnings, want 2: %q", len(logged), logged)
	}
}

func TestLookupThroughDispatcher(t *testing.T) {
	store := &countingStore{Store: seeded(t)}
	reg := command.NewRegistry()
	gate := command.CapabilityGate{}
	reg.MustRegister(quiet(NewLookup(store)), NewHelp(reg, gate))
	d := command.NewDispatcher(reg, gate, command.WithRoot("prof"), command.WithLogger(func(string, ...any) {}))

	denied := newActor("bob", "spigot_craftyprofessions.admin.other")
	d.DispatchLine(context.Background(), denied, "/prof lookup Alice kills")
	if diff := cmp.Diff([]string{command.MsgPermissionDenied}, denied.Messages()); diff != "" {
		t.Errorf("denied messages mismatch (-want +got):\n%s", diff)
	}
	if n := store.calls.Load(); n != 0 {
		t.Errorf("store queried %d times on denial, want 0", n)
	}

	admin := newActor("alice", PermLookup)
	d.DispatchLine(context.Background(), admin, "/prof lookup Alice kills")
	if diff := cmp.Diff([]string{"kills: 10"}, admin.Messages()); diff != "" {
		t.Errorf("admin messages mismatch (-want +got):\n%s", diff)
	}
	if n := store.calls.Load(); n != 1 {
		t.Errorf("store queried %d times, want 1", n)
	}
}

func TestLookupOutageDoesNotEscape(t *testing.T) {
	reg := command.NewRegistry()
	lookup := quiet(NewLookup(downStore{}))
	reg.MustRegister(lookup)
	d := command.NewDispatcher(reg, command.CapabilityGate{}, command.WithLogger(func(string, ...any) {}))

	actor := newActor("alice", PermLookup)
	d.Dispatch(context.Background(), actor, "lookup", []string{"Alice"})
	if diff := cmp.Diff([]string{MsgUnavailable}, actor.Messages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestHelp(t *testing.T) {
	reg := command.NewRegistry()
	gate := command.CapabilityGate{}
	reg.MustRegister(NewLookup(stats.NewMemStore()), NewHelp(reg, gate))
	h, _ := reg.Get("help")

	player := newActor("bob", PermHelp)
	h.Execute(context.Background(), player, nil)
	want := "/prof help [Command] - Lists the commands you can use, or describes one of them."
	if diff := cmp.Diff([]string{want}, player.Messages()); diff != "" {
		t.Errorf("player help mismatch (-want +got):\n%s", diff)
	}

	player = newActor("bob", PermHelp)
	h.Execute(context.Background(), player, []string{"lookup"})
	if diff := cmp.Diff([]string{"no help for lookup"}, player.Messages()); diff != "" {
		t.Errorf("hidden command help mismatch (-want +got):\n%s", diff)
	}

	admin := newActor("alice", PermHelp, PermLookup)
	h.Execute(context.Background(), admin, []string{"LOOKUP"})
	msgs := admin.Messages()
	if len(msgs) != 1 || msgs[0] != "Usage: "+lookupMeta.Usage()+"\n"+lookupMeta.Description() {
		t.Errorf("lookup help = %q", msgs)
	}

	admin = newActor("alice", PermHelp, PermLookup)
	h.Execute(context.Background(), admin, nil)
	if msgs := admin.Messages(); len(msgs) != 1 {
		t.Fatalf("help sent %d messages", len(msgs))
	}
}

type fakeReconnector struct {
	calls atomic.Int32
	err   error
}

func (f *fakeReconnector) Reconnect() error {
	f.calls.Add(1)
	return f.err
}

func TestReconnect(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    string
		wantOK  bool
		wantLog string
	}{
		{"ok", nil, "stat store reconnected", true, "stat store reconnected by alice"},
		{"fails", errors.New("disk gone"), MsgUnavailable, false, "ERROR: reconnect by alice: disk gone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeReconnector{err: tt.err}
			var logged []string
			r := NewReconnect(store)
			r.Logf = func(format string, args ...any) { logged = append(logged, fmt.Sprintf(format, args...)) }

			actor := newActor("alice", PermReconnect)
			if ok := r.Execute(context.Background(), actor, nil); ok != tt.wantOK {
				t.Errorf("Execute = %v, want %v", ok, tt.wantOK)
			}
			if diff := cmp.Diff([]string{tt.want}, actor.Messages()); diff != "" {
				t.Errorf("messages mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{tt.wantLog}, logged); diff != "" {
				t.Errorf("log mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReconnectRequiresGrant(t *testing.T) {
	store := &fakeReconnector{}
	reg := command.NewRegistry()
	reg.MustRegister(NewReconnect(store))
	d := command.NewDispatcher(reg, command.CapabilityGate{}, command.WithRoot("prof"), command.WithLogger(func(string, ...any) {}))

	actor := newActor("bob", PermLookup)
	d.DispatchLine(context.Background(), actor, "/prof reconnect")
	if diff := cmp.Diff([]string{command.MsgPermissionDenied}, actor.Messages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if n := store.calls.Load(); n != 0 {
		t.Errorf("Reconnect called %d times on denial, want 0", n)
	}
}
