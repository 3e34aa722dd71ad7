package server

import (
	"context"
	"strings"
	"testing"

	"github.com/crystal-mush/profstats/pkg/command"
	"github.com/crystal-mush/profstats/pkg/commands"
	"github.com/crystal-mush/profstats/pkg/stats"
)

// fakeAccounts is an in-memory Accounts with plaintext passwords.
type fakeAccounts struct {
	passwords map[string]string
	perms     map[string][]string
}

func (f *fakeAccounts) Check(name, password string) bool {
	pw, ok := f.passwords[strings.ToLower(name)]
	return ok && password != "" && pw == password
}

func (f *fakeAccounts) Capabilities(name string) command.Capabilities {
	return command.NewCapabilities(f.perms[strings.ToLower(name)]...)
}

func testAccounts() *fakeAccounts {
	return &fakeAccounts{
		passwords: map[string]string{"alice": "wonderland", "bob": "builder"},
		perms: map[string][]string{
			"alice": {commands.PermHelp, commands.PermLookup},
			"bob":   {commands.PermHelp},
		},
	}
}

func quietLog(string, ...any) {}

// testDispatcher wires lookup and help over a store seeded with Alice's stats.
func testDispatcher(t *testing.T, obs command.Observer) *command.Dispatcher {
	t.Helper()
	store := stats.NewMemStore()
	ctx := context.Background()
	for k, v := range map[string]string{"kills": "10", "deaths": "2"} {
		if err := store.SetStat(ctx, "Alice", k, v); err != nil {
			t.Fatal(err)
		}
	}
	reg := command.NewRegistry()
	gate := command.CapabilityGate{}
	lookup := commands.NewLookup(store)
	lookup.Logf = quietLog
	reg.MustRegister(lookup, commands.NewHelp(reg, gate))
	opts := []command.Option{command.WithRoot("prof"), command.WithLogger(quietLog)}
	if obs != nil {
		opts = append(opts, command.WithObserver(obs))
	}
	return command.NewDispatcher(reg, gate, opts...)
}
