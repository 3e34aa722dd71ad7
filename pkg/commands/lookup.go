// Package commands holds the concrete command handlers registered with the
// dispatcher at startup.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/crystal-mush/profstats/pkg/command"
	"github.com/crystal-mush/profstats/pkg/stats"
)

// MsgUnavailable is sent when the stat store cannot be reached.
const MsgUnavailable = "stat service unavailable, try again later"

// PermLookup is the grant required to run lookup.
const PermLookup = "spigot_craftyprofessions.admin.lookup"

var lookupMeta = command.MustMetadata(
	"lookup",
	"This command looks up a player's stats based on the given arguments. Leave the statistic blank to obtain all the player's stats.",
	"/prof lookup [PlayerName] [Statistic]",
	PermLookup,
)

// Lookup reports one or all statistics recorded for a player.
type Lookup struct {
	store stats.Store
	Logf  func(format string, args ...any)
}

// NewLookup returns a lookup handler reading from store. The store is shared,
// not owned.
func NewLookup(store stats.Store) *Lookup {
	return &Lookup{store: store, Logf: log.Printf}
}

func (l *Lookup) Metadata() command.Metadata { return lookupMeta }

// Execute runs "lookup <player> [statistic]". Arguments past the statistic
// are ignored.
func (l *Lookup) Execute(ctx context.Context, actor command.Actor, args []string) bool {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		actor.Send("Usage: " + lookupMeta.Usage())
		return false
	}
	player := args[0]

	if len(args) < 2 {
		all, err := l.store.AllStats(ctx, player)
		if err != nil {
			return l.unavailable(actor, player, err)
		}
		if len(all) == 0 {
			actor.Send(fmt.Sprintf("no stats found for %s", player))
			return true
		}
		actor.Send(formatStats(all))
		return true
	}

	key := args[1]
	value, err := l.store.Stat(ctx, player, key)
	switch {
	case errors.Is(err, stats.ErrNotFound):
		actor.Send(fmt.Sprintf("no such statistic %s for %s", key, player))
		return true
	case err != nil:
		return l.unavailable(actor, player, err)
	}
	actor.Send(fmt.Sprintf("%s: %s", key, value))
	return true
}

func (l *Lookup) unavailable(actor command.Actor, player string, err error) bool {
	l.Logf("WARNING: lookup %s for %s: %v", player, actor.Name(), err)
	actor.Send(MsgUnavailable)
	return false
}

// formatStats renders one "key: value" line per statistic, sorted by key.
func formatStats(all map[string]string) string {
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", k, all[k])
	}
	return b.String()
}
