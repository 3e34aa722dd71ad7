package commands

import (
	"context"
	"log"

	"github.com/crystal-mush/profstats/pkg/command"
)

// PermReconnect is the grant required to reopen the stat store.
const PermReconnect = "spigot_craftyprofessions.admin.reconnect"

var reconnectMeta = command.MustMetadata(
	"reconnect",
	"Closes and reopens the stat store connection.",
	"/prof reconnect",
	PermReconnect,
)

// Reconnector is a store whose connection can be reopened in place.
type Reconnector interface {
	Reconnect() error
}

// Reconnect reopens the stat store after the database was moved or restored.
type Reconnect struct {
	store Reconnector
	Logf  func(format string, args ...any)
}

// NewReconnect builds the reconnect command over store.
func NewReconnect(store Reconnector) *Reconnect {
	return &Reconnect{store: store, Logf: log.Printf}
}

func (r *Reconnect) Metadata() command.Metadata { return reconnectMeta }

func (r *Reconnect) Execute(ctx context.Context, actor command.Actor, args []string) bool {
	if err := r.store.Reconnect(); err != nil {
		r.Logf("ERROR: reconnect by %s: %v", actor.Name(), err)
		actor.Send(MsgUnavailable)
		return false
	}
	r.Logf("stat store reconnected by %s", actor.Name())
	actor.Send("stat store reconnected")
	return true
}
