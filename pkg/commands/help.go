package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/crystal-mush/profstats/pkg/command"
)

// PermHelp is the grant required to run help.
const PermHelp = "spigot_craftyprofessions.help"

var helpMeta = command.MustMetadata(
	"help",
	"Lists the commands you can use, or describes one of them.",
	"/prof help [Command]",
	PermHelp,
)

// Help lists the commands an actor is allowed to run.
type Help struct {
	registry *command.Registry
	gate     command.Gate
}

// NewHelp builds a help handler over reg, filtering by gate.
func NewHelp(reg *command.Registry, gate command.Gate) *Help {
	return &Help{registry: reg, gate: gate}
}

func (h *Help) Metadata() command.Metadata { return helpMeta }

func (h *Help) Execute(ctx context.Context, actor command.Actor, args []string) bool {
	if len(args) > 0 {
		target, ok := h.registry.Get(args[0])
		if !ok || !h.gate.HasPermission(actor, target.Metadata().Permission()) {
			actor.Send(fmt.Sprintf("no help for %s", args[0]))
			return true
		}
		md := target.Metadata()
		actor.Send(fmt.Sprintf("Usage: %s\n%s", md.Usage(), md.Description()))
		return true
	}

	var lines []string
	for _, c := range h.registry.All() {
		md := c.Metadata()
		if !h.gate.HasPermission(actor, md.Permission()) {
			continue
		}
		lines = append(lines, md.Usage()+" - "+md.Description())
	}
	if len(lines) == 0 {
		actor.Send("no commands available")
		return true
	}
	actor.Send(strings.Join(lines, "\n"))
	return true
}
