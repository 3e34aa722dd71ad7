package command

import "sort"

// Capabilities is the set of permission strings granted to an actor.
// Permissions are opaque and matched exactly.
type Capabilities map[string]struct{}

// NewCapabilities builds a capability set from permission names.
func NewCapabilities(perms ...string) Capabilities {
	c := make(Capabilities, len(perms))
	for _, p := range perms {
		if p != "" {
			c[p] = struct{}{}
		}
	}
	return c
}

// Has reports whether perm was granted. A nil set grants nothing.
func (c Capabilities) Has(perm string) bool {
	_, ok := c[perm]
	return ok
}

// List returns the granted permissions sorted.
func (c Capabilities) List() []string {
	out := make([]string, 0, len(c))
	for p := range c {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Actor is the player or console invoking a command. Transports own actors;
// the command layer only references one for the duration of a dispatch.
type Actor interface {
	// Name is the actor's unique identity.
	Name() string
	// Capabilities returns the actor's current grants.
	Capabilities() Capabilities
	// Send delivers one (possibly multi-line) response message.
	Send(msg string)
}

// Gate decides whether an actor holds a permission. Implementations must be
// side-effect free and never fail: a missing grant is simply false.
type Gate interface {
	HasPermission(actor Actor, permission string) bool
}

// CapabilityGate checks the actor's own capability set.
type CapabilityGate struct{}

func (CapabilityGate) HasPermission(actor Actor, permission string) bool {
	if actor == nil || permission == "" {
		return false
	}
	return actor.Capabilities().Has(permission)
}
