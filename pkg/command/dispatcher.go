package command

import (
	"context"
	"log"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/buildkite/shellwords"
)

// Fixed responses for the dispatcher's own branches. The denial text is the
// same for every permission so it reveals nothing about the command.
const (
	MsgUnknownCommand   = "unknown command"
	MsgPermissionDenied = "permission denied"
	MsgInternalError    = "internal error"
)

// Outcome classifies a dispatch for logging and metrics.
type Outcome int

const (
	OutcomeOK      Outcome = iota // handler returned true
	OutcomeFailed                 // handler returned false
	OutcomeDenied                 // gate refused
	OutcomeUnknown                // no such command
	OutcomePanic                  // handler panicked
)

var outcomeNames = [...]string{"ok", "failed", "denied", "unknown", "panic"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "invalid"
}

// Observer receives one report per dispatch.
type Observer interface {
	ObserveDispatch(command string, outcome Outcome, elapsed time.Duration)
}

// Dispatcher routes invocations to registered handlers.
type Dispatcher struct {
	registry *Registry
	gate     Gate
	observer Observer
	root     string
	fallback string
	logf     func(format string, args ...any)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver reports every dispatch outcome to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithRoot makes DispatchLine accept and strip a leading root command, as in
// "/prof lookup Alice". The root stays optional.
func WithRoot(root string) Option {
	return func(d *Dispatcher) { d.root = strings.ToLower(root) }
}

// WithFallback names the command DispatchLine runs when the line holds
// nothing but the root command.
func WithFallback(name string) Option {
	return func(d *Dispatcher) { d.fallback = name }
}

// WithLogger replaces log.Printf.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(d *Dispatcher) { d.logf = logf }
}

// NewDispatcher builds a dispatcher over a registry filled at startup.
func NewDispatcher(reg *Registry, gate Gate, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		gate:     gate,
		fallback: "help",
		logf:     log.Printf,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher resolves names from.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// sendTracker remembers whether the handler has answered the actor.
type sendTracker struct {
	Actor
	sent atomic.Bool
}

func (s *sendTracker) Send(msg string) {
	s.sent.Store(true)
	s.Actor.Send(msg)
}

// Dispatch resolves name, applies the permission gate and runs the handler.
// The actor always receives exactly one message.
func (d *Dispatcher) Dispatch(ctx context.Context, actor Actor, name string, args []string) {
	start := time.Now()
	h, ok := d.registry.Get(name)
	if !ok {
		actor.Send(MsgUnknownCommand)
		d.report(actor, name, OutcomeUnknown, start)
		return
	}
	md := h.Metadata()
	if !d.gate.HasPermission(actor, md.Permission()) {
		actor.Send(MsgPermissionDenied)
		d.report(actor, md.Name(), OutcomeDenied, start)
		return
	}

	tracked := &sendTracker{Actor: actor}
	outcome := d.execute(ctx, h, tracked, args)
	d.report(actor, md.Name(), outcome, start)
}

func (d *Dispatcher) execute(ctx context.Context, h Handler, actor *sendTracker, args []string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logf("ERROR: command %s panicked for %s: %v\n%s", h.Metadata().Name(), actor.Name(), r, debug.Stack())
			if !actor.sent.Load() {
				actor.Send(MsgInternalError)
			}
			outcome = OutcomePanic
		}
	}()
	if h.Execute(ctx, actor, args) {
		return OutcomeOK
	}
	return OutcomeFailed
}

func (d *Dispatcher) report(actor Actor, name string, outcome Outcome, start time.Time) {
	elapsed := time.Since(start)
	d.logf("dispatch: actor=%s cmd=%s outcome=%s elapsed=%s", actor.Name(), name, outcome, elapsed.Round(time.Microsecond))
	if d.observer != nil {
		d.observer.ObserveDispatch(strings.ToLower(name), outcome, elapsed)
	}
}

// ParseLine splits a raw input line into a command name and arguments using
// POSIX shell quoting. The optional root and a leading slash on the root or
// the command name are stripped.
// An empty name means the line named only the root.
func ParseLine(line, root string) (name string, args []string, err error) {
	words, err := shellwords.SplitPosix(strings.TrimSpace(line))
	if err != nil {
		return "", nil, err
	}
	if len(words) == 0 {
		return "", nil, nil
	}
	words[0] = strings.TrimPrefix(words[0], "/")
	if root != "" && strings.EqualFold(words[0], root) {
		words = words[1:]
	}
	if len(words) == 0 {
		return "", nil, nil
	}
	return strings.TrimPrefix(words[0], "/"), words[1:], nil
}

// DispatchLine parses line and dispatches it. Blank lines are ignored.
func (d *Dispatcher) DispatchLine(ctx context.Context, actor Actor, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	name, args, err := ParseLine(line, d.root)
	if err != nil {
		actor.Send("could not parse command: " + err.Error())
		return
	}
	if name == "" {
		name = d.fallback
	}
	d.Dispatch(ctx, actor, name, args)
}
