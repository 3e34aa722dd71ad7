package server

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/profstats/pkg/command"
)

// Transport names, used as metric labels.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
	TransportHTTP      = "http"
	TransportConsole   = "console"
)

// ConnState tracks the state of a connection.
type ConnState int

const (
	ConnLogin     ConnState = iota // Pre-login: awaiting connect
	ConnConnected                  // Logged in as a player
)

// Grants resolves a player's current capabilities. Roster implements it.
type Grants interface {
	Capabilities(name string) command.Capabilities
}

// Descriptor is one client session. Once logged in it is the command.Actor
// for everything the client types.
type Descriptor struct {
	ID        int
	Conn      net.Conn
	State     ConnState
	Player    string
	Addr      string
	ConnTime  time.Time
	Retries   int
	Transport string

	// SendFunc overrides the default TCP Send (used by WebSocket transport).
	SendFunc func(msg string)

	grants   Grants
	mu       sync.Mutex
	closed   bool
	lastCmd  time.Time
	cmdCount int
}

var _ command.Actor = (*Descriptor)(nil)

// NewDescriptor wraps a net.Conn into a Descriptor.
func NewDescriptor(id int, conn net.Conn, grants Grants) *Descriptor {
	now := time.Now()
	return &Descriptor{
		ID:        id,
		Conn:      conn,
		State:     ConnLogin,
		Addr:      conn.RemoteAddr().String(),
		ConnTime:  now,
		lastCmd:   now,
		Retries:   3,
		Transport: TransportTCP,
		grants:    grants,
	}
}

// Name implements command.Actor.
func (d *Descriptor) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Player
}

// Capabilities implements command.Actor. Grants are looked up on every call
// so roster reloads apply to live sessions.
func (d *Descriptor) Capabilities() command.Capabilities {
	d.mu.Lock()
	player, state := d.Player, d.State
	d.mu.Unlock()
	if state != ConnConnected || d.grants == nil {
		return nil
	}
	return d.grants.Capabilities(player)
}

// Login marks the descriptor as connected for player.
func (d *Descriptor) Login(player string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.State = ConnConnected
	d.Player = player
}

// Connected reports whether a player is logged in.
func (d *Descriptor) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.State == ConnConnected
}

// Touch records input from the client.
func (d *Descriptor) Touch() {
	d.mu.Lock()
	d.lastCmd = time.Now()
	d.mu.Unlock()
}

// CountCommand records one dispatched command line.
func (d *Descriptor) CountCommand() {
	d.mu.Lock()
	d.cmdCount++
	d.mu.Unlock()
}

// Activity returns the time of the last input and the number of commands run.
func (d *Descriptor) Activity() (lastCmd time.Time, commands int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastCmd.IsZero() {
		return d.ConnTime, d.cmdCount
	}
	return d.lastCmd, d.cmdCount
}

// Send writes a message to the client.
func (d *Descriptor) Send(msg string) {
	if d.SendFunc != nil {
		d.SendFunc(msg)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.Conn == nil {
		return
	}
	// Telnet wants \r\n on every line.
	msg = strings.ReplaceAll(strings.TrimRight(msg, "\r\n"), "\n", "\r\n") + "\r\n"
	d.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	d.Conn.Write([]byte(msg))
}

// SendNoNewline writes text as-is.
func (d *Descriptor) SendNoNewline(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.Conn == nil {
		return
	}
	d.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	d.Conn.Write([]byte(msg))
}

// Close shuts down the connection.
func (d *Descriptor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		if d.Conn != nil {
			d.Conn.Close()
		}
	}
}

// IsClosed returns whether the connection has been closed.
func (d *Descriptor) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// ConnManager tracks all active connections.
type ConnManager struct {
	mu          sync.RWMutex
	descriptors map[int]*Descriptor
	nextID      int
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		descriptors: make(map[int]*Descriptor),
		nextID:      1,
	}
}

// NextID returns the next descriptor ID.
func (cm *ConnManager) NextID() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	id := cm.nextID
	cm.nextID++
	return id
}

// Add registers a new descriptor.
func (cm *ConnManager) Add(d *Descriptor) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.descriptors[d.ID] = d
}

// Remove unregisters a descriptor.
func (cm *ConnManager) Remove(d *Descriptor) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.descriptors, d.ID)
}

// AllDescriptors returns a snapshot of all active descriptors.
func (cm *ConnManager) AllDescriptors() []*Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	descs := make([]*Descriptor, 0, len(cm.descriptors))
	for _, d := range cm.descriptors {
		descs = append(descs, d)
	}
	return descs
}

// Count returns the number of active connections.
func (cm *ConnManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.descriptors)
}

// SessionSummary aggregates the sessions of one ConnManager.
type SessionSummary struct {
	Connections    int     `json:"connections"`
	LoggedIn       int     `json:"logged_in"`
	Commands       int     `json:"commands"`
	OldestSeconds  float64 `json:"oldest_seconds"`
	MaxIdleSeconds float64 `json:"max_idle_seconds"`
}

// Summary reports connection counts, commands run, the age of the oldest
// connection and the longest idle time, as of now.
func (cm *ConnManager) Summary(now time.Time) SessionSummary {
	var sum SessionSummary
	for _, d := range cm.AllDescriptors() {
		sum.Connections++
		if d.Connected() {
			sum.LoggedIn++
		}
		last, cmds := d.Activity()
		sum.Commands += cmds
		if age := now.Sub(d.ConnTime).Seconds(); age > sum.OldestSeconds {
			sum.OldestSeconds = age
		}
		if idle := now.Sub(last).Seconds(); idle > sum.MaxIdleSeconds {
			sum.MaxIdleSeconds = idle
		}
	}
	return sum
}

// CloseAll disconnects every client.
func (cm *ConnManager) CloseAll() {
	for _, d := range cm.AllDescriptors() {
		d.Close()
	}
}
