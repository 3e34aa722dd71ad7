// Package roster loads player accounts and their permission grants from a
// YAML file and keeps them current while the server runs.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/profstats/pkg/command"
	"github.com/crystal-mush/profstats/pkg/crypt"
)

// ErrUnknownPlayer is returned for names absent from the roster.
var ErrUnknownPlayer = errors.New("roster: unknown player")

// Entry is one account.
type Entry struct {
	Password    string   `yaml:"password"`
	Permissions []string `yaml:"permissions"`
}

type rosterFile struct {
	Players map[string]Entry `yaml:"players"`
}

// Roster is safe for concurrent use. Reloads swap the whole account map.
type Roster struct {
	path string

	mu      sync.RWMutex
	players map[string]Entry
}

// Load reads the roster at path.
func Load(path string) (*Roster, error) {
	r := &Roster{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// New builds an in-memory roster with no backing file.
func New(players map[string]Entry) *Roster {
	return &Roster{players: normalize(players)}
}

// Parse decodes roster YAML.
func Parse(data []byte) (map[string]Entry, error) {
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("roster: parse: %w", err)
	}
	for name := range f.Players {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("roster: parse: empty player name")
		}
	}
	return normalize(f.Players), nil
}

func normalize(in map[string]Entry) map[string]Entry {
	out := make(map[string]Entry, len(in))
	for name, e := range in {
		out[strings.ToLower(strings.TrimSpace(name))] = e
	}
	return out
}

// Reload re-reads the backing file. On error the current accounts are kept.
func (r *Roster) Reload() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("roster: read %s: %w", r.path, err)
	}
	players, err := Parse(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.players = players
	r.mu.Unlock()
	return nil
}

func (r *Roster) entry(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.players[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// Check verifies a login. Names are case-insensitive.
func (r *Roster) Check(name, password string) bool {
	e, ok := r.entry(name)
	if !ok {
		return false
	}
	return crypt.Check(password, e.Password)
}

// Permissions returns the grants for name, sorted.
func (r *Roster) Permissions(name string) ([]string, error) {
	e, ok := r.entry(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, name)
	}
	perms := append([]string(nil), e.Permissions...)
	sort.Strings(perms)
	return perms, nil
}

// Capabilities returns the grants for name as a capability set. Unknown
// players get an empty set.
func (r *Roster) Capabilities(name string) command.Capabilities {
	e, _ := r.entry(name)
	return command.NewCapabilities(e.Permissions...)
}

// Len returns the number of accounts.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Watch reloads the roster whenever its file changes, until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (r *Roster) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("roster: watch: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("roster: watch %s: %w", dir, err)
	}
	base := filepath.Base(r.path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Base(event.Name) != base {
					continue
				}
				if err := r.Reload(); err != nil {
					log.Printf("WARNING: roster reload failed, keeping previous accounts: %v", err)
					continue
				}
				log.Printf("Roster reloaded: %d accounts", r.Len())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Roster watcher error: %v", err)
			}
		}
	}()
	log.Printf("Watching roster for changes: %s", r.path)
	return nil
}
