package roster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/bcrypt"

	"github.com/crystal-mush/profstats/pkg/crypt"
)

func bcryptHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func writeRoster(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func rosterYAML(aliceHash, bobHash string) string {
	return `players:
  Alice:
    password: "` + aliceHash + `"
    permissions: ["spigot_craftyprofessions.help", "spigot_craftyprofessions.admin.lookup"]
  bob:
    password: "` + bobHash + `"
    permissions: ["spigot_craftyprofessions.help"]
`
}

func TestLoadAndCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	writeRoster(t, path, rosterYAML(bcryptHash(t, "wonderland"), crypt.DESCrypt("builder", "XX")))

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tests := []struct {
		name, pw string
		want     bool
	}{
		{"alice", "wonderland", true},
		{"ALICE", "wonderland", true},
		{"alice", "Wonderland", false},
		{"bob", "builder", true},
		{"bob", "wonderland", false},
		{"carol", "anything", false},
		{"bob", "", false},
	}
	for _, tt := range tests {
		if got := r.Check(tt.name, tt.pw); got != tt.want {
			t.Errorf("Check(%q, %q) = %v, want %v", tt.name, tt.pw, got, tt.want)
		}
	}
}

func TestPermissions(t *testing.T) {
	r := New(map[string]Entry{
		"Alice": {Permissions: []string{"b.perm", "a.perm"}},
	})
	got, err := r.Permissions("alice")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.perm", "b.perm"}, got); diff != "" {
		t.Errorf("Permissions mismatch (-want +got):\n%s", diff)
	}
	if _, err := r.Permissions("nobody"); !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("Permissions(nobody) err = %v, want ErrUnknownPlayer", err)
	}
	if !r.Capabilities("ALICE").Has("a.perm") {
		t.Error("Capabilities lost a grant")
	}
	if len(r.Capabilities("nobody")) != 0 {
		t.Error("unknown player has capabilities")
	}
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	writeRoster(t, path, rosterYAML(bcryptHash(t, "a"), bcryptHash(t, "b")))
	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	writeRoster(t, path, "players: [not, a, map")
	if err := r.Reload(); err == nil {
		t.Fatal("Reload of broken YAML succeeded")
	}
	if r.Len() != 2 || !r.Check("alice", "a") {
		t.Error("broken reload replaced the roster")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	writeRoster(t, path, "players:\n  alice:\n    permissions: [one]\n")
	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeRoster(t, path, "players:\n  alice:\n    permissions: [one, two]\n")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.Capabilities("alice").Has("two") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("roster change not picked up by watcher")
}
