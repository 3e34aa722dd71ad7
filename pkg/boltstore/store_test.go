package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/crystal-mush/profstats/pkg/stats"
	"github.com/crystal-mush/profstats/pkg/stats/statstest"
	"github.com/google/go-cmp/cmp"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stats.bolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	statstest.Run(t, func(t *testing.T) stats.ReadWriter {
		return openTemp(t)
	})
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.bolt")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetStat(ctx, "Alice", "kills", "10"); err != nil {
		t.Fatalf("SetStat: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	v, err := s.Stat(ctx, "alice", "kills")
	if err != nil {
		t.Fatalf("Stat after reopen: %v", err)
	}
	if v != "10" {
		t.Errorf("Stat after reopen = %q, want 10", v)
	}
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "stats.bolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()
	if _, err := s.AllStats(context.Background(), "alice"); !stats.IsUnavailable(err) {
		t.Errorf("AllStats on closed db: err = %v, want unavailable", err)
	}
	if _, err := s.Stat(context.Background(), "alice", "kills"); !stats.IsUnavailable(err) {
		t.Errorf("Stat on closed db: err = %v, want unavailable", err)
	}
}

func TestPlayersKeepsDisplayName(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	for _, p := range []string{"Zed", "Alice", "alice", "bob"} {
		if err := s.SetStat(ctx, p, "kills", "1"); err != nil {
			t.Fatalf("SetStat(%s): %v", p, err)
		}
	}
	got, err := s.Players(ctx)
	if err != nil {
		t.Fatalf("Players: %v", err)
	}
	want := []string{"Alice", "bob", "Zed"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Players mismatch (-want +got):\n%s", diff)
	}
}

func TestBackup(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	if err := s.SetStat(ctx, "Alice", "kills", "10"); err != nil {
		t.Fatalf("SetStat: %v", err)
	}
	backup := filepath.Join(t.TempDir(), "backup.bolt")
	if err := s.Backup(backup); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	b, err := Open(backup)
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer b.Close()
	if v, err := b.Stat(ctx, "Alice", "kills"); err != nil || v != "10" {
		t.Errorf("backup Stat = %q, %v; want 10", v, err)
	}
}
