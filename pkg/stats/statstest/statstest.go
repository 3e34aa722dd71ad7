// Package statstest holds a behavioural test suite that every stats.ReadWriter
// backend runs against itself.
package statstest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/crystal-mush/profstats/pkg/stats"
	"github.com/google/go-cmp/cmp"
)

// Run exercises a fresh store returned by open for each subtest.
func Run(t *testing.T, open func(t *testing.T) stats.ReadWriter) {
	t.Helper()
	ctx := context.Background()

	t.Run("EmptyPlayer", func(t *testing.T) {
		s := open(t)
		got, err := s.AllStats(ctx, "Nobody")
		if err != nil {
			t.Fatalf("AllStats: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("AllStats(unknown) = %v, want empty non-nil map", got)
		}
	})

	t.Run("SetAndGet", func(t *testing.T) {
		s := open(t)
		mustSet(t, s, "Alice", "kills", "10")
		mustSet(t, s, "Alice", "deaths", "2")

		got, err := s.AllStats(ctx, "Alice")
		if err != nil {
			t.Fatalf("AllStats: %v", err)
		}
		want := map[string]string{"kills": "10", "deaths": "2"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("AllStats mismatch (-want +got):\n%s", diff)
		}

		v, err := s.Stat(ctx, "Alice", "kills")
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if v != "10" {
			t.Errorf("Stat(kills) = %q, want %q", v, "10")
		}
	})

	t.Run("CaseInsensitivePlayer", func(t *testing.T) {
		s := open(t)
		mustSet(t, s, "Alice", "kills", "10")
		for _, name := range []string{"alice", "ALICE", " Alice "} {
			v, err := s.Stat(ctx, name, "kills")
			if err != nil {
				t.Errorf("Stat(%q): %v", name, err)
				continue
			}
			if v != "10" {
				t.Errorf("Stat(%q) = %q, want 10", name, v)
			}
		}
	})

	t.Run("NoPartialMatch", func(t *testing.T) {
		s := open(t)
		mustSet(t, s, "Alice", "kills", "10")
		if _, err := s.Stat(ctx, "Ali", "kills"); !errors.Is(err, stats.ErrNotFound) {
			t.Errorf("Stat(prefix) err = %v, want ErrNotFound", err)
		}
		got, err := s.AllStats(ctx, "Ali")
		if err != nil {
			t.Fatalf("AllStats(prefix): %v", err)
		}
		if len(got) != 0 {
			t.Errorf("AllStats(prefix) = %v, want empty", got)
		}
	})

	t.Run("NotFoundIsUniform", func(t *testing.T) {
		s := open(t)
		mustSet(t, s, "Alice", "deaths", "2")
		_, errMissingKey := s.Stat(ctx, "Alice", "kills")
		_, errMissingPlayer := s.Stat(ctx, "Bob", "kills")
		if !errors.Is(errMissingKey, stats.ErrNotFound) {
			t.Errorf("missing key err = %v, want ErrNotFound", errMissingKey)
		}
		if !errors.Is(errMissingPlayer, stats.ErrNotFound) {
			t.Errorf("missing player err = %v, want ErrNotFound", errMissingPlayer)
		}
		if stats.IsUnavailable(errMissingKey) || stats.IsUnavailable(errMissingPlayer) {
			t.Error("not-found must not be reported as unavailable")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := open(t)
		mustSet(t, s, "Alice", "kills", "10")
		mustSet(t, s, "alice", "kills", "11")
		v, err := s.Stat(ctx, "Alice", "kills")
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if v != "11" {
			t.Errorf("Stat after overwrite = %q, want 11", v)
		}
	})

	t.Run("DeleteStats", func(t *testing.T) {
		s := open(t)
		mustSet(t, s, "Alice", "kills", "10")
		mustSet(t, s, "Bob", "kills", "3")
		if err := s.DeleteStats(ctx, "ALICE"); err != nil {
			t.Fatalf("DeleteStats: %v", err)
		}
		got, err := s.AllStats(ctx, "Alice")
		if err != nil {
			t.Fatalf("AllStats: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("AllStats after delete = %v, want empty", got)
		}
		if v, err := s.Stat(ctx, "Bob", "kills"); err != nil || v != "3" {
			t.Errorf("Bob's stats affected by delete: %q, %v", v, err)
		}
		if err := s.DeleteStats(ctx, "Nobody"); err != nil {
			t.Errorf("DeleteStats(unknown): %v", err)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		s := open(t)
		mustSet(t, s, "Alice", "kills", "10")
		mustSet(t, s, "Alice", "deaths", "2")
		first, err := s.AllStats(ctx, "Alice")
		if err != nil {
			t.Fatalf("AllStats: %v", err)
		}
		for i := 0; i < 3; i++ {
			again, err := s.AllStats(ctx, "Alice")
			if err != nil {
				t.Fatalf("AllStats: %v", err)
			}
			if diff := cmp.Diff(first, again); diff != "" {
				t.Errorf("repeated AllStats differ (-first +again):\n%s", diff)
			}
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		s := open(t)
		mustSet(t, s, "Alice", "kills", "10")
		var wg sync.WaitGroup
		errs := make(chan error, 32)
		for i := 0; i < 16; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				if _, err := s.Stat(ctx, "Alice", "kills"); err != nil {
					errs <- err
				}
			}()
			go func() {
				defer wg.Done()
				if err := s.SetStat(ctx, "Bob", "kills", "1"); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("concurrent access: %v", err)
		}
	})
}

func mustSet(t *testing.T, s stats.Writer, player, key, value string) {
	t.Helper()
	if err := s.SetStat(context.Background(), player, key, value); err != nil {
		t.Fatalf("SetStat(%q, %q): %v", player, key, err)
	}
}
