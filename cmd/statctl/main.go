// Command statctl inspects and edits a profstats stat store offline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rodaine/table"
	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/profstats/pkg/boltstore"
	"github.com/crystal-mush/profstats/pkg/crypt"
	"github.com/crystal-mush/profstats/pkg/server"
	"github.com/crystal-mush/profstats/pkg/sqlstore"
	"github.com/crystal-mush/profstats/pkg/stats"
)

const usage = `Usage: statctl [-driver bolt|sqlite] -path <store> <command> [args]

Commands:
  set <player> <key> <value>   Record a statistic
  get <player> [key]           Print one or all statistics
  list [player]                Table of a player's stats, or of all players
  delete <player>              Remove every statistic of a player
  import <file.yaml>           Load players: {name: {key: value}} from YAML
  backup <dest>                Hot copy of a bolt store
  checkpoint                   Flush the SQLite WAL
  hash <password>              Print a bcrypt hash for the roster file
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid arguments")

func run(argv []string, out io.Writer) error {
	fs := flag.NewFlagSet("statctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	driver := fs.String("driver", server.DriverBolt, "Store driver: bolt or sqlite")
	path := fs.String("path", os.Getenv("PROF_STORE_PATH"), "Store file (env: PROF_STORE_PATH)")
	timeout := fs.Duration("timeout", 5*time.Second, "Store busy timeout")
	if err := fs.Parse(argv); err != nil {
		fmt.Fprint(out, usage)
		return err
	}
	args := fs.Args()
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}
	if args[0] == "hash" {
		if len(args) != 2 {
			return fmt.Errorf("%w: hash <password>", errUsage)
		}
		h, err := crypt.Hash(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, h)
		return nil
	}
	if *path == "" {
		return fmt.Errorf("%w: -path is required", errUsage)
	}
	if *driver == server.DriverMemory {
		return fmt.Errorf("%w: the memory driver has nothing to inspect", errUsage)
	}

	store, err := server.OpenStore(*driver, *path, *timeout)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "set":
		if len(rest) != 3 {
			return fmt.Errorf("%w: set <player> <key> <value>", errUsage)
		}
		if err := store.SetStat(ctx, rest[0], rest[1], rest[2]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Set %s %s = %s\n", rest[0], stats.NormalizeKey(rest[1]), rest[2])
	case "get":
		return get(ctx, store, rest, out)
	case "list":
		return list(ctx, store, rest, out)
	case "delete":
		if len(rest) != 1 {
			return fmt.Errorf("%w: delete <player>", errUsage)
		}
		if err := store.DeleteStats(ctx, rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted stats for %s\n", rest[0])
	case "import":
		if len(rest) != 1 {
			return fmt.Errorf("%w: import <file.yaml>", errUsage)
		}
		return importFile(ctx, store, rest[0], out)
	case "backup":
		bs, ok := store.(*boltstore.Store)
		if !ok || len(rest) != 1 {
			return fmt.Errorf("%w: backup <dest> needs -driver bolt", errUsage)
		}
		if err := bs.Backup(rest[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Backed up %s to %s\n", bs.Path(), rest[0])
	case "checkpoint":
		ss, ok := store.(*sqlstore.Store)
		if !ok {
			return fmt.Errorf("%w: checkpoint needs -driver sqlite", errUsage)
		}
		if err := ss.Checkpoint(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Checkpoint complete")
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	return nil
}

func get(ctx context.Context, store server.StatStore, rest []string, out io.Writer) error {
	switch len(rest) {
	case 1:
		all, err := store.AllStats(ctx, rest[0])
		if err != nil {
			return err
		}
		for _, k := range sortedKeys(all) {
			fmt.Fprintf(out, "%s: %s\n", k, all[k])
		}
	case 2:
		v, err := store.Stat(ctx, rest[0], rest[1])
		if errors.Is(err, stats.ErrNotFound) {
			return fmt.Errorf("no such statistic %s for %s", rest[1], rest[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, v)
	default:
		return fmt.Errorf("%w: get <player> [key]", errUsage)
	}
	return nil
}

func list(ctx context.Context, store server.StatStore, rest []string, out io.Writer) error {
	if len(rest) == 1 {
		all, err := store.AllStats(ctx, rest[0])
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Fprintf(out, "No stats recorded for %s.\n", rest[0])
			return nil
		}
		t := table.New("Statistic", "Value").WithWriter(out)
		for _, k := range sortedKeys(all) {
			t.AddRow(k, all[k])
		}
		t.Print()
		return nil
	}

	players, err := store.Players(ctx)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		fmt.Fprintln(out, "No players recorded.")
		return nil
	}
	t := table.New("Player", "Stats").WithWriter(out)
	for _, p := range players {
		all, err := store.AllStats(ctx, p)
		if err != nil {
			return err
		}
		t.AddRow(p, len(all))
	}
	t.Print()
	return nil
}

type importDoc struct {
	Players map[string]map[string]string `yaml:"players"`
}

func importFile(ctx context.Context, store server.StatStore, path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc importDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	names := make([]string, 0, len(doc.Players))
	for name := range doc.Players {
		names = append(names, name)
	}
	sort.Strings(names)

	count := 0
	for _, name := range names {
		for _, k := range sortedKeys(doc.Players[name]) {
			if err := store.SetStat(ctx, name, k, doc.Players[name][k]); err != nil {
				return fmt.Errorf("import %s %s: %w", name, k, err)
			}
			count++
		}
	}
	fmt.Fprintf(out, "Imported %d stats for %d players\n", count, len(names))
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
