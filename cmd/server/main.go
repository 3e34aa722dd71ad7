package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/crystal-mush/profstats/pkg/command"
	"github.com/crystal-mush/profstats/pkg/commands"
	"github.com/crystal-mush/profstats/pkg/roster"
	"github.com/crystal-mush/profstats/pkg/server"
	"github.com/crystal-mush/profstats/pkg/sqlstore"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("PROF_CONF", ""), "Path to YAML config file (env: PROF_CONF)")
	port := flag.Int("port", 0, "TCP port to listen on, overrides config")
	driver := flag.String("driver", "", "Stat store driver: bolt, sqlite or memory, overrides config")
	storePath := flag.String("store", "", "Stat store file, overrides config")
	rosterFile := flag.String("roster", "", "Roster YAML file, overrides config")
	console := flag.Bool("console", false, "Accept commands on stdin as the console actor")
	web := flag.Bool("web", false, "Enable the HTTP/WebSocket API")
	genSecret := flag.Bool("gen-jwt-secret", false, "Print a random jwt_secret value and exit")
	flag.Parse()

	if *genSecret {
		fmt.Println(server.GenerateJWTSecret())
		return
	}

	conf, err := server.LoadConf(*confFile)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if err := conf.ApplyEnv(); err != nil {
		log.Fatalf("Error reading environment: %v", err)
	}

	// Command-line flags override config file and environment values
	if *port != 0 {
		conf.Port = *port
	}
	if *driver != "" {
		conf.StoreDriver = *driver
	}
	if *storePath != "" {
		conf.StorePath = *storePath
	}
	if *rosterFile != "" {
		conf.RosterFile = *rosterFile
	}
	if *console {
		conf.Console = true
	}
	if *web {
		conf.WebEnabled = true
	}
	if err := conf.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error:\n%v\n\n", err)
		fmt.Fprintln(os.Stderr, "Usage: profstats [-conf profstats.yaml] [-driver bolt|sqlite|memory] [-store <file>] [-roster <file>] [-port 6260]")
		fmt.Fprintln(os.Stderr, "Environment variables PROF_* override the config file; flags override both.")
		os.Exit(1)
	}

	logCloser := server.SetupLogging(conf)
	defer logCloser.Close()
	log.Printf("profstats %s starting", server.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := server.OpenStore(conf.StoreDriver, conf.StorePath, conf.StoreTimeoutDuration())
	if err != nil {
		log.Fatalf("Error opening %s store %s: %v", conf.StoreDriver, conf.StorePath, err)
	}
	defer func() {
		if sq, ok := store.(*sqlstore.Store); ok {
			if err := sq.Checkpoint(); err != nil {
				log.Printf("WARNING: WAL checkpoint failed: %v", err)
			}
		}
		if err := store.Close(); err != nil {
			log.Printf("WARNING: closing store: %v", err)
		}
	}()
	log.Printf("Stat store: %s %s", conf.StoreDriver, conf.StorePath)

	accounts, err := roster.Load(conf.RosterFile)
	if err != nil {
		log.Fatalf("Error loading roster: %v", err)
	}
	log.Printf("Roster: %d accounts from %s", accounts.Len(), conf.RosterFile)
	if conf.RosterWatch {
		if err := accounts.Watch(ctx); err != nil {
			log.Printf("WARNING: Could not watch roster: %v", err)
		}
	}

	metrics := server.NewMetrics(time.Now())
	reg := command.NewRegistry()
	gate := command.CapabilityGate{}
	reg.MustRegister(
		commands.NewLookup(metrics.InstrumentStore(store)),
		commands.NewHelp(reg, gate),
	)
	if rc, ok := store.(commands.Reconnector); ok {
		reg.MustRegister(commands.NewReconnect(rc))
	}
	dispatcher := command.NewDispatcher(reg, gate,
		command.WithRoot(conf.RootCommand),
		command.WithFallback(conf.FallbackCommand),
		command.WithObserver(metrics),
	)
	log.Printf("Registered %d commands under /%s", reg.Len(), conf.RootCommand)

	errCh := make(chan error, 2)

	srv := server.NewServer(conf, dispatcher, accounts, metrics)
	if conf.Cleartext {
		if err := srv.Listen(":" + strconv.Itoa(conf.Port)); err != nil {
			log.Fatalf("Server error: %v", err)
		}
		go func() { errCh <- srv.Serve(ctx) }()
	}

	var webSrv *server.WebServer
	if conf.WebEnabled {
		webSrv = server.NewWebServer(conf, dispatcher, accounts, metrics)
		if conf.Cleartext {
			webSrv.TrackSessions(server.TransportTCP, srv.Conns)
		}
		go func() {
			if err := webSrv.Start(); err != nil {
				errCh <- fmt.Errorf("web server: %w", err)
			}
		}()
	}

	if conf.Console {
		actor := server.NewConsoleActor(os.Stdout, conf.ConsolePermissions)
		go server.RunConsole(ctx, dispatcher, actor, os.Stdin)
	}

	select {
	case <-ctx.Done():
		log.Printf("Shutting down")
	case err := <-errCh:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	stop()
	srv.Stop()
	if webSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := webSrv.Stop(shutdownCtx); err != nil {
			log.Printf("WARNING: web shutdown: %v", err)
		}
	}
}
