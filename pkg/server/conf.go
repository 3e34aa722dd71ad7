package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConf is returned by Validate.
var ErrInvalidConf = errors.New("invalid configuration")

// Store drivers.
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Conf holds the service configuration. Values come from DefaultConf, then
// the YAML file, then PROF_* environment variables, then command-line flags.
type Conf struct {
	// Telnet-style line listener
	Port        int    `yaml:"port" env:"PROF_PORT"`
	Cleartext   bool   `yaml:"cleartext" env:"PROF_CLEARTEXT"`
	IdleTimeout int    `yaml:"idle_timeout" env:"PROF_IDLE_TIMEOUT"` // seconds, 0 = none
	MaxRetries  int    `yaml:"max_retries" env:"PROF_MAX_RETRIES"`
	WelcomeText string `yaml:"welcome_text"`
	RootCommand string `yaml:"root_command" env:"PROF_ROOT_COMMAND"`
	// Command run when a line holds only the root, as in "/prof"
	FallbackCommand string `yaml:"fallback_command" env:"PROF_FALLBACK_COMMAND"`

	// Stat store
	StoreDriver  string `yaml:"store_driver" env:"PROF_STORE_DRIVER"`
	StorePath    string `yaml:"store_path" env:"PROF_STORE_PATH"`
	StoreTimeout int    `yaml:"store_timeout" env:"PROF_STORE_TIMEOUT"` // seconds

	// Accounts
	RosterFile  string `yaml:"roster_file" env:"PROF_ROSTER_FILE"`
	RosterWatch bool   `yaml:"roster_watch" env:"PROF_ROSTER_WATCH"`

	// Console actor on stdin
	Console            bool     `yaml:"console" env:"PROF_CONSOLE"`
	ConsolePermissions []string `yaml:"console_permissions" env:"PROF_CONSOLE_PERMISSIONS" envSeparator:","`

	// Web transport
	WebEnabled     bool     `yaml:"web_enabled" env:"PROF_WEB_ENABLED"`
	WebHost        string   `yaml:"web_host" env:"PROF_WEB_HOST"`
	WebPort        int      `yaml:"web_port" env:"PROF_WEB_PORT"`
	WebCORSOrigins []string `yaml:"web_cors_origins" env:"PROF_WEB_CORS_ORIGINS" envSeparator:","`
	WebRateLimit   int      `yaml:"web_rate_limit" env:"PROF_WEB_RATE_LIMIT"` // requests per minute per IP
	JWTSecret      string   `yaml:"jwt_secret" env:"PROF_JWT_SECRET"`
	JWTExpiry      int      `yaml:"jwt_expiry" env:"PROF_JWT_EXPIRY"` // seconds

	// Logging
	LogFile       string `yaml:"log_file" env:"PROF_LOG_FILE"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb" env:"PROF_LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `yaml:"log_max_backups" env:"PROF_LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `yaml:"log_max_age_days" env:"PROF_LOG_MAX_AGE_DAYS"`
}

// DefaultConf returns sensible defaults.
func DefaultConf() *Conf {
	return &Conf{
		Port:               6260,
		Cleartext:          true,
		IdleTimeout:        3600,
		MaxRetries:         3,
		WelcomeText:        WelcomeText,
		RootCommand:        "prof",
		FallbackCommand:    "help",
		StoreDriver:        DriverBolt,
		StorePath:          "data/profstats.db",
		StoreTimeout:       5,
		RosterFile:         "data/roster.yaml",
		RosterWatch:        true,
		Console:            false,
		ConsolePermissions: []string{"spigot_craftyprofessions.help", "spigot_craftyprofessions.admin.lookup"},
		WebEnabled:         false,
		WebPort:            8460,
		WebRateLimit:       60,
		JWTExpiry:          86400,
		LogMaxSizeMB:       50,
		LogMaxBackups:      5,
		LogMaxAgeDays:      30,
	}
}

// LoadConf reads a YAML config file over the defaults. An empty path yields
// the defaults. Relative store and roster paths resolve against the
// config file's directory.
func LoadConf(path string) (*Conf, error) {
	c := DefaultConf()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	c.StorePath = resolvePath(baseDir, c.StorePath)
	c.RosterFile = resolvePath(baseDir, c.RosterFile)
	c.LogFile = resolvePath(baseDir, c.LogFile)
	return c, nil
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// ApplyEnv overlays PROF_* environment variables. Unset variables leave the
// current values alone.
func (c *Conf) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Conf) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverBolt, DriverSQLite:
		if strings.TrimSpace(c.StorePath) == "" {
			errs = append(errs, fmt.Errorf("%w: store_path is required for driver %s", ErrInvalidConf, c.StoreDriver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConf, c.StoreDriver))
	}
	if c.Cleartext && (c.Port <= 0 || c.Port > 65535) {
		errs = append(errs, fmt.Errorf("%w: port %d out of range", ErrInvalidConf, c.Port))
	}
	if c.WebEnabled && (c.WebPort <= 0 || c.WebPort > 65535) {
		errs = append(errs, fmt.Errorf("%w: web_port %d out of range", ErrInvalidConf, c.WebPort))
	}
	if !c.Cleartext && !c.WebEnabled && !c.Console {
		errs = append(errs, fmt.Errorf("%w: no transport enabled", ErrInvalidConf))
	}
	if strings.TrimSpace(c.RootCommand) == "" {
		errs = append(errs, fmt.Errorf("%w: root_command is empty", ErrInvalidConf))
	}
	if strings.TrimSpace(c.FallbackCommand) == "" {
		errs = append(errs, fmt.Errorf("%w: fallback_command is empty", ErrInvalidConf))
	}
	return errors.Join(errs...)
}

// StoreTimeoutDuration returns the store busy timeout.
func (c *Conf) StoreTimeoutDuration() time.Duration {
	if c.StoreTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.StoreTimeout) * time.Second
}
