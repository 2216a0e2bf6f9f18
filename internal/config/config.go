package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/byteom/scanstation/internal/core/domain"
	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Addr    string `env:"SCANSTATION_ADDR" envDefault:":8080"`
	Profile string `env:"SCANSTATION_PROFILE" envDefault:"volunteer"`
	Debug   bool   `env:"SCANSTATION_DEBUG"`
	Tracing bool   `env:"SCANSTATION_TRACING"`
	DBPath  string `env:"SCANSTATION_DB"`

	// Verification backend
	VerifyURL     string        `env:"SCANSTATION_VERIFY_URL" envDefault:"http://localhost:3000"`
	APIToken      string        `env:"SCANSTATION_API_TOKEN"`
	VerifyTimeout time.Duration `env:"SCANSTATION_VERIFY_TIMEOUT" envDefault:"10s"`

	// Camera
	SysfsRoot    string        `env:"SCANSTATION_SYSFS" envDefault:"/sys/class/video4linux"`
	DevRoot      string        `env:"SCANSTATION_DEV" envDefault:"/dev"`
	DecoderPath  string        `env:"SCANSTATION_DECODER" envDefault:"zbarcam"`
	DecoderGrace time.Duration `env:"SCANSTATION_DECODER_GRACE" envDefault:"500ms"`

	// Session timings
	Cooldown     time.Duration `env:"SCANSTATION_COOLDOWN" envDefault:"5s"`
	SettleDelay  time.Duration `env:"SCANSTATION_SETTLE_DELAY" envDefault:"350ms"`
	RetryDelay   time.Duration `env:"SCANSTATION_RETRY_DELAY" envDefault:"2s"`
	MaxRetries   int           `env:"SCANSTATION_MAX_RETRIES" envDefault:"3"`
	SuccessDwell time.Duration `env:"SCANSTATION_SUCCESS_DWELL" envDefault:"1500ms"`
	FailureDwell time.Duration `env:"SCANSTATION_FAILURE_DWELL" envDefault:"2s"`

	// Command endpoints, per remote address
	CommandRate  float64 `env:"SCANSTATION_COMMAND_RATE" envDefault:"2"`
	CommandBurst int     `env:"SCANSTATION_COMMAND_BURST" envDefault:"5"`

	// Simulation
	MockMode     bool          `env:"SCANSTATION_MOCK"`
	MockBusy     int           `env:"SCANSTATION_MOCK_BUSY"`
	MockInterval time.Duration `env:"SCANSTATION_MOCK_INTERVAL" envDefault:"3s"`
	MockScript   []string      `env:"SCANSTATION_MOCK_SCRIPT" envSeparator:","`
}

// Load parses environment variables and then args to populate Config.
// Flags take precedence over environment variables.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	script := strings.Join(cfg.MockScript, ",")

	fs := flag.NewFlagSet("scanstation", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	fs.StringVar(&cfg.Profile, "profile", cfg.Profile, "Scanner profile (volunteer, stall)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")
	fs.BoolVar(&cfg.Tracing, "tracing", cfg.Tracing, "Export traces to stdout")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite scan history")
	fs.StringVar(&cfg.VerifyURL, "verify-url", cfg.VerifyURL, "Verification backend base URL")
	fs.StringVar(&cfg.APIToken, "token", cfg.APIToken, "Bearer token for the verification backend")
	fs.DurationVar(&cfg.VerifyTimeout, "verify-timeout", cfg.VerifyTimeout, "Verification request timeout")
	fs.StringVar(&cfg.SysfsRoot, "sysfs", cfg.SysfsRoot, "video4linux sysfs class directory")
	fs.StringVar(&cfg.DevRoot, "dev", cfg.DevRoot, "Directory holding video device nodes")
	fs.StringVar(&cfg.DecoderPath, "decoder-path", cfg.DecoderPath, "Path to zbarcam binary")
	fs.DurationVar(&cfg.DecoderGrace, "decoder-grace", cfg.DecoderGrace, "Time the decoder must survive to count as started")
	fs.DurationVar(&cfg.Cooldown, "cooldown", cfg.Cooldown, "Same-payload suppression window")
	fs.DurationVar(&cfg.SettleDelay, "settle", cfg.SettleDelay, "Delay between camera release and start")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "Delay before retrying a busy camera")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Busy camera retries before giving up")
	fs.DurationVar(&cfg.SuccessDwell, "success-dwell", cfg.SuccessDwell, "Time the success result stays up")
	fs.DurationVar(&cfg.FailureDwell, "failure-dwell", cfg.FailureDwell, "Time the failure result stays up")
	fs.Float64Var(&cfg.CommandRate, "command-rate", cfg.CommandRate, "Command requests per second per client")
	fs.IntVar(&cfg.CommandBurst, "command-burst", cfg.CommandBurst, "Command request burst per client")
	fs.BoolVar(&cfg.MockMode, "mock", cfg.MockMode, "Run with simulated cameras")
	fs.IntVar(&cfg.MockBusy, "mock-busy", cfg.MockBusy, "Simulated busy failures before a camera starts")
	fs.DurationVar(&cfg.MockInterval, "mock-interval", cfg.MockInterval, "Time between simulated decodes")
	fs.StringVar(&script, "mock-script", script, "Comma separated payloads for simulated decodes")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.MockScript = parseList(script)
	if cfg.DBPath == "" {
		cfg.DBPath = getDefaultDBPath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := domain.ParseProfile(c.Profile); err != nil {
		return fmt.Errorf("%w: %q", err, c.Profile)
	}
	if c.MaxRetries < 0 {
		return errors.New("max-retries must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"cooldown":      c.Cooldown,
		"success-dwell": c.SuccessDwell,
		"failure-dwell": c.FailureDwell,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.SettleDelay < 0 || c.RetryDelay < 0 {
		return errors.New("settle and retry-delay must not be negative")
	}
	if c.CommandRate <= 0 || c.CommandBurst <= 0 {
		return errors.New("command-rate and command-burst must be positive")
	}
	return nil
}

func parseList(s string) []string {
	var items []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// getDefaultDBPath returns the default database path in user's home directory.
// Creates the directory if it doesn't exist.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory, using current dir: %v", err)
		return "scanstation.db"
	}

	dir := filepath.Join(home, ".scanstation")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("Warning: Could not create .scanstation directory, using current dir: %v", err)
		return "scanstation.db"
	}

	return filepath.Join(dir, "scanstation.db")
}
