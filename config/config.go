// Package config loads the ledger core's startup configuration the way
// dcrlnd's own config.go does: a single tagged struct parsed first from the
// command line, then layered over an optional ini file, using
// jessevdk/go-flags for both passes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "ledgercore.conf"
	defaultDataDir        = "data"
	defaultLogDir         = "logs"
	defaultLogFilename    = "ledgercore.log"
	defaultMaxLogFileSize = 10
	defaultMaxLogFiles    = 3

	// DefaultCASRetries mirrors wallet.DefaultRetries; kept as its own
	// constant here so config does not import the wallet package. The
	// parsed CASRetries value is validated but not passed on: the wallet
	// package's retry loops always use wallet.DefaultRetries.
	DefaultCASRetries = 5

	defaultChargeProviderWindow = 24 * time.Hour
)

// Config is the full set of ledger core startup parameters.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"d" long:"datadir" description:"Directory to store the MAC key and other local state"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `short:"l" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}"`

	MaxLogFileSize int `long:"maxlogfilesize" description:"Maximum log file size in MB before it is rotated"`
	MaxLogFiles    int `long:"maxlogfiles" description:"Maximum number of rotated log files to keep"`

	MACKeyPath string `long:"mackeypath" description:"Path to the 32-byte HMAC secret used by the wallet checksum chain" required:"true"`

	EtcdEndpoints []string `long:"etcd.endpoint" description:"etcd cluster endpoint (may be given multiple times)"`
	EtcdPrefix    string   `long:"etcd.prefix" description:"Key prefix this deployment's rows are namespaced under" default:"ledgercore"`

	CASRetries int `long:"casretries" description:"Number of times a CAS-guarded wallet mutation retries before giving up"`

	ChargeProviderWindow time.Duration `long:"charge.providerwindow" description:"How long a saved charge stays live before a reader renders it expired"`
}

// Default returns a Config populated with the same defaults dcrlnd's own
// loadConfig seeds before the flags/ini passes run.
func Default() *Config {
	return &Config{
		ConfigFile:           defaultConfigFilename,
		DataDir:              defaultDataDir,
		LogDir:               defaultLogDir,
		DebugLevel:           "info",
		MaxLogFileSize:       defaultMaxLogFileSize,
		MaxLogFiles:          defaultMaxLogFiles,
		EtcdPrefix:           "ledgercore",
		CASRetries:           DefaultCASRetries,
		ChargeProviderWindow: defaultChargeProviderWindow,
	}
}

// Load parses args (normally os.Args[1:]) over a Default config, then, if a
// config file exists at the resolved ConfigFile path, re-parses that file's
// ini-formatted contents over the result — command-line flags always win,
// matching dcrlnd's own two-pass precedence.
func Load(args []string) (*Config, error) {
	cfg := Default()

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		if _, err := os.Stat(cfg.ConfigFile); err == nil {
			if err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", cfg.ConfigFile, err)
			}
			// Re-apply the command line so flags still win over the file.
			if _, err := parser.ParseArgs(args); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.MACKeyPath) == 0 {
		return fmt.Errorf("config: mackeypath is required")
	}
	if c.CASRetries <= 0 {
		return fmt.Errorf("config: casretries must be positive, got %d", c.CASRetries)
	}
	if c.ChargeProviderWindow <= 0 {
		return fmt.Errorf("config: charge.providerwindow must be positive")
	}
	return nil
}

// LogFile returns the full path log output should be rotated into.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}
