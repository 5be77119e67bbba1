package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/schaermu/resha/internal/discovery"
)

// EnvPrefix prefixes every environment override, e.g. RESHA_DRY_RUN
const EnvPrefix = "RESHA"

// DefaultConfigName is looked up in the working directory when no config
// file is given
const DefaultConfigName = ".resha.config"

// Configuration keys. Flags bind to the key of the same name with dashes
// replaced by underscores; env vars are EnvPrefix + "_" + upper-cased key.
const (
	KeyManifests     = "manifests"
	KeyDirs          = "dirs"
	KeyPattern       = "pattern"
	KeyRecursive     = "recursive"
	KeyFailFast      = "fail_fast"
	KeyDryRun        = "dry_run"
	KeyQuiet         = "quiet"
	KeyTrace         = "trace"
	KeyRoot          = "root"
	KeyRequireInputs = "require_inputs"
	KeyShell         = "shell"
	KeyLogLevel      = "log_level"
	KeyLogFormat     = "log_format"
	KeyListManifests = "list_manifests"
	KeyListInputs    = "list_inputs"
	KeyListChanged   = "list_changed"
)

// flagKeys maps configuration keys to flag names
var flagKeys = map[string]string{
	KeyDirs:          "dir",
	KeyPattern:       "pattern",
	KeyRecursive:     "recursive",
	KeyFailFast:      "fail-fast",
	KeyDryRun:        "dry-run",
	KeyQuiet:         "quiet",
	KeyTrace:         "trace",
	KeyRoot:          "root",
	KeyRequireInputs: "require-inputs",
	KeyShell:         "shell",
	KeyLogLevel:      "log-level",
	KeyLogFormat:     "log-format",
	KeyListManifests: "list-manifests",
	KeyListInputs:    "list-inputs",
	KeyListChanged:   "list-changed",
}

// Config is the resolved configuration for one run
type Config struct {
	// Manifests are explicit manifest paths; when set, discovery is skipped
	Manifests []string
	// Dirs are the discovery roots; empty means the working directory
	Dirs      []string
	Pattern   string
	Recursive bool

	FailFast      bool
	DryRun        bool
	Quiet         bool
	Trace         bool
	RequireInputs bool
	// Root, when set, replaces each manifest's directory as the base for
	// entry paths and the command working directory
	Root  string
	Shell string

	LogLevel  string
	LogFormat string

	ListManifests bool
	ListInputs    bool
	ListChanged   bool
}

// Load resolves the configuration. Precedence, highest first: explicit
// flags, RESHA_* environment variables, the config file, defaults.
// Positional manifest paths in args replace any configured manifest list.
func Load(flags *pflag.FlagSet, configFile string, args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}

	cfg := &Config{
		Manifests:     v.GetStringSlice(KeyManifests),
		Dirs:          v.GetStringSlice(KeyDirs),
		Pattern:       v.GetString(KeyPattern),
		Recursive:     v.GetBool(KeyRecursive),
		FailFast:      v.GetBool(KeyFailFast),
		DryRun:        v.GetBool(KeyDryRun),
		Quiet:         v.GetBool(KeyQuiet),
		Trace:         v.GetBool(KeyTrace),
		RequireInputs: v.GetBool(KeyRequireInputs),
		Root:          v.GetString(KeyRoot),
		Shell:         v.GetString(KeyShell),
		LogLevel:      v.GetString(KeyLogLevel),
		LogFormat:     v.GetString(KeyLogFormat),
		ListManifests: v.GetBool(KeyListManifests),
		ListInputs:    v.GetBool(KeyListInputs),
		ListChanged:   v.GetBool(KeyListChanged),
	}
	if len(args) > 0 {
		cfg.Manifests = args
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyPattern, discovery.DefaultPattern)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
}

// readConfigFile loads configFile, or the default config file if present
func readConfigFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(os.ExpandEnv(configFile))
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	v.SetConfigName(DefaultConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// expandEnv expands environment variables in path settings
func (c *Config) expandEnv() {
	c.Root = os.ExpandEnv(c.Root)
	for i := range c.Dirs {
		c.Dirs[i] = os.ExpandEnv(c.Dirs[i])
	}
	for i := range c.Manifests {
		c.Manifests[i] = os.ExpandEnv(c.Manifests[i])
	}
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Pattern == "" {
		c.Pattern = discovery.DefaultPattern
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Root != "" {
		if abs, err := filepath.Abs(c.Root); err == nil {
			c.Root = abs
		}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if _, err := discovery.ParsePattern(c.Pattern); err != nil {
		return err
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	switch c.LogFormat {
	case "text", "json":
		// valid
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.LogFormat)
	}

	if c.Root != "" {
		info, err := os.Stat(c.Root)
		if err != nil {
			return fmt.Errorf("root: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("root must be a directory: %s", c.Root)
		}
	}

	return nil
}

// Explicit reports whether manifests were given directly. Explicit
// manifests take priority over Dirs.
func (c *Config) Explicit() bool {
	return len(c.Manifests) > 0
}
