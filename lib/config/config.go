// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/probes/lib/statsd"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "BUREAU_PROBES_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the probe configuration.
type Config struct {
	Environment Environment `yaml:"environment" toml:"environment"`

	// Root is the base directory for probe output. Available to other
	// paths as ${BUREAU_PROBES_ROOT}.
	Root string `yaml:"root" toml:"root"`

	Statsd  StatsdConfig  `yaml:"statsd" toml:"statsd"`
	Output  OutputConfig  `yaml:"output" toml:"output"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	Development *ConfigOverrides `yaml:"development,omitempty" toml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty" toml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty" toml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Output  *OutputConfig  `yaml:"output,omitempty" toml:"output,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty" toml:"logging,omitempty"`
}

// StatsdConfig configures the statsd subprocess.
type StatsdConfig struct {
	// Binary is the command to run. A bare name is resolved on PATH.
	// Default: /system/bin/cmd
	Binary string `yaml:"binary" toml:"binary"`

	// Args follow Binary on the command line.
	// Default: ["stats", "data-subscribe"]
	Args []string `yaml:"args" toml:"args"`

	// Subscription selects the atoms to stream. An empty subscription
	// leaves the data source idle.
	Subscription statsd.Subscription `yaml:"subscription" toml:"subscription"`
}

// OutputConfig configures the trace file.
type OutputConfig struct {
	// Path is the trace file to create.
	// Default: ${BUREAU_PROBES_ROOT}/statsd.btrc
	Path string `yaml:"path" toml:"path"`

	// Compression is none, lz4, or zstd.
	// Default: zstd
	Compression string `yaml:"compression" toml:"compression"`

	// ChunkSize is the payload byte count at which a chunk is sealed.
	// Default: 262144
	ChunkSize int `yaml:"chunk_size" toml:"chunk_size"`

	// FlushInterval is how often the probe flushes the trace file
	// while statsd is running, as a Go duration.
	// Default: 10s
	FlushInterval string `yaml:"flush_interval" toml:"flush_interval"`
}

// FlushPeriod parses FlushInterval.
func (o OutputConfig) FlushPeriod() (time.Duration, error) {
	period, err := time.ParseDuration(o.FlushInterval)
	if err != nil {
		return 0, fmt.Errorf("output.flush_interval: %w", err)
	}
	if period <= 0 {
		return 0, fmt.Errorf("output.flush_interval must be positive, got %s", o.FlushInterval)
	}
	return period, nil
}

// LoggingConfig configures the probe's logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level" toml:"level"`

	// Format is text, json, or auto (text on a terminal, JSON
	// otherwise).
	// Default: auto (development), json (production)
	Format string `yaml:"format" toml:"format"`
}

var (
	compressionValues = []string{"none", "lz4", "zstd"}
	levelValues       = []string{"debug", "info", "warn", "error"}
	formatValues      = []string{"auto", "text", "json"}
)

// Default returns the default configuration, used as the base the
// config file is decoded onto.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Root:        filepath.Join(homeDir, ".cache", "bureau", "probes"),
		Statsd: StatsdConfig{
			Binary: "/system/bin/cmd",
			Args:   []string{"stats", "data-subscribe"},
		},
		Output: OutputConfig{
			Path:          "${BUREAU_PROBES_ROOT}/statsd.btrc",
			Compression:   "zstd",
			ChunkSize:     256 * 1024,
			FlushInterval: "10s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the file named by
// BUREAU_PROBES_CONFIG. There is no fallback when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your probe config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile decodes a config file onto c, choosing the decoder by
// extension.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch extension := strings.ToLower(filepath.Ext(path)); extension {
	case ".yaml", ".yml":
		err = decodeYAML(data, c)
	case ".toml":
		err = decodeTOML(data, c)
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the stripped document decodes
		// through the same struct tags.
		err = decodeYAML(jsonc.ToJSON(data), c)
	default:
		return fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml, .toml, .json, or .jsonc)", path, extension)
	}
	if err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// decodeYAML decodes strictly: a misspelled key is an error rather
// than a silently ignored setting.
func decodeYAML(data []byte, c *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err := decoder.Decode(c)
	if errors.Is(err, io.EOF) {
		// Empty document: keep the defaults.
		return nil
	}
	return err
}

// decodeTOML rejects keys that map to no field, matching decodeYAML.
func decodeTOML(data []byte, c *Config) error {
	meta, err := toml.Decode(string(data), c)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys: %v", undecoded)
	}
	return nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				Logging: &LoggingConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Output != nil {
		if overrides.Output.Path != "" {
			c.Output.Path = overrides.Output.Path
		}
		if overrides.Output.Compression != "" {
			c.Output.Compression = overrides.Output.Compression
		}
		if overrides.Output.ChunkSize != 0 {
			c.Output.ChunkSize = overrides.Output.ChunkSize
		}
		if overrides.Output.FlushInterval != "" {
			c.Output.FlushInterval = overrides.Output.FlushInterval
		}
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"BUREAU_PROBES_ROOT": c.Root,
		"HOME":               os.Getenv("HOME"),
	}

	c.Root = expandVars(c.Root, vars)
	vars["BUREAU_PROBES_ROOT"] = c.Root

	c.Output.Path = expandVars(c.Output.Path, vars)
	c.Statsd.Binary = expandVars(c.Statsd.Binary, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, consulting
// vars before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Statsd.Binary == "" {
		errs = append(errs, fmt.Errorf("statsd.binary is required"))
	}
	if err := c.Statsd.Subscription.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("statsd.subscription: %w", err))
	}

	if c.Output.Path == "" {
		errs = append(errs, fmt.Errorf("output.path is required"))
	}
	if !slices.Contains(compressionValues, c.Output.Compression) {
		errs = append(errs, fmt.Errorf("output.compression must be one of: %v", compressionValues))
	}
	if c.Output.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("output.chunk_size must be positive, got %d", c.Output.ChunkSize))
	}
	if _, err := c.Output.FlushPeriod(); err != nil {
		errs = append(errs, err)
	}

	if !slices.Contains(levelValues, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", levelValues))
	}
	if !slices.Contains(formatValues, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", formatValues))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the directory holding the output file.
func (c *Config) EnsurePaths() error {
	directory := filepath.Dir(c.Output.Path)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", directory, err)
	}
	return nil
}

// BinaryPath returns the statsd command to execute. Absolute and
// relative paths must exist; a bare name is looked up on PATH.
func (c *StatsdConfig) BinaryPath() (string, error) {
	if strings.ContainsRune(c.Binary, filepath.Separator) {
		if _, err := os.Stat(c.Binary); err != nil {
			return "", fmt.Errorf("statsd binary: %w", err)
		}
		return c.Binary, nil
	}

	path, err := exec.LookPath(c.Binary)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", c.Binary)
	}
	return path, nil
}
