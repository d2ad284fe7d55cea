// Package config loads the pipeline's runtime configuration from defaults,
// environment variables (PRIORAUTH_ prefix), and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultDataDir     = "data"
	DefaultSchemaDir   = "schemas"
	DefaultOutputDir   = "output"
	DefaultSchemaName  = "InsureCo_Ozempic"
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB

	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = time.Second

	DefaultDirPerm = 0o750
)

// Config holds all runtime configuration for the pipeline.
type Config struct {
	// Storage
	DataDir   string
	OutputDir string

	// Form schemas
	SchemaDir  string
	SchemaName string

	// Generation
	TemplatePath string

	// Input handling
	MaxFileSize   int64
	CleanupInputs bool

	// Service call policy
	RetryAttempts       int
	RetryInitialBackoff time.Duration

	// Application
	Version  string
	LogLevel string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:             DefaultDataDir,
		OutputDir:           DefaultOutputDir,
		SchemaDir:           DefaultSchemaDir,
		SchemaName:          DefaultSchemaName,
		MaxFileSize:         DefaultMaxFileSize,
		RetryAttempts:       DefaultRetryAttempts,
		RetryInitialBackoff: DefaultRetryBackoff,
		Version:             "1.0.0",
		LogLevel:            DefaultLogLevel,
	}
}

// LoadFromFlags parses command line flags and environment variables into a
// validated configuration.
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	pflag.Parse()

	populateConfigFromViper(cfg)
	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("PRIORAUTH")
	viper.AutomaticEnv()

	viper.SetDefault("datadir", cfg.DataDir)
	viper.SetDefault("outputdir", cfg.OutputDir)
	viper.SetDefault("schemadir", cfg.SchemaDir)
	viper.SetDefault("schema", cfg.SchemaName)
	viper.SetDefault("template", cfg.TemplatePath)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("cleanup", cfg.CleanupInputs)
	viper.SetDefault("retries", cfg.RetryAttempts)
	viper.SetDefault("retrybackoff", cfg.RetryInitialBackoff)
	viper.SetDefault("loglevel", cfg.LogLevel)
}

func defineCommandLineFlags(cfg *Config) {
	pflag.String("datadir", cfg.DataDir, "Directory for persisted document records")
	pflag.String("outputdir", cfg.OutputDir, "Directory for generated PDF output")
	pflag.String("schemadir", cfg.SchemaDir, "Directory containing form schema JSON files")
	pflag.String("schema", cfg.SchemaName, "Form schema name (file name without .json)")
	pflag.String("template", cfg.TemplatePath, "Path to the fillable PDF template (optional)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum input PDF size in bytes")
	pflag.Bool("cleanup", cfg.CleanupInputs, "Remove the input document after a successful run")
	pflag.Int("retries", cfg.RetryAttempts, "Maximum attempts per external service call")
	pflag.Duration("retrybackoff", cfg.RetryInitialBackoff, "Initial backoff between service call retries")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
}

func bindFlagsToViper() {
	for _, name := range []string{
		"datadir", "outputdir", "schemadir", "schema", "template",
		"maxfilesize", "cleanup", "retries", "retrybackoff", "loglevel",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\npriorauth - prior authorization PDF processing pipeline\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s referral.pdf                          # process with default schema\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --schema=Acme_Wegovy referral.pdf     # custom schema\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --template=form.pdf referral.pdf      # fill a real template\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --list                                # list processed documents\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  PRIORAUTH_DATADIR      Document record directory\n")
		fmt.Fprintf(os.Stderr, "  PRIORAUTH_OUTPUTDIR    Generated PDF directory\n")
		fmt.Fprintf(os.Stderr, "  PRIORAUTH_SCHEMADIR    Schema directory\n")
		fmt.Fprintf(os.Stderr, "  PRIORAUTH_SCHEMA       Schema name\n")
		fmt.Fprintf(os.Stderr, "  PRIORAUTH_TEMPLATE     Template PDF path\n")
		fmt.Fprintf(os.Stderr, "  PRIORAUTH_MAXFILESIZE  Maximum input size\n")
		fmt.Fprintf(os.Stderr, "  PRIORAUTH_LOGLEVEL     Log level\n")
	}
}

func populateConfigFromViper(cfg *Config) {
	cfg.DataDir = viper.GetString("datadir")
	cfg.OutputDir = viper.GetString("outputdir")
	cfg.SchemaDir = viper.GetString("schemadir")
	cfg.SchemaName = viper.GetString("schema")
	cfg.TemplatePath = viper.GetString("template")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.CleanupInputs = viper.GetBool("cleanup")
	cfg.RetryAttempts = viper.GetInt("retries")
	cfg.RetryInitialBackoff = viper.GetDuration("retrybackoff")
	cfg.LogLevel = viper.GetString("loglevel")
}

func expandPaths(cfg *Config) {
	for _, p := range []*string{&cfg.DataDir, &cfg.OutputDir, &cfg.SchemaDir, &cfg.TemplatePath} {
		if *p == "" {
			continue
		}
		if expanded, err := filepath.Abs(*p); err == nil {
			*p = expanded
		}
	}
}

// Validate checks the configuration and creates the writable directories it
// names.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data directory cannot be empty")
	}
	if c.OutputDir == "" {
		return errors.New("output directory cannot be empty")
	}
	if c.SchemaDir == "" {
		return errors.New("schema directory cannot be empty")
	}
	if c.SchemaName == "" {
		return errors.New("schema name cannot be empty")
	}

	for _, dir := range []string{c.DataDir, c.OutputDir} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
				return fmt.Errorf("cannot create directory %s: %w", dir, err)
			}
		} else if err != nil {
			return fmt.Errorf("cannot access directory %s: %w", dir, err)
		}
	}

	if c.TemplatePath != "" {
		if _, err := os.Stat(c.TemplatePath); err != nil {
			return fmt.Errorf("cannot access template %s: %w", c.TemplatePath, err)
		}
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}
	if c.RetryAttempts < 1 {
		return errors.New("retry attempts must be at least 1")
	}
	if c.RetryInitialBackoff <= 0 {
		return errors.New("retry backoff must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

// IsDebug reports whether debug logging is enabled.
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}
