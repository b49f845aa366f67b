// Package config loads and validates the application configuration from all
// sources: built-in defaults, an optional config file, a named profile
// within it, environment variables, and command-line flags, in ascending
// precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/astrio-ai/legacy2modern/internal/llm"
	"github.com/astrio-ai/legacy2modern/pkg/engine"
	"github.com/astrio-ai/legacy2modern/pkg/engine/cache"
	"github.com/astrio-ai/legacy2modern/pkg/workspace"
)

const (
	// EnvPrefix namespaces environment variables (LEGACY2MODERN_LLM_APIKEY).
	EnvPrefix = "LEGACY2MODERN"
	// DefaultConfigName is the base name of the config file searched for in
	// the working directory and the user config directories.
	DefaultConfigName = "legacy2modern"
)

// OutputFormats are the accepted manifest encodings.
var OutputFormats = []string{"json", "yaml", "toml"}

// Options is the fully resolved application configuration handed to cli.Run.
type Options struct {
	// InputPath is the project source: a directory, .zip archive or git URL.
	InputPath string `mapstructure:"input"`
	// OutputPath is the directory the manifest and cache are written to.
	OutputPath string `mapstructure:"output"`
	// OutputFormat selects the manifest encoding: json, yaml or toml.
	OutputFormat string `mapstructure:"outputFormat"`

	IgnorePatterns       []string `mapstructure:"ignore"`
	LargeFileThresholdMB int      `mapstructure:"largeFileThresholdMB"`
	IncludeBinary        bool     `mapstructure:"includeBinary"`

	CacheEnabled  bool   `mapstructure:"cache"`
	CacheFilePath string `mapstructure:"cacheFile"`
	ClearCache    bool   `mapstructure:"clearCache"`

	// Offline disables the model client; analysis and planning run on
	// heuristics alone.
	Offline bool `mapstructure:"offline"`
	// Plan enables the second engine pass producing the migration plan.
	Plan bool `mapstructure:"plan"`

	Verbose    bool `mapstructure:"verbose"`
	TuiEnabled bool `mapstructure:"tui"`

	Engine engine.RunConfig `mapstructure:"engine"`
	LLM    llm.Config       `mapstructure:"llm"`

	// Derived fields, populated by LoadAndValidate.
	AppVersion     string       `mapstructure:"-"`
	ConfigFilePath string       `mapstructure:"-"`
	ProfileName    string       `mapstructure:"-"`
	Logger         slog.Handler `mapstructure:"-"`
}

// LoadAndValidate merges configuration from all sources, validates it,
// derives absolute paths and the logger, and returns the resolved Options.
func LoadAndValidate(cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet) (Options, *slog.Logger, error) {
	var opts Options
	v := viper.New()

	// Basic logger for errors raised before the level is known.
	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return opts, tempLogger, fmt.Errorf("resolving user home directory: %w", err)
		}
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
		v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			tempLogger.Debug("No configuration file found, using defaults/env/flags")
		} else {
			used := cfgFile
			if used == "" {
				used = fmt.Sprintf("searched locations for %s.yaml", DefaultConfigName)
			}
			return opts, tempLogger, fmt.Errorf("reading config file '%s': %w", used, err)
		}
	} else {
		opts.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", opts.ConfigFilePath))
	}

	opts.ProfileName = profileName
	if profileName != "" {
		profileKey := "profiles." + profileName
		if !v.IsSet(profileKey) {
			configPath := v.ConfigFileUsed()
			if configPath == "" {
				configPath = "(no config file found)"
			}
			return opts, tempLogger, fmt.Errorf("profile '%s' not found in config file '%s'", profileName, configPath)
		}
		profile := v.Sub(profileKey)
		if profile == nil {
			return opts, tempLogger, fmt.Errorf("loading profile '%s' from '%s'", profileName, v.ConfigFileUsed())
		}
		if err := v.MergeConfigMap(profile.AllSettings()); err != nil {
			return opts, tempLogger, fmt.Errorf("merging profile '%s': %w", profileName, err)
		}
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return opts, tempLogger, err
		}
	}

	opts.AppVersion = appVersion
	if err := v.Unmarshal(&opts); err != nil {
		return opts, tempLogger, fmt.Errorf("unmarshalling configuration: %w", err)
	}

	// Explicit flags always win, including booleans, where viper binding is
	// unreliable for values equal to the default.
	applyFlagOverrides(&opts, flags)
	if verbose {
		opts.Verbose = true
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	opts.Logger = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(opts.Logger)

	if err := validateAndDerive(&opts, logger); err != nil {
		return opts, logger, err
	}
	return opts, logger, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output", "./l2m-output")
	v.SetDefault("outputFormat", "json")
	v.SetDefault("largeFileThresholdMB", workspace.DefaultLargeFileThresholdMB)
	v.SetDefault("cache", true)
	v.SetDefault("tui", true)
	v.SetDefault("plan", true)

	defaults := engine.DefaultRunConfig()
	v.SetDefault("engine.maxItemsPerChunk", defaults.MaxItemsPerChunk)
	v.SetDefault("engine.maxCostPerChunk", defaults.MaxCostPerChunk)
	v.SetDefault("engine.maxConcurrentChunks", defaults.MaxConcurrentChunks)
	v.SetDefault("engine.minDispatchInterval", defaults.MinDispatchInterval)
	v.SetDefault("engine.retryAttempts", defaults.RetryAttempts)
	v.SetDefault("engine.retryBackoffBase", defaults.RetryBackoffBase)

	v.SetDefault("llm.model", llm.DefaultModel)
	v.SetDefault("llm.baseUrl", llm.DefaultBaseURL)
}

// flagBindings maps flag names to their config keys.
var flagBindings = map[string]string{
	"input":                "input",
	"output":               "output",
	"output-format":        "outputFormat",
	"ignore":               "ignore",
	"large-file-threshold": "largeFileThresholdMB",
	"include-binary":       "includeBinary",
	"no-cache":             "",
	"clear-cache":          "clearCache",
	"offline":              "offline",
	"no-plan":              "",
	"verbose":              "verbose",
	"no-tui":               "",
	"concurrency":          "engine.maxConcurrentChunks",
	"chunk-files":          "engine.maxItemsPerChunk",
	"chunk-tokens":         "engine.maxCostPerChunk",
	"rate-interval":        "engine.minDispatchInterval",
	"retries":              "engine.retryAttempts",
	"retry-backoff":        "engine.retryBackoffBase",
	"model":                "llm.model",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagBindings {
		if key == "" {
			continue // negated booleans handled in applyFlagOverrides
		}
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding flag '--%s': %w", name, err)
		}
	}
	return nil
}

func applyFlagOverrides(opts *Options, flags *pflag.FlagSet) {
	if flags == nil {
		return
	}
	if flags.Changed("no-cache") {
		noCache, _ := flags.GetBool("no-cache")
		opts.CacheEnabled = !noCache
	}
	if flags.Changed("no-tui") {
		noTui, _ := flags.GetBool("no-tui")
		opts.TuiEnabled = !noTui
	}
	if flags.Changed("no-plan") {
		noPlan, _ := flags.GetBool("no-plan")
		opts.Plan = !noPlan
	}
	if flags.Changed("verbose") {
		opts.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("offline") {
		opts.Offline, _ = flags.GetBool("offline")
	}
}

// validateAndDerive checks the merged configuration and fills derived
// fields: absolute output path, cache file location, API key from the
// environment when not configured.
func validateAndDerive(opts *Options, logger *slog.Logger) error {
	if strings.TrimSpace(opts.InputPath) == "" {
		return errors.New("input path is required (--input)")
	}
	if !slices.Contains(OutputFormats, opts.OutputFormat) {
		return fmt.Errorf("invalid output format '%s' (expected one of %s)",
			opts.OutputFormat, strings.Join(OutputFormats, ", "))
	}

	absOutput, err := filepath.Abs(opts.OutputPath)
	if err != nil {
		return fmt.Errorf("resolving output path: %w", err)
	}
	opts.OutputPath = absOutput
	if opts.CacheFilePath == "" {
		opts.CacheFilePath = filepath.Join(opts.OutputPath, cache.CacheFileName)
	}

	if err := opts.Engine.Validate(); err != nil {
		return err
	}

	if !opts.Offline && opts.LLM.APIKey == "" {
		opts.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if !opts.Offline && opts.LLM.APIKey == "" {
		logger.Warn("No API key configured, switching to offline analysis")
		opts.Offline = true
	}
	return nil
}
