// Package config loads vercraft settings from defaults, an optional
// .vercraft.yaml file and VERCRAFT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/jaxxstorm/vercraft"
)

// FileName is looked up in the repository root when no explicit file is given.
const FileName = ".vercraft"

// EnvPrefix is prepended to every key when reading the environment.
const EnvPrefix = "VERCRAFT"

// Config holds all configuration options for vercraft.
type Config struct {
	DefaultMainBranch string `mapstructure:"default_main_branch"`
	Remote            string `mapstructure:"remote"`
	CheckoutBranch    string `mapstructure:"checkout_branch"`
	Fetch             bool   `mapstructure:"fetch"`
	Push              bool   `mapstructure:"push"`
	LogLevel          string `mapstructure:"log_level"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DefaultMainBranch: vercraft.DefaultMainBranch,
		Remote:            vercraft.DefaultRemote,
		LogLevel:          "info",
	}
}

// Load reads file if set, otherwise .vercraft.yaml from repoPath when it
// exists. Environment variables override file values.
func Load(repoPath, file string) (Config, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetDefault("default_main_branch", defaults.DefaultMainBranch)
	v.SetDefault("remote", defaults.Remote)
	v.SetDefault("checkout_branch", defaults.CheckoutBranch)
	v.SetDefault("fetch", defaults.Fetch)
	v.SetDefault("push", defaults.Push)
	v.SetDefault("log_level", defaults.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(repoPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// Vercraft returns the subset consumed by the library.
func (c Config) Vercraft() vercraft.Config {
	return vercraft.Config{
		DefaultMainBranch: c.DefaultMainBranch,
		Remote:            c.Remote,
		CheckoutBranch:    c.CheckoutBranch,
	}
}

// Level parses LogLevel; unknown values fall back to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
