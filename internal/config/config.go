// Package config loads actorcore's layered configuration the way the
// teacher loads bd's: a viper singleton seeded with defaults, then a
// config.yaml resolved by walking up from the working directory (or the
// user's config/home directories), then ACTORCORE_-prefixed environment
// variables, with flags (handled by the caller) taking final precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arborfield/actorcore/internal/debuglog"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Should be called
// once at process startup, before any Get* accessor.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := locateConfigFile(v)

	v.SetEnvPrefix("ACTORCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: reading %s: %w", v.ConfigFileUsed(), err)
		}
		debuglog.Debugf("config: loaded %s", v.ConfigFileUsed())
	} else {
		debuglog.Debugf("config: no config.yaml found; using defaults and environment variables")
	}

	return nil
}

// locateConfigFile walks up from the working directory looking for
// .actorcore/config.yaml, then falls back to the user's config directory
// and home directory, in that priority order (spec §6's "project file >
// user config dir > home dir" search order).
func locateConfigFile(v *viper.Viper) bool {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".actorcore", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				return true
			}
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		configPath := filepath.Join(configDir, "actorcore", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			return true
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		configPath := filepath.Join(homeDir, ".actorcore", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			return true
		}
	}

	return false
}

func setDefaults(v *viper.Viper) {
	// spec §6 environment record.
	v.SetDefault("backoff.basems", 10)
	v.SetDefault("backoff.attempts", 4)
	v.SetDefault("table.shardcount", 8)
	v.SetDefault("wire.preferred", "json")
	v.SetDefault("wire.inlineblobthreshold", 64)

	// Ambient knobs.
	v.SetDefault("log.debug", false)
	v.SetDefault("log.path", ".actorcore/debug.log")
}

// ConfigSource names where a configuration value came from.
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// GetValueSource reports the highest-priority source that supplied key's
// current value: env var > config file > default (flag precedence is
// handled by the caller, same as the teacher's cobra integration).
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}

	envKey := "ACTORCORE_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	if os.Getenv(envKey) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a configuration value at runtime, e.g. from a parsed
// command-line flag.
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns every configuration setting as a nested map.
func AllSettings() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}

// Environment is the resolved spec §6 environment record an Engine,
// Store, or Registry is constructed from.
type Environment struct {
	BackoffBaseMs           int
	BackoffAttempts         int
	TableShardCount         int
	WirePreferred           string
	WireInlineBlobThreshold int
}

// LoadEnvironment reads the spec §6 environment record out of the
// initialized viper singleton. Call Initialize first.
func LoadEnvironment() Environment {
	return Environment{
		BackoffBaseMs:           GetInt("backoff.basems"),
		BackoffAttempts:         GetInt("backoff.attempts"),
		TableShardCount:         GetInt("table.shardcount"),
		WirePreferred:           GetString("wire.preferred"),
		WireInlineBlobThreshold: GetInt("wire.inlineblobthreshold"),
	}
}
