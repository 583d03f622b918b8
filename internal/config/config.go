// Package config loads application configuration from a file and the
// environment via viper. Environment variables use the QMDOC_ prefix,
// e.g. QMDOC_DB_PATH overrides db.path.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`
	Vault struct {
		Dir         string `mapstructure:"dir"`
		WorkingDir  string `mapstructure:"working_dir"`
		ArtifactDir string `mapstructure:"artifact_dir"`
	} `mapstructure:"vault"`
	Workflow struct {
		ValidityMonths int `mapstructure:"validity_months"`
	} `mapstructure:"workflow"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// Validity returns the configured publication validity window as a
// duration. Months are approximated at 30 days, matching how expiry
// checks round.
func (c *Config) Validity() time.Duration {
	months := c.Workflow.ValidityMonths
	if months <= 0 {
		months = 24
	}
	return time.Duration(months) * 30 * 24 * time.Hour
}

// LoadConfig loads the configuration from a file and the environment.
// A missing config file is not an error; defaults and environment
// variables still apply.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("QMDOC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("db.path", "data/qmdoc.db")
	viper.SetDefault("vault.dir", "data/vault")
	viper.SetDefault("vault.working_dir", "data/working")
	viper.SetDefault("vault.artifact_dir", "data/artifacts")
	viper.SetDefault("workflow.validity_months", 24)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	config.DB.Path = filepath.Clean(config.DB.Path)
	config.Vault.Dir = filepath.Clean(config.Vault.Dir)
	config.Vault.WorkingDir = filepath.Clean(config.Vault.WorkingDir)
	config.Vault.ArtifactDir = filepath.Clean(config.Vault.ArtifactDir)

	return &config, nil
}
