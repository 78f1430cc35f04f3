package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	DaemonPort          int      `mapstructure:"daemon_port"`
	DBPath              string   `mapstructure:"db_path"`
	BufferSize          int      `mapstructure:"buffer_size"`
	RsyncPath           string   `mapstructure:"rsync_path"`
	KillGraceSeconds    int      `mapstructure:"kill_grace_seconds"`
	StallTimeoutSeconds int      `mapstructure:"stall_timeout_seconds"`
	RunTimeoutSeconds   int      `mapstructure:"run_timeout_seconds"`
	MountRoots          []string `mapstructure:"mount_roots"`
	DevMode             bool     `mapstructure:"dev_mode"`
}

var Default = Config{
	DaemonPort:          9402,
	DBPath:              "amber.db",
	BufferSize:          256,
	RsyncPath:           "rsync",
	KillGraceSeconds:    5,
	StallTimeoutSeconds: 120,
	RunTimeoutSeconds:   6 * 3600,
	MountRoots:          []string{"/Volumes", "/media", "/run/media", "/mnt"},
	DevMode:             false,
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home dir: %w", err)
	}

	configDir := filepath.Join(home, ".amber")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)

	viper.SetDefault("daemon_port", Default.DaemonPort)
	viper.SetDefault("db_path", filepath.Join(configDir, Default.DBPath))
	viper.SetDefault("buffer_size", Default.BufferSize)
	viper.SetDefault("rsync_path", Default.RsyncPath)
	viper.SetDefault("kill_grace_seconds", Default.KillGraceSeconds)
	viper.SetDefault("stall_timeout_seconds", Default.StallTimeoutSeconds)
	viper.SetDefault("run_timeout_seconds", Default.RunTimeoutSeconds)
	viper.SetDefault("mount_roots", Default.MountRoots)
	viper.SetDefault("dev_mode", Default.DevMode)

	viper.SetEnvPrefix("AMBER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
