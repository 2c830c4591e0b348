package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from YAML files and environment variables
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// Load loads configuration from files and environment variables.
// YAML files take precedence, then ENV variables override.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName("config")
	l.v.SetConfigType("yaml")

	// Search paths in order of priority
	l.v.AddConfigPath("/etc/fleetd")
	l.v.AddConfigPath("$HOME/.fleetd")
	l.v.AddConfigPath(".")

	l.v.SetEnvPrefix("FLEETD")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	l.setDefaults()

	// Config file is optional; defaults and ENV suffice
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "json")

	l.v.SetDefault("api.listen_addr", ":8080")

	l.v.SetDefault("db.path", "./data/fleet.db")
	l.v.SetDefault("db.max_open_conns", 25)
	l.v.SetDefault("db.max_idle_conns", 5)
	l.v.SetDefault("db.conn_max_lifetime", 300) // 5 minutes

	l.v.SetDefault("node.tier", "free")
	l.v.SetDefault("node.master", false)

	l.v.SetDefault("scheduler.approval_interval", "30s")
	l.v.SetDefault("scheduler.transfer_interval", "1m")
	l.v.SetDefault("scheduler.probe_timeout", "5s")
	l.v.SetDefault("scheduler.maintenance_interval", "1h")
	l.v.SetDefault("scheduler.request_log_retention", "744h")

	l.v.SetDefault("router.forward_timeout", "30s")
	l.v.SetDefault("stats.remote_timeout", "10s")
	l.v.SetDefault("stats.disk_path", "/")

	l.v.SetDefault("session.history_retention", 50)

	l.v.SetDefault("service.shutdown_timeout", "30s")

	weights := DefaultScoringWeights()
	l.v.SetDefault("selector.weights.active_account", weights.ActiveAccount)
	l.v.SetDefault("selector.weights.premium_bonus", weights.PremiumBonus)
	l.v.SetDefault("selector.weights.per_request_hour", weights.PerRequestHour)
	l.v.SetDefault("selector.weights.request_cap", weights.RequestCap)
	l.v.SetDefault("selector.weights.mem_penalty_high", weights.MemPenaltyHigh)
	l.v.SetDefault("selector.weights.mem_penalty_mid", weights.MemPenaltyMid)
	l.v.SetDefault("selector.weights.disk_penalty_high", weights.DiskPenaltyHigh)
	l.v.SetDefault("selector.weights.disk_penalty_mid", weights.DiskPenaltyMid)
	l.v.SetDefault("selector.weights.recent_seen_bonus", weights.RecentSeenBonus)
}

// LoadWithPath loads configuration from a specific file path
func LoadWithPath(configPath string) (*Config, error) {
	loader := NewLoader()
	loader.v.SetConfigFile(configPath)
	return loader.Load()
}
