package config

import (
	"encoding/hex"
	"fmt"
	"time"

	apperrors "github.com/asimaranov/telestory-backend/internal/shared/errors"
)

// NodeTier classifies a node's account quality.
type NodeTier string

const (
	TierFree    NodeTier = "free"
	TierPremium NodeTier = "premium"
)

// Config defines the configuration for the fleetd service.
type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Log       LogConfig       `mapstructure:"log"`
	API       APIConfig       `mapstructure:"api"`
	DB        DBConfig        `mapstructure:"db"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Router    RouterConfig    `mapstructure:"router"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Session   SessionConfig   `mapstructure:"session"`
	Selector  SelectorConfig  `mapstructure:"selector"`
	Service   ServiceConfig   `mapstructure:"service"`
}

// NodeConfig identifies this process within the fleet.
type NodeConfig struct {
	Name        string   `mapstructure:"name"`
	Address     string   `mapstructure:"address"`
	APIEndpoint string   `mapstructure:"api_endpoint"`
	Tier        NodeTier `mapstructure:"tier"`
	Master      bool     `mapstructure:"master"`
}

// LogConfig defines the logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig defines the API server configuration.
type APIConfig struct {
	ListenAddr  string   `mapstructure:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DBConfig defines the database configuration.
type DBConfig struct {
	Path            string `mapstructure:"path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
}

// SchedulerConfig defines intervals for the periodic sweeps.
type SchedulerConfig struct {
	ApprovalInterval    time.Duration `mapstructure:"approval_interval"`
	TransferInterval    time.Duration `mapstructure:"transfer_interval"`
	ProbeTimeout        time.Duration `mapstructure:"probe_timeout"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	RequestLogRetention time.Duration `mapstructure:"request_log_retention"`
}

// RouterConfig defines request routing behavior.
type RouterConfig struct {
	ForwardTimeout time.Duration `mapstructure:"forward_timeout"`
}

// StatsConfig defines stats aggregation behavior.
type StatsConfig struct {
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`
	// DiskPath is the mount point measured by the system sub-report.
	DiskPath string `mapstructure:"disk_path"`
}

// SessionConfig defines session credential handling.
type SessionConfig struct {
	// SealKey is a hex-encoded 32-byte key for sealing session blobs at
	// rest. When empty, blobs are stored unsealed (development only).
	SealKey          string `mapstructure:"seal_key"`
	HistoryRetention int    `mapstructure:"history_retention"`
}

// SelectorConfig defines node selection behavior.
type SelectorConfig struct {
	Weights ScoringWeights `mapstructure:"weights"`
}

// ScoringWeights are the tunable constants of the node scoring formula.
// They are configuration, not a contract; the defaults reproduce observed
// production behavior but are expected to be tuned.
type ScoringWeights struct {
	ActiveAccount   int `mapstructure:"active_account"`
	PremiumBonus    int `mapstructure:"premium_bonus"`
	PerRequestHour  int `mapstructure:"per_request_hour"`
	RequestCap      int `mapstructure:"request_cap"`
	MemPenaltyHigh  int `mapstructure:"mem_penalty_high"`
	MemPenaltyMid   int `mapstructure:"mem_penalty_mid"`
	DiskPenaltyHigh int `mapstructure:"disk_penalty_high"`
	DiskPenaltyMid  int `mapstructure:"disk_penalty_mid"`
	RecentSeenBonus int `mapstructure:"recent_seen_bonus"`
}

// DefaultScoringWeights returns the default scoring constants.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		ActiveAccount:   10,
		PremiumBonus:    50,
		PerRequestHour:  2,
		RequestCap:      100,
		MemPenaltyHigh:  30,
		MemPenaltyMid:   15,
		DiskPenaltyHigh: 25,
		DiskPenaltyMid:  10,
		RecentSeenBonus: 5,
	}
}

// ServiceConfig defines service-level configuration options.
type ServiceConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SealKeyBytes decodes the configured seal key. Returns nil when sealing is
// disabled.
func (c *SessionConfig) SealKeyBytes() (*[32]byte, error) {
	if c.SealKey == "" {
		return nil, nil
	}

	raw, err := hex.DecodeString(c.SealKey)
	if err != nil {
		return nil, apperrors.NewConfigError("session.seal_key", "must be hex encoded", err)
	}
	if len(raw) != 32 {
		return nil, apperrors.NewConfigError("session.seal_key", fmt.Sprintf("must decode to 32 bytes, got %d", len(raw)), nil)
	}

	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// Validate validates the configuration for correctness and completeness
func (c *Config) Validate() error {
	// The local node identity is the one setting without a sane default.
	if c.Node.Name == "" {
		return apperrors.NewConfigError("node.name", "is required (set FLEETD_NODE_NAME)", nil)
	}

	if c.Node.Tier != "" && c.Node.Tier != TierFree && c.Node.Tier != TierPremium {
		return apperrors.NewConfigError("node.tier", fmt.Sprintf("invalid tier %q (must be free or premium)", c.Node.Tier), nil)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Log.Level != "" && !validLevels[c.Log.Level] {
		return apperrors.NewConfigError("log.level", fmt.Sprintf("invalid level %q", c.Log.Level), nil)
	}
	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "text" {
		return apperrors.NewConfigError("log.format", fmt.Sprintf("invalid format %q (must be json or text)", c.Log.Format), nil)
	}

	if c.Scheduler.ApprovalInterval > 0 && c.Scheduler.ApprovalInterval < time.Second {
		return apperrors.NewConfigError("scheduler.approval_interval", "must be at least 1 second", nil)
	}
	if c.Scheduler.TransferInterval > 0 && c.Scheduler.TransferInterval < time.Second {
		return apperrors.NewConfigError("scheduler.transfer_interval", "must be at least 1 second", nil)
	}

	if _, err := c.Session.SealKeyBytes(); err != nil {
		return err
	}

	c.setDefaults()

	return nil
}

// setDefaults sets default values for configuration fields that are not set
func (c *Config) setDefaults() {
	if c.Node.Tier == "" {
		c.Node.Tier = TierFree
	}
	if c.Node.APIEndpoint == "" && c.Node.Address != "" {
		c.Node.APIEndpoint = "http://" + c.Node.Address + ":8080"
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}

	if c.DB.Path == "" {
		c.DB.Path = "./data/fleet.db"
	}
	if c.DB.MaxOpenConns <= 0 {
		c.DB.MaxOpenConns = 25
	}
	if c.DB.MaxIdleConns <= 0 {
		c.DB.MaxIdleConns = 5
	}
	if c.DB.ConnMaxLifetime <= 0 {
		c.DB.ConnMaxLifetime = 300
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Scheduler.ApprovalInterval <= 0 {
		c.Scheduler.ApprovalInterval = 30 * time.Second
	}
	if c.Scheduler.TransferInterval <= 0 {
		c.Scheduler.TransferInterval = time.Minute
	}
	if c.Scheduler.ProbeTimeout <= 0 {
		c.Scheduler.ProbeTimeout = 5 * time.Second
	}
	if c.Scheduler.MaintenanceInterval <= 0 {
		c.Scheduler.MaintenanceInterval = time.Hour
	}
	if c.Scheduler.RequestLogRetention <= 0 {
		c.Scheduler.RequestLogRetention = 31 * 24 * time.Hour
	}

	if c.Router.ForwardTimeout <= 0 {
		c.Router.ForwardTimeout = 30 * time.Second
	}
	if c.Stats.RemoteTimeout <= 0 {
		c.Stats.RemoteTimeout = 10 * time.Second
	}
	if c.Stats.DiskPath == "" {
		c.Stats.DiskPath = "/"
	}

	if c.Session.HistoryRetention <= 0 {
		c.Session.HistoryRetention = 50
	}

	defaults := DefaultScoringWeights()
	w := &c.Selector.Weights
	if w.ActiveAccount <= 0 {
		w.ActiveAccount = defaults.ActiveAccount
	}
	if w.PremiumBonus <= 0 {
		w.PremiumBonus = defaults.PremiumBonus
	}
	if w.PerRequestHour <= 0 {
		w.PerRequestHour = defaults.PerRequestHour
	}
	if w.RequestCap <= 0 {
		w.RequestCap = defaults.RequestCap
	}
	if w.MemPenaltyHigh <= 0 {
		w.MemPenaltyHigh = defaults.MemPenaltyHigh
	}
	if w.MemPenaltyMid <= 0 {
		w.MemPenaltyMid = defaults.MemPenaltyMid
	}
	if w.DiskPenaltyHigh <= 0 {
		w.DiskPenaltyHigh = defaults.DiskPenaltyHigh
	}
	if w.DiskPenaltyMid <= 0 {
		w.DiskPenaltyMid = defaults.DiskPenaltyMid
	}
	if w.RecentSeenBonus <= 0 {
		w.RecentSeenBonus = defaults.RecentSeenBonus
	}

	if c.Service.ShutdownTimeout <= 0 {
		c.Service.ShutdownTimeout = 30 * time.Second
	}
}
