package config

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FLEETD_NODE_NAME", "worker-1")
	t.Setenv("FLEETD_NODE_ADDRESS", "10.0.0.5")
	t.Setenv("FLEETD_NODE_TIER", "premium")
	t.Setenv("FLEETD_NODE_MASTER", "true")
	t.Setenv("FLEETD_LOG_LEVEL", "debug")
	t.Setenv("FLEETD_SCHEDULER_APPROVAL_INTERVAL", "45s")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "worker-1", cfg.Node.Name)
	assert.Equal(t, "10.0.0.5", cfg.Node.Address)
	assert.Equal(t, TierPremium, cfg.Node.Tier)
	assert.True(t, cfg.Node.Master)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 45*time.Second, cfg.Scheduler.ApprovalInterval)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FLEETD_NODE_NAME", "worker-1")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.ListenAddr)
	assert.Equal(t, "./data/fleet.db", cfg.DB.Path)
	assert.Equal(t, TierFree, cfg.Node.Tier)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.ApprovalInterval)
	assert.Equal(t, time.Minute, cfg.Scheduler.TransferInterval)
	assert.Equal(t, time.Hour, cfg.Scheduler.MaintenanceInterval)
	assert.Equal(t, 31*24*time.Hour, cfg.Scheduler.RequestLogRetention)
	assert.Equal(t, 30*time.Second, cfg.Router.ForwardTimeout)
	assert.Equal(t, 50, cfg.Session.HistoryRetention)
	assert.Equal(t, DefaultScoringWeights(), cfg.Selector.Weights)
}

func TestMissingNodeNameIsFatal(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node.name")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad tier",
			mutate:  func(c *Config) { c.Node.Tier = "gold" },
			wantErr: "node.tier",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "log.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
		{
			name:    "approval interval too small",
			mutate:  func(c *Config) { c.Scheduler.ApprovalInterval = 100 * time.Millisecond },
			wantErr: "scheduler.approval_interval",
		},
		{
			name:    "seal key not hex",
			mutate:  func(c *Config) { c.Session.SealKey = "not-hex!" },
			wantErr: "session.seal_key",
		},
		{
			name:    "seal key wrong length",
			mutate:  func(c *Config) { c.Session.SealKey = "abcd" },
			wantErr: "session.seal_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Node: NodeConfig{Name: "worker-1"}}
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSealKeyBytes(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	sc := SessionConfig{SealKey: hex.EncodeToString(key)}
	got, err := sc.SealKeyBytes()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, key, got[:])

	empty := SessionConfig{}
	got, err = empty.SealKeyBytes()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAPIEndpointDerivedFromAddress(t *testing.T) {
	cfg := &Config{Node: NodeConfig{Name: "worker-1", Address: "10.0.0.5"}}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://10.0.0.5:8080", cfg.Node.APIEndpoint)
}
