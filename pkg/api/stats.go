package api

import "time"

// AccountsStats summarizes one node's account pool health.
type AccountsStats struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
	Banned   int64 `json:"banned"`
}

// RequestStats holds fetch counts over the standard reporting windows.
type RequestStats struct {
	LastHour  int64 `json:"last_hour"`
	LastDay   int64 `json:"last_day"`
	LastWeek  int64 `json:"last_week"`
	LastMonth int64 `json:"last_month"`
}

// SystemStats reports host resource usage.
type SystemStats struct {
	DiskTotalBytes  uint64  `json:"disk_total_bytes"`
	DiskUsedBytes   uint64  `json:"disk_used_bytes"`
	DiskUsedPercent float64 `json:"disk_used_percent"`
	MemTotalBytes   uint64  `json:"mem_total_bytes"`
	MemUsedBytes    uint64  `json:"mem_used_bytes"`
	MemUsedPercent  float64 `json:"mem_used_percent"`
	Load1           float64 `json:"load1"`
	UptimeSeconds   uint64  `json:"uptime_seconds"`
}

// NodeStatsSnapshot is a point-in-time view of one node's operational state.
// Sub-reports that failed to collect are zeroed, CollectionSuccess is false
// and Error carries the diagnostic; the snapshot itself is always returned.
type NodeStatsSnapshot struct {
	Node              string        `json:"node"`
	Tier              string        `json:"tier"`
	Accounts          AccountsStats `json:"accounts"`
	Requests          RequestStats  `json:"requests"`
	System            SystemStats   `json:"system"`
	CollectionSuccess bool          `json:"collection_success"`
	Error             string        `json:"error,omitempty"`
	CollectedAt       time.Time     `json:"collected_at"`
}

// FleetSummary aggregates totals over the nodes that reported a snapshot.
type FleetSummary struct {
	NodesTotal       int    `json:"nodes_total"`
	NodesReporting   int    `json:"nodes_reporting"`
	AccountsTotal    int64  `json:"accounts_total"`
	AccountsActive   int64  `json:"accounts_active"`
	RequestsLastHour int64  `json:"requests_last_hour"`
	DiskUsedBytes    uint64 `json:"disk_used_bytes"`
}

// FleetStatsResponse is the merged fleet-wide snapshot.
type FleetStatsResponse struct {
	Nodes   []NodeStatsSnapshot `json:"nodes"`
	Summary FleetSummary        `json:"summary"`
}
