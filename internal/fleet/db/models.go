package db

import (
	"database/sql"
	"time"
)

// Node is a fleet member as recorded in the shared store.
type Node struct {
	Name         string
	IPAddress    string
	APIEndpoint  string
	Tier         string
	Active       bool
	Approved     bool
	LastActiveAt sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Account is a platform account bound to a node.
type Account struct {
	ID             string
	DisplayName    string
	Phone          string
	SessionBlob    string
	Active         bool
	InactiveReason string
	NodeID         string
	TransferTo     sql.NullString
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AccountBan records that an account was rejected by a specific target.
type AccountBan struct {
	AccountID string
	BannedBy  string
	Meta      string
	CreatedAt time.Time
}

// SessionHistoryEntry is one archived credential change for an account.
type SessionHistoryEntry struct {
	ID        string
	AccountID string
	Reason    string
	BlobHash  string
	CreatedAt time.Time
}

// RequestLogEntry is one executed fetch attributed to a node.
type RequestLogEntry struct {
	ID        int64
	NodeID    string
	RouteLog  string
	CreatedAt time.Time
}
