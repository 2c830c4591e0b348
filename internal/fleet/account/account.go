// Package account manages the per-node pool of authenticated platform
// sessions: round-robin checkout with exclusive per-session locks, ban
// tracking, deactivation, and inter-node transfers.
package account

import (
	"github.com/asimaranov/telestory-backend/internal/fleet/db"
)

// Account is one authenticated platform identity bound to a node.
// SessionBlob holds the decrypted credential while the account is loaded.
type Account struct {
	ID             string
	DisplayName    string
	Phone          string
	SessionBlob    string
	Active         bool
	InactiveReason string
	NodeID         string
	TransferTo     string
}

func fromRow(row db.Account) Account {
	a := Account{
		ID:             row.ID,
		DisplayName:    row.DisplayName,
		Phone:          row.Phone,
		SessionBlob:    row.SessionBlob,
		Active:         row.Active,
		InactiveReason: row.InactiveReason,
		NodeID:         row.NodeID,
	}
	if row.TransferTo.Valid {
		a.TransferTo = row.TransferTo.String
	}
	return a
}
