package account

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/asimaranov/telestory-backend/internal/fleet/db"
	"github.com/asimaranov/telestory-backend/internal/fleet/events"
	"github.com/asimaranov/telestory-backend/internal/shared/errors"
)

// RequestTransfer marks an account for migration to targetNode. The sweep on
// the owning node picks the marker up and executes the move.
func (p *Pool) RequestTransfer(ctx context.Context, accountID, targetNode string) error {
	if _, err := p.store.GetAccount(ctx, accountID); err != nil {
		if err == sql.ErrNoRows {
			return errors.ErrAccountNotFound
		}
		return fmt.Errorf("failed to look up account %s: %w", accountID, err)
	}

	if err := p.store.SetTransferTarget(ctx, db.SetTransferTargetParams{
		ID:         accountID,
		TransferTo: sql.NullString{String: targetNode, Valid: true},
	}); err != nil {
		return fmt.Errorf("failed to mark account %s for transfer: %w", accountID, err)
	}

	p.logger.Info("transfer requested", "account_id", accountID, "target_node", targetNode)
	return nil
}

// TransferOut moves a locally-bound account to targetNode: it waits out any
// in-flight use of the session, removes it from the local rotation, and
// rebinds the record to the target in one step so the account is never
// double-bound. Accounts bound to another node are refused with
// ErrAccountNotLocal; only the owning node may move them. On any
// failure the transfer marker is cleared and the account stays local,
// deactivated with the cause, so the sweep does not retry it forever.
func (p *Pool) TransferOut(ctx context.Context, accountID, targetNode string) error {
	row, err := p.store.GetAccount(ctx, accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return errors.ErrAccountNotFound
		}
		return fmt.Errorf("failed to look up account %s: %w", accountID, err)
	}
	if row.NodeID != p.cfg.NodeName {
		// The owning node's session may be live; leave the marker in place
		// so that node's sweep executes the move.
		return fmt.Errorf("account %s is bound to %s: %w",
			accountID, row.NodeID, errors.ErrAccountNotLocal)
	}

	if targetNode == "" || targetNode == p.cfg.NodeName {
		return p.abortTransfer(ctx, accountID, targetNode, "validate_target",
			fmt.Errorf("invalid transfer target %q", targetNode))
	}

	if _, err := p.store.GetNode(ctx, targetNode); err != nil {
		if err == sql.ErrNoRows {
			err = errors.ErrNodeNotFound
		}
		return p.abortTransfer(ctx, accountID, targetNode, "validate_target", err)
	}

	// Wait for any in-flight holder to finish before the session leaves.
	lease, err := p.CheckoutByID(ctx, accountID)
	switch err {
	case nil:
		defer lease.Release()
	case errors.ErrAccountNotFound:
		// Not in rotation (already inactive); the record can still move.
	default:
		return p.abortTransfer(ctx, accountID, targetNode, "lock", err)
	}

	if err := p.store.ReassignAccount(ctx, db.ReassignAccountParams{
		ID:     accountID,
		NodeID: targetNode,
	}); err != nil {
		return p.abortTransfer(ctx, accountID, targetNode, "rebind", err)
	}

	p.removeFromRotation(accountID)

	p.logger.Info("account transferred", "account_id", accountID, "target_node", targetNode)
	p.publish(ctx, events.TypeTransferCompleted, map[string]interface{}{
		"account_id":  accountID,
		"target_node": targetNode,
	})
	return nil
}

// abortTransfer clears the pending marker and parks the account locally with
// an explanatory reason.
func (p *Pool) abortTransfer(ctx context.Context, accountID, targetNode, stage string, cause error) error {
	if err := p.store.SetTransferTarget(ctx, db.SetTransferTargetParams{
		ID:         accountID,
		TransferTo: sql.NullString{},
	}); err != nil {
		p.logger.ErrorCtx(ctx, "failed to clear transfer marker", err, "account_id", accountID)
	}

	reason := fmt.Sprintf("transfer_failed: %v", cause)
	if err := p.store.SetAccountStatus(ctx, db.SetAccountStatusParams{
		ID:             accountID,
		Active:         false,
		InactiveReason: reason,
	}); err != nil {
		p.logger.ErrorCtx(ctx, "failed to park account after transfer failure", err, "account_id", accountID)
	}

	p.removeFromRotation(accountID)

	p.logger.Warn("transfer failed",
		"account_id", accountID,
		"target_node", targetNode,
		"stage", stage,
		"error", cause,
	)
	p.publish(ctx, events.TypeTransferFailed, map[string]interface{}{
		"account_id":  accountID,
		"target_node": targetNode,
		"stage":       stage,
	})

	return &errors.TransferError{
		AccountID:  accountID,
		TargetNode: targetNode,
		Stage:      stage,
		Err:        cause,
	}
}

// SweepTransfers executes TransferOut for every locally-bound account that
// carries a pending-transfer marker. It no-ops until the initial load has
// completed, and one account's failure never stops the sweep.
func (p *Pool) SweepTransfers(ctx context.Context) error {
	if !p.Loaded() {
		return nil
	}

	pending, err := p.store.ListPendingTransfers(ctx, p.cfg.NodeName)
	if err != nil {
		return fmt.Errorf("failed to list pending transfers: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	op := p.logger.StartOp(ctx, "transfer_sweep", "pending", len(pending))
	var moved int
	for _, row := range pending {
		target := ""
		if row.TransferTo.Valid {
			target = row.TransferTo.String
		}
		if err := p.TransferOut(ctx, row.ID, target); err != nil {
			// Already logged with the stage; the marker is cleared so the
			// next sweep skips this account.
			continue
		}
		moved++
	}
	op.Complete("transfer sweep finished", "moved", moved, "failed", len(pending)-moved)
	return nil
}
