package db

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func TestNewTestDBSchema(t *testing.T) {
	rawDB, store := NewTestDB(t)

	if store == nil {
		t.Fatal("expected store to be non-nil")
	}

	var tableCount int
	err := rawDB.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='nodes'").Scan(&tableCount)
	if err != nil {
		t.Fatalf("failed to query schema: %v", err)
	}

	if tableCount != 1 {
		t.Errorf("expected 1 'nodes' table, got %d", tableCount)
	}
}

func TestUpsertNode(t *testing.T) {
	_, store := NewTestDB(t)
	ctx := context.Background()

	node, err := store.UpsertNode(ctx, UpsertNodeParams{
		Name:        "worker-1",
		IPAddress:   "10.0.0.5",
		APIEndpoint: "http://10.0.0.5:8080",
		Tier:        "free",
	})
	if err != nil {
		t.Fatalf("UpsertNode failed: %v", err)
	}

	if node.Name != "worker-1" {
		t.Errorf("expected name worker-1, got %s", node.Name)
	}
	if !node.Active {
		t.Error("expected new node to be active")
	}
	if node.Approved {
		t.Error("expected new node to be unapproved")
	}

	// Approve, then re-register with a new address. Approval must survive.
	if err := store.UpdateNodeStatus(ctx, UpdateNodeStatusParams{Name: "worker-1", Active: true, Approved: true}); err != nil {
		t.Fatalf("UpdateNodeStatus failed: %v", err)
	}

	node, err = store.UpsertNode(ctx, UpsertNodeParams{
		Name:        "worker-1",
		IPAddress:   "10.0.0.9",
		APIEndpoint: "http://10.0.0.9:8080",
		Tier:        "premium",
	})
	if err != nil {
		t.Fatalf("second UpsertNode failed: %v", err)
	}

	if node.IPAddress != "10.0.0.9" {
		t.Errorf("expected refreshed IP 10.0.0.9, got %s", node.IPAddress)
	}
	if node.Tier != "premium" {
		t.Errorf("expected refreshed tier premium, got %s", node.Tier)
	}
	if !node.Approved {
		t.Error("expected approval to survive re-registration")
	}

	nodes, err := store.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes failed: %v", err)
	}
	if len(nodes) != 1 {
		t.Errorf("expected 1 node after upsert, got %d", len(nodes))
	}
}

func TestTouchNodeActivity(t *testing.T) {
	_, store := NewTestDB(t)
	ctx := context.Background()

	SeedTestNode(t, store, UpsertNodeParams{Name: "worker-1", Tier: "free"})

	now := time.Now().UTC().Truncate(time.Second)
	if err := store.TouchNodeActivity(ctx, TouchNodeActivityParams{Name: "worker-1", LastActiveAt: now}); err != nil {
		t.Fatalf("TouchNodeActivity failed: %v", err)
	}

	node, err := store.GetNode(ctx, "worker-1")
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if !node.LastActiveAt.Valid {
		t.Fatal("expected last_active_at to be set")
	}
	if !node.LastActiveAt.Time.Equal(now) {
		t.Errorf("expected last_active_at %v, got %v", now, node.LastActiveAt.Time)
	}
}

func TestAccountLifecycle(t *testing.T) {
	_, store := NewTestDB(t)
	ctx := context.Background()

	SeedTestNode(t, store, UpsertNodeParams{Name: "worker-1", Tier: "free"})
	SeedTestNode(t, store, UpsertNodeParams{Name: "worker-2", Tier: "premium"})

	account := SeedTestAccount(t, store, CreateAccountParams{
		ID:          "acc-1",
		DisplayName: "primary",
		Phone:       "+15550001111",
		SessionBlob: "blob-1",
		NodeID:      "worker-1",
	})
	if !account.Active {
		t.Fatal("expected new account to be active")
	}

	// Deactivate with a reason.
	err := store.SetAccountStatus(ctx, SetAccountStatusParams{
		ID:             "acc-1",
		Active:         false,
		InactiveReason: "auth_expired",
	})
	if err != nil {
		t.Fatalf("SetAccountStatus failed: %v", err)
	}

	account, err = store.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if account.Active {
		t.Error("expected account to be inactive")
	}
	if account.InactiveReason != "auth_expired" {
		t.Errorf("expected reason auth_expired, got %q", account.InactiveReason)
	}

	active, err := store.ListActiveAccountsByNode(ctx, "worker-1")
	if err != nil {
		t.Fatalf("ListActiveAccountsByNode failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected 0 active accounts, got %d", len(active))
	}

	// Mark for transfer, then complete it.
	err = store.SetTransferTarget(ctx, SetTransferTargetParams{
		ID:         "acc-1",
		TransferTo: sql.NullString{String: "worker-2", Valid: true},
	})
	if err != nil {
		t.Fatalf("SetTransferTarget failed: %v", err)
	}

	pending, err := store.ListPendingTransfers(ctx, "worker-1")
	if err != nil {
		t.Fatalf("ListPendingTransfers failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "acc-1" {
		t.Fatalf("expected acc-1 pending transfer, got %+v", pending)
	}

	if err := store.ReassignAccount(ctx, ReassignAccountParams{ID: "acc-1", NodeID: "worker-2"}); err != nil {
		t.Fatalf("ReassignAccount failed: %v", err)
	}

	account, err = store.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if account.NodeID != "worker-2" {
		t.Errorf("expected node worker-2, got %s", account.NodeID)
	}
	if account.TransferTo.Valid {
		t.Error("expected transfer marker to be cleared")
	}
}

func TestInsertAccountBanIdempotent(t *testing.T) {
	_, store := NewTestDB(t)
	ctx := context.Background()

	SeedTestNode(t, store, UpsertNodeParams{Name: "worker-1", Tier: "free"})
	SeedTestAccount(t, store, CreateAccountParams{ID: "acc-1", SessionBlob: "blob", NodeID: "worker-1"})

	inserted, err := store.InsertAccountBan(ctx, InsertAccountBanParams{
		AccountID: "acc-1",
		BannedBy:  "target-xyz",
		Meta:      `{"code":403}`,
	})
	if err != nil {
		t.Fatalf("InsertAccountBan failed: %v", err)
	}
	if !inserted {
		t.Error("expected first ban to be inserted")
	}

	inserted, err = store.InsertAccountBan(ctx, InsertAccountBanParams{
		AccountID: "acc-1",
		BannedBy:  "target-xyz",
	})
	if err != nil {
		t.Fatalf("duplicate InsertAccountBan failed: %v", err)
	}
	if inserted {
		t.Error("expected duplicate ban to be ignored")
	}

	bans, err := store.ListAccountBans(ctx, "acc-1")
	if err != nil {
		t.Fatalf("ListAccountBans failed: %v", err)
	}
	if len(bans) != 1 {
		t.Errorf("expected 1 ban, got %d", len(bans))
	}

	count, err := store.CountBannedAccountsByNode(ctx, "worker-1")
	if err != nil {
		t.Fatalf("CountBannedAccountsByNode failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 banned account, got %d", count)
	}
}

func TestTrimSessionHistory(t *testing.T) {
	_, store := NewTestDB(t)
	ctx := context.Background()

	SeedTestNode(t, store, UpsertNodeParams{Name: "worker-1", Tier: "free"})
	SeedTestAccount(t, store, CreateAccountParams{ID: "acc-1", SessionBlob: "blob", NodeID: "worker-1"})

	for i := 0; i < 5; i++ {
		err := store.InsertSessionHistory(ctx, InsertSessionHistoryParams{
			ID:        string(rune('a' + i)),
			AccountID: "acc-1",
			Reason:    "rotation",
			BlobHash:  "hash",
		})
		if err != nil {
			t.Fatalf("InsertSessionHistory failed: %v", err)
		}
	}

	if err := store.TrimSessionHistory(ctx, TrimSessionHistoryParams{AccountID: "acc-1", Keep: 2}); err != nil {
		t.Fatalf("TrimSessionHistory failed: %v", err)
	}

	entries, err := store.ListSessionHistory(ctx, "acc-1")
	if err != nil {
		t.Fatalf("ListSessionHistory failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries after trim, got %d", len(entries))
	}
}

func TestCountRequestsSince(t *testing.T) {
	_, store := NewTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.InsertRequestLog(ctx, InsertRequestLogParams{NodeID: "worker-1", RouteLog: "direct_current_chosen"}); err != nil {
			t.Fatalf("InsertRequestLog failed: %v", err)
		}
	}
	if err := store.InsertRequestLog(ctx, InsertRequestLogParams{NodeID: "worker-2"}); err != nil {
		t.Fatalf("InsertRequestLog failed: %v", err)
	}

	count, err := store.CountRequestsSince(ctx, CountRequestsSinceParams{
		NodeID: "worker-1",
		Since:  time.Now().UTC().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("CountRequestsSince failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 requests for worker-1, got %d", count)
	}

	count, err = store.CountRequestsSince(ctx, CountRequestsSinceParams{
		NodeID: "worker-1",
		Since:  time.Now().UTC().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CountRequestsSince failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 requests in future window, got %d", count)
	}
}

func TestExecTxRollsBack(t *testing.T) {
	_, store := NewTestDB(t)
	ctx := context.Background()

	SeedTestNode(t, store, UpsertNodeParams{Name: "worker-1", Tier: "free"})

	wantErr := sql.ErrConnDone // any sentinel to force rollback
	err := store.ExecTx(ctx, func(q *Queries) error {
		if _, err := q.CreateAccount(ctx, CreateAccountParams{ID: "acc-tx", SessionBlob: "blob", NodeID: "worker-1"}); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected rollback error %v, got %v", wantErr, err)
	}

	if _, err := store.GetAccount(ctx, "acc-tx"); err != sql.ErrNoRows {
		t.Errorf("expected sql.ErrNoRows after rollback, got %v", err)
	}
}
