package db

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the subset of database/sql used by Queries, satisfied by both
// *sql.DB and *sql.Tx so queries compose into transactions.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Querier defines all query functions
type Querier interface {
	// Nodes
	UpsertNode(ctx context.Context, params UpsertNodeParams) (Node, error)
	GetNode(ctx context.Context, name string) (Node, error)
	ListNodes(ctx context.Context) ([]Node, error)
	UpdateNodeStatus(ctx context.Context, params UpdateNodeStatusParams) error
	SetNodeActive(ctx context.Context, params SetNodeActiveParams) error
	SetNodeApproved(ctx context.Context, params SetNodeApprovedParams) error
	TouchNodeActivity(ctx context.Context, params TouchNodeActivityParams) error

	// Accounts
	CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	ListAccountsByNode(ctx context.Context, nodeID string) ([]Account, error)
	ListActiveAccountsByNode(ctx context.Context, nodeID string) ([]Account, error)
	SetAccountStatus(ctx context.Context, params SetAccountStatusParams) error
	UpdateAccountSession(ctx context.Context, params UpdateAccountSessionParams) error
	SetTransferTarget(ctx context.Context, params SetTransferTargetParams) error
	ReassignAccount(ctx context.Context, params ReassignAccountParams) error
	ListPendingTransfers(ctx context.Context, nodeID string) ([]Account, error)

	// Bans
	InsertAccountBan(ctx context.Context, params InsertAccountBanParams) (bool, error)
	ListAccountBans(ctx context.Context, accountID string) ([]AccountBan, error)
	CountBannedAccountsByNode(ctx context.Context, nodeID string) (int64, error)

	// Session history
	InsertSessionHistory(ctx context.Context, params InsertSessionHistoryParams) error
	TrimSessionHistory(ctx context.Context, params TrimSessionHistoryParams) error
	ListSessionHistory(ctx context.Context, accountID string) ([]SessionHistoryEntry, error)

	// Request log
	InsertRequestLog(ctx context.Context, params InsertRequestLogParams) error
	CountRequestsSince(ctx context.Context, params CountRequestsSinceParams) (int64, error)
	PruneRequestLog(ctx context.Context, before time.Time) (int64, error)
}

// Queries executes queries against a DBTX
type Queries struct {
	db DBTX
}

// New creates a Queries instance
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

var _ Querier = (*Queries)(nil)

const nodeColumns = `name, ip_address, api_endpoint, tier, active, approved, last_active_at, created_at, updated_at`

func scanNode(row interface{ Scan(...interface{}) error }) (Node, error) {
	var n Node
	err := row.Scan(
		&n.Name,
		&n.IPAddress,
		&n.APIEndpoint,
		&n.Tier,
		&n.Active,
		&n.Approved,
		&n.LastActiveAt,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	return n, err
}

// UpsertNodeParams holds parameters for UpsertNode
type UpsertNodeParams struct {
	Name        string
	IPAddress   string
	APIEndpoint string
	Tier        string
}

// UpsertNode inserts a node or refreshes its connection details. Approval and
// routing state survive re-registration.
func (q *Queries) UpsertNode(ctx context.Context, params UpsertNodeParams) (Node, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO nodes (name, ip_address, api_endpoint, tier)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			ip_address   = excluded.ip_address,
			api_endpoint = excluded.api_endpoint,
			tier         = excluded.tier,
			updated_at   = CURRENT_TIMESTAMP`,
		params.Name, params.IPAddress, params.APIEndpoint, params.Tier,
	)
	if err != nil {
		return Node{}, err
	}
	return q.GetNode(ctx, params.Name)
}

// GetNode fetches a node by name
func (q *Queries) GetNode(ctx context.Context, name string) (Node, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE name = ?`, name)
	return scanNode(row)
}

// ListNodes returns all nodes ordered by creation time
func (q *Queries) ListNodes(ctx context.Context) ([]Node, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// UpdateNodeStatusParams holds parameters for UpdateNodeStatus
type UpdateNodeStatusParams struct {
	Name     string
	Active   bool
	Approved bool
}

// UpdateNodeStatus sets the routing and approval flags of a node
func (q *Queries) UpdateNodeStatus(ctx context.Context, params UpdateNodeStatusParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE nodes
		SET active = ?, approved = ?, updated_at = CURRENT_TIMESTAMP
		WHERE name = ?`,
		params.Active, params.Approved, params.Name,
	)
	return err
}

// SetNodeActiveParams holds parameters for SetNodeActive
type SetNodeActiveParams struct {
	Name   string
	Active bool
}

// SetNodeActive flips the routing flag of a node; approval is untouched
func (q *Queries) SetNodeActive(ctx context.Context, params SetNodeActiveParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE nodes
		SET active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE name = ?`,
		params.Active, params.Name,
	)
	return err
}

// SetNodeApprovedParams holds parameters for SetNodeApproved
type SetNodeApprovedParams struct {
	Name     string
	Approved bool
}

// SetNodeApproved flips the approval flag of a node; routing is untouched
func (q *Queries) SetNodeApproved(ctx context.Context, params SetNodeApprovedParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE nodes
		SET approved = ?, updated_at = CURRENT_TIMESTAMP
		WHERE name = ?`,
		params.Approved, params.Name,
	)
	return err
}

// TouchNodeActivityParams holds parameters for TouchNodeActivity
type TouchNodeActivityParams struct {
	Name         string
	LastActiveAt time.Time
}

// TouchNodeActivity records the last time a node responded to a probe
func (q *Queries) TouchNodeActivity(ctx context.Context, params TouchNodeActivityParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE nodes
		SET last_active_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE name = ?`,
		params.LastActiveAt, params.Name,
	)
	return err
}

const accountColumns = `id, display_name, phone, session_blob, active, inactive_reason, node_id, transfer_to, created_at, updated_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.DisplayName,
		&a.Phone,
		&a.SessionBlob,
		&a.Active,
		&a.InactiveReason,
		&a.NodeID,
		&a.TransferTo,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func (q *Queries) listAccounts(ctx context.Context, query string, args ...interface{}) ([]Account, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CreateAccountParams holds parameters for CreateAccount
type CreateAccountParams struct {
	ID          string
	DisplayName string
	Phone       string
	SessionBlob string
	NodeID      string
}

// CreateAccount inserts a new account bound to a node
func (q *Queries) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO accounts (id, display_name, phone, session_blob, node_id)
		VALUES (?, ?, ?, ?, ?)`,
		params.ID, params.DisplayName, params.Phone, params.SessionBlob, params.NodeID,
	)
	if err != nil {
		return Account{}, err
	}
	return q.GetAccount(ctx, params.ID)
}

// GetAccount fetches an account by id
func (q *Queries) GetAccount(ctx context.Context, id string) (Account, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// ListAccountsByNode returns all accounts bound to a node
func (q *Queries) ListAccountsByNode(ctx context.Context, nodeID string) ([]Account, error) {
	return q.listAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE node_id = ? ORDER BY created_at, id`, nodeID)
}

// ListActiveAccountsByNode returns the accounts a node may hand out sessions for
func (q *Queries) ListActiveAccountsByNode(ctx context.Context, nodeID string) ([]Account, error) {
	return q.listAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE node_id = ? AND active = 1 ORDER BY created_at, id`, nodeID)
}

// SetAccountStatusParams holds parameters for SetAccountStatus
type SetAccountStatusParams struct {
	ID             string
	Active         bool
	InactiveReason string
}

// SetAccountStatus activates or deactivates an account with a reason
func (q *Queries) SetAccountStatus(ctx context.Context, params SetAccountStatusParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE accounts
		SET active = ?, inactive_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		params.Active, params.InactiveReason, params.ID,
	)
	return err
}

// UpdateAccountSessionParams holds parameters for UpdateAccountSession
type UpdateAccountSessionParams struct {
	ID          string
	SessionBlob string
}

// UpdateAccountSession replaces the stored session credential of an account
func (q *Queries) UpdateAccountSession(ctx context.Context, params UpdateAccountSessionParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE accounts
		SET session_blob = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		params.SessionBlob, params.ID,
	)
	return err
}

// SetTransferTargetParams holds parameters for SetTransferTarget
type SetTransferTargetParams struct {
	ID         string
	TransferTo sql.NullString
}

// SetTransferTarget marks an account for migration, or clears the marker when
// TransferTo is null
func (q *Queries) SetTransferTarget(ctx context.Context, params SetTransferTargetParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE accounts
		SET transfer_to = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		params.TransferTo, params.ID,
	)
	return err
}

// ReassignAccountParams holds parameters for ReassignAccount
type ReassignAccountParams struct {
	ID     string
	NodeID string
}

// ReassignAccount rebinds an account to a new node and clears any pending
// transfer marker in the same statement
func (q *Queries) ReassignAccount(ctx context.Context, params ReassignAccountParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE accounts
		SET node_id = ?, transfer_to = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		params.NodeID, params.ID,
	)
	return err
}

// ListPendingTransfers returns accounts on a node that carry a transfer marker
func (q *Queries) ListPendingTransfers(ctx context.Context, nodeID string) ([]Account, error) {
	return q.listAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE node_id = ? AND transfer_to IS NOT NULL ORDER BY created_at, id`, nodeID)
}

// InsertAccountBanParams holds parameters for InsertAccountBan
type InsertAccountBanParams struct {
	AccountID string
	BannedBy  string
	Meta      string
}

// InsertAccountBan records a ban once per (account, target) pair. Returns true
// when a new row was written, false when the pair was already known.
func (q *Queries) InsertAccountBan(ctx context.Context, params InsertAccountBanParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO account_bans (account_id, banned_by, meta)
		VALUES (?, ?, ?)`,
		params.AccountID, params.BannedBy, params.Meta,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListAccountBans returns all recorded bans for an account
func (q *Queries) ListAccountBans(ctx context.Context, accountID string) ([]AccountBan, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT account_id, banned_by, meta, created_at
		FROM account_bans
		WHERE account_id = ?
		ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bans []AccountBan
	for rows.Next() {
		var b AccountBan
		if err := rows.Scan(&b.AccountID, &b.BannedBy, &b.Meta, &b.CreatedAt); err != nil {
			return nil, err
		}
		bans = append(bans, b)
	}
	return bans, rows.Err()
}

// CountBannedAccountsByNode counts the node's accounts with at least one ban
func (q *Queries) CountBannedAccountsByNode(ctx context.Context, nodeID string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT b.account_id)
		FROM account_bans b
		JOIN accounts a ON a.id = b.account_id
		WHERE a.node_id = ?`, nodeID).Scan(&count)
	return count, err
}

// InsertSessionHistoryParams holds parameters for InsertSessionHistory
type InsertSessionHistoryParams struct {
	ID        string
	AccountID string
	Reason    string
	BlobHash  string
}

// InsertSessionHistory appends one credential-change record for an account
func (q *Queries) InsertSessionHistory(ctx context.Context, params InsertSessionHistoryParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO session_history (id, account_id, reason, blob_hash)
		VALUES (?, ?, ?, ?)`,
		params.ID, params.AccountID, params.Reason, params.BlobHash,
	)
	return err
}

// TrimSessionHistoryParams holds parameters for TrimSessionHistory
type TrimSessionHistoryParams struct {
	AccountID string
	Keep      int64
}

// TrimSessionHistory drops all but the newest Keep records of an account
func (q *Queries) TrimSessionHistory(ctx context.Context, params TrimSessionHistoryParams) error {
	_, err := q.db.ExecContext(ctx, `
		DELETE FROM session_history
		WHERE account_id = ?
		  AND id NOT IN (
			SELECT id FROM session_history
			WHERE account_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		  )`,
		params.AccountID, params.AccountID, params.Keep,
	)
	return err
}

// ListSessionHistory returns an account's credential history, newest first
func (q *Queries) ListSessionHistory(ctx context.Context, accountID string) ([]SessionHistoryEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, account_id, reason, blob_hash, created_at
		FROM session_history
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SessionHistoryEntry
	for rows.Next() {
		var e SessionHistoryEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Reason, &e.BlobHash, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertRequestLogParams holds parameters for InsertRequestLog
type InsertRequestLogParams struct {
	NodeID   string
	RouteLog string
}

// InsertRequestLog attributes one executed fetch to a node
func (q *Queries) InsertRequestLog(ctx context.Context, params InsertRequestLogParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO request_log (node_id, route_log)
		VALUES (?, ?)`,
		params.NodeID, params.RouteLog,
	)
	return err
}

// CountRequestsSinceParams holds parameters for CountRequestsSince
type CountRequestsSinceParams struct {
	NodeID string
	Since  time.Time
}

// CountRequestsSince counts fetches executed by a node inside a time window
func (q *Queries) CountRequestsSince(ctx context.Context, params CountRequestsSinceParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM request_log
		WHERE node_id = ? AND created_at >= ?`,
		params.NodeID, params.Since).Scan(&count)
	return count, err
}

// PruneRequestLog deletes request log rows older than the cutoff
func (q *Queries) PruneRequestLog(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM request_log WHERE created_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
