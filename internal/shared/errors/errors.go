package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrPoolEmpty is returned when a checkout is attempted against a pool
	// with no usable sessions. Reported to the caller, never retried
	// automatically.
	ErrPoolEmpty = errors.New("account pool is empty")

	// ErrNoNodeAvailable is returned by node selection when no active,
	// approved node matches the request.
	ErrNoNodeAvailable = errors.New("no node available")

	ErrNodeNotFound     = errors.New("node not found")
	ErrAccountNotFound  = errors.New("account not found")
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrAccountNotLocal is returned when a node is asked to move an account
	// whose record is bound to a different node. Only the owning node may
	// execute the move; everyone else can only set the pending marker.
	ErrAccountNotLocal = errors.New("account not bound to this node")
)

// AuthError indicates a session whose credentials are no longer accepted by
// the platform. The owning account is permanently deactivated.
type AuthError struct {
	AccountID string
	Err       error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth expired (account=%s): %v", e.AccountID, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError creates a new auth error
func NewAuthError(accountID string, err error) *AuthError {
	return &AuthError{AccountID: accountID, Err: err}
}

// IsAuthExpired reports whether err carries an AuthError anywhere in its chain.
func IsAuthExpired(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// BlockedError indicates the target rejected or blocked the session. A ban
// record is stored so the same account is not retried against that target.
type BlockedError struct {
	AccountID string
	Target    string
	Err       error
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("target blocked (account=%s, target=%s): %v", e.AccountID, e.Target, e.Err)
}

func (e *BlockedError) Unwrap() error {
	return e.Err
}

// NewBlockedError creates a new blocked error
func NewBlockedError(accountID, target string, err error) *BlockedError {
	return &BlockedError{AccountID: accountID, Target: target, Err: err}
}

// IsTargetBlocked reports whether err carries a BlockedError anywhere in its chain.
func IsTargetBlocked(err error) bool {
	var blockedErr *BlockedError
	return errors.As(err, &blockedErr)
}

// RemoteError represents a transient failure talking to another node or the
// content platform. It triggers the local-fallback chain, never a crash.
type RemoteError struct {
	Node   string
	Reason string // "timeout", "network", "status_<code>"
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("remote failure (node=%s, reason=%s): %v", e.Node, e.Reason, e.Err)
	}
	return fmt.Sprintf("remote failure (reason=%s): %v", e.Reason, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NewRemoteError creates a new remote error
func NewRemoteError(node, reason string, err error) *RemoteError {
	return &RemoteError{Node: node, Reason: reason, Err: err}
}

// RemoteReason extracts the failure reason from a RemoteError in the chain,
// or "unknown" when err is not remote.
func RemoteReason(err error) string {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Reason
	}
	return "unknown"
}

// TransferError represents a failed inter-node account transfer. The account
// stays on its original node with the pending marker cleared.
type TransferError struct {
	AccountID  string
	TargetNode string
	Stage      string // e.g. "stop_session", "rebind", "clear_marker"
	Err        error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed at %s (account=%s, target=%s): %v", e.Stage, e.AccountID, e.TargetNode, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// NewTransferError creates a new transfer error
func NewTransferError(accountID, targetNode, stage string, err error) *TransferError {
	return &TransferError{AccountID: accountID, TargetNode: targetNode, Stage: stage, Err: err}
}

// ConfigError represents a configuration error. Missing required startup
// identity is fatal and aborts startup.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error [%s]: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("config error: %s: %v", e.Message, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new config error
func NewConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: err}
}
