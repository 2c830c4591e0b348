package account

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/asimaranov/telestory-backend/internal/fleet/db"
	"github.com/asimaranov/telestory-backend/internal/fleet/events"
	"github.com/asimaranov/telestory-backend/internal/shared/errors"
	"github.com/asimaranov/telestory-backend/internal/shared/logger"
	"github.com/asimaranov/telestory-backend/pkg/crypto"
)

// session is one pool entry. The semaphore channel (capacity 1) is the
// per-session exclusive lock: holders block on it rather than spin, and
// waiters are served roughly in arrival order.
type session struct {
	account Account
	sem     chan struct{}
}

func newSession(a Account) *session {
	return &session{account: a, sem: make(chan struct{}, 1)}
}

// Lease is an exclusive hold on one session. Release must be called on every
// exit path; it is safe to call more than once.
type Lease struct {
	s       *session
	release sync.Once
}

// Account returns the held session's account as loaded at checkout time.
func (l *Lease) Account() Account {
	return l.s.account
}

// Release returns the session lock to the pool.
func (l *Lease) Release() {
	l.release.Do(func() {
		<-l.s.sem
	})
}

// PoolConfig holds pool construction parameters.
type PoolConfig struct {
	NodeName         string
	HistoryRetention int
}

// Pool holds the usable sessions of one node and guarantees exclusive use.
type Pool struct {
	cfg    PoolConfig
	store  db.Store
	box    *crypto.SessionBox
	bus    *events.Bus
	logger *logger.Logger

	mu       sync.Mutex
	rotation []*session // checkout order; active sessions only
	byID     map[string]*session
	cursor   int
	loaded   bool
}

// NewPool creates an empty pool. Call Load before checking out sessions.
func NewPool(cfg PoolConfig, store db.Store, box *crypto.SessionBox, bus *events.Bus, log *logger.Logger) *Pool {
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = 50
	}
	return &Pool{
		cfg:    cfg,
		store:  store,
		box:    box,
		bus:    bus,
		logger: log.WithComponent("account_pool"),
		byID:   make(map[string]*session),
	}
}

// Load populates the pool with the node's active accounts. A single account
// with an unreadable credential is deactivated and skipped; it never fails
// the whole load.
func (p *Pool) Load(ctx context.Context) error {
	rows, err := p.store.ListActiveAccountsByNode(ctx, p.cfg.NodeName)
	if err != nil {
		return fmt.Errorf("failed to load accounts for node %s: %w", p.cfg.NodeName, err)
	}

	var sessions []*session
	byID := make(map[string]*session, len(rows))
	for _, row := range rows {
		a := fromRow(row)

		blob, err := p.box.Open(a.SessionBlob)
		if err != nil {
			p.logger.Warn("skipping account with unreadable session",
				"account_id", a.ID, "error", err)
			if derr := p.store.SetAccountStatus(ctx, db.SetAccountStatusParams{
				ID:             a.ID,
				Active:         false,
				InactiveReason: "session_unreadable: " + err.Error(),
			}); derr != nil {
				p.logger.ErrorCtx(ctx, "failed to deactivate unreadable account", derr, "account_id", a.ID)
			}
			continue
		}
		a.SessionBlob = string(blob)

		s := newSession(a)
		sessions = append(sessions, s)
		byID[a.ID] = s
	}

	p.mu.Lock()
	p.rotation = sessions
	p.byID = byID
	p.cursor = 0
	p.loaded = true
	p.mu.Unlock()

	p.logger.Info("account pool loaded",
		"node", p.cfg.NodeName,
		"accounts", len(sessions),
		"skipped", len(rows)-len(sessions),
	)
	return nil
}

// Loaded reports whether the initial load has completed.
func (p *Pool) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Size returns the number of sessions currently in rotation.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rotation)
}

// Checkout returns the next session in round-robin order, holding its
// exclusive lock. A second checkout of the same session blocks until the
// first lease is released; checkouts of different sessions proceed
// independently. Fails with ErrPoolEmpty when no sessions are in rotation.
func (p *Pool) Checkout(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	if !p.loaded || len(p.rotation) == 0 {
		p.mu.Unlock()
		return nil, errors.ErrPoolEmpty
	}
	s := p.rotation[p.cursor%len(p.rotation)]
	p.cursor = (p.cursor + 1) % len(p.rotation)
	p.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
		return &Lease{s: s}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CheckoutByID holds the lock of one specific session, bypassing rotation.
// Used by transfers so a migrating session is never mid-fetch.
func (p *Pool) CheckoutByID(ctx context.Context, accountID string) (*Lease, error) {
	p.mu.Lock()
	s, ok := p.byID[accountID]
	p.mu.Unlock()
	if !ok {
		return nil, errors.ErrAccountNotFound
	}

	select {
	case s.sem <- struct{}{}:
		return &Lease{s: s}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RecordBan stores the fact that an account was rejected by a target.
// Duplicate (account, target) pairs are no-ops, not errors.
func (p *Pool) RecordBan(ctx context.Context, accountID, bannedBy, meta string) error {
	inserted, err := p.store.InsertAccountBan(ctx, db.InsertAccountBanParams{
		AccountID: accountID,
		BannedBy:  bannedBy,
		Meta:      meta,
	})
	if err != nil {
		return fmt.Errorf("failed to record ban for account %s: %w", accountID, err)
	}
	if !inserted {
		return nil
	}

	p.logger.Info("ban recorded", "account_id", accountID, "banned_by", bannedBy)
	p.publish(ctx, events.TypeBanRecorded, map[string]interface{}{
		"account_id": accountID,
		"banned_by":  bannedBy,
	})
	return nil
}

// Deactivate marks the account inactive with a reason and removes it from
// rotation. In-flight holders of its lock finish normally.
func (p *Pool) Deactivate(ctx context.Context, accountID, reason string) error {
	if err := p.store.SetAccountStatus(ctx, db.SetAccountStatusParams{
		ID:             accountID,
		Active:         false,
		InactiveReason: reason,
	}); err != nil {
		return fmt.Errorf("failed to deactivate account %s: %w", accountID, err)
	}

	p.removeFromRotation(accountID)

	p.logger.Warn("account deactivated", "account_id", accountID, "reason", reason)
	p.publish(ctx, events.TypeAccountDeactivated, map[string]interface{}{
		"account_id": accountID,
		"reason":     reason,
	})
	return nil
}

// RotateSession replaces an account's stored credential and appends an audit
// record, trimming history to the configured retention.
func (p *Pool) RotateSession(ctx context.Context, accountID, newBlob, reason string) error {
	sealed, err := p.box.Seal([]byte(newBlob))
	if err != nil {
		return fmt.Errorf("failed to seal session for account %s: %w", accountID, err)
	}

	err = p.store.ExecTx(ctx, func(q *db.Queries) error {
		if err := q.UpdateAccountSession(ctx, db.UpdateAccountSessionParams{
			ID:          accountID,
			SessionBlob: sealed,
		}); err != nil {
			return err
		}
		if err := q.InsertSessionHistory(ctx, db.InsertSessionHistoryParams{
			ID:        uuid.New().String(),
			AccountID: accountID,
			Reason:    reason,
			BlobHash:  crypto.BlobHash([]byte(newBlob)),
		}); err != nil {
			return err
		}
		return q.TrimSessionHistory(ctx, db.TrimSessionHistoryParams{
			AccountID: accountID,
			Keep:      int64(p.cfg.HistoryRetention),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to rotate session for account %s: %w", accountID, err)
	}

	p.mu.Lock()
	if s, ok := p.byID[accountID]; ok {
		s.account.SessionBlob = newBlob
	}
	p.mu.Unlock()

	p.publish(ctx, events.TypeSessionRotated, map[string]interface{}{
		"account_id": accountID,
		"reason":     reason,
	})
	return nil
}

// removeFromRotation drops a session from checkout order while keeping the
// cursor within bounds.
func (p *Pool) removeFromRotation(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.byID, accountID)
	for i, s := range p.rotation {
		if s.account.ID != accountID {
			continue
		}
		p.rotation = append(p.rotation[:i], p.rotation[i+1:]...)
		if len(p.rotation) == 0 {
			p.cursor = 0
		} else {
			if i < p.cursor {
				p.cursor--
			}
			p.cursor %= len(p.rotation)
		}
		return
	}
}

func (p *Pool) publish(ctx context.Context, eventType string, fields map[string]interface{}) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, events.NewEvent(eventType, fields)); err != nil {
		p.logger.Warn("failed to publish event", "type", eventType, "error", err)
	}
}
