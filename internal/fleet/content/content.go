// Package content defines the interface to the third-party platform that
// sessions fetch from. The fleet layer consumes it; implementations live at
// the process edge.
package content

import (
	"context"
	"time"
)

// PeerRef identifies a resolved content owner on the platform.
type PeerRef struct {
	ID     string
	Handle string
}

// Selector narrows a fetch to a subset of items.
type Selector struct {
	Limit     int
	MediaOnly bool
}

// Item is one piece of fetched content.
type Item struct {
	ID        string
	Kind      string
	CreatedAt time.Time
	MediaRef  string
}

// Client talks to the content platform using one account's session
// credential. All calls are made while the caller holds that session's
// pool lease.
type Client interface {
	// ResolveIdentity maps a handle or phone to a peer reference.
	// Returns errors wrapping ErrIdentityNotFound for unknown handles.
	ResolveIdentity(ctx context.Context, session, handle string) (PeerRef, error)
	// FetchItems lists the peer's available items per the selector.
	FetchItems(ctx context.Context, session string, peer PeerRef, sel Selector) ([]Item, error)
	// DownloadMedia pulls the media payload of one item.
	DownloadMedia(ctx context.Context, session string, item Item) ([]byte, error)
	// MarkConsumed reports items as seen on behalf of the session's account.
	MarkConsumed(ctx context.Context, session string, peer PeerRef, ids []string) error
}
