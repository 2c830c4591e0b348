package content

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by Unconfigured for every operation.
var ErrNotConfigured = errors.New("content client not configured")

// Unconfigured is the placeholder client used when no platform provider has
// been wired in. Every operation fails with ErrNotConfigured.
type Unconfigured struct{}

var _ Client = Unconfigured{}

func (Unconfigured) ResolveIdentity(ctx context.Context, session, handle string) (PeerRef, error) {
	return PeerRef{}, ErrNotConfigured
}

func (Unconfigured) FetchItems(ctx context.Context, session string, peer PeerRef, sel Selector) ([]Item, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) DownloadMedia(ctx context.Context, session string, item Item) ([]byte, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) MarkConsumed(ctx context.Context, session string, peer PeerRef, ids []string) error {
	return ErrNotConfigured
}
