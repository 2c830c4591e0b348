package content

import "context"

// FakeClient is a test double with per-call hooks. Unset hooks return zero
// values.
type FakeClient struct {
	ResolveIdentityFunc func(ctx context.Context, session, handle string) (PeerRef, error)
	FetchItemsFunc      func(ctx context.Context, session string, peer PeerRef, sel Selector) ([]Item, error)
	DownloadMediaFunc   func(ctx context.Context, session string, item Item) ([]byte, error)
	MarkConsumedFunc    func(ctx context.Context, session string, peer PeerRef, ids []string) error
}

var _ Client = (*FakeClient)(nil)

func (f *FakeClient) ResolveIdentity(ctx context.Context, session, handle string) (PeerRef, error) {
	if f.ResolveIdentityFunc == nil {
		return PeerRef{ID: handle, Handle: handle}, nil
	}
	return f.ResolveIdentityFunc(ctx, session, handle)
}

func (f *FakeClient) FetchItems(ctx context.Context, session string, peer PeerRef, sel Selector) ([]Item, error) {
	if f.FetchItemsFunc == nil {
		return nil, nil
	}
	return f.FetchItemsFunc(ctx, session, peer, sel)
}

func (f *FakeClient) DownloadMedia(ctx context.Context, session string, item Item) ([]byte, error) {
	if f.DownloadMediaFunc == nil {
		return nil, nil
	}
	return f.DownloadMediaFunc(ctx, session, item)
}

func (f *FakeClient) MarkConsumed(ctx context.Context, session string, peer PeerRef, ids []string) error {
	if f.MarkConsumedFunc == nil {
		return nil
	}
	return f.MarkConsumedFunc(ctx, session, peer, ids)
}
