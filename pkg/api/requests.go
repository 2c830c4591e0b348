package api

// FetchRequest asks the fleet to pull content for one platform identity.
type FetchRequest struct {
	// Identity is the handle or phone of the content owner to fetch from.
	Identity string `json:"identity"`
	// Premium requests preferential placement on a premium-tier node.
	Premium bool `json:"premium,omitempty"`
	// Limit caps the number of items returned; 0 means server default.
	Limit int `json:"limit,omitempty"`
	// MediaOnly skips items without downloadable media.
	MediaOnly bool `json:"media_only,omitempty"`
	// MarkConsumed reports fetched items as seen to the platform.
	MarkConsumed bool `json:"mark_consumed,omitempty"`
}

// TransferRequest marks an account for migration to another node.
type TransferRequest struct {
	AccountID  string `json:"account_id"`
	TargetNode string `json:"target_node"`
}
