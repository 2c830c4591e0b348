package api

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Node    string `json:"node,omitempty"`
	Version string `json:"version,omitempty"`
}

// FetchedItem is one piece of content returned by a fetch.
type FetchedItem struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	// MediaB64 carries the downloaded media payload, base64-encoded.
	// Empty when the item has no media or media was not requested.
	MediaB64 string `json:"media_b64,omitempty"`
}

// FetchResponse is the result of one routed fetch. RouteLog records which
// routing path produced it, including fallback reasons.
type FetchResponse struct {
	Items     []FetchedItem `json:"items"`
	Node      string        `json:"node"`
	AccountID string        `json:"account_id,omitempty"`
	RouteLog  string        `json:"route_log"`
}

// TransferResponse acknowledges a transfer request.
type TransferResponse struct {
	AccountID  string `json:"account_id"`
	TargetNode string `json:"target_node"`
	Message    string `json:"message"`
}
