// Package api is the wire contract between the companion server and its
// clients: message types, a JSON codec for gRPC, and the service descriptor.
package api

import "time"

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type Exchange struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Deleted   bool      `json:"deleted,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

type SendMessageResponse struct {
	Exchange Exchange `json:"exchange"`
}

type HistoryRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type HistoryResponse struct {
	Exchanges []Exchange `json:"exchanges"`
	Total     int64      `json:"total"`
}

// DeleteHistoryRequest hides the listed exchanges, or every visible one
// when ExchangeIDs is empty.
type DeleteHistoryRequest struct {
	ExchangeIDs []string `json:"exchange_ids,omitempty"`
}

type DeleteHistoryResponse struct {
	Deleted int `json:"deleted"`
}

// AdminListExchangesRequest.Visibility is "all", "active" or "deleted";
// empty means all.
type AdminListExchangesRequest struct {
	OwnerID    string `json:"owner_id"`
	Visibility string `json:"visibility,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

type AdminListExchangesResponse struct {
	Exchanges []Exchange `json:"exchanges"`
	Total     int64      `json:"total"`
	Active    int64      `json:"active"`
	Deleted   int64      `json:"deleted"`
}

type AdminDeleteExchangesRequest struct {
	OwnerID   string `json:"owner_id"`
	Permanent bool   `json:"permanent,omitempty"`
}

type AdminDeleteExchangesResponse struct {
	Deleted int `json:"deleted"`
}

type AdminSummaryRequest struct {
	OwnerID     string `json:"owner_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type AdminSummaryResponse struct {
	Summary      string    `json:"summary"`
	MessageCount int64     `json:"message_count"`
	GeneratedAt  time.Time `json:"generated_at"`
}

type ModerationRecord struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	ExchangeID string    `json:"exchange_id,omitempty"`
	Message    string    `json:"message"`
	Response   *string   `json:"response"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// AdminListModerationRequest with an empty OwnerID lists every owner.
type AdminListModerationRequest struct {
	OwnerID string `json:"owner_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type AdminListModerationResponse struct {
	Records []ModerationRecord `json:"records"`
}

type AdminReconcileRequest struct{}

type AdminReconcileResponse struct {
	Drained   int `json:"drained"`
	Failed    int `json:"failed"`
	Removed   int `json:"removed"`
	Reindexed int `json:"reindexed"`
}
