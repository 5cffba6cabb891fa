// Package audit keeps the append-only journal of accepted write operations.
// Appends are best-effort: a failed append is logged by the caller but never
// fails the ledger write it documents.
package audit

import "context"

// Record is one confirmed write operation.
type Record struct {
	RequestID   string  `json:"requestId,omitempty"`
	TS          int64   `json:"ts"`
	Type        string  `json:"type"`
	Chain       string  `json:"chain"`
	ElementID   string  `json:"elementId"`
	Stage       *int    `json:"stage,omitempty"`
	Note        *string `json:"note,omitempty"`
	Approve     *bool   `json:"approve,omitempty"`
	Actor       *string `json:"actor"`
	DID         *string `json:"did"`
	TxHash      string  `json:"txHash"`
	BlockNumber uint64  `json:"blockNumber"`
}

// Store is an append-only journal. Tail returns up to limit of the most
// recent records in insertion order.
type Store interface {
	Append(ctx context.Context, r Record) error
	Tail(ctx context.Context, limit int) ([]Record, error)
}
