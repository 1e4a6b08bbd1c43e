package domain

import (
	"time"
)

// TransactionRecord is a normalized, immutable transaction.
// Once produced by the normalizer it is never mutated.
type TransactionRecord struct {
	// Core identifiers
	ID       string `json:"transactionId"`
	TenantID string `json:"tenantId"`

	// Parties
	IndividualID string `json:"individualId"`
	AccountID    string `json:"accountId"`
	BankName     string `json:"bankName"`

	// Financial details
	Amount float64 `json:"amount"`

	// Temporal (always UTC)
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// RawRecord is an un-normalized record as received from ingestion,
// either a CSV row or a manual single-entry form.
type RawRecord struct {
	TransactionID string `json:"transactionId,omitempty"`
	IndividualID  string `json:"individualId"`
	AccountID     string `json:"accountId"`
	BankName      string `json:"bankName"`
	Amount        string `json:"amount"`
	Timestamp     string `json:"timestamp,omitempty"`
}
