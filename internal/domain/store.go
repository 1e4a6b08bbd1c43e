// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// Store is the historical record store consulted by the aggregation
// engine and the sink for evaluation results. The core only depends on
// this interface; the backing engine (SQLite, PostgreSQL) is opaque.
// All methods require tenantID for strict multi-tenancy isolation.
//
// Reads must be snapshot-consistent: a window query never observes a
// partially-written batch.
type Store interface {
	// Transaction operations. Append is the only write; records are
	// immutable once stored.
	AppendTransaction(ctx context.Context, tenantID string, rec *TransactionRecord) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*TransactionRecord, error)

	// Window queries, half-open [start, end).
	QueryByIndividual(ctx context.Context, tenantID string, individualID string, start, end time.Time) ([]*TransactionRecord, error)
	QueryByAccount(ctx context.Context, tenantID string, accountID string, start, end time.Time) ([]*TransactionRecord, error)

	// Limit policy operations.
	SaveLimitConfig(ctx context.Context, tenantID string, cfg *LimitConfig) error
	ListLimitConfigs(ctx context.Context, tenantID string) ([]*LimitConfig, error)

	// Evaluation results.
	SaveEvaluation(ctx context.Context, tenantID string, eval *EvaluationResult) error
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*EvaluationResult, error)

	// AccountStats reports cross-account activity over the whole store.
	AccountStats(ctx context.Context, tenantID string) (*AccountStats, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AccountStats summarizes multi-account activity for a tenant.
type AccountStats struct {
	Individuals         int     `json:"individuals"`
	MultiAccountHolders int     `json:"multiAccountHolders"`
	MultiAccountShare   float64 `json:"multiAccountShare"`

	// TopIndividuals maps individual IDs to their distinct account
	// counts, limited to the highest few.
	TopIndividuals []IndividualAccounts `json:"topIndividuals"`
}

// IndividualAccounts pairs an individual with a distinct account count.
type IndividualAccounts struct {
	IndividualID string `json:"individualId"`
	AccountCount int    `json:"accountCount"`
}

// StoreConfig holds configuration for store initialization.
type StoreConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
