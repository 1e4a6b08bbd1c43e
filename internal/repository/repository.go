// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelhq/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("record already exists")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLStore implements domain.Store using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// New creates a new store based on configuration.
func New(cfg domain.StoreConfig) (domain.Store, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// AppendTransaction stores a transaction record with tenant isolation.
// Records are immutable: appending an existing ID fails.
func (s *SQLStore) AppendTransaction(ctx context.Context, tenantID string, rec *domain.TransactionRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, tenant_id, individual_id, account_id, bank_name,
			amount, timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		rec.ID, tenantID, rec.IndividualID, rec.AccountID, rec.BankName,
		rec.Amount, rec.Timestamp.UTC(), rec.CreatedAt.UTC(),
	)
	if err != nil && isDuplicateKey(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, rec.ID)
	}
	return err
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (s *SQLStore) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.TransactionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, individual_id, account_id, bank_name,
		       amount, timestamp, created_at
		FROM transactions
		WHERE tenant_id = ? AND id = ?
	`

	var rec domain.TransactionRecord
	err := s.db.QueryRowContext(ctx, s.rebind(query), tenantID, txID).Scan(
		&rec.ID, &rec.TenantID, &rec.IndividualID, &rec.AccountID, &rec.BankName,
		&rec.Amount, &rec.Timestamp, &rec.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.Timestamp = rec.Timestamp.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

// QueryByIndividual retrieves an individual's records within a
// half-open [start, end) window, oldest first.
func (s *SQLStore) QueryByIndividual(ctx context.Context, tenantID string, individualID string, start, end time.Time) ([]*domain.TransactionRecord, error) {
	return s.queryWindow(ctx, tenantID, "individual_id", individualID, start, end)
}

// QueryByAccount retrieves an account's records within a half-open
// [start, end) window, oldest first.
func (s *SQLStore) QueryByAccount(ctx context.Context, tenantID string, accountID string, start, end time.Time) ([]*domain.TransactionRecord, error) {
	return s.queryWindow(ctx, tenantID, "account_id", accountID, start, end)
}

func (s *SQLStore) queryWindow(ctx context.Context, tenantID, column, value string, start, end time.Time) ([]*domain.TransactionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := fmt.Sprintf(`
		SELECT id, tenant_id, individual_id, account_id, bank_name,
		       amount, timestamp, created_at
		FROM transactions
		WHERE tenant_id = ? AND %s = ?
		  AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, column)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), tenantID, value, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.TransactionRecord
	for rows.Next() {
		var rec domain.TransactionRecord
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.IndividualID, &rec.AccountID, &rec.BankName,
			&rec.Amount, &rec.Timestamp, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Timestamp = rec.Timestamp.UTC()
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// SaveLimitConfig stores a limit configuration with tenant isolation.
// Saving an existing (id, version) updates it in place.
func (s *SQLStore) SaveLimitConfig(ctx context.Context, tenantID string, cfg *domain.LimitConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if cfg.Enabled {
		enabled = 1
	}

	version := cfg.Version
	if version == "" {
		version = "1.0.0"
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO limit_configs (
			id, tenant_id, name, version, scope, window_kind,
			threshold_amount, threshold_count, expression, enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			scope = excluded.scope,
			window_kind = excluded.window_kind,
			threshold_amount = excluded.threshold_amount,
			threshold_count = excluded.threshold_count,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		cfg.ID, tenantID, cfg.Name, version, string(cfg.Scope), string(cfg.Window),
		cfg.ThresholdAmount, cfg.ThresholdCount, cfg.Expression, enabled,
		now, now,
	)
	return err
}

// ListLimitConfigs retrieves all limit configurations for a tenant,
// disabled ones included, in name order.
func (s *SQLStore) ListLimitConfigs(ctx context.Context, tenantID string) ([]*domain.LimitConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, version, scope, window_kind,
		       threshold_amount, threshold_count, expression, enabled
		FROM limit_configs
		WHERE tenant_id = ?
		ORDER BY name, id
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.LimitConfig
	for rows.Next() {
		var cfg domain.LimitConfig
		var scope, window string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Version, &scope, &window,
			&cfg.ThresholdAmount, &cfg.ThresholdCount, &cfg.Expression, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Scope = domain.LimitScope(scope)
		cfg.Window = domain.WindowKind(window)
		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// SaveEvaluation stores an evaluation result with tenant isolation.
func (s *SQLStore) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.EvaluationResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	violations, err := json.Marshal(eval.Violations)
	if err != nil {
		return fmt.Errorf("failed to marshal violations: %w", err)
	}
	score, err := json.Marshal(eval.Score)
	if err != nil {
		return fmt.Errorf("failed to marshal fraud score: %w", err)
	}
	record, err := json.Marshal(eval.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `
		INSERT INTO evaluations (
			id, tenant_id, tx_id, status, violations, fraud_score, record, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		eval.ID, tenantID, eval.Record.ID, eval.Status,
		string(violations), string(score), string(record), eval.Timestamp.UTC(),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with tenant isolation.
func (s *SQLStore) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.EvaluationResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, status, violations, fraud_score, record, timestamp
		FROM evaluations
		WHERE tenant_id = ? AND id = ?
	`

	var eval domain.EvaluationResult
	var violations, score, record string

	err := s.db.QueryRowContext(ctx, s.rebind(query), tenantID, evalID).Scan(
		&eval.ID, &eval.TenantID, &eval.Status,
		&violations, &score, &record, &eval.Timestamp,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(violations), &eval.Violations); err != nil {
		return nil, fmt.Errorf("failed to parse violations for %s: %w", evalID, err)
	}
	if err := json.Unmarshal([]byte(score), &eval.Score); err != nil {
		return nil, fmt.Errorf("failed to parse fraud score for %s: %w", evalID, err)
	}
	if err := json.Unmarshal([]byte(record), &eval.Record); err != nil {
		return nil, fmt.Errorf("failed to parse record for %s: %w", evalID, err)
	}

	eval.Timestamp = eval.Timestamp.UTC()
	return &eval, nil
}

// AccountStats reports cross-account activity for a tenant.
func (s *SQLStore) AccountStats(ctx context.Context, tenantID string) (*domain.AccountStats, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT individual_id, COUNT(DISTINCT account_id) AS accounts
		FROM transactions
		WHERE tenant_id = ?
		GROUP BY individual_id
		ORDER BY accounts DESC, individual_id
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.AccountStats{}
	const topN = 10

	for rows.Next() {
		var ia domain.IndividualAccounts
		if err := rows.Scan(&ia.IndividualID, &ia.AccountCount); err != nil {
			return nil, err
		}
		stats.Individuals++
		if ia.AccountCount >= 2 {
			stats.MultiAccountHolders++
		}
		if len(stats.TopIndividuals) < topN {
			stats.TopIndividuals = append(stats.TopIndividuals, ia)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.Individuals > 0 {
		stats.MultiAccountShare = float64(stats.MultiAccountHolders) / float64(stats.Individuals)
	}

	return stats, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// isDuplicateKey matches primary key violations across both drivers.
func isDuplicateKey(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || // sqlite
		strings.Contains(msg, "duplicate key") // postgres
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
