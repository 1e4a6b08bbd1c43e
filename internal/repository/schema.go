package repository

// Schema definitions for the Kestrel record store.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    individual_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    bank_name TEXT NOT NULL,
    amount REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_individual ON transactions(tenant_id, individual_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(tenant_id, account_id, timestamp);
`

const schemaLimitConfigs = `
CREATE TABLE IF NOT EXISTS limit_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    version TEXT NOT NULL,
    scope TEXT NOT NULL,
    window_kind TEXT,
    threshold_amount REAL NOT NULL DEFAULT 0,
    threshold_count INTEGER NOT NULL DEFAULT 0,
    expression TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_limit_configs_tenant ON limit_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_limit_configs_enabled ON limit_configs(tenant_id, enabled);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    status TEXT NOT NULL,
    violations TEXT NOT NULL,
    fraud_score TEXT NOT NULL,
    record TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_tenant ON evaluations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_tx ON evaluations(tenant_id, tx_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_status ON evaluations(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_evaluations_timestamp ON evaluations(tenant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaLimitConfigs,
		schemaEvaluations,
	}
}
