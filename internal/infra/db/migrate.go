package db

import (
	"database/sql"
)

// MigrateUp creates the delivery log, the deferred task outbox and the
// order snapshot table. Every statement is idempotent.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS delivery_logs (
    id             BIGSERIAL PRIMARY KEY,
    order_id       BIGINT NOT NULL,
    phone_number   VARCHAR(32) NOT NULL DEFAULT '',
    template_name  VARCHAR(255) NOT NULL,
    status         VARCHAR(20) NOT NULL,
    response_data  JSONB,
    api_response   JSONB,
    error_message  TEXT NOT NULL DEFAULT '',
    retry_count    INT NOT NULL DEFAULT 0,
    schedule_entry BOOLEAN NOT NULL DEFAULT false,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT chk_delivery_logs_status
        CHECK (status IN ('pending', 'success', 'error', 'retry', 'scheduled'))
)`); err != nil {
		return err
	}

	// tables created before schedule_entry existed
	if _, err := db.Exec(`ALTER TABLE delivery_logs ADD COLUMN IF NOT EXISTS schedule_entry BOOLEAN NOT NULL DEFAULT false`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS deferred_tasks (
    id                 BIGSERIAL PRIMARY KEY,
    kind               VARCHAR(20) NOT NULL,
    order_id           BIGINT NOT NULL,
    notification_type  VARCHAR(100) NOT NULL,
    log_id             BIGINT NOT NULL DEFAULT 0,
    rule_snapshot      JSONB NOT NULL,
    run_at             TIMESTAMPTZ NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS orders (
    id          BIGINT PRIMARY KEY,
    status      VARCHAR(50) NOT NULL,
    snapshot    JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	indexes := []string{
		// idempotency check and scheduled lookups
		`CREATE INDEX IF NOT EXISTS idx_delivery_logs_order_template ON delivery_logs(order_id, template_name)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_logs_status ON delivery_logs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_delivery_logs_created_at ON delivery_logs(created_at DESC)`,
		// at most one delivered success per (order_id, template_name); account
		// events use order_id 0 and schedule entries are bookkeeping only
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_delivery_logs_success ON delivery_logs(order_id, template_name) WHERE status = 'success' AND order_id <> 0 AND NOT schedule_entry`,
		`CREATE INDEX IF NOT EXISTS idx_deferred_tasks_run_at ON deferred_tasks(run_at)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}

// MigrateDown drops the tables created by MigrateUp.
// Use with caution: this will delete all data in the affected tables.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP TABLE IF EXISTS deferred_tasks`,
		`DROP TABLE IF EXISTS orders`,
		`DROP TABLE IF EXISTS delivery_logs`,
	}

	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
