package repositories

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDBSeq int

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	return db
}

func mustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

func createTransactionsTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE transactions (
		id TEXT PRIMARY KEY,
		fan_id TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		amount_minor INTEGER NOT NULL,
		currency TEXT NOT NULL,
		fees_minor INTEGER NOT NULL DEFAULT 0,
		method_json TEXT DEFAULT '{}',
		processor TEXT,
		merchant_account TEXT,
		status TEXT NOT NULL,
		trust_score INTEGER NOT NULL DEFAULT 0,
		risk_flags_json TEXT DEFAULT '[]',
		processor_auth_ref TEXT,
		processor_capture_ref TEXT,
		failure_code TEXT,
		failure_reason TEXT,
		refunded_total_minor INTEGER NOT NULL DEFAULT 0,
		attempt INTEGER NOT NULL DEFAULT 0,
		initiated_at DATETIME NOT NULL,
		authorized_at DATETIME,
		captured_at DATETIME,
		failed_at DATETIME,
		settled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		version INTEGER NOT NULL DEFAULT 1
	);`)
}

func createTransactionEventsTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE transaction_events (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		event_kind TEXT NOT NULL,
		event_source TEXT NOT NULL,
		amount_delta_minor INTEGER NOT NULL DEFAULT 0,
		currency TEXT,
		processor_event_id TEXT,
		success INTEGER NOT NULL,
		error_code TEXT,
		processor_timestamp DATETIME,
		created_at DATETIME
	);`)
}

func createLedgerEntriesTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE ledger_entries (
		entry_id TEXT PRIMARY KEY,
		pair_id TEXT NOT NULL,
		account TEXT NOT NULL,
		direction TEXT NOT NULL,
		amount_minor INTEGER NOT NULL,
		currency TEXT NOT NULL,
		transaction_ref TEXT,
		created_at DATETIME
	);`)
}

func createRefundsTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE refunds (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL,
		amount_minor INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		decision_source TEXT NOT NULL,
		processor_refund_ref TEXT,
		failure_reason TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		version INTEGER NOT NULL DEFAULT 1
	);`)
}

func createApprovalsTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE approvals (
		id TEXT PRIMARY KEY,
		entity_ref TEXT NOT NULL,
		approval_type TEXT NOT NULL,
		state TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 1,
		assignee TEXT,
		sla_minutes INTEGER NOT NULL,
		sla_at DATETIME NOT NULL,
		history_json TEXT DEFAULT '[]',
		decision TEXT,
		decision_reason TEXT,
		decided INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		version INTEGER NOT NULL DEFAULT 1
	);`)
}
