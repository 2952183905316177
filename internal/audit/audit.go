// Package audit mirrors scored transactions into PostgreSQL for offline
// review. The engine never reads from it.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/retry"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
)

// Migrations holds the goose migrations for the audit schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"

var insertRetries = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "fraudai",
	Name:      "audit_insert_retries_total",
	Help:      "Audit inserts retried after a transient database error.",
})

func init() {
	prometheus.MustRegister(insertRetries)
}

var insertPolicy = retry.Policy{
	Attempts:  3,
	BaseDelay: 100 * time.Millisecond,
	MaxDelay:  time.Second,
	OnRetry:   func(int, error) { insertRetries.Inc() },
}

var ErrIncompleteRecord = errors.New("audit record is missing its transaction or analysis")

// PostgresStore writes audit rows with lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies pending audit migrations.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	return Up(ctx, p.db)
}

// Up applies the embedded migrations to db.
func Up(ctx context.Context, db *sql.DB) error {
	return RunMigration(ctx, db, "up")
}

// RunMigration runs a goose command (up, down, status, version, redo,
// up-to, down-to) against the embedded audit migrations.
func RunMigration(ctx context.Context, db *sql.DB, command string, args ...string) error {
	goose.SetBaseFS(Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, MigrationsDir, args...); err != nil {
		return fmt.Errorf("audit migration %s: %w", command, err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Record inserts rec. Re-inserting the same transaction ID is a no-op, so
// retried inserts cannot duplicate rows.
func (p *PostgresStore) Record(ctx context.Context, rec *risk.LedgerRecord) error {
	if rec == nil || rec.Transaction == nil || rec.Analysis == nil {
		return ErrIncompleteRecord
	}
	tx, a := rec.Transaction, rec.Analysis

	txJSON, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	analysisJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	return insertPolicy.Do(ctx, func() error {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO risk_audit (
				transaction_id, user_id, merchant, location, amount, currency, card_type,
				risk_score, status, alert_level, confidence, fallback,
				transaction, analysis, analyzed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (transaction_id) DO NOTHING`,
			a.TransactionID, tx.UserID, tx.Merchant, tx.Location, tx.Amount.String(),
			string(tx.Currency), string(tx.CardType),
			a.RiskScore, string(a.Status), string(a.AlertLevel), a.Confidence, a.Fallback,
			txJSON, analysisJSON, a.Timestamp,
		)
		if err != nil && !transient(err) {
			return retry.Permanent(err)
		}
		return err
	})
}

// transient reports whether err may succeed on retry. Data and constraint
// errors will not.
func transient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23", "42":
			return false
		}
	}
	return true
}

var _ risk.AuditSink = (*PostgresStore)(nil)
