package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradepilot/backend/internal/contracts"
)

// Postgres persists signals and execution records in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the tables when they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS signals (
			id              TEXT PRIMARY KEY,
			symbol          TEXT NOT NULL,
			direction       TEXT NOT NULL,
			confidence      DOUBLE PRECISION NOT NULL,
			entry           DOUBLE PRECISION NOT NULL,
			stop_loss       DOUBLE PRECISION NOT NULL,
			take_profit     DOUBLE PRECISION NOT NULL,
			strategy        TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL,
			reason          TEXT NOT NULL DEFAULT '',
			synthetic       BOOLEAN NOT NULL DEFAULT FALSE,
			generated_at    TIMESTAMPTZ NOT NULL,
			expires_at      TIMESTAMPTZ,
			updated_at      TIMESTAMPTZ NOT NULL,
			selected_at     TIMESTAMPTZ,
			execution_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			close_price     DOUBLE PRECISION NOT NULL DEFAULT 0,
			realized_pl     DOUBLE PRECISION NOT NULL DEFAULT 0,
			closed_at       TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_signals_status ON signals (status);
		CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals (symbol, generated_at DESC);

		CREATE TABLE IF NOT EXISTS execution_records (
			id          TEXT PRIMARY KEY,
			signal_id   TEXT NOT NULL REFERENCES signals (id),
			ticket      BIGINT NOT NULL,
			symbol      TEXT NOT NULL,
			strategy    TEXT NOT NULL DEFAULT '',
			lot_size    DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			outcome     TEXT NOT NULL DEFAULT '',
			realized_pl DOUBLE PRECISION NOT NULL DEFAULT 0,
			close_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			synthetic   BOOLEAN NOT NULL DEFAULT FALSE,
			archived    BOOLEAN NOT NULL DEFAULT FALSE,
			opened_at   TIMESTAMPTZ NOT NULL,
			closed_at   TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_records_open ON execution_records (closed_at) WHERE closed_at IS NULL;
		CREATE INDEX IF NOT EXISTS idx_records_closed_at ON execution_records (closed_at);
	`

	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

const signalColumns = `
	id, symbol, direction, confidence, entry, stop_loss, take_profit,
	strategy, status, reason, synthetic, generated_at, expires_at,
	updated_at, execution_price, close_price, realized_pl, closed_at
`

// SaveSignal stores a new signal.
func (p *Postgres) SaveSignal(ctx context.Context, sig *contracts.Signal) error {
	query := `
		INSERT INTO signals (` + signalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := p.pool.Exec(ctx, query,
		sig.ID, sig.Symbol, sig.Direction, sig.Confidence, sig.Entry,
		sig.StopLoss, sig.TakeProfit, sig.Strategy, sig.Status, sig.Reason,
		sig.Synthetic, sig.GeneratedAt, nullableTime(sig.ExpiresAt),
		sig.UpdatedAt, sig.ExecutionPrice, sig.ClosePrice, sig.RealizedPL,
		sig.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}
	return nil
}

// UpdateSignal replaces an existing signal after verifying the lifecycle
// transition against the stored status.
func (p *Postgres) UpdateSignal(ctx context.Context, sig *contracts.Signal) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current contracts.SignalStatus
	err = tx.QueryRow(ctx, "SELECT status FROM signals WHERE id = $1 FOR UPDATE", sig.ID).Scan(&current)
	if err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("signal %s not found", sig.ID)
		}
		return fmt.Errorf("failed to load signal status: %w", err)
	}

	if current != sig.Status && !current.CanTransition(sig.Status) {
		return fmt.Errorf("signal %s: illegal transition %s -> %s", sig.ID, current, sig.Status)
	}

	// selected_at is stamped only on the transition into SELECTED, so the
	// cooldown measures from selection rather than from the latest
	// lifecycle update.
	query := `
		UPDATE signals SET
			status = $2, reason = $3, updated_at = $4,
			execution_price = $5, close_price = $6, realized_pl = $7, closed_at = $8,
			selected_at = CASE WHEN $9 THEN $4 ELSE selected_at END
		WHERE id = $1
	`
	justSelected := sig.Status == contracts.StatusSelected && current != contracts.StatusSelected
	_, err = tx.Exec(ctx, query,
		sig.ID, sig.Status, sig.Reason, sig.UpdatedAt,
		sig.ExecutionPrice, sig.ClosePrice, sig.RealizedPL, sig.ClosedAt,
		justSelected,
	)
	if err != nil {
		return fmt.Errorf("failed to update signal: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit signal update: %w", err)
	}
	return nil
}

// GetSignal returns the signal with the given id.
func (p *Postgres) GetSignal(ctx context.Context, id string) (*contracts.Signal, error) {
	row := p.pool.QueryRow(ctx, "SELECT "+signalColumns+" FROM signals WHERE id = $1", id)
	sig, err := scanSignal(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("signal %s not found", id)
		}
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}
	return sig, nil
}

// ActiveSignals returns all signals in a non-terminal state, newest first.
func (p *Postgres) ActiveSignals(ctx context.Context) ([]*contracts.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE status NOT IN ('CLOSED', 'REJECTED', 'EXPIRED')
		ORDER BY generated_at DESC
	`
	return p.querySignals(ctx, query)
}

// SignalsByStatus returns all signals in the given status, newest first.
func (p *Postgres) SignalsByStatus(ctx context.Context, status contracts.SignalStatus) ([]*contracts.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE status = $1
		ORDER BY generated_at DESC
	`
	return p.querySignals(ctx, query, status)
}

// LastSelectedAt returns the most recent time the symbol transitioned
// into Selected. Later lifecycle transitions do not move it.
func (p *Postgres) LastSelectedAt(ctx context.Context, symbol string) (time.Time, error) {
	query := `
		SELECT COALESCE(MAX(selected_at), 'epoch'::timestamptz)
		FROM signals
		WHERE symbol = $1
	`

	var last time.Time
	if err := p.pool.QueryRow(ctx, query, symbol).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("failed to query last selection: %w", err)
	}
	if last.Unix() <= 0 {
		return time.Time{}, nil
	}
	return last, nil
}

// ExpireStale transitions Generated signals past their expiry to Expired.
func (p *Postgres) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE signals
		SET status = 'EXPIRED', reason = $2, updated_at = $1
		WHERE status = 'GENERATED' AND expires_at IS NOT NULL AND expires_at < $1
	`
	tag, err := p.pool.Exec(ctx, query, now, contracts.ReasonNotSelected)
	if err != nil {
		return 0, fmt.Errorf("failed to expire signals: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const recordColumns = `
	id, signal_id, ticket, symbol, strategy, lot_size, entry_price,
	outcome, realized_pl, close_price, synthetic, archived, opened_at, closed_at
`

// SaveRecord stores a new execution record.
func (p *Postgres) SaveRecord(ctx context.Context, rec *contracts.ExecutionRecord) error {
	query := `
		INSERT INTO execution_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := p.pool.Exec(ctx, query,
		rec.ID, rec.SignalID, rec.Ticket, rec.Symbol, rec.Strategy,
		rec.LotSize, rec.EntryPrice, rec.Outcome, rec.RealizedPL,
		rec.ClosePrice, rec.Synthetic, rec.Archived, rec.OpenedAt, rec.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution record: %w", err)
	}
	return nil
}

// UpdateRecord replaces an existing execution record.
func (p *Postgres) UpdateRecord(ctx context.Context, rec *contracts.ExecutionRecord) error {
	query := `
		UPDATE execution_records SET
			outcome = $2, realized_pl = $3, close_price = $4,
			archived = $5, closed_at = $6
		WHERE id = $1
	`
	tag, err := p.pool.Exec(ctx, query,
		rec.ID, rec.Outcome, rec.RealizedPL, rec.ClosePrice,
		rec.Archived, rec.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s not found", rec.ID)
	}
	return nil
}

// OpenRecords returns records whose positions have not closed yet.
func (p *Postgres) OpenRecords(ctx context.Context) ([]*contracts.ExecutionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM execution_records
		WHERE closed_at IS NULL
		ORDER BY opened_at ASC
	`
	return p.queryRecords(ctx, query)
}

// ClosedRecordsSince returns closed records with closed_at >= since,
// including archived ones.
func (p *Postgres) ClosedRecordsSince(ctx context.Context, since time.Time) ([]*contracts.ExecutionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM execution_records
		WHERE closed_at IS NOT NULL AND closed_at >= $1
		ORDER BY closed_at ASC
	`
	return p.queryRecords(ctx, query, since)
}

// ArchiveBefore marks closed records older than cutoff as archived.
func (p *Postgres) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE execution_records
		SET archived = TRUE
		WHERE archived = FALSE AND closed_at IS NOT NULL AND closed_at < $1
	`
	tag, err := p.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to archive records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) querySignals(ctx context.Context, query string, args ...any) ([]*contracts.Signal, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (p *Postgres) queryRecords(ctx context.Context, query string, args ...any) ([]*contracts.ExecutionRecord, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []*contracts.ExecutionRecord
	for rows.Next() {
		var rec contracts.ExecutionRecord
		err := rows.Scan(
			&rec.ID, &rec.SignalID, &rec.Ticket, &rec.Symbol, &rec.Strategy,
			&rec.LotSize, &rec.EntryPrice, &rec.Outcome, &rec.RealizedPL,
			&rec.ClosePrice, &rec.Synthetic, &rec.Archived, &rec.OpenedAt, &rec.ClosedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func scanSignal(row pgx.Row) (*contracts.Signal, error) {
	var sig contracts.Signal
	var expiresAt *time.Time
	err := row.Scan(
		&sig.ID, &sig.Symbol, &sig.Direction, &sig.Confidence, &sig.Entry,
		&sig.StopLoss, &sig.TakeProfit, &sig.Strategy, &sig.Status, &sig.Reason,
		&sig.Synthetic, &sig.GeneratedAt, &expiresAt, &sig.UpdatedAt,
		&sig.ExecutionPrice, &sig.ClosePrice, &sig.RealizedPL, &sig.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiresAt != nil {
		sig.ExpiresAt = *expiresAt
	}
	return &sig, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
