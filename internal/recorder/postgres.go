package recorder

import (
	"context"
	"fmt"
	"log"
	"time"

	"SwingSentinel/internal/model"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// alertRow is the postgres shape of an AlertEvent.
type alertRow struct {
	ID          string    `db:"id"`
	Symbol      string    `db:"symbol"`
	Timeframe   string    `db:"timeframe"`
	Formation   string    `db:"formation"`
	Direction   string    `db:"direction"`
	AnchorTime  time.Time `db:"anchor_time"`
	ChainLength int       `db:"chain_length"`
	BarTime     time.Time `db:"bar_time"`
	CreatedAt   time.Time `db:"created_at"`
}

func newAlertRow(evt *model.AlertEvent) *alertRow {
	return &alertRow{
		ID:          evt.ID,
		Symbol:      evt.Symbol,
		Timeframe:   evt.Timeframe.String(),
		Formation:   string(evt.Formation),
		Direction:   string(evt.Direction),
		AnchorTime:  evt.AnchorTime.UTC(),
		ChainLength: evt.ChainLength,
		BarTime:     evt.BarTime.UTC(),
		CreatedAt:   evt.CreatedAt.UTC(),
	}
}

const (
	insertCandleSQL = `
	INSERT INTO swing_candles (symbol, timeframe, bar_time, high, low, close)
	VALUES (:symbol, :timeframe, :bar_time, :high, :low, :close)
	ON CONFLICT (symbol, timeframe, bar_time) DO NOTHING
	`
	insertAlertSQL = `
	INSERT INTO swing_alerts (id, symbol, timeframe, formation, direction, anchor_time, chain_length, bar_time, created_at)
	VALUES (:id, :symbol, :timeframe, :formation, :direction, :anchor_time, :chain_length, :bar_time, :created_at)
	ON CONFLICT (id) DO NOTHING
	`
	selectRecentSQL = `
	SELECT symbol, timeframe, bar_time, high, low, close FROM swing_candles
	WHERE symbol = $1 AND timeframe = $2
	ORDER BY bar_time DESC
	LIMIT $3
	`
)

// PostgresRecorder mirrors candles and alerts to PostgreSQL.
type PostgresRecorder struct {
	db *sqlx.DB
}

// NewPostgresRecorder connects to dsn, pings and creates the tables.
func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRecorder{db: db}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Println("[INFO] postgres recorder connected")
	return r, nil
}

func (r *PostgresRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS swing_candles (
			symbol      TEXT        NOT NULL,
			timeframe   TEXT        NOT NULL,
			bar_time    TIMESTAMPTZ NOT NULL,
			high        DOUBLE PRECISION,
			low         DOUBLE PRECISION,
			close       DOUBLE PRECISION,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (symbol, timeframe, bar_time)
		)`,
		`CREATE TABLE IF NOT EXISTS swing_alerts (
			id           UUID PRIMARY KEY,
			symbol       TEXT        NOT NULL,
			timeframe    TEXT        NOT NULL,
			formation    TEXT        NOT NULL,
			direction    TEXT        NOT NULL,
			anchor_time  TIMESTAMPTZ NOT NULL,
			chain_length INTEGER     NOT NULL,
			bar_time     TIMESTAMPTZ NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *PostgresRecorder) RecordCandle(ctx context.Context, rec *CandleRecord) error {
	if _, err := sqlx.NamedExecContext(ctx, r.db, insertCandleSQL, rec); err != nil {
		return fmt.Errorf("insert candle %s/%s: %w", rec.Symbol, rec.Timeframe, err)
	}
	return nil
}

func (r *PostgresRecorder) RecordAlert(ctx context.Context, evt *model.AlertEvent) error {
	if _, err := sqlx.NamedExecContext(ctx, r.db, insertAlertSQL, newAlertRow(evt)); err != nil {
		return fmt.Errorf("insert alert %s: %w", evt.ID, err)
	}
	return nil
}

func (r *PostgresRecorder) LoadRecent(ctx context.Context, key model.InstrumentKey, limit int) ([]model.Candle, error) {
	var rows []CandleRecord
	if err := r.db.SelectContext(ctx, &rows, selectRecentSQL, key.Symbol, key.Timeframe.String(), limit); err != nil {
		return nil, fmt.Errorf("select candles %s: %w", key, err)
	}
	out := make([]model.Candle, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Candle())
	}
	reverse(out)
	return out, nil
}

func (r *PostgresRecorder) Close() error {
	log.Println("[INFO] closing postgres recorder")
	return r.db.Close()
}
