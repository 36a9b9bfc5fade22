package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"SwingSentinel/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists candles and alerts to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the status server read while ticks write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT    NOT NULL,
			timeframe   TEXT    NOT NULL,
			bar_time    INTEGER NOT NULL,
			high        REAL,
			low         REAL,
			close       REAL,
			recorded_at INTEGER NOT NULL,
			UNIQUE(symbol, timeframe, bar_time)
		)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id           TEXT PRIMARY KEY,
			symbol       TEXT    NOT NULL,
			timeframe    TEXT    NOT NULL,
			formation    TEXT    NOT NULL,
			direction    TEXT    NOT NULL,
			anchor_time  INTEGER NOT NULL,
			chain_length INTEGER NOT NULL,
			bar_time     INTEGER NOT NULL,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_key ON alerts(symbol, timeframe, bar_time)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordCandle stores rec. A bar that is already stored is left unchanged.
func (r *SQLiteRecorder) RecordCandle(ctx context.Context, rec *CandleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO candles
		(symbol, timeframe, bar_time, high, low, close, recorded_at)
		VALUES (?,?,?,?,?,?,?)`,
		rec.Symbol, rec.Timeframe, rec.BarTime.Unix(),
		rec.High, rec.Low, rec.Close, time.Now().Unix(),
	)
	return err
}

func (r *SQLiteRecorder) RecordAlert(ctx context.Context, evt *model.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO alerts
		(id, symbol, timeframe, formation, direction, anchor_time, chain_length, bar_time, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		evt.ID, evt.Symbol, evt.Timeframe.String(), string(evt.Formation), string(evt.Direction),
		evt.AnchorTime.Unix(), evt.ChainLength, evt.BarTime.Unix(), evt.CreatedAt.Unix(),
	)
	return err
}

func (r *SQLiteRecorder) LoadRecent(ctx context.Context, key model.InstrumentKey, limit int) ([]model.Candle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT bar_time, high, low, close FROM candles
		WHERE symbol = ? AND timeframe = ?
		ORDER BY bar_time DESC LIMIT ?`,
		key.Symbol, key.Timeframe.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var ts int64
		var c model.Candle
		if err := rows.Scan(&ts, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Time = time.Unix(ts, 0).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

// CountAlerts returns the number of stored alerts for key.
func (r *SQLiteRecorder) CountAlerts(ctx context.Context, key model.InstrumentKey) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE symbol = ? AND timeframe = ?`,
		key.Symbol, key.Timeframe.String()).Scan(&n)
	return n, err
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}

func reverse(cs []model.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}
