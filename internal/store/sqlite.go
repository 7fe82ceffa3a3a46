package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "arb-monitor/internal/errors"
	"arb-monitor/internal/models"
)

// SQLiteStore implements CandleStore and Journal using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);

	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		assets TEXT NOT NULL,
		strategies TEXT NOT NULL,
		min_profit REAL NOT NULL,
		evaluated INTEGER NOT NULL,
		reported INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		best_net_pnl REAL,
		best_summary TEXT
	);

	CREATE TABLE IF NOT EXISTS opportunities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		strategy TEXT NOT NULL,
		asset TEXT NOT NULL,
		signal TEXT NOT NULL,
		gap REAL NOT NULL,
		gross_pnl REAL NOT NULL,
		friction REAL NOT NULL,
		net_pnl REAL NOT NULL,
		provenance TEXT,
		payload TEXT NOT NULL,
		FOREIGN KEY (scan_id) REFERENCES scans(id)
	);

	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_candles_symbol_tf ON candles(symbol, timeframe, timestamp);
	CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);
	CREATE INDEX IF NOT EXISTS idx_opportunities_scan ON opportunities(scan_id, rank);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Candles
// ============================================================================

// SaveCandles upserts candles.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, timeframe, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetCandles returns candles in [from, to] ordered by time.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, symbol, timeframe, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}
	return candles, nil
}

// GetCandlesFreshness returns the timestamp of the most recent candle.
func (s *SQLiteStore) GetCandlesFreshness(ctx context.Context, symbol, timeframe string) (time.Time, error) {
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM candles WHERE symbol = ? AND timeframe = ?
	`, symbol, timeframe).Scan(&latest)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get candles freshness: %w", err)
	}
	if !latest.Valid || latest.String == "" {
		return time.Time{}, nil
	}
	return parseSQLiteTime(latest.String)
}

// MAX() loses the column's DATETIME affinity, so the driver hands back text.
func parseSQLiteTime(v string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	v = strings.TrimSuffix(v, "Z")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}

// ============================================================================
// Scan journal
// ============================================================================

// SaveScan records a scan and its ranked opportunities in one transaction.
func (s *SQLiteStore) SaveScan(ctx context.Context, scan ScanRecord, opps []models.ArbitrageOpportunity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabaseError, err.Error())
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans (id, started_at, finished_at, assets, strategies, min_profit, evaluated, reported, failed, best_net_pnl, best_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scan.ID, scan.StartedAt.UTC(), scan.FinishedAt.UTC(), strings.Join(scan.Assets, ","), strings.Join(scan.Strategies, ","),
		scan.MinProfit, scan.Evaluated, scan.Reported, scan.Failed, scan.BestNetPnL, scan.BestSummary)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO opportunities (scan_id, rank, strategy, asset, signal, gap, gross_pnl, friction, net_pnl, provenance, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, o := range opps {
		payload, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to encode opportunity: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, scan.ID, i+1, string(o.Strategy), o.Asset, string(o.Signal),
			o.Gap, o.GrossPnL, o.Friction, o.NetPnL, string(o.Provenance), string(payload)); err != nil {
			return fmt.Errorf("failed to insert opportunity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListScans returns scan headers, newest first.
func (s *SQLiteStore) ListScans(ctx context.Context, filter ScanFilter) ([]ScanRecord, error) {
	query := `
		SELECT id, started_at, finished_at, assets, strategies, min_profit, evaluated, reported, failed,
		       COALESCE(best_net_pnl, 0), COALESCE(best_summary, '')
		FROM scans WHERE 1=1
	`
	var args []interface{}
	if !filter.Since.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var scans []ScanRecord
	for rows.Next() {
		var r ScanRecord
		var assets, strategies string
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &assets, &strategies, &r.MinProfit,
			&r.Evaluated, &r.Reported, &r.Failed, &r.BestNetPnL, &r.BestSummary); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Assets = splitList(assets)
		r.Strategies = splitList(strategies)
		scans = append(scans, r)
	}
	return scans, rows.Err()
}

// GetScanOpportunities returns a scan's opportunities in their ranked order.
func (s *SQLiteStore) GetScanOpportunities(ctx context.Context, scanID string) ([]models.ArbitrageOpportunity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM opportunities WHERE scan_id = ? ORDER BY rank ASC
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	defer rows.Close()

	var opps []models.ArbitrageOpportunity
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var o models.ArbitrageOpportunity
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			return nil, fmt.Errorf("failed to decode opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// ============================================================================
// Sync
// ============================================================================

// GetLastSync returns the last sync time for a data key.
func (s *SQLiteStore) GetLastSync(key string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[key]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	if err := s.db.QueryRow(`SELECT last_sync FROM sync_status WHERE data_type = ?`, key).Scan(&lastSync); err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[key] = lastSync
	s.mu.Unlock()
	return lastSync
}

// SetLastSync sets the last sync time for a data key.
func (s *SQLiteStore) SetLastSync(key string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, key, t.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[key] = t
	s.mu.Unlock()
	return nil
}

var (
	_ CandleStore = (*SQLiteStore)(nil)
	_ Journal     = (*SQLiteStore)(nil)
)
