package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"LayerTrader/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the audit trail to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so ad-hoc queries can read while the bot writes.
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
		`CREATE TABLE IF NOT EXISTS transactions (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			action    TEXT NOT NULL,
			symbol    TEXT NOT NULL,
			quantity  INTEGER NOT NULL,
			price     REAL NOT NULL,
			reason    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_ts ON transactions(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_symbol ON transactions(symbol)`,

		`CREATE TABLE IF NOT EXISTS equity_history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			equity     REAL,
			max_equity REAL,
			drawdown   REAL,
			daily_pnl  REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_equity_ts ON equity_history(timestamp)`,

		`CREATE TABLE IF NOT EXISTS daily_summaries (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			date         TEXT NOT NULL,
			trades       INTEGER,
			realized_pnl REAL,
			equity       REAL,
			drawdown     REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_summary_date ON daily_summaries(date)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordTransaction(tx *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO transactions
		(timestamp, action, symbol, quantity, price, reason)
		VALUES (?,?,?,?,?,?)`,
		tx.Time.Unix(), string(tx.Action), tx.Symbol, tx.Quantity, tx.Price, tx.Reason,
	)
	return err
}

func (r *SQLiteRecorder) RecordEquity(snap *EquitySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO equity_history
		(timestamp, equity, max_equity, drawdown, daily_pnl)
		VALUES (?,?,?,?,?)`,
		time.Now().Unix(), snap.Equity, snap.MaxEquity, snap.Drawdown, snap.DailyPnL,
	)
	return err
}

func (r *SQLiteRecorder) RecordDailySummary(sum *DailySummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO daily_summaries
		(timestamp, date, trades, realized_pnl, equity, drawdown)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), sum.Date, sum.Trades, sum.RealizedPnL, sum.Equity, sum.Drawdown,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
