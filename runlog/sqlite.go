package runlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder stores entries in the evals table, one run per run_id.
type SQLiteRecorder struct {
	db    *sql.DB
	runID int64
}

func NewSQLite(path string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("runlog: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runlog: open %s: %w", path, err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at REAL NOT NULL
		)`)
	if err == nil {
		_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS evals(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES runs(id),
			step INTEGER NOT NULL,
			train_loss REAL NOT NULL,
			val_loss REAL NOT NULL,
			elapsed_ms INTEGER NOT NULL
		)`)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: create tables: %w", err)
	}
	res, err := db.Exec("INSERT INTO runs(started_at) VALUES(?)", float64(time.Now().UnixNano())/1e9)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: new run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: new run: %w", err)
	}
	return &SQLiteRecorder{db: db, runID: id}, nil
}

// RunID identifies the rows written by this recorder.
func (r *SQLiteRecorder) RunID() int64 { return r.runID }

func (r *SQLiteRecorder) Record(e Entry) error {
	_, err := r.db.Exec(
		"INSERT INTO evals(run_id, step, train_loss, val_loss, elapsed_ms) VALUES(?,?,?,?,?)",
		r.runID, e.Step, e.TrainLoss, e.ValLoss, e.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("runlog: record step %d: %w", e.Step, err)
	}
	return nil
}

// Entries returns the rows of this recorder's run in step order.
func (r *SQLiteRecorder) Entries() ([]Entry, error) {
	rows, err := r.db.Query(
		"SELECT step, train_loss, val_loss, elapsed_ms FROM evals WHERE run_id=? ORDER BY step", r.runID)
	if err != nil {
		return nil, fmt.Errorf("runlog: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.Step, &e.TrainLoss, &e.ValLoss, &ms); err != nil {
			return nil, fmt.Errorf("runlog: %w", err)
		}
		e.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
