// Package sqlite - Detection journal backed by SQLite.
package sqlite

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/common"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Entry is one journaled frame.
type Entry struct {
	FrameID    string
	Status     string
	DurationMS float64
	RecordedAt time.Time
	Boxes      []common.BoundingBox
}

// Journal records every frame outcome and the boxes it kept.
type Journal struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// Open creates or opens a journal database in WAL mode.
//
// Arguments:
//   - path: The database file. ":memory:" keeps it in memory.
//
// Returns:
//   - *Journal: The migrated journal.
//   - error: If the database cannot be opened or migrated.
func Open(path string) (*Journal, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	j := &Journal{conn: conn}
	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "migrate journal")
	}
	return j, nil
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS frames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		frame_id TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		duration_ms REAL DEFAULT 0,
		recorded_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS boxes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		frame_row INTEGER NOT NULL,
		class INTEGER NOT NULL,
		label TEXT NOT NULL,
		confidence REAL NOT NULL,
		x1 REAL NOT NULL,
		y1 REAL NOT NULL,
		x2 REAL NOT NULL,
		y2 REAL NOT NULL,
		FOREIGN KEY (frame_row) REFERENCES frames(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_frames_recorded_at ON frames(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_boxes_frame_row ON boxes(frame_row);
	CREATE INDEX IF NOT EXISTS idx_boxes_label ON boxes(label);
	`
	_, err := j.conn.Exec(schema)
	return err
}

// Record stores a frame and its boxes in one transaction.
func (j *Journal) Record(frameID string, result postprocess.Result) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.conn.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO frames (frame_id, status, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?)
	`, frameID, result.Status.String(), float64(result.Duration.Microseconds())/1000, time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "insert frame %s", frameID)
	}
	row, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "frame row id")
	}

	if len(result.Boxes) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO boxes (frame_row, class, label, confidence, x1, y1, x2, y2)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return errors.Wrap(err, "prepare box insert")
		}
		defer stmt.Close()

		for _, b := range result.Boxes {
			if _, err := stmt.Exec(row, b.Class, b.Label, b.Confidence, b.X1, b.Y1, b.X2, b.Y2); err != nil {
				return errors.Wrapf(err, "insert box for frame %s", frameID)
			}
		}
	}

	return errors.Wrap(tx.Commit(), "commit")
}

// Recent returns up to limit frames, newest first, with their boxes.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.conn.Query(`
		SELECT id, frame_id, status, duration_ms, recorded_at
		FROM frames ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query frames")
	}

	var entries []Entry
	var ids []int64
	for rows.Next() {
		var e Entry
		var id int64
		if err := rows.Scan(&id, &e.FrameID, &e.Status, &e.DurationMS, &e.RecordedAt); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan frame")
		}
		entries = append(entries, e)
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate frames")
	}

	for i, id := range ids {
		boxes, err := j.boxes(id)
		if err != nil {
			return nil, err
		}
		entries[i].Boxes = boxes
	}
	return entries, nil
}

func (j *Journal) boxes(frameRow int64) ([]common.BoundingBox, error) {
	rows, err := j.conn.Query(`
		SELECT class, label, confidence, x1, y1, x2, y2
		FROM boxes WHERE frame_row = ? ORDER BY id
	`, frameRow)
	if err != nil {
		return nil, errors.Wrap(err, "query boxes")
	}
	defer rows.Close()

	var boxes []common.BoundingBox
	for rows.Next() {
		var b common.BoundingBox
		if err := rows.Scan(&b.Class, &b.Label, &b.Confidence, &b.X1, &b.Y1, &b.X2, &b.Y2); err != nil {
			return nil, errors.Wrap(err, "scan box")
		}
		b.W, b.H = b.X2-b.X1, b.Y2-b.Y1
		b.CX, b.CY = b.X1+b.W/2, b.Y1+b.H/2
		boxes = append(boxes, b)
	}
	return boxes, rows.Err()
}

// CountByLabel returns how many journaled boxes carry each label.
func (j *Journal) CountByLabel() (map[string]int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.conn.Query(`SELECT label, COUNT(*) FROM boxes GROUP BY label`)
	if err != nil {
		return nil, errors.Wrap(err, "count labels")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, errors.Wrap(err, "scan label count")
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.conn.Close()
}
