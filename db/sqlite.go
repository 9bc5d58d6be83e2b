package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// PredictionRecord is one row of the prediction log.
type PredictionRecord struct {
	ID         int64                  `json:"id"`
	RequestID  string                 `json:"request_id"`
	Kind       string                 `json:"kind"`
	Features   map[string]interface{} `json:"features"`
	Value      float64                `json:"value"`
	Confidence float64                `json:"confidence"`
	Fallback   bool                   `json:"fallback"`
	Model      string                 `json:"model"`
	Version    string                 `json:"version"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Store is the SQLite-backed prediction log.
type Store struct {
	database *sql.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// go-sqlite3 connections do not share an in-memory database.
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT,
        kind VARCHAR(20) NOT NULL,
        features TEXT NOT NULL,
        value REAL NOT NULL,
        confidence REAL DEFAULT 0,
        fallback INTEGER DEFAULT 0,
        model VARCHAR(100),
        version VARCHAR(100),
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_kind_created ON predictions (kind, created_at);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return &Store{database: database}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.database == nil {
		return nil
	}
	return s.database.Close()
}

// SavePrediction appends one prediction to the log.
func (s *Store) SavePrediction(record PredictionRecord) error {
	if s == nil || s.database == nil {
		return errors.New("database not initialized")
	}
	features, err := json.Marshal(record.Features)
	if err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err = s.database.Exec(`
        INSERT INTO predictions (
            request_id, kind, features, value, confidence, fallback, model, version, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RequestID,
		record.Kind,
		string(features),
		record.Value,
		record.Confidence,
		record.Fallback,
		record.Model,
		record.Version,
		record.CreatedAt,
	)
	return err
}

// RecentPredictions returns the newest predictions first. An empty kind
// matches every model.
func (s *Store) RecentPredictions(kind string, limit int) ([]PredictionRecord, error) {
	if s == nil || s.database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.database.Query(`
        SELECT id, request_id, kind, features, value, confidence, fallback, model, version, created_at
        FROM predictions
        WHERE ? = '' OR kind = ?
        ORDER BY id DESC
        LIMIT ?`, kind, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var (
			r         PredictionRecord
			requestID sql.NullString
			features  string
			model     sql.NullString
			version   sql.NullString
		)
		if err := rows.Scan(&r.ID, &requestID, &r.Kind, &features, &r.Value, &r.Confidence, &r.Fallback, &model, &version, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.RequestID = requestID.String
		r.Model = model.String
		r.Version = version.String
		if err := json.Unmarshal([]byte(features), &r.Features); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountPredictions returns per-kind counts split by fallback.
func (s *Store) CountPredictions() (map[string]map[string]int, error) {
	if s == nil || s.database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := s.database.Query(`
        SELECT kind, fallback, COUNT(*)
        FROM predictions
        GROUP BY kind, fallback`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]map[string]int)
	for rows.Next() {
		var (
			kind     string
			fallback bool
			n        int
		)
		if err := rows.Scan(&kind, &fallback, &n); err != nil {
			return nil, err
		}
		if counts[kind] == nil {
			counts[kind] = make(map[string]int)
		}
		key := "model"
		if fallback {
			key = "fallback"
		}
		counts[kind][key] = n
	}
	return counts, rows.Err()
}
