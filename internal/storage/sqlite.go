//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"gossipsim/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveExperiment(ctx context.Context, experiment model.Experiment) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if experiment.ID == "" {
		return errors.New("experiment id is required")
	}

	payload, err := EncodeExperiment(experiment)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO experiments (id, created_at_utc, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, experiment.ID, experiment.CreatedAtUTC, CurrentSchemaVersion, CurrentCodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (model.Experiment, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Experiment{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM experiments WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Experiment{}, false, nil
		}
		return model.Experiment{}, false, err
	}

	experiment, err := DecodeExperiment(payload)
	if err != nil {
		return model.Experiment{}, false, fmt.Errorf("decode experiment %s: %w", id, err)
	}
	return experiment, true, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]model.Experiment, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM experiments ORDER BY created_at_utc DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Experiment, 0, 16)
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		experiment, err := DecodeExperiment(payload)
		if err != nil {
			return nil, fmt.Errorf("decode experiment %s: %w", id, err)
		}
		out = append(out, experiment)
	}
	return out, rows.Err()
}

// SaveRecords replaces the raw record set of an experiment. Rows keep their
// input order through the seq column.
func (s *SQLiteStore) SaveRecords(ctx context.Context, experimentID string, records []model.Record) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE experiment_id = ?`, experimentID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO record_sets (experiment_id) VALUES (?)
		ON CONFLICT(experiment_id) DO NOTHING
	`, experimentID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (experiment_id, seq, time, run, aware_fraction)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, experimentID, i, r.Time, r.Run, r.AwareFraction); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetRecords(ctx context.Context, experimentID string) ([]model.Record, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var marker string
	err = db.QueryRowContext(ctx, `SELECT experiment_id FROM record_sets WHERE experiment_id = ?`, experimentID).Scan(&marker)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT time, run, aware_fraction FROM records
		WHERE experiment_id = ?
		ORDER BY seq ASC
	`, experimentID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	records := make([]model.Record, 0, 256)
	for rows.Next() {
		var r model.Record
		if err := rows.Scan(&r.Time, &r.Run, &r.AwareFraction); err != nil {
			return nil, false, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return records, true, nil
}

func (s *SQLiteStore) SaveMetrics(ctx context.Context, experimentID string, metrics model.CurveMetrics) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeMetrics(metrics)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO metrics (experiment_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(experiment_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, experimentID, CurrentSchemaVersion, CurrentCodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetMetrics(ctx context.Context, experimentID string) (model.CurveMetrics, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.CurveMetrics{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM metrics WHERE experiment_id = ?`, experimentID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CurveMetrics{}, false, nil
		}
		return model.CurveMetrics{}, false, err
	}

	metrics, err := DecodeMetrics(payload)
	if err != nil {
		return model.CurveMetrics{}, false, fmt.Errorf("decode metrics %s: %w", experimentID, err)
	}
	return metrics, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS experiments (
			id TEXT PRIMARY KEY,
			created_at_utc TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS record_sets (
			experiment_id TEXT PRIMARY KEY
		);
		CREATE TABLE IF NOT EXISTS records (
			experiment_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			time REAL NOT NULL,
			run INTEGER NOT NULL,
			aware_fraction REAL NOT NULL,
			PRIMARY KEY (experiment_id, seq)
		);
		CREATE TABLE IF NOT EXISTS metrics (
			experiment_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
