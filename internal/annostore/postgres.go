package annostore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/docannex/annosync/internal/annotation"
)

const (
	postgresTableName        = "annosync_annotations"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresStore is the structured-record strategy: one row per annotation,
// keyed by (doc_id, id), with a true partial update and stable persistent
// ids.
type PostgresStore struct {
	dsn       string
	tableName string
	logger    zerolog.Logger
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresStore(dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresStore{
		dsn:       dsn,
		tableName: postgresTableName,
		logger:    logger,
		openDB:    sql.Open,
	}, nil
}

func (s *PostgresStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := `
			CREATE TABLE IF NOT EXISTS ` + s.tableName + ` (
				id BIGSERIAL PRIMARY KEY,
				doc_id BIGINT NOT NULL,
				page_index INT,
				payload TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		indexQuery := `CREATE INDEX IF NOT EXISTS ` + s.tableName + `_doc_page_idx ON ` + s.tableName + ` (doc_id, page_index)`
		if _, err := db.ExecContext(ctx, indexQuery); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func (s *PostgresStore) List(ctx context.Context, docID int64, page *int) ([]*annotation.Record, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	query := `SELECT id, payload FROM ` + s.tableName + ` WHERE doc_id = $1 ORDER BY id ASC`
	args := []any{docID}
	if page != nil {
		query = `SELECT id, payload FROM ` + s.tableName + ` WHERE doc_id = $1 AND page_index = $2 ORDER BY id ASC`
		args = append(args, *page)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*annotation.Record
	for rows.Next() {
		var id int64
		var payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var fields annotation.Fields
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			s.logger.Warn().Int64("doc", docID).Int64("id", id).Err(err).Msg("skipping unreadable annotation row")
			continue
		}
		rec := annotation.Hydrated(docID, fields)
		rec.SetPersistentID(id)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, docID int64, rec *annotation.Record) (*annotation.Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, err
	}
	query := `INSERT INTO ` + s.tableName + ` (doc_id, page_index, payload) VALUES ($1, $2, $3) RETURNING id`
	var id int64
	if err := s.db.QueryRowContext(ctx, query, docID, rec.PageIndex(), string(payload)).Scan(&id); err != nil {
		return nil, err
	}
	out := rec.Clone()
	out.SetPersistentID(id)
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, docID int64, rec *annotation.Record) (*annotation.Record, error) {
	id := rec.PersistentID()
	if id == 0 {
		return nil, ErrMissingPersistentID
	}
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, err
	}
	query := `UPDATE ` + s.tableName + ` SET page_index = $1, payload = $2, updated_at = NOW() WHERE id = $3 AND doc_id = $4`
	result, err := s.db.ExecContext(ctx, query, rec.PageIndex(), string(payload), id, docID)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *PostgresStore) Delete(ctx context.Context, docID, persistentID int64) (bool, error) {
	if err := s.ensureReady(); err != nil {
		return false, err
	}
	query := `DELETE FROM ` + s.tableName + ` WHERE id = $1 AND doc_id = $2`
	result, err := s.db.ExecContext(ctx, query, persistentID, docID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
