package rnode

import (
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SqlLiteDeployStore struct {
	db *sql.DB
	mu sync.Mutex
}

var _ DeployStore = &SqlLiteDeployStore{}

func NewSqlLiteDeployStore(path string) (db *SqlLiteDeployStore, err error) {
	log.Info().Msgf("opening sqlite db at: '%s'", path)

	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		err = errors.Wrap(err, "failed to open database")
		return
	}

	if err = sqldb.Ping(); err != nil {
		_ = sqldb.Close()
		err = errors.Wrap(err, "failed to ping database")
		return
	}

	db = &SqlLiteDeployStore{db: sqldb}
	if err = db.initTables(); err != nil {
		_ = sqldb.Close()
		err = errors.Wrap(err, "failed to init tables")
		return
	}

	return
}

func (s *SqlLiteDeployStore) Close() error {
	return errors.WithStack(s.db.Close())
}

func (s *SqlLiteDeployStore) initTables() (err error) {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS deploy (
			id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			submitted INTEGER NOT NULL,
			block_hash TEXT NOT NULL DEFAULT '',
			finalized INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deploy_block_hash ON deploy(block_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_deploy_finalized ON deploy(finalized)`,
	}

	for i, query := range queries {
		_, err = s.db.Exec(query)
		if err != nil {
			err = errors.Wrapf(err, "failed to execute query: %d", i)
			return
		}
	}

	return
}

func (s *SqlLiteDeployStore) AddDeploy(record DeployRecord) (err error) {
	if record.Deploy == nil || len(record.Deploy.Sig) == 0 {
		return errors.Wrap(ErrInvalidDeployData, "deploy record has no signature")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO deploy (id, data, submitted, block_hash, finalized) VALUES (?, ?, ?, ?, ?)`,
		record.Id(),
		MarshalDeployData(record.Deploy),
		record.Submitted.UnixMilli(),
		record.BlockHash,
		record.Finalized,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errors.Wrapf(ErrDeployExists, "deploy %s", record.Id())
		}
		return errors.Wrap(err, "failed to insert deploy")
	}

	return
}

func (s *SqlLiteDeployStore) GetDeploy(id string) (record DeployRecord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT data, submitted, block_hash, finalized FROM deploy WHERE id = ?`, id)

	record, err = scanDeployRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = errors.Wrapf(ErrDeployNotFound, "deploy %s", id)
	}

	return
}

func (s *SqlLiteDeployStore) SetDeployBlock(id string, blockHash string) (err error) {
	return s.update(id, `UPDATE deploy SET block_hash = ? WHERE id = ?`, blockHash, id)
}

func (s *SqlLiteDeployStore) SetDeployFinalized(id string, finalized bool) (err error) {
	return s.update(id, `UPDATE deploy SET finalized = ? WHERE id = ?`, finalized, id)
}

func (s *SqlLiteDeployStore) update(id string, query string, args ...any) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to update deploy %s", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}

	if affected == 0 {
		return errors.Wrapf(ErrDeployNotFound, "deploy %s", id)
	}

	return
}

func (s *SqlLiteDeployStore) ListPending() (records []DeployRecord, err error) {
	return s.list(`SELECT data, submitted, block_hash, finalized FROM deploy WHERE finalized = 0 ORDER BY submitted, id`)
}

func (s *SqlLiteDeployStore) ListByBlock(blockHash string) (records []DeployRecord, err error) {
	return s.list(`SELECT data, submitted, block_hash, finalized FROM deploy WHERE block_hash = ? ORDER BY submitted, id`, blockHash)
}

func (s *SqlLiteDeployStore) list(query string, args ...any) (records []DeployRecord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		err = errors.Wrap(err, "failed to query deploys")
		return
	}
	defer rows.Close()

	records = []DeployRecord{}
	for rows.Next() {
		var record DeployRecord
		if record, err = scanDeployRecord(rows); err != nil {
			return
		}
		records = append(records, record)
	}

	err = errors.WithStack(rows.Err())
	return
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployRecord(row rowScanner) (record DeployRecord, err error) {
	var (
		data      []byte
		submitted int64
	)

	if err = row.Scan(&data, &submitted, &record.BlockHash, &record.Finalized); err != nil {
		err = errors.WithStack(err)
		return
	}

	record.Deploy, err = UnmarshalDeployData(data)
	if err != nil {
		return
	}

	record.Submitted = time.UnixMilli(submitted)
	return
}
