package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ImportRecord is one row of the append-only import ledger.
type ImportRecord struct {
	ID           int64
	Filename     string // path the file was imported from
	Name         string // base name, for display
	LastModified string
	FileSize     int64
	FileHash     string
	TotalGames   int64
	ImportDate   string
}

// FindImport looks up a ledger entry by (filename, hash). Returns nil when
// the file has not been imported before.
func (s *Store) FindImport(filename, fileHash string) (*ImportRecord, error) {
	var rec ImportRecord
	err := s.db.QueryRow(`
		SELECT id, filename, name, last_modified, file_size, file_hash, total_games, import_date
		FROM imported_files
		WHERE filename = ? AND file_hash = ?`,
		filename, fileHash,
	).Scan(&rec.ID, &rec.Filename, &rec.Name, &rec.LastModified,
		&rec.FileSize, &rec.FileHash, &rec.TotalGames, &rec.ImportDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordImport appends a ledger entry for a successfully ingested file.
// The UNIQUE(filename, file_hash) constraint rejects a duplicate append;
// callers check FindImport first and treat the pair as already imported.
func (s *Store) RecordImport(rec *ImportRecord) error {
	res, err := s.db.Exec(`
		INSERT INTO imported_files (filename, name, last_modified, file_size, file_hash, total_games, import_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Filename, rec.Name, rec.LastModified, rec.FileSize, rec.FileHash,
		rec.TotalGames, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}
