package store

import (
	"database/sql"
)

// KeyCatalogVersion holds the catalog version cached scores were computed with.
const KeyCatalogVersion = "catalog_version"

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// CatalogVersion returns the catalog version of the last rescore.
func (s *Store) CatalogVersion() (string, error) {
	return s.GetMetadata(KeyCatalogVersion)
}

// SetCatalogVersion records the catalog version of a completed rescore.
func (s *Store) SetCatalogVersion(version string) error {
	return s.SetMetadata(KeyCatalogVersion, version)
}

// GetImportedFileHash returns the content hash recorded for an imported
// file, or "" if it was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	return s.GetMetadata("imported:" + path)
}

// SetImportedFileHash records the content hash of an imported file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	return s.SetMetadata("imported:"+path, hash)
}
