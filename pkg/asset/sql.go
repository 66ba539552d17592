// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const createVersionsTableSQL = `
CREATE TABLE IF NOT EXISTS asset_versions (
    name VARCHAR(128) NOT NULL,
    version_index INTEGER NOT NULL,
    source VARCHAR(32) NOT NULL,
    mime_type VARCHAR(64) NOT NULL,
    size_bytes BIGINT NOT NULL,
    sha256 VARCHAR(64) NOT NULL,
    filename VARCHAR(160) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (name, version_index)
)`

// SQLStore keeps version metadata in a SQL table and bytes in a BlobDir.
type SQLStore struct {
	db      *sql.DB
	dialect string
	blobs   *BlobDir
	locks   nameLocks
	now     func() time.Time

	// nextIndex allocates the index inside the insert transaction.
	nextIndex func(ctx context.Context, tx *sql.Tx, name string) (int, error)
}

// NewSQLStore creates the schema if needed. dialect is one of sqlite,
// postgres or mysql.
func NewSQLStore(db *sql.DB, dialect string, blobs *BlobDir) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob directory is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
	case "sqlite3":
		dialect = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{
		db:      db,
		dialect: dialect,
		blobs:   blobs,
		now:     time.Now,
	}
	s.nextIndex = s.maxIndexPlusOne

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, createVersionsTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create asset_versions table: %w", err)
	}

	return s, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateVersion implements Store.
func (s *SQLStore) CreateVersion(ctx context.Context, name string, data []byte, source Source) (*Version, error) {
	if err := validateWrite(name, data, source); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(name)
	defer unlock()

	v, err := s.insertVersion(ctx, name, data, source)
	if errors.Is(err, ErrNameConflict) {
		// Another process won the index; re-read the max and try once more.
		slog.Debug("Asset version conflict, retrying", "asset", name)
		v, err = s.insertVersion(ctx, name, data, source)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("Stored asset version", "asset", name, "version", v.Index, "source", source, "bytes", v.Size)
	return v, nil
}

func (s *SQLStore) insertVersion(ctx context.Context, name string, data []byte, source Source) (*Version, error) {
	// SQLite handles opened through config.DatabaseConfig begin with
	// BEGIN IMMEDIATE, so a second writer waits here instead of failing
	// on the lock upgrade at INSERT time.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("%w: %s is locked by another writer: %v", ErrNameConflict, name, err)
		}
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	index, err := s.nextIndex(ctx, tx, name)
	if err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrNameConflict, name, err)
		}
		return nil, fmt.Errorf("failed to read latest version of %s: %w", name, err)
	}

	v := newVersion(name, index, cloneBytes(data), source, s.now())

	_, err = tx.ExecContext(ctx, s.rebind(`
INSERT INTO asset_versions (name, version_index, source, mime_type, size_bytes, sha256, filename, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		v.Name, v.Index, string(v.Source), v.MIMEType, v.Size, v.SHA256, v.Filename(), v.CreatedAt)
	if err != nil {
		if isConflict(err) {
			return nil, fmt.Errorf("%w: %s", ErrNameConflict, v.Filename())
		}
		return nil, fmt.Errorf("failed to insert %s: %w", v.Filename(), err)
	}

	// The row now reserves the index, so a file already at this path was
	// never committed and is replaced.
	if s.blobs.Exists(name, v.Index) {
		slog.Warn("Replacing orphaned blob", "asset", name, "version", v.Index)
	}
	if err := s.blobs.Write(name, v.Index, data); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if rmErr := s.blobs.Remove(name, v.Index); rmErr != nil {
			slog.Warn("Failed to remove orphaned blob", "asset", name, "version", v.Index, "error", rmErr)
		}
		if isConflict(err) {
			return nil, fmt.Errorf("%w: commit %s: %v", ErrNameConflict, v.Filename(), err)
		}
		return nil, fmt.Errorf("failed to commit %s: %w", v.Filename(), err)
	}

	return v, nil
}

func (s *SQLStore) maxIndexPlusOne(ctx context.Context, tx *sql.Tx, name string) (int, error) {
	var maxIndex int
	row := tx.QueryRowContext(ctx, s.rebind(`SELECT COALESCE(MAX(version_index), 0) FROM asset_versions WHERE name = ?`), name)
	if err := row.Scan(&maxIndex); err != nil {
		return 0, err
	}
	return maxIndex + 1, nil
}

// GetVersion implements Store.
func (s *SQLStore) GetVersion(ctx context.Context, name string, index int) (*Version, error) {
	var row *sql.Row
	if index == Latest {
		row = s.db.QueryRowContext(ctx, s.rebind(`
SELECT name, version_index, source, mime_type, size_bytes, sha256, created_at
FROM asset_versions WHERE name = ? ORDER BY version_index DESC LIMIT 1`), name)
	} else {
		row = s.db.QueryRowContext(ctx, s.rebind(`
SELECT name, version_index, source, mime_type, size_bytes, sha256, created_at
FROM asset_versions WHERE name = ? AND version_index = ?`), name, index)
	}

	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(name, index)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}

	data, err := s.blobs.Read(v.Name, v.Index)
	if err != nil {
		return nil, err
	}
	v.Data = data
	return v, nil
}

// ListAssets implements Store.
func (s *SQLStore) ListAssets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM asset_versions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan asset name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListVersions implements Store.
func (s *SQLStore) ListVersions(ctx context.Context, name string) ([]*Version, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT name, version_index, source, mime_type, size_bytes, sha256, created_at
FROM asset_versions WHERE name = ? ORDER BY version_index ASC`), name)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of %s: %w", name, err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version of %s: %w", name, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, notFound(name, Latest)
	}
	return versions, nil
}

// Close implements Store. The database handle is owned by the caller.
func (s *SQLStore) Close() error {
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (*Version, error) {
	var (
		v      Version
		source string
	)
	if err := row.Scan(&v.Name, &v.Index, &source, &v.MIMEType, &v.Size, &v.SHA256, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Source = Source(source)
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

// isConflict reports errors caused by another writer racing for the same
// index: unique violations, SQLite lock contention, and serialization or
// deadlock aborts on the server databases.
func isConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.Code == sqlite3.ErrBusy,
			sqliteErr.Code == sqlite3.ErrLocked:
			return true
		}
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "40001", "40P01":
			return true
		}
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062 || mysqlErr.Number == 1213
	}
	return false
}

var _ Store = (*SQLStore)(nil)
