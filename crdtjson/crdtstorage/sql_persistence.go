package crdtstorage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/mattn/go-sqlite3"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLPersistence stores documents in a SQL table. Queries use SQLite syntax.
type SQLPersistence struct {
	// db is the database handle.
	db *sql.DB

	// ownsDB is true when Close should close db.
	ownsDB bool

	// tableName is the document table.
	tableName string

	// documentKeyFunc maps document IDs to keys.
	documentKeyFunc DocumentKeyFunc

	// serializer encodes documents.
	serializer DocumentSerializer
}

// NewSQLPersistence creates a SQLPersistence on db and creates the table if needed.
// The caller keeps ownership of db.
func NewSQLPersistence(ctx context.Context, db *sql.DB, tableName string) (*SQLPersistence, error) {
	if !tableNamePattern.MatchString(tableName) {
		return nil, fmt.Errorf("invalid table name: %q", tableName)
	}

	p := &SQLPersistence{
		db:              db,
		tableName:       tableName,
		documentKeyFunc: DefaultDocumentKeyFunc,
		serializer:      defaultSerializer,
	}
	if err := p.createTable(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenSQLitePersistence opens a sqlite database at dsn. An empty dsn opens a private
// in-memory database.
func OpenSQLitePersistence(ctx context.Context, dsn, tableName string) (*SQLPersistence, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// sqlite allows one writer, and every :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	p, err := NewSQLPersistence(ctx, db, tableName)
	if err != nil {
		db.Close()
		return nil, err
	}
	p.ownsDB = true
	return p, nil
}

// createTable creates the document table.
func (p *SQLPersistence) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			data BLOB NOT NULL,
			version INTEGER NOT NULL,
			last_modified TIMESTAMP NOT NULL
		)
	`, p.tableName)

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// GetDocumentKeyFunc returns the document key function.
func (p *SQLPersistence) GetDocumentKeyFunc() DocumentKeyFunc {
	return p.documentKeyFunc
}

// SaveDocument inserts or replaces the document row.
func (p *SQLPersistence) SaveDocument(ctx context.Context, doc *Document) error {
	data, err := p.serializer.Serialize(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}
	header, err := readHeader(data)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (key, id, data, version, last_modified) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			id = excluded.id,
			data = excluded.data,
			version = excluded.version,
			last_modified = excluded.last_modified
	`, p.tableName)

	_, err = p.db.ExecContext(ctx, query,
		keyString(p.documentKeyFunc(header.ID)), header.ID, data, header.Version, header.LastModified)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// LoadDocument returns the document stored under key.
func (p *SQLPersistence) LoadDocument(ctx context.Context, key Key) ([]byte, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT data FROM %s WHERE key = ?", p.tableName), keyString(key)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return data, nil
}

// LoadDocumentByID loads a document by its ID.
func (p *SQLPersistence) LoadDocumentByID(ctx context.Context, documentID string) ([]byte, error) {
	return p.LoadDocument(ctx, p.documentKeyFunc(documentID))
}

// ListDocuments returns the IDs of all stored documents, most recently modified first.
func (p *SQLPersistence) ListDocuments(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id FROM %s ORDER BY last_modified DESC", p.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return ids, nil
}

// DeleteDocument deletes the row of key.
func (p *SQLPersistence) DeleteDocument(ctx context.Context, key Key) error {
	_, err := p.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE key = ?", p.tableName), keyString(key))
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// DeleteDocumentByID deletes a document by its ID.
func (p *SQLPersistence) DeleteDocumentByID(ctx context.Context, documentID string) error {
	return p.DeleteDocument(ctx, p.documentKeyFunc(documentID))
}

// Close closes the database if it was opened by OpenSQLitePersistence.
func (p *SQLPersistence) Close() error {
	if p.ownsDB {
		return p.db.Close()
	}
	return nil
}
