package crdtstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// keyString returns the string form of key.
func keyString(key Key) string {
	if key == nil {
		return ""
	}
	return key.String()
}

// notFound wraps ErrDocumentNotFound for key.
func notFound(key Key) error {
	return fmt.Errorf("%w: %s", ErrDocumentNotFound, keyString(key))
}

// documentHeader holds the fields of DocumentData that stores index.
type documentHeader struct {
	ID           string    `json:"id"`
	LastModified time.Time `json:"last_modified"`
	Version      int64     `json:"version"`
}

// readHeader reads the header of a serialized document.
func readHeader(data []byte) (documentHeader, error) {
	var header documentHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return header, fmt.Errorf("failed to read document header: %w", err)
	}
	return header, nil
}

// MemoryPersistence keeps serialized documents in memory.
type MemoryPersistence struct {
	// documents maps a key to the stored document.
	documents map[string]memoryEntry

	// documentKeyFunc maps document IDs to keys.
	documentKeyFunc DocumentKeyFunc

	// serializer encodes documents.
	serializer DocumentSerializer

	// mutex guards documents.
	mutex sync.RWMutex
}

type memoryEntry struct {
	id   string
	data []byte
}

// NewMemoryPersistence creates a new MemoryPersistence.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		documents:       make(map[string]memoryEntry),
		documentKeyFunc: DefaultDocumentKeyFunc,
		serializer:      defaultSerializer,
	}
}

// GetDocumentKeyFunc returns the document key function.
func (p *MemoryPersistence) GetDocumentKeyFunc() DocumentKeyFunc {
	return p.documentKeyFunc
}

// SaveDocument stores a copy of the serialized document.
func (p *MemoryPersistence) SaveDocument(ctx context.Context, doc *Document) error {
	data, err := p.serializer.Serialize(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.documents[keyString(p.documentKeyFunc(doc.ID))] = memoryEntry{id: doc.ID, data: data}
	return nil
}

// LoadDocument returns a copy of the document stored under key.
func (p *MemoryPersistence) LoadDocument(ctx context.Context, key Key) ([]byte, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	entry, ok := p.documents[keyString(key)]
	if !ok {
		return nil, notFound(key)
	}
	return append([]byte(nil), entry.data...), nil
}

// LoadDocumentByID loads a document by its ID.
func (p *MemoryPersistence) LoadDocumentByID(ctx context.Context, documentID string) ([]byte, error) {
	return p.LoadDocument(ctx, p.documentKeyFunc(documentID))
}

// ListDocuments returns the IDs of all stored documents.
func (p *MemoryPersistence) ListDocuments(ctx context.Context) ([]string, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	ids := make([]string, 0, len(p.documents))
	for _, entry := range p.documents {
		ids = append(ids, entry.id)
	}
	return ids, nil
}

// DeleteDocument deletes the document stored under key.
func (p *MemoryPersistence) DeleteDocument(ctx context.Context, key Key) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.documents, keyString(key))
	return nil
}

// DeleteDocumentByID deletes a document by its ID.
func (p *MemoryPersistence) DeleteDocumentByID(ctx context.Context, documentID string) error {
	return p.DeleteDocument(ctx, p.documentKeyFunc(documentID))
}

// Close does nothing.
func (p *MemoryPersistence) Close() error {
	return nil
}

// FilePersistence stores each document as a JSON file in a directory.
type FilePersistence struct {
	// basePath is the directory holding the document files.
	basePath string

	// documentKeyFunc maps document IDs to keys.
	documentKeyFunc DocumentKeyFunc

	// serializer encodes documents.
	serializer DocumentSerializer

	// mutex serializes file access.
	mutex sync.RWMutex
}

const (
	fileExt    = ".json"
	tempPrefix = ".tmp-"
)

// NewFilePersistence creates a FilePersistence in basePath, creating the directory if needed.
func NewFilePersistence(basePath string) (*FilePersistence, error) {
	if basePath == "" {
		return nil, fmt.Errorf("file persistence requires a path")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &FilePersistence{
		basePath:        basePath,
		documentKeyFunc: DefaultDocumentKeyFunc,
		serializer:      defaultSerializer,
	}, nil
}

// GetDocumentKeyFunc returns the document key function.
func (p *FilePersistence) GetDocumentKeyFunc() DocumentKeyFunc {
	return p.documentKeyFunc
}

// getFilePath returns the file path of key. Keys are escaped so they stay in basePath.
func (p *FilePersistence) getFilePath(key Key) string {
	return filepath.Join(p.basePath, url.PathEscape(keyString(key))+fileExt)
}

// SaveDocument writes the document to a temporary file and renames it into place.
func (p *FilePersistence) SaveDocument(ctx context.Context, doc *Document) error {
	data, err := p.serializer.Serialize(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	filePath := p.getFilePath(p.documentKeyFunc(doc.ID))
	tmp, err := os.CreateTemp(p.basePath, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// LoadDocument reads the document stored under key.
func (p *FilePersistence) LoadDocument(ctx context.Context, key Key) ([]byte, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	data, err := os.ReadFile(p.getFilePath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// LoadDocumentByID loads a document by its ID.
func (p *FilePersistence) LoadDocumentByID(ctx context.Context, documentID string) ([]byte, error) {
	return p.LoadDocument(ctx, p.documentKeyFunc(documentID))
}

// ListDocuments returns the IDs of all documents in the directory.
func (p *FilePersistence) ListDocuments(ctx context.Context) ([]string, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	entries, err := os.ReadDir(p.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, tempPrefix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.basePath, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		header, err := readHeader(data)
		if err != nil {
			logger.Warnf("skipping %s: %v", name, err)
			continue
		}
		ids = append(ids, header.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteDocument removes the file of key.
func (p *FilePersistence) DeleteDocument(ctx context.Context, key Key) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err := os.Remove(p.getFilePath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// DeleteDocumentByID deletes a document by its ID.
func (p *FilePersistence) DeleteDocumentByID(ctx context.Context, documentID string) error {
	return p.DeleteDocument(ctx, p.documentKeyFunc(documentID))
}

// Close does nothing.
func (p *FilePersistence) Close() error {
	return nil
}
