package crdtstorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerPersistence stores documents in an embedded badger database.
type BadgerPersistence struct {
	// db is the badger database.
	db *badger.DB

	// keyPrefix namespaces the document keys.
	keyPrefix string

	// documentKeyFunc maps document IDs to keys.
	documentKeyFunc DocumentKeyFunc

	// serializer encodes documents.
	serializer DocumentSerializer

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBadgerPersistence opens a badger database in dbPath. An empty path keeps the
// database in memory.
func NewBadgerPersistence(dbPath, keyPrefix string) (*BadgerPersistence, error) {
	opts := badger.DefaultOptions(dbPath)
	if dbPath == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &BadgerPersistence{
		db:              db,
		keyPrefix:       keyPrefix,
		documentKeyFunc: DefaultDocumentKeyFunc,
		serializer:      defaultSerializer,
		cancel:          cancel,
		done:            make(chan struct{}),
	}

	if dbPath == "" {
		close(p.done)
	} else {
		go p.runGC(ctx)
	}
	return p, nil
}

// runGC reclaims value log space until ctx is done.
func (p *BadgerPersistence) runGC(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for p.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

// GetDocumentKeyFunc returns the document key function.
func (p *BadgerPersistence) GetDocumentKeyFunc() DocumentKeyFunc {
	return p.documentKeyFunc
}

func (p *BadgerPersistence) prefix() []byte {
	return []byte(p.keyPrefix + ":doc:")
}

func (p *BadgerPersistence) getKey(key Key) []byte {
	return append(p.prefix(), keyString(key)...)
}

// idKey maps a document ID to the key holding its ID, used by ListDocuments.
func (p *BadgerPersistence) idKey(documentID string) []byte {
	return []byte(p.keyPrefix + ":id:" + documentID)
}

// SaveDocument writes the document and its ID entry in one transaction.
func (p *BadgerPersistence) SaveDocument(ctx context.Context, doc *Document) error {
	data, err := p.serializer.Serialize(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}

	err = p.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(p.getKey(p.documentKeyFunc(doc.ID)), data); err != nil {
			return err
		}
		return txn.Set(p.idKey(doc.ID), []byte(doc.ID))
	})
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// LoadDocument returns the document stored under key.
func (p *BadgerPersistence) LoadDocument(ctx context.Context, key Key) ([]byte, error) {
	var data []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(p.getKey(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return data, nil
}

// LoadDocumentByID loads a document by its ID.
func (p *BadgerPersistence) LoadDocumentByID(ctx context.Context, documentID string) ([]byte, error) {
	return p.LoadDocument(ctx, p.documentKeyFunc(documentID))
}

// ListDocuments returns the IDs of all stored documents in key order.
func (p *BadgerPersistence) ListDocuments(ctx context.Context) ([]string, error) {
	var ids []string
	prefix := []byte(p.keyPrefix + ":id:")

	err := p.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = append(ids, string(value))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return ids, nil
}

// DeleteDocument deletes the document stored under key.
func (p *BadgerPersistence) DeleteDocument(ctx context.Context, key Key) error {
	err := p.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(p.getKey(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// DeleteDocumentByID deletes a document and its ID entry.
func (p *BadgerPersistence) DeleteDocumentByID(ctx context.Context, documentID string) error {
	err := p.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(p.getKey(p.documentKeyFunc(documentID))); err != nil {
			return err
		}
		return txn.Delete(p.idKey(documentID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Close stops garbage collection and closes the database.
func (p *BadgerPersistence) Close() error {
	p.cancel()
	<-p.done
	return p.db.Close()
}
