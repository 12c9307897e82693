package crdtstorage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"
)

// DatastorePersistence stores documents in an IPFS datastore under /<prefix>/docs/<id>.
type DatastorePersistence struct {
	// store is the backing datastore.
	store ds.Datastore

	// ownsStore is true when Close should close store.
	ownsStore bool

	// root is the namespace holding the documents.
	root ds.Key

	// documentKeyFunc maps document IDs to path keys.
	documentKeyFunc DocumentKeyFunc

	// serializer encodes documents.
	serializer DocumentSerializer
}

// NewDatastorePersistence creates a DatastorePersistence on store. A nil store uses a
// thread-safe in-memory map datastore owned by the persistence.
func NewDatastorePersistence(store ds.Datastore, keyPrefix string) *DatastorePersistence {
	owns := false
	if store == nil {
		store = dssync.MutexWrap(ds.NewMapDatastore())
		owns = true
	}

	segments := []string{"docs"}
	if keyPrefix != "" {
		segments = []string{keyPrefix, "docs"}
	}

	return &DatastorePersistence{
		store:           store,
		ownsStore:       owns,
		root:            ds.KeyWithNamespaces(segments),
		documentKeyFunc: PathDocumentKeyFunc(segments...),
		serializer:      defaultSerializer,
	}
}

// GetDocumentKeyFunc returns the document key function.
func (p *DatastorePersistence) GetDocumentKeyFunc() DocumentKeyFunc {
	return p.documentKeyFunc
}

func (p *DatastorePersistence) dsKey(key Key) ds.Key {
	return ds.NewKey(keyString(key))
}

// SaveDocument puts the serialized document.
func (p *DatastorePersistence) SaveDocument(ctx context.Context, doc *Document) error {
	data, err := p.serializer.Serialize(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}
	if err := p.store.Put(ctx, p.dsKey(p.documentKeyFunc(doc.ID)), data); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// LoadDocument returns the document stored under key.
func (p *DatastorePersistence) LoadDocument(ctx context.Context, key Key) ([]byte, error) {
	data, err := p.store.Get(ctx, p.dsKey(key))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return data, nil
}

// LoadDocumentByID loads a document by its ID.
func (p *DatastorePersistence) LoadDocumentByID(ctx context.Context, documentID string) ([]byte, error) {
	return p.LoadDocument(ctx, p.documentKeyFunc(documentID))
}

// ListDocuments returns the IDs of the documents in the namespace.
func (p *DatastorePersistence) ListDocuments(ctx context.Context) ([]string, error) {
	results, err := p.store.Query(ctx, dsq.Query{
		Prefix:   p.root.String(),
		KeysOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer results.Close()

	entries, err := results.Rest()
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		key := ds.NewKey(e.Key)
		if !key.Parent().Equal(p.root) {
			continue
		}
		ids = append(ids, key.BaseNamespace())
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteDocument deletes the document stored under key.
func (p *DatastorePersistence) DeleteDocument(ctx context.Context, key Key) error {
	if err := p.store.Delete(ctx, p.dsKey(key)); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// DeleteDocumentByID deletes a document by its ID.
func (p *DatastorePersistence) DeleteDocumentByID(ctx context.Context, documentID string) error {
	return p.DeleteDocument(ctx, p.documentKeyFunc(documentID))
}

// Close closes the datastore if it was created here.
func (p *DatastorePersistence) Close() error {
	if p.ownsStore {
		return p.store.Close()
	}
	return nil
}
