package crdtstorage

import (
	"context"
	"errors"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
	"github.com/dman-os/townframe-sub000/crdtjson/crdtpatch"
	"github.com/dman-os/townframe-sub000/crdtjson/crdtpubsub"
)

var logger = logging.Logger("crdtstorage")

var (
	// ErrDocumentNotFound is returned when a document is neither loaded nor persisted.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentExists is returned by CreateDocument for an ID already in use.
	ErrDocumentExists = errors.New("document already exists")

	// ErrStorageClosed is returned by operations on a closed storage.
	ErrStorageClosed = errors.New("storage is closed")
)

// Storage is a set of replicated documents backed by a persistence provider and kept in
// sync with other replicas over pub/sub.
type Storage interface {
	// CreateDocument creates a new empty document.
	CreateDocument(ctx context.Context, documentID string) (*Document, error)

	// GetDocument returns a loaded document, loading it from persistence if needed.
	GetDocument(ctx context.Context, documentID string) (*Document, error)

	// ListDocuments returns the IDs of all persisted documents.
	ListDocuments(ctx context.Context) ([]string, error)

	// DeleteDocument closes and deletes a document.
	DeleteDocument(ctx context.Context, documentID string) error

	// Close closes every loaded document and releases the backends.
	Close() error
}

// Document is a replicated JSON document owned by a Storage.
type Document struct {
	// ID is the unique identifier of the document.
	ID string

	// CRDTDoc is the underlying replicated tree.
	CRDTDoc *crdt.Document

	// PatchBuilder drains local ops into patches after each edit.
	PatchBuilder *crdtpatch.PatchBuilder

	// SessionID is the session of this replica.
	SessionID common.SessionID

	// LastModified is the time of the last local or remote change.
	LastModified time.Time

	// Metadata is free-form document metadata, persisted alongside the content.
	Metadata map[string]interface{}

	// Version counts the changes applied to this replica.
	Version int64

	storage *storageImpl
	tracker *crdtpubsub.Tracker

	ctx    context.Context
	cancel context.CancelFunc
	// done is closed when the auto-save loop has exited.
	done chan struct{}

	autoSave         bool
	autoSaveInterval time.Duration
	dirty            bool

	onChangeCallbacks []func(*Document, *crdtpatch.Patch)

	// mutex guards CRDTDoc and the fields above. Remote patches are applied under it.
	mutex sync.Mutex

	// lockManager provides the cross-process lock used by WithDistributedLock.
	lockManager DistributedLockManager
}

// DocumentOptions configures a document when it is created or loaded.
type DocumentOptions struct {
	// AutoSave enables periodic saving of changed documents.
	AutoSave bool

	// AutoSaveInterval is the period between auto-saves.
	AutoSaveInterval time.Duration

	// Metadata is the initial metadata of a new document.
	Metadata map[string]interface{}
}

// PersistenceProvider stores serialized documents.
type PersistenceProvider interface {
	// GetDocumentKeyFunc returns the function mapping document IDs to keys.
	GetDocumentKeyFunc() DocumentKeyFunc

	// SaveDocument stores the serialized form of doc.
	SaveDocument(ctx context.Context, doc *Document) error

	// LoadDocument returns the serialized document stored under key.
	// It returns an error wrapping ErrDocumentNotFound when there is none.
	LoadDocument(ctx context.Context, key Key) ([]byte, error)

	// LoadDocumentByID loads a document by its ID.
	LoadDocumentByID(ctx context.Context, documentID string) ([]byte, error)

	// ListDocuments returns the IDs of all stored documents.
	ListDocuments(ctx context.Context) ([]string, error)

	// DeleteDocument deletes the document stored under key. Deleting a missing document is not an error.
	DeleteDocument(ctx context.Context, key Key) error

	// DeleteDocumentByID deletes a document by its ID.
	DeleteDocumentByID(ctx context.Context, documentID string) error

	// Close releases the provider.
	Close() error
}

// EditFunc mutates a document. Ops it records are published as one patch when it
// returns nil; when it returns an error they are rolled back.
type EditFunc func(*crdt.Document, *crdtpatch.PatchBuilder) error

// EditResult reports the outcome of Document.Edit.
type EditResult struct {
	// Success is true when the edit was applied.
	Success bool

	// Document is the edited document.
	Document *Document

	// Patch holds the ops produced by the edit. It is nil when the edit changed nothing.
	Patch *crdtpatch.Patch

	// Error is set when Success is false.
	Error error
}
