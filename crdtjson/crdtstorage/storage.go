package crdtstorage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
	"github.com/dman-os/townframe-sub000/crdtjson/crdtpatch"
	"github.com/dman-os/townframe-sub000/crdtjson/crdtpubsub"
)

// storageImpl is the Storage implementation.
type storageImpl struct {
	// options is the storage configuration.
	options *StorageOptions

	// pubsub replicates patches between storages.
	pubsub crdtpubsub.PubSub
	// ownsPubSub is true when pubsub was created here.
	ownsPubSub bool

	// persistence stores serialized documents.
	persistence PersistenceProvider
	// ownsPersistence is true when persistence was created here.
	ownsPersistence bool

	// lockManager is set when distributed locks are enabled.
	lockManager DistributedLockManager

	// documents holds the loaded documents.
	documents map[string]*Document

	// redisClient is shared by every Redis backend.
	redisClient *redis.Client

	// mutex guards documents and closed.
	mutex  sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewStorage creates a new storage.
func NewStorage(ctx context.Context, options *StorageOptions) (Storage, error) {
	if options == nil {
		options = DefaultStorageOptions()
	}

	storageCtx, cancel := context.WithCancel(ctx)
	s := &storageImpl{
		options:   options,
		documents: make(map[string]*Document),
		ctx:       storageCtx,
		cancel:    cancel,
	}

	if err := s.init(storageCtx); err != nil {
		s.closeBackends()
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *storageImpl) init(ctx context.Context) error {
	if s.options.PubSub != nil {
		s.pubsub = s.options.PubSub
	} else {
		ps, err := s.createPubSub(ctx)
		if err != nil {
			return fmt.Errorf("failed to create PubSub: %w", err)
		}
		s.pubsub = ps
		s.ownsPubSub = true
	}

	if s.options.Persistence != nil {
		s.persistence = s.options.Persistence
	} else {
		p, err := s.createPersistenceProvider(ctx)
		if err != nil {
			return fmt.Errorf("failed to create persistence provider: %w", err)
		}
		s.persistence = p
		s.ownsPersistence = true
	}

	if s.options.EnableDistributedLock {
		client, err := s.redis(ctx)
		if err != nil {
			return fmt.Errorf("failed to create lock manager: %w", err)
		}
		s.lockManager = NewRedisDistributedLockManager(client, s.options.KeyPrefix)
	}
	return nil
}

// redis returns the shared Redis client, connecting on first use.
func (s *storageImpl) redis(ctx context.Context) (*redis.Client, error) {
	if s.redisClient != nil {
		return s.redisClient, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.options.RedisAddr,
		Password: s.options.RedisPassword,
		DB:       s.options.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	s.redisClient = client
	return client, nil
}

// createPubSub creates the PubSub selected by the options.
func (s *storageImpl) createPubSub(ctx context.Context) (crdtpubsub.PubSub, error) {
	pubsubOptions := crdtpubsub.NewOptions()
	pubsubOptions.ClientID = s.options.KeyPrefix

	switch s.options.PubSubType {
	case PubSubMemory, "":
		return crdtpubsub.NewMemoryPubSub(pubsubOptions)
	case PubSubRedis:
		client, err := s.redis(ctx)
		if err != nil {
			return nil, err
		}
		return crdtpubsub.NewRedisPubSub(client, pubsubOptions)
	case PubSubLibP2P:
		return crdtpubsub.NewLibP2PPubSub(ctx, nil, pubsubOptions, &crdtpubsub.LibP2POptions{
			ListenAddrs:    s.options.ListenAddrs,
			BootstrapPeers: s.options.BootstrapPeers,
		})
	default:
		return nil, fmt.Errorf("unsupported PubSub type: %s", s.options.PubSubType)
	}
}

// topic returns the pub/sub topic of a document.
func (s *storageImpl) topic(documentID string) string {
	if s.options.KeyPrefix == "" {
		return "doc:" + documentID
	}
	return s.options.KeyPrefix + ":doc:" + documentID
}

// newDocument builds an unloaded document with a fresh session.
func (s *storageImpl) newDocument(documentID string) *Document {
	sessionID := common.NewSessionID()
	crdtDoc := crdt.NewDocument(sessionID)
	docOptions := s.options.documentOptions()
	docCtx, docCancel := context.WithCancel(s.ctx)

	return &Document{
		ID:               documentID,
		CRDTDoc:          crdtDoc,
		PatchBuilder:     crdtpatch.NewPatchBuilder(crdtDoc),
		SessionID:        sessionID,
		LastModified:     time.Now(),
		Metadata:         docOptions.Metadata,
		storage:          s,
		ctx:              docCtx,
		cancel:           docCancel,
		autoSave:         docOptions.AutoSave,
		autoSaveInterval: docOptions.AutoSaveInterval,
		lockManager:      s.lockManager,
		done:             make(chan struct{}),
	}
}

// open subscribes doc to its topic and starts auto-save. Callers hold s.mutex.
func (s *storageImpl) open(ctx context.Context, doc *Document) error {
	doc.tracker = crdtpubsub.NewTracker(doc.CRDTDoc, &doc.mutex)
	handler := doc.tracker.Handler(doc.remoteApplied)
	if err := s.pubsub.Subscribe(ctx, s.topic(doc.ID), doc.SessionID.String(), handler); err != nil {
		return fmt.Errorf("failed to subscribe to document topic: %w", err)
	}

	if doc.autoSave && doc.autoSaveInterval > 0 {
		go doc.startAutoSave()
	} else {
		close(doc.done)
	}

	s.documents[doc.ID] = doc
	return nil
}

// CreateDocument creates and persists a new empty document.
func (s *storageImpl) CreateDocument(ctx context.Context, documentID string) (*Document, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil, ErrStorageClosed
	}
	if _, exists := s.documents[documentID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDocumentExists, documentID)
	}
	if _, err := s.persistence.LoadDocumentByID(ctx, documentID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentExists, documentID)
	} else if !errors.Is(err, ErrDocumentNotFound) {
		return nil, fmt.Errorf("failed to check document: %w", err)
	}

	doc := s.newDocument(documentID)
	if err := s.persistence.SaveDocument(ctx, doc); err != nil {
		doc.cancel()
		return nil, fmt.Errorf("failed to save document: %w", err)
	}
	if err := s.open(ctx, doc); err != nil {
		doc.cancel()
		return nil, err
	}

	logger.Debugw("document created", "id", documentID, "session", doc.SessionID)
	return doc, nil
}

// GetDocument returns a loaded document or loads it from persistence.
func (s *storageImpl) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	s.mutex.RLock()
	doc, exists := s.documents[documentID]
	closed := s.closed
	s.mutex.RUnlock()

	if closed {
		return nil, ErrStorageClosed
	}
	if exists {
		return doc, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if doc, exists = s.documents[documentID]; exists {
		return doc, nil
	}

	data, err := s.persistence.LoadDocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	doc = s.newDocument(documentID)
	if err := defaultSerializer.Deserialize(doc, data); err != nil {
		doc.cancel()
		return nil, fmt.Errorf("failed to deserialize document: %w", err)
	}
	if err := s.open(ctx, doc); err != nil {
		doc.cancel()
		return nil, err
	}

	logger.Debugw("document loaded", "id", documentID, "session", doc.SessionID)
	return doc, nil
}

// ListDocuments returns the IDs of all persisted documents, sorted.
func (s *storageImpl) ListDocuments(ctx context.Context) ([]string, error) {
	ids, err := s.persistence.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteDocument closes the document if loaded and removes it from persistence.
func (s *storageImpl) DeleteDocument(ctx context.Context, documentID string) error {
	s.mutex.Lock()
	doc, exists := s.documents[documentID]
	delete(s.documents, documentID)
	s.mutex.Unlock()

	if exists {
		doc.close(false)
	}
	return s.persistence.DeleteDocumentByID(ctx, documentID)
}

// Close closes every loaded document, saving the changed ones, and releases the backends.
func (s *storageImpl) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	documents := s.documents
	s.documents = make(map[string]*Document)
	s.mutex.Unlock()

	for _, doc := range documents {
		doc.close(true)
	}

	s.cancel()
	return s.closeBackends()
}

// closeBackends closes the backends created by the storage.
func (s *storageImpl) closeBackends() error {
	var errs []error
	if s.ownsPubSub && s.pubsub != nil {
		if err := s.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close PubSub: %w", err))
		}
	}
	if s.ownsPersistence && s.persistence != nil {
		if err := s.persistence.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close persistence: %w", err))
		}
	}
	if s.lockManager != nil {
		if err := s.lockManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close lock manager: %w", err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis client: %w", err))
		}
	}
	return errors.Join(errs...)
}
