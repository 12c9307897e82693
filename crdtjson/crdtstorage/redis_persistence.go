package crdtstorage

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisPersistence stores documents as Redis strings and tracks their IDs in a set.
type RedisPersistence struct {
	// client is the Redis client, owned by the caller.
	client *redis.Client

	// keyPrefix prefixes every Redis key.
	keyPrefix string

	// documentKeyFunc maps document IDs to keys.
	documentKeyFunc DocumentKeyFunc

	// serializer encodes documents.
	serializer DocumentSerializer
}

// NewRedisPersistence creates a new RedisPersistence.
func NewRedisPersistence(client *redis.Client, keyPrefix string) *RedisPersistence {
	return &RedisPersistence{
		client:          client,
		keyPrefix:       keyPrefix,
		documentKeyFunc: DefaultDocumentKeyFunc,
		serializer:      defaultSerializer,
	}
}

// GetDocumentKeyFunc returns the document key function.
func (p *RedisPersistence) GetDocumentKeyFunc() DocumentKeyFunc {
	return p.documentKeyFunc
}

// getDocumentKey returns the Redis key of a document key.
func (p *RedisPersistence) getDocumentKey(key Key) string {
	return fmt.Sprintf("%s:doc:%s", p.keyPrefix, keyString(key))
}

// getDocumentListKey returns the Redis key of the document ID set.
func (p *RedisPersistence) getDocumentListKey() string {
	return fmt.Sprintf("%s:docs", p.keyPrefix)
}

// SaveDocument stores the document and adds its ID to the set in one transaction.
func (p *RedisPersistence) SaveDocument(ctx context.Context, doc *Document) error {
	data, err := p.serializer.Serialize(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.getDocumentKey(p.documentKeyFunc(doc.ID)), data, 0)
		pipe.SAdd(ctx, p.getDocumentListKey(), doc.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// LoadDocument returns the document stored under key.
func (p *RedisPersistence) LoadDocument(ctx context.Context, key Key) ([]byte, error) {
	data, err := p.client.Get(ctx, p.getDocumentKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return data, nil
}

// LoadDocumentByID loads a document by its ID.
func (p *RedisPersistence) LoadDocumentByID(ctx context.Context, documentID string) ([]byte, error) {
	return p.LoadDocument(ctx, p.documentKeyFunc(documentID))
}

// ListDocuments returns the members of the document ID set.
func (p *RedisPersistence) ListDocuments(ctx context.Context) ([]string, error) {
	ids, err := p.client.SMembers(ctx, p.getDocumentListKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return ids, nil
}

// DeleteDocument deletes the document stored under key. The ID set is only updated by
// DeleteDocumentByID, which knows the ID.
func (p *RedisPersistence) DeleteDocument(ctx context.Context, key Key) error {
	if err := p.client.Del(ctx, p.getDocumentKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// DeleteDocumentByID deletes a document and removes its ID from the set.
func (p *RedisPersistence) DeleteDocumentByID(ctx context.Context, documentID string) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, p.getDocumentKey(p.documentKeyFunc(documentID)))
		pipe.SRem(ctx, p.getDocumentListKey(), documentID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Close does nothing; the Redis client belongs to the caller.
func (p *RedisPersistence) Close() error {
	return nil
}
