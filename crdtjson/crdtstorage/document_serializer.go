package crdtstorage

import (
	"encoding/json"
	"fmt"
	"time"
)

// DocumentData is the persisted form of a document.
type DocumentData struct {
	// ID is the unique identifier of the document.
	ID string `json:"id"`

	// Doc is the op history of the replicated tree.
	Doc json.RawMessage `json:"doc"`

	// LastModified is the time of the last change.
	LastModified time.Time `json:"last_modified"`

	// Metadata is the document metadata.
	Metadata map[string]interface{} `json:"metadata"`

	// Version is the document version.
	Version int64 `json:"version"`
}

// DocumentSerializer converts documents to and from their persisted form.
type DocumentSerializer interface {
	// Serialize encodes doc.
	Serialize(doc *Document) ([]byte, error)

	// Deserialize restores doc from data. doc must not be in use yet.
	Deserialize(doc *Document, data []byte) error
}

// DefaultDocumentSerializer stores the op history as JSON so that a loaded replica keeps
// the identity of every object.
type DefaultDocumentSerializer struct{}

// NewDefaultDocumentSerializer creates a new DefaultDocumentSerializer.
func NewDefaultDocumentSerializer() *DefaultDocumentSerializer {
	return &DefaultDocumentSerializer{}
}

// Serialize encodes doc under its lock.
func (s *DefaultDocumentSerializer) Serialize(doc *Document) ([]byte, error) {
	doc.mutex.Lock()
	defer doc.mutex.Unlock()

	content, err := json.Marshal(doc.CRDTDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}

	return json.Marshal(DocumentData{
		ID:           doc.ID,
		Doc:          content,
		LastModified: doc.LastModified,
		Metadata:     doc.Metadata,
		Version:      doc.Version,
	})
}

// Deserialize replays the stored op history into doc.CRDTDoc. The replica keeps its own
// session.
func (s *DefaultDocumentSerializer) Deserialize(doc *Document, data []byte) error {
	var docData DocumentData
	if err := json.Unmarshal(data, &docData); err != nil {
		return fmt.Errorf("failed to unmarshal document data: %w", err)
	}

	if err := json.Unmarshal(docData.Doc, doc.CRDTDoc); err != nil {
		return fmt.Errorf("failed to unmarshal content: %w", err)
	}

	doc.ID = docData.ID
	doc.LastModified = docData.LastModified
	doc.Version = docData.Version
	doc.Metadata = docData.Metadata
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]interface{})
	}
	return nil
}

var defaultSerializer DocumentSerializer = NewDefaultDocumentSerializer()
