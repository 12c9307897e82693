package crdtstorage

import (
	"strings"
)

// Key identifies a document inside a persistence provider.
type Key interface {
	// String returns the string form of the key.
	String() string
}

// StringKey is a flat string key, used by the memory, file, Redis, SQL and badger stores.
type StringKey string

// String returns the key itself.
func (k StringKey) String() string {
	return string(k)
}

// DocumentKeyFunc maps a document ID to a key.
type DocumentKeyFunc func(documentID string) Key

// DefaultDocumentKeyFunc uses the document ID as the key.
func DefaultDocumentKeyFunc(documentID string) Key {
	return StringKey(documentID)
}

// PrefixedDocumentKeyFunc returns a DocumentKeyFunc producing "prefix:id" keys.
func PrefixedDocumentKeyFunc(prefix string) DocumentKeyFunc {
	return func(documentID string) Key {
		if prefix == "" {
			return StringKey(documentID)
		}
		return StringKey(prefix + ":" + documentID)
	}
}

// PathKey is a hierarchical key, used by the datastore store.
type PathKey struct {
	// Path holds the key segments.
	Path []string
}

// NewPathKey creates a new PathKey.
func NewPathKey(path ...string) *PathKey {
	return &PathKey{
		Path: path,
	}
}

// String joins the segments with "/" and a leading "/".
func (k *PathKey) String() string {
	if k == nil || len(k.Path) == 0 {
		return "/"
	}
	return "/" + strings.Join(k.Path, "/")
}

// PathDocumentKeyFunc returns a DocumentKeyFunc producing /prefix/id path keys.
func PathDocumentKeyFunc(prefix ...string) DocumentKeyFunc {
	return func(documentID string) Key {
		return NewPathKey(append(append([]string(nil), prefix...), documentID)...)
	}
}
