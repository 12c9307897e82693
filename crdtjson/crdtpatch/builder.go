package crdtpatch

import (
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
)

// PatchBuilder drains the local ops of a document into patches.
type PatchBuilder struct {
	// doc is the document whose pending ops are collected.
	doc *crdt.Document

	// metadata is attached to every flushed patch.
	metadata map[string]interface{}
}

// NewPatchBuilder creates a new PatchBuilder for doc.
func NewPatchBuilder(doc *crdt.Document) *PatchBuilder {
	return &PatchBuilder{
		doc:      doc,
		metadata: make(map[string]interface{}),
	}
}

// SetMetadata sets a metadata entry attached to subsequent patches.
func (b *PatchBuilder) SetMetadata(key string, value interface{}) {
	b.metadata[key] = value
}

// Pending returns the number of ops that the next Flush would include.
func (b *PatchBuilder) Pending() int {
	return len(b.doc.PendingOps())
}

// Flush commits the document's pending ops and returns them as a patch.
// It returns nil when there is nothing to flush.
func (b *PatchBuilder) Flush() *Patch {
	ops := b.doc.Commit()
	if len(ops) == 0 {
		return nil
	}

	patch := NewPatch(ops[0].ID)
	for k, v := range b.metadata {
		patch.metadata[k] = v
	}
	for _, op := range ops {
		patch.AddOperation(op)
	}
	return patch
}
