package crdtpubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
	"github.com/dman-os/townframe-sub000/crdtjson/crdtpatch"
)

// maxDeferredPatches bounds the patches held back waiting for their dependencies.
const maxDeferredPatches = 1024

// Tracker applies patches received from other replicas to a document. Patches are
// applied at most once, and a patch that references objects the document has not
// seen yet is deferred and retried after the next successful apply.
type Tracker struct {
	// doc is the CRDT document being tracked.
	doc *crdt.Document

	// sessionID is the document's local session, captured at creation.
	sessionID common.SessionID

	// docMu guards doc. It is shared with the document's local writers.
	docMu sync.Locker

	// appliedPatches is a set of patch IDs that have been applied.
	appliedPatches map[string]bool

	// deferred holds patches that failed to apply, oldest first.
	deferred []*crdtpatch.Patch

	// mutex is used to protect access to appliedPatches and deferred.
	mutex sync.RWMutex
}

// NewTracker creates a new Tracker for the given document. mu is held while a patch
// is applied; pass nil when the caller already serializes access to doc.
func NewTracker(doc *crdt.Document, mu sync.Locker) *Tracker {
	if mu == nil {
		mu = noopLocker{}
	}
	return &Tracker{
		doc:            doc,
		sessionID:      doc.GetSessionID(),
		docMu:          mu,
		appliedPatches: make(map[string]bool),
	}
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// ApplyPatch applies a patch to the document if it hasn't been applied already.
// It reports whether the patch or any deferred patch changed the document.
func (t *Tracker) ApplyPatch(patch *crdtpatch.Patch) (bool, error) {
	if patch == nil || patch.IsEmpty() {
		return false, nil
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	patchID := patch.ID().String()
	if t.appliedPatches[patchID] {
		return false, nil
	}

	if err := t.apply(patch); err != nil {
		if len(t.deferred) >= maxDeferredPatches {
			return false, fmt.Errorf("failed to apply patch: %w", err)
		}
		logger.Debugw("deferring patch", "id", patchID, "error", err)
		t.deferred = append(t.deferred, patch)
		return false, nil
	}
	t.appliedPatches[patchID] = true
	t.retryDeferred()
	return true, nil
}

// apply applies patch under the document lock. Callers hold t.mutex.
func (t *Tracker) apply(patch *crdtpatch.Patch) error {
	t.docMu.Lock()
	defer t.docMu.Unlock()
	return patch.Apply(t.doc)
}

// retryDeferred reapplies deferred patches until no more progress is made.
// Callers hold t.mutex.
func (t *Tracker) retryDeferred() {
	for progress := true; progress && len(t.deferred) > 0; {
		progress = false
		remaining := t.deferred[:0]
		for _, p := range t.deferred {
			id := p.ID().String()
			if t.appliedPatches[id] {
				continue
			}
			if err := t.apply(p); err != nil {
				remaining = append(remaining, p)
				continue
			}
			t.appliedPatches[id] = true
			progress = true
		}
		t.deferred = remaining
	}
}

// Handler returns a SubscriberFunc that decodes received patches and applies them.
// Patches produced by the document's own session are ignored. onApplied, if not nil,
// is called after a patch changed the document.
func (t *Tracker) Handler(onApplied func(*crdtpatch.Patch)) SubscriberFunc {
	return func(ctx context.Context, topic string, data []byte, format EncodingFormat) error {
		patch, err := DecodePatch(data, format)
		if err != nil {
			return fmt.Errorf("failed to decode patch: %w", err)
		}
		if patch.SessionID() == t.sessionID {
			return nil
		}
		applied, err := t.ApplyPatch(patch)
		if err != nil {
			return err
		}
		if applied && onApplied != nil {
			onApplied(patch)
		}
		return nil
	}
}

// GetDocument returns the tracked document.
func (t *Tracker) GetDocument() *crdt.Document {
	return t.doc
}

// Reset clears the applied and deferred patches.
func (t *Tracker) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.appliedPatches = make(map[string]bool)
	t.deferred = nil
}

// HasAppliedPatch checks if a patch has been applied.
func (t *Tracker) HasAppliedPatch(patchID string) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.appliedPatches[patchID]
}

// GetAppliedPatchCount returns the number of applied patches.
func (t *Tracker) GetAppliedPatchCount() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return len(t.appliedPatches)
}

// DeferredCount returns the number of patches waiting for their dependencies.
func (t *Tracker) DeferredCount() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return len(t.deferred)
}
