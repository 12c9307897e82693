package crdtstorage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dman-os/townframe-sub000/crdtjson/common"
	"github.com/dman-os/townframe-sub000/crdtjson/crdt"
	"github.com/dman-os/townframe-sub000/crdtjson/crdtpatch"
	"github.com/dman-os/townframe-sub000/crdtjson/reconcile"
)

// ErrDocumentClosed is returned by edits on a closed document.
var ErrDocumentClosed = errors.New("document is closed")

// Edit runs editFunc under the document lock. The ops it records are committed into one
// patch, published to the other replicas and, by default, saved. A failing editFunc
// leaves the document unchanged.
//
//	doc.Edit(ctx, func(doc *crdt.Document, pb *crdtpatch.PatchBuilder) error {
//	    return doc.Put(common.RootID, crdt.Key("title"), crdt.Str("raid"))
//	}, WithDistributedLock(true))
func (d *Document) Edit(ctx context.Context, editFunc EditFunc, opts ...EditOption) *EditResult {
	options := DefaultEditOptions()
	options.SaveAfterEdit = d.storage.options.SaveAfterEdit
	for _, opt := range opts {
		opt(options)
	}

	result := &EditResult{
		Success:  false,
		Document: d,
	}

	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	if options.UseDistributedLock {
		if d.lockManager == nil {
			result.Error = fmt.Errorf("distributed lock is not enabled")
			return result
		}
		lock := d.lockManager.GetLock(d.storage.topic(d.ID), d.SessionID.String())
		if err := acquireLock(ctx, lock, d.storage.options.DistributedLockTimeout, options.RetryDelay); err != nil {
			result.Error = err
			return result
		}
		defer func() {
			if _, err := lock.Release(context.Background()); err != nil {
				logger.Warnf("failed to release lock of document %s: %v", d.ID, err)
			}
		}()
	}

	patch, err := d.applyEdit(editFunc, options.Metadata)
	if err != nil {
		result.Error = err
		return result
	}
	result.Success = true
	result.Patch = patch
	if patch == nil {
		return result
	}

	if err := d.storage.pubsub.Publish(ctx, d.storage.topic(d.ID), patch, ""); err != nil {
		logger.Warnw("failed to publish patch", "document", d.ID, "patch", patch.ID(), "error", err)
	}

	if options.SaveAfterEdit {
		if err := d.Save(ctx); err != nil {
			logger.Warnf("failed to save document %s after edit: %v", d.ID, err)
		}
	}

	d.notify(patch)
	return result
}

// applyEdit runs editFunc and flushes its ops. It returns a nil patch when nothing changed.
func (d *Document) applyEdit(editFunc EditFunc, metadata map[string]interface{}) (*crdtpatch.Patch, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.ctx.Err() != nil {
		return nil, ErrDocumentClosed
	}

	if err := editFunc(d.CRDTDoc, d.PatchBuilder); err != nil {
		if rbErr := d.CRDTDoc.Rollback(); rbErr != nil {
			logger.Errorw("failed to roll back edit", "document", d.ID, "error", rbErr)
		}
		return nil, fmt.Errorf("edit function failed: %w", err)
	}

	patch := d.PatchBuilder.Flush()
	if patch == nil {
		return nil, nil
	}
	for k, v := range metadata {
		patch.Metadata()[k] = v
	}

	d.LastModified = time.Now()
	d.Version++
	d.dirty = true
	return patch, nil
}

// remoteApplied records a patch applied from another replica.
func (d *Document) remoteApplied(patch *crdtpatch.Patch) {
	d.mutex.Lock()
	d.LastModified = time.Now()
	d.Version++
	d.dirty = true
	d.mutex.Unlock()

	logger.Debugw("applied remote patch", "document", d.ID, "patch", patch.ID(), "ops", len(patch.Operations()))
	d.notify(patch)
}

func (d *Document) notify(patch *crdtpatch.Patch) {
	d.mutex.Lock()
	callbacks := append(([]func(*Document, *crdtpatch.Patch))(nil), d.onChangeCallbacks...)
	d.mutex.Unlock()

	for _, callback := range callbacks {
		callback(d, patch)
	}
}

// OnChange registers a callback run after every local edit and every applied remote patch.
func (d *Document) OnChange(callback func(*Document, *crdtpatch.Patch)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.onChangeCallbacks = append(d.onChangeCallbacks, callback)
}

// Reconcile makes the root key hold the JSON encoding of v with the fewest writes.
func (d *Document) Reconcile(ctx context.Context, key string, v interface{}, opts ...EditOption) *EditResult {
	return d.Edit(ctx, func(doc *crdt.Document, _ *crdtpatch.PatchBuilder) error {
		return reconcile.ReconcileAny(doc, crdt.RootKey(key), v)
	}, opts...)
}

// ReconcileRoot makes the whole document hold the JSON object encoding of v.
func (d *Document) ReconcileRoot(ctx context.Context, v interface{}, opts ...EditOption) *EditResult {
	return d.Edit(ctx, func(doc *crdt.Document, _ *crdtpatch.PatchBuilder) error {
		return reconcile.ReconcileMapAny(doc, common.RootID, v)
	}, opts...)
}

// DeleteKey removes a root key.
func (d *Document) DeleteKey(ctx context.Context, key string, opts ...EditOption) *EditResult {
	return d.Edit(ctx, func(doc *crdt.Document, _ *crdtpatch.PatchBuilder) error {
		return doc.Delete(common.RootID, crdt.Key(key))
	}, opts...)
}

// Hydrate returns the JSON value of a root key. An absent key hydrates to null.
func (d *Document) Hydrate(key string) (reconcile.Value, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return reconcile.Hydrate(d.CRDTDoc, crdt.RootKey(key))
}

// HydrateInto decodes the JSON value of a root key into out.
func (d *Document) HydrateInto(key string, out interface{}) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return reconcile.HydrateInto(d.CRDTDoc, crdt.RootKey(key), out)
}

// Has reports whether a root key is present.
func (d *Document) Has(key string) (bool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, ok, err := d.CRDTDoc.Get(common.RootID, crdt.Key(key))
	return ok, err
}

// GetContent returns the whole document as a JSON object.
func (d *Document) GetContent() (reconcile.Object, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return reconcile.HydrateMap(d.CRDTDoc, common.RootID)
}

// GetContentAs decodes the whole document into target.
func (d *Document) GetContentAs(target interface{}) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return reconcile.HydrateMapInto(d.CRDTDoc, common.RootID, target)
}

// SetMetadata sets a metadata entry.
func (d *Document) SetMetadata(key string, value interface{}) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.Metadata[key] = value
	d.dirty = true
}

// GetMetadata returns a metadata entry.
func (d *Document) GetMetadata(key string) (interface{}, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	value, ok := d.Metadata[key]
	return value, ok
}

// GetVersion returns the number of changes applied to this replica.
func (d *Document) GetVersion() int64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.Version
}

// Save persists the document.
func (d *Document) Save(ctx context.Context) error {
	d.mutex.Lock()
	version := d.Version
	d.mutex.Unlock()

	if err := d.storage.persistence.SaveDocument(ctx, d); err != nil {
		return err
	}

	d.mutex.Lock()
	if d.Version == version {
		d.dirty = false
	}
	d.mutex.Unlock()
	return nil
}

func (d *Document) isDirty() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.dirty
}

// startAutoSave saves the document every interval while it has unsaved changes.
func (d *Document) startAutoSave() {
	defer close(d.done)

	ticker := time.NewTicker(d.autoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if !d.isDirty() {
				continue
			}
			if err := d.Save(d.ctx); err != nil {
				logger.Warnf("failed to auto-save document %s: %v", d.ID, err)
			}
		}
	}
}

// close unsubscribes the document and stops auto-save. With save set, unsaved changes
// are persisted first.
func (d *Document) close(save bool) {
	if err := d.storage.pubsub.Unsubscribe(context.Background(), d.storage.topic(d.ID), d.SessionID.String()); err != nil {
		logger.Debugf("failed to unsubscribe document %s: %v", d.ID, err)
	}

	d.cancel()
	<-d.done

	if save && d.isDirty() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.Save(ctx); err != nil {
			logger.Warnf("failed to save document %s on close: %v", d.ID, err)
		}
	}

	d.mutex.Lock()
	d.onChangeCallbacks = nil
	d.mutex.Unlock()
}
