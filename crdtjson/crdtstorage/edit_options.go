package crdtstorage

import (
	"time"
)

// EditOptions configures a single Document.Edit call.
type EditOptions struct {
	// UseDistributedLock holds the storage's distributed lock during the edit.
	UseDistributedLock bool

	// SaveAfterEdit saves the document after a successful edit.
	SaveAfterEdit bool

	// Timeout bounds the whole edit, including waiting for the distributed lock.
	Timeout time.Duration

	// RetryDelay is the delay between attempts to take the distributed lock.
	RetryDelay time.Duration

	// Metadata is attached to the produced patch.
	Metadata map[string]interface{}
}

// DefaultEditOptions returns the default edit options.
func DefaultEditOptions() *EditOptions {
	return &EditOptions{
		UseDistributedLock: false,
		SaveAfterEdit:      true,
		Timeout:            30 * time.Second,
		RetryDelay:         50 * time.Millisecond,
	}
}

// EditOption sets an edit option.
type EditOption func(*EditOptions)

// WithDistributedLock sets whether the edit holds the distributed lock.
func WithDistributedLock(use bool) EditOption {
	return func(o *EditOptions) {
		o.UseDistributedLock = use
	}
}

// WithSaveAfterEdit sets whether the document is saved after the edit.
func WithSaveAfterEdit(save bool) EditOption {
	return func(o *EditOptions) {
		o.SaveAfterEdit = save
	}
}

// WithTimeout sets the edit timeout.
func WithTimeout(timeout time.Duration) EditOption {
	return func(o *EditOptions) {
		o.Timeout = timeout
	}
}

// WithRetryDelay sets the delay between attempts to take the distributed lock.
func WithRetryDelay(delay time.Duration) EditOption {
	return func(o *EditOptions) {
		o.RetryDelay = delay
	}
}

// WithPatchMetadata attaches a metadata entry to the produced patch.
func WithPatchMetadata(key string, value interface{}) EditOption {
	return func(o *EditOptions) {
		if o.Metadata == nil {
			o.Metadata = make(map[string]interface{})
		}
		o.Metadata[key] = value
	}
}
