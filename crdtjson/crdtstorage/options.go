package crdtstorage

import (
	"time"

	"github.com/dman-os/townframe-sub000/crdtjson/crdtpubsub"
)

// PubSubType selects the transport used to replicate patches.
type PubSubType string

const (
	PubSubMemory PubSubType = "memory"
	PubSubRedis  PubSubType = "redis"
	PubSubLibP2P PubSubType = "libp2p"
)

// PersistenceType selects where documents are stored.
type PersistenceType string

const (
	PersistenceMemory    PersistenceType = "memory"
	PersistenceFile      PersistenceType = "file"
	PersistenceRedis     PersistenceType = "redis"
	PersistenceSQLite    PersistenceType = "sqlite"
	PersistenceBadger    PersistenceType = "badger"
	PersistenceDatastore PersistenceType = "datastore"
)

// StorageOptions configures NewStorage.
type StorageOptions struct {
	// PubSubType is the patch transport.
	PubSubType PubSubType

	// PersistenceType is the document store.
	PersistenceType PersistenceType

	// RedisAddr is the Redis server address, used by the redis transport and store.
	RedisAddr string

	// RedisPassword is the Redis server password.
	RedisPassword string

	// RedisDB is the Redis database number.
	RedisDB int

	// KeyPrefix prefixes topics, Redis keys, SQL tables and datastore keys.
	KeyPrefix string

	// PersistencePath is the directory of the file and badger stores, or the sqlite DSN.
	// An empty path runs badger and sqlite in memory.
	PersistencePath string

	// ListenAddrs are the libp2p listen multiaddrs.
	ListenAddrs []string

	// BootstrapPeers are libp2p peers to connect to on start.
	BootstrapPeers []string

	// AutoSave enables periodic saving of changed documents.
	AutoSave bool

	// AutoSaveInterval is the period between auto-saves.
	AutoSaveInterval time.Duration

	// SaveAfterEdit saves a document after every successful edit.
	SaveAfterEdit bool

	// EnableDistributedLock makes a Redis lock available to WithDistributedLock edits.
	// It requires RedisAddr.
	EnableDistributedLock bool

	// DistributedLockTimeout is the lock TTL.
	DistributedLockTimeout time.Duration

	// Persistence, when set, is used instead of PersistenceType. The caller keeps
	// ownership and closes it.
	Persistence PersistenceProvider

	// PubSub, when set, is used instead of PubSubType. The caller keeps ownership and
	// closes it. Storages sharing one in-memory PubSub replicate to each other.
	PubSub crdtpubsub.PubSub
}

// DefaultStorageOptions returns in-memory storage options.
func DefaultStorageOptions() *StorageOptions {
	return &StorageOptions{
		PubSubType:             PubSubMemory,
		PersistenceType:        PersistenceMemory,
		RedisAddr:              "localhost:6379",
		KeyPrefix:              "crdtjson",
		AutoSave:               false,
		AutoSaveInterval:       time.Minute,
		SaveAfterEdit:          true,
		DistributedLockTimeout: 10 * time.Second,
	}
}

// documentOptions returns the document options derived from storage options.
func (o *StorageOptions) documentOptions() *DocumentOptions {
	return &DocumentOptions{
		AutoSave:         o.AutoSave,
		AutoSaveInterval: o.AutoSaveInterval,
		Metadata:         make(map[string]interface{}),
	}
}
