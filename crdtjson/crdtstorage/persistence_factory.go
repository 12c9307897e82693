package crdtstorage

import (
	"context"
	"fmt"
	"strings"
)

// createPersistenceProvider creates the PersistenceProvider selected by the options.
func (s *storageImpl) createPersistenceProvider(ctx context.Context) (PersistenceProvider, error) {
	switch s.options.PersistenceType {
	case PersistenceMemory, "":
		return NewMemoryPersistence(), nil

	case PersistenceFile:
		return NewFilePersistence(s.options.PersistencePath)

	case PersistenceRedis:
		client, err := s.redis(ctx)
		if err != nil {
			return nil, err
		}
		return NewRedisPersistence(client, s.options.KeyPrefix), nil

	case PersistenceSQLite:
		return OpenSQLitePersistence(ctx, s.options.PersistencePath, tableName(s.options.KeyPrefix))

	case PersistenceBadger:
		return NewBadgerPersistence(s.options.PersistencePath, s.options.KeyPrefix)

	case PersistenceDatastore:
		return NewDatastorePersistence(nil, s.options.KeyPrefix), nil

	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", s.options.PersistenceType)
	}
}

// tableName derives the SQL table name from a key prefix.
func tableName(keyPrefix string) string {
	if keyPrefix == "" {
		return "documents"
	}
	return strings.NewReplacer("-", "_", ".", "_", ":", "_").Replace(keyPrefix) + "_documents"
}
