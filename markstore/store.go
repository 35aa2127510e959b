// Package markstore persists mark records in a NATS JetStream KV bucket,
// keyed by hex-encoded mark digest. Only the digest and record fields are
// stored: the original identifier never reaches the bucket, so the
// no-reverse-mapping property of the registry holds at rest too.
//
// The registry writes through to the store on every successful mutation and
// the service seeds itself from LoadAll at startup.
package markstore

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/0xSardius/castmark/errors"
	"github.com/0xSardius/castmark/natsclient"
	"github.com/0xSardius/castmark/registry"
)

// DefaultBucket is the KV bucket marks are stored in when none is configured.
const DefaultBucket = "castmark_marks"

// Store provides persistence for mark records using NATS KV
type Store struct {
	bucket  jetstream.KeyValue
	kvStore *natsclient.KVStore
}

// NewStore creates a mark store, creating the bucket if needed. An empty
// bucket name selects DefaultBucket.
func NewStore(ctx context.Context, natsClient *natsclient.Client, bucketName string) (*Store, error) {
	if natsClient == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "markstore", "NewStore", "nats client validation")
	}
	if bucketName == "" {
		bucketName = DefaultBucket
	}

	bucket, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: "Castmark mark records keyed by identifier digest",
		History:     5, // Keep a few revisions for recovery
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "markstore", "NewStore", "create KV bucket")
	}

	return &Store{
		bucket:  bucket,
		kvStore: natsClient.NewKVStore(bucket),
	}, nil
}

// Put writes a mark under its hex digest key, last writer wins. The registry
// serializes all writes, so revision conflicts cannot occur in normal
// operation. Implements registry.Store.
func (s *Store) Put(ctx context.Context, key string, mark registry.Mark) error {
	if _, err := registry.ParseKey(key); err != nil {
		return errors.WrapInvalid(err, "markstore", "Put", "key validation")
	}

	data, err := json.Marshal(mark)
	if err != nil {
		return errors.WrapFatal(err, "markstore", "Put", "marshal mark")
	}

	if _, err := s.kvStore.Put(ctx, key, data); err != nil {
		return errors.WrapTransient(err, "markstore", "Put", "put to KV")
	}
	return nil
}

// Get retrieves a mark by its hex digest key.
func (s *Store) Get(ctx context.Context, key string) (registry.Mark, error) {
	if _, err := registry.ParseKey(key); err != nil {
		return registry.Mark{}, errors.WrapInvalid(err, "markstore", "Get", "key validation")
	}

	entry, err := s.kvStore.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return registry.Mark{}, errors.WrapInvalid(errors.ErrKeyNotFound, "markstore", "Get", "get from KV")
		}
		return registry.Mark{}, errors.WrapTransient(err, "markstore", "Get", "get from KV")
	}

	var mark registry.Mark
	if err := json.Unmarshal(entry.Value, &mark); err != nil {
		return registry.Mark{}, errors.WrapFatal(err, "markstore", "Get", "unmarshal mark")
	}
	return mark, nil
}

// LoadAll retrieves every persisted mark, keyed by hex digest. Used to seed
// the registry at startup; an empty bucket returns an empty map.
func (s *Store) LoadAll(ctx context.Context) (map[string]registry.Mark, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return map[string]registry.Mark{}, nil
		}
		return nil, errors.WrapTransient(err, "markstore", "LoadAll", "list KV keys")
	}

	marks := make(map[string]registry.Mark, len(keys))
	for _, key := range keys {
		mark, err := s.Get(ctx, key)
		if err != nil {
			return nil, errors.Wrap(err, "markstore", "LoadAll", "get mark "+key)
		}
		marks[key] = mark
	}
	return marks, nil
}
