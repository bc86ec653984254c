package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/noah-isme/educore-sync/internal/models"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

type keyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// KVDocumentRepository persists each collection as one JSON array under a single key,
// the layout mobile clients use when the device cache stands in for the remote store.
type KVDocumentRepository struct {
	kv keyValueStore
	mu sync.Mutex
}

// NewKVDocumentRepository constructs a document store over a get/set string store.
func NewKVDocumentRepository(kv keyValueStore) *KVDocumentRepository {
	return &KVDocumentRepository{kv: kv}
}

// CollectionKey is the key a collection is stored under.
func CollectionKey(collection string) string {
	return "collection:" + collection
}

func (r *KVDocumentRepository) load(ctx context.Context, collection string) ([]*models.Record, error) {
	raw, err := r.kv.Get(ctx, CollectionKey(collection))
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load collection %s: %w", collection, err)
	}
	var records []*models.Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", collection, err)
	}
	return records, nil
}

func (r *KVDocumentRepository) save(ctx context.Context, collection string, records []*models.Record) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", collection, err)
	}
	if err := r.kv.Set(ctx, CollectionKey(collection), string(payload)); err != nil {
		return fmt.Errorf("save collection %s: %w", collection, err)
	}
	return nil
}

func indexOf(records []*models.Record, id string) int {
	for i, rec := range records {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

// Create appends a record to the collection.
func (r *KVDocumentRepository) Create(ctx context.Context, collection string, record *models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx, collection)
	if err != nil {
		return err
	}
	if indexOf(records, record.ID) >= 0 {
		return fmt.Errorf("create %s/%s: %w", collection, record.ID, ErrDocumentExists)
	}
	return r.save(ctx, collection, append(records, record))
}

// Get returns a record by id.
func (r *KVDocumentRepository) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	if i := indexOf(records, id); i >= 0 {
		return records[i], nil
	}
	return nil, ErrDocumentNotFound
}

// List returns every record of the collection.
func (r *KVDocumentRepository) List(ctx context.Context, collection string) ([]*models.Record, error) {
	return r.Query(ctx, collection, models.Query{})
}

// Query returns records matching the predicate.
func (r *KVDocumentRepository) Query(ctx context.Context, collection string, q models.Query) ([]*models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	result := make([]*models.Record, 0, len(records))
	for _, rec := range records {
		if q.Matches(rec) {
			result = append(result, rec)
		}
	}
	sortDocuments(result)
	return result, nil
}

// Update replaces a stored record.
func (r *KVDocumentRepository) Update(ctx context.Context, collection string, record *models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx, collection)
	if err != nil {
		return err
	}
	i := indexOf(records, record.ID)
	if i < 0 {
		return ErrDocumentNotFound
	}
	records[i] = record
	return r.save(ctx, collection, records)
}

// Delete removes a record.
func (r *KVDocumentRepository) Delete(ctx context.Context, collection, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx, collection)
	if err != nil {
		return err
	}
	i := indexOf(records, id)
	if i < 0 {
		return ErrDocumentNotFound
	}
	return r.save(ctx, collection, append(records[:i], records[i+1:]...))
}
