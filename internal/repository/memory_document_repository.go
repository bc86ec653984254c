package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/noah-isme/educore-sync/internal/models"
)

// MemoryDocumentRepository keeps collections in process memory. It backs the
// "memory" store backend and tests.
type MemoryDocumentRepository struct {
	mu          sync.RWMutex
	collections map[string]map[string]*models.Record
}

// NewMemoryDocumentRepository constructs an empty in-memory document store.
func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{collections: make(map[string]map[string]*models.Record)}
}

// Create stores a copy of the record.
func (r *MemoryDocumentRepository) Create(ctx context.Context, collection string, record *models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	docs, ok := r.collections[collection]
	if !ok {
		docs = make(map[string]*models.Record)
		r.collections[collection] = docs
	}
	if _, exists := docs[record.ID]; exists {
		return fmt.Errorf("create %s/%s: %w", collection, record.ID, ErrDocumentExists)
	}
	docs[record.ID] = record.Clone()
	return nil
}

// Get returns a copy of a stored record.
func (r *MemoryDocumentRepository) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.collections[collection][id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return rec.Clone(), nil
}

// List returns every record in the collection.
func (r *MemoryDocumentRepository) List(ctx context.Context, collection string) ([]*models.Record, error) {
	return r.Query(ctx, collection, models.Query{})
}

// Query returns records matching the predicate.
func (r *MemoryDocumentRepository) Query(ctx context.Context, collection string, q models.Query) ([]*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := r.collections[collection]
	result := make([]*models.Record, 0, len(docs))
	for _, rec := range docs {
		if q.Matches(rec) {
			result = append(result, rec.Clone())
		}
	}
	sortDocuments(result)
	return result, nil
}

// Update replaces a stored record.
func (r *MemoryDocumentRepository) Update(ctx context.Context, collection string, record *models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := r.collections[collection]
	if _, ok := docs[record.ID]; !ok {
		return ErrDocumentNotFound
	}
	docs[record.ID] = record.Clone()
	return nil
}

// Delete removes a stored record.
func (r *MemoryDocumentRepository) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := r.collections[collection]
	if _, ok := docs[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(docs, id)
	return nil
}
