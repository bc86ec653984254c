package repository

import (
	"errors"
	"sort"

	"github.com/noah-isme/educore-sync/internal/models"
)

var (
	// ErrDocumentNotFound is returned when a collection holds no document with the requested id.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDocumentExists is returned when a create targets an id that is already stored.
	ErrDocumentExists = errors.New("document already exists")
)

// sortDocuments orders records by creation time then id so every backend returns a stable sequence.
func sortDocuments(records []*models.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}
