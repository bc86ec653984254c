package service

import (
	"sort"
	"sync"

	"github.com/noah-isme/educore-sync/internal/models"
)

// ReadTracker holds per-viewer read flags. A record with no entry is unread.
// Entries only disappear when the record itself is deleted.
type ReadTracker struct {
	mu    sync.RWMutex
	state map[string]map[string]bool
}

// NewReadTracker constructs an empty tracker.
func NewReadTracker() *ReadTracker {
	return &ReadTracker{state: make(map[string]map[string]bool)}
}

// IsRead reports whether the viewer marked the record read.
func (t *ReadTracker) IsRead(viewerID, recordID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state[viewerID][recordID]
}

// MarkRead flags the record as read for the viewer and reports whether the flag changed.
func (t *ReadTracker) MarkRead(viewerID, recordID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	viewer, ok := t.state[viewerID]
	if !ok {
		viewer = make(map[string]bool)
		t.state[viewerID] = viewer
	}
	if viewer[recordID] {
		return false
	}
	viewer[recordID] = true
	return true
}

// UnreadCount counts records the viewer has not read.
func (t *ReadTracker) UnreadCount(viewerID string, records []*models.Record) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	viewer := t.state[viewerID]
	unread := 0
	for _, rec := range records {
		if !viewer[rec.ID] {
			unread++
		}
	}
	return unread
}

// CascadeDelete removes the record from every viewer and returns the viewers that had it.
func (t *ReadTracker) CascadeDelete(recordID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var affected []string
	for viewerID, viewer := range t.state {
		if _, ok := viewer[recordID]; ok {
			delete(viewer, recordID)
			affected = append(affected, viewerID)
		}
	}
	sort.Strings(affected)
	return affected
}

// Snapshot lists the record ids the viewer has read, sorted.
func (t *ReadTracker) Snapshot(viewerID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.state[viewerID]))
	for id, read := range t.state[viewerID] {
		if read {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Restore marks every id in ids read for the viewer. Existing flags are kept.
func (t *ReadTracker) Restore(viewerID string, ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	viewer, ok := t.state[viewerID]
	if !ok {
		viewer = make(map[string]bool, len(ids))
		t.state[viewerID] = viewer
	}
	for _, id := range ids {
		viewer[id] = true
	}
}
