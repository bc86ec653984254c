package models

import (
	"fmt"
	"strings"
	"time"
)

// Record is a student, teacher, or announcement kept in a collection mirror.
// Records held by a mirror are never mutated in place; edits replace them.
type Record struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Category   string    `json:"category,omitempty"`
	Fields     Fields    `json:"fields"`
	ImageRef   string    `json:"image_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Fields = r.Fields.Clone()
	return &clone
}

// HasCategory reports whether the record belongs to a partition.
func (r *Record) HasCategory() bool {
	return r != nil && strings.TrimSpace(r.Category) != ""
}

// ImageUpload is raw image data attached to a create or edit.
type ImageUpload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Empty reports whether there is nothing to upload.
func (u *ImageUpload) Empty() bool {
	return u == nil || len(u.Data) == 0
}

// Query is an equality predicate evaluated by the remote document store.
type Query struct {
	Category *string
	Equals   map[string]interface{}
}

// Matches reports whether r satisfies every clause. Values compare by their text form
// so a JSON number and a Go int of the same value match.
func (q Query) Matches(r *Record) bool {
	if r == nil {
		return false
	}
	if q.Category != nil && r.Category != *q.Category {
		return false
	}
	for field, want := range q.Equals {
		got, ok := r.Fields.Get(field)
		if !ok || Stringify(got) != Stringify(want) {
			return false
		}
	}
	return true
}

// String renders the predicate for logs.
func (q Query) String() string {
	parts := make([]string, 0, len(q.Equals)+1)
	if q.Category != nil {
		parts = append(parts, fmt.Sprintf("category=%q", *q.Category))
	}
	for field, want := range q.Equals {
		parts = append(parts, fmt.Sprintf("%s=%q", field, Stringify(want)))
	}
	return strings.Join(parts, " AND ")
}

// Partition groups records that share a category.
type Partition struct {
	Category string    `json:"category"`
	Records  []*Record `json:"records"`
}

// CollectionRoot returns the first segment of a hierarchical collection path,
// e.g. "students" for "students/levels/JHS 1".
func CollectionRoot(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if i := strings.Index(path, "/"); i >= 0 {
		return path[:i]
	}
	return path
}

// NormalizeCollection trims surrounding slashes and whitespace from a collection path.
func NormalizeCollection(path string) string {
	segments := strings.Split(strings.Trim(strings.TrimSpace(path), "/"), "/")
	cleaned := segments[:0]
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return strings.Join(cleaned, "/")
}

// RecordInput carries the caller-supplied parts of a new record. ID is optional;
// the store generates one when it is empty.
type RecordInput struct {
	ID       string       `json:"id,omitempty"`
	Category string       `json:"category,omitempty"`
	Fields   Fields       `json:"fields"`
	Image    *ImageUpload `json:"-"`
}

// ExportFile is a rendered roster ready for download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
