package models

import (
	"fmt"
	"sort"
	"strings"
)

// FieldType is the expected value type of a schema field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldList   FieldType = "list"
	FieldImage  FieldType = "image"
)

// Pseudo fields searchable on every schema.
const (
	FieldID       = "id"
	FieldCategory = "category"
)

// FieldSpec describes one field of a record schema.
type FieldSpec struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Unique   bool      `json:"unique,omitempty"`
	// Format is a validator tag applied to non-empty values, e.g. "email".
	Format string `json:"format,omitempty"`
}

// Schema is the descriptor one record engine uses for students, teachers and announcements alike.
type Schema struct {
	Name             string      `json:"name"`
	CategoryLabel    string      `json:"category_label"`
	CategoryRequired bool        `json:"category_required"`
	Fields           []FieldSpec `json:"fields"`
	// SearchDefaults are used when a caller searches without naming fields.
	SearchDefaults []string `json:"search_defaults"`
}

// Field returns the descriptor for name.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Searchable reports whether name can be used as a search field.
func (s *Schema) Searchable(name string) bool {
	if name == FieldID || name == FieldCategory {
		return true
	}
	_, ok := s.Field(name)
	return ok
}

// FieldNames returns declared field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Required returns the names of required fields.
func (s *Schema) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// UniqueFields returns the names of fields whose values must not repeat within a collection.
func (s *Schema) UniqueFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Unique {
			names = append(names, f.Name)
		}
	}
	return names
}

// Built-in schemas for the EduCore collections.
var (
	StudentSchema = &Schema{
		Name:             "students",
		CategoryLabel:    "level",
		CategoryRequired: true,
		Fields: []FieldSpec{
			{Name: "name", Type: FieldString, Required: true},
			{Name: "studentId", Type: FieldString, Required: true, Unique: true},
			{Name: "course", Type: FieldString, Required: true},
			{Name: "email", Type: FieldString, Required: true, Unique: true, Format: "email"},
			{Name: "phone", Type: FieldString},
			{Name: "uid", Type: FieldString},
			{Name: "photo", Type: FieldImage},
		},
		SearchDefaults: []string{"name", "studentId", "course"},
	}

	TeacherSchema = &Schema{
		Name:             "teachers",
		CategoryLabel:    "class",
		CategoryRequired: true,
		Fields: []FieldSpec{
			{Name: "name", Type: FieldString, Required: true},
			{Name: "email", Type: FieldString, Required: true, Unique: true, Format: "email"},
			{Name: "phone", Type: FieldString},
			{Name: "courses", Type: FieldList},
			{Name: "uid", Type: FieldString},
			{Name: "photo", Type: FieldImage},
		},
		SearchDefaults: []string{"name", "email"},
	}

	AnnouncementSchema = &Schema{
		Name:          "announcements",
		CategoryLabel: "class",
		Fields: []FieldSpec{
			{Name: "title", Type: FieldString},
			{Name: "text", Type: FieldString, Required: true},
			{Name: "author", Type: FieldString},
		},
		SearchDefaults: []string{"title", "text"},
	}
)

// SchemaRegistry resolves collection paths to schemas by their root segment.
type SchemaRegistry struct {
	schemas map[string]*Schema
}

// NewSchemaRegistry registers the given schemas under their names.
func NewSchemaRegistry(schemas ...*Schema) *SchemaRegistry {
	r := &SchemaRegistry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		r.schemas[s.Name] = s
	}
	return r
}

// DefaultSchemas returns a registry with the student, teacher and announcement schemas.
func DefaultSchemas() *SchemaRegistry {
	return NewSchemaRegistry(StudentSchema, TeacherSchema, AnnouncementSchema)
}

// Resolve returns the schema for a collection path such as "students/levels/JHS 1".
func (r *SchemaRegistry) Resolve(collection string) (*Schema, error) {
	root := CollectionRoot(collection)
	if s, ok := r.schemas[root]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no schema registered for collection %q", collection)
}

// Names lists registered schema names alphabetically.
func (r *SchemaRegistry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseFieldList splits a comma separated list of field names.
func ParseFieldList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	return fields
}
