package service

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/noah-isme/educore-sync/internal/models"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

// Filter returns the records whose searchable fields contain query, compared with Unicode
// case folding. An empty or blank query returns records itself. The result keeps the
// input order and shares its elements; neither the slice nor any record is modified.
// When fields is empty the schema's default search fields are used. Naming a field the
// schema does not declare fails with INVALID_FIELD.
func Filter(schema *models.Schema, records []*models.Record, query string, fields []string) ([]*models.Record, error) {
	if schema != nil {
		if len(fields) == 0 {
			fields = schema.SearchDefaults
		}
		var unknown []string
		for _, f := range fields {
			if !schema.Searchable(f) {
				unknown = append(unknown, f)
			}
		}
		if len(unknown) > 0 {
			return nil, appErrors.InvalidField(schema.Name, unknown...)
		}
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return records, nil
	}

	folder := cases.Fold()
	needle := folder.String(query)

	result := make([]*models.Record, 0, len(records))
	for _, rec := range records {
		for _, f := range fields {
			if strings.Contains(folder.String(searchValue(rec, f)), needle) {
				result = append(result, rec)
				break
			}
		}
	}
	return result, nil
}

func searchValue(rec *models.Record, field string) string {
	switch field {
	case models.FieldID:
		return rec.ID
	case models.FieldCategory:
		return rec.Category
	default:
		return rec.Fields.String(field)
	}
}
