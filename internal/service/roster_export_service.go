package service

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/pkg/export"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type tableRenderer interface {
	ContentType() string
	Extension() string
	Render(table export.Table) ([]byte, error)
}

// PartitionSource yields one category of a collection together with its schema.
type PartitionSource interface {
	Partition(collection, category string) ([]*models.Record, *models.Schema, error)
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// RosterExportService renders one partition of a mirrored collection as a downloadable roster.
type RosterExportService struct {
	renderers map[string]tableRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewRosterExportService constructs a RosterExportService. Nil renderers fall back to the defaults.
func NewRosterExportService(csv, pdf tableRenderer, logger *zap.Logger) *RosterExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterExportService{
		renderers: map[string]tableRenderer{ExportFormatCSV: csv, ExportFormatPDF: pdf},
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Export renders the category's records in partition order. Columns follow the schema's
// field order; image fields are left out.
func (s *RosterExportService) Export(source PartitionSource, collection, category, format string) (*models.ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Validation(fmt.Sprintf("unsupported export format %q", format), "format")
	}
	if strings.TrimSpace(category) == "" {
		return nil, appErrors.Validation("category is required", models.FieldCategory)
	}

	records, schema, err := source.Partition(collection, category)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		if field.Type != models.FieldImage {
			columns = append(columns, field.Name)
		}
	}
	headers := append([]string{models.FieldID}, columns...)

	table := export.Table{
		Title:   fmt.Sprintf("%s - %s %s", cases.Title(language.Und).String(schema.Name), schema.CategoryLabel, category),
		Headers: headers,
		Rows:    make([][]string, 0, len(records)),
	}
	for _, rec := range records {
		row := make([]string, 0, len(headers))
		row = append(row, rec.ID)
		for _, name := range columns {
			row = append(row, rec.Fields.String(name))
		}
		table.Rows = append(table.Rows, row)
	}

	data, err := renderer.Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	name := fmt.Sprintf("%s_%s_%s.%s",
		schema.Name,
		strings.Trim(unsafeFilename.ReplaceAllString(category, "_"), "_"),
		s.now().Format("20060102"),
		renderer.Extension())

	s.logger.Info("roster exported",
		zap.String("collection", schema.Name),
		zap.String("category", category),
		zap.String("format", format),
		zap.Int("rows", len(table.Rows)))

	return &models.ExportFile{Filename: name, ContentType: renderer.ContentType(), Data: data}, nil
}
