package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/educore-sync/internal/models"
)

const uniqueViolation = "23505"

const documentColumns = `collection, id, category, data, image_ref, created_at, updated_at`

type documentRow struct {
	Collection string         `db:"collection"`
	ID         string         `db:"id"`
	Category   sql.NullString `db:"category"`
	Data       []byte         `db:"data"`
	ImageRef   sql.NullString `db:"image_ref"`
	CreatedAt  sql.NullTime   `db:"created_at"`
	UpdatedAt  sql.NullTime   `db:"updated_at"`
}

func (row documentRow) toRecord() (*models.Record, error) {
	rec := &models.Record{
		ID:         row.ID,
		Collection: row.Collection,
		Category:   row.Category.String,
		ImageRef:   row.ImageRef.String,
		CreatedAt:  row.CreatedAt.Time.UTC(),
		UpdatedAt:  row.UpdatedAt.Time.UTC(),
	}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode document %s/%s: %w", row.Collection, row.ID, err)
		}
	}
	return rec, nil
}

// PostgresDocumentRepository stores every collection in a single documents table. The data
// column is JSON rather than JSONB so field order survives a round trip.
type PostgresDocumentRepository struct {
	db *sqlx.DB
}

// NewPostgresDocumentRepository creates a new instance of PostgresDocumentRepository.
func NewPostgresDocumentRepository(db *sqlx.DB) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{db: db}
}

// Create inserts a new document.
func (r *PostgresDocumentRepository) Create(ctx context.Context, collection string, record *models.Record) error {
	data, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	const query = `INSERT INTO documents (collection, id, category, data, image_ref, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.db.ExecContext(ctx, query, collection, record.ID, nullString(record.Category), data, nullString(record.ImageRef), record.CreatedAt, record.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("create document %s/%s: %w", collection, record.ID, ErrDocumentExists)
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// Get returns a document by id.
func (r *PostgresDocumentRepository) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE collection = $1 AND id = $2 LIMIT 1`
	var row documentRow
	if err := r.db.GetContext(ctx, &row, query, collection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return row.toRecord()
}

// List returns every document of a collection.
func (r *PostgresDocumentRepository) List(ctx context.Context, collection string) ([]*models.Record, error) {
	return r.Query(ctx, collection, models.Query{})
}

// Query returns documents matching category and field equality clauses.
func (r *PostgresDocumentRepository) Query(ctx context.Context, collection string, q models.Query) ([]*models.Record, error) {
	conditions := []string{"collection = $1"}
	args := []interface{}{collection}

	if q.Category != nil {
		args = append(args, *q.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}

	fields := make([]string, 0, len(q.Equals))
	for field := range q.Equals {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		args = append(args, field, models.Stringify(q.Equals[field]))
		conditions = append(conditions, fmt.Sprintf("data->>$%d = $%d", len(args)-1, len(args)))
	}

	query := fmt.Sprintf("SELECT %s FROM documents WHERE %s ORDER BY created_at ASC, id ASC", documentColumns, strings.Join(conditions, " AND "))

	var rows []documentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	records := make([]*models.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Update overwrites a stored document.
func (r *PostgresDocumentRepository) Update(ctx context.Context, collection string, record *models.Record) error {
	data, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	const query = `UPDATE documents SET category = $3, data = $4, image_ref = $5, updated_at = $6 WHERE collection = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, collection, record.ID, nullString(record.Category), data, nullString(record.ImageRef), record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return requireAffected(res, "update document")
}

// Delete removes a document.
func (r *PostgresDocumentRepository) Delete(ctx context.Context, collection, id string) error {
	const query = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, collection, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(res, "delete document")
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
