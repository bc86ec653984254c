package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/internal/repository"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

// DocumentStore is the remote collection store a RecordStore writes through to.
type DocumentStore interface {
	Create(ctx context.Context, collection string, record *models.Record) error
	Get(ctx context.Context, collection, id string) (*models.Record, error)
	List(ctx context.Context, collection string) ([]*models.Record, error)
	Query(ctx context.Context, collection string, q models.Query) ([]*models.Record, error)
	Update(ctx context.Context, collection string, record *models.Record) error
	Delete(ctx context.Context, collection, id string) error
}

type objectStore interface {
	Upload(ctx context.Context, upload models.ImageUpload) (string, error)
}

type readStateCascade interface {
	CascadeDelete(ctx context.Context, recordID string)
}

type remoteObserver interface {
	ObserveRemoteOperation(operation, collection string, err error, duration time.Duration)
	RecordUpload(outcome string)
	AddMirrorRecords(collection string, delta int)
}

// UploadPolicy decides what happens to a write when its image cannot be uploaded.
type UploadPolicy string

const (
	// UploadAbort fails the whole write with UPLOAD_ERROR.
	UploadAbort UploadPolicy = "abort"
	// UploadContinue writes the record without the image.
	UploadContinue UploadPolicy = "continue"
)

// RecordStoreConfig tunes a RecordStore.
type RecordStoreConfig struct {
	UploadPolicy UploadPolicy
	// NewID generates record ids when the caller supplies none. Defaults to random UUIDs.
	NewID func() string
	Now   func() time.Time
}

// RecordStore mirrors remote collections for one viewer session. Every write goes to the
// remote store first and reaches the mirror only on success. Writes to the same record
// are applied in call order. A refresh of a collection excludes writes to it, so a write
// lands either before the remote listing or after the mirror swap. Mirrored records are
// never mutated; edits replace them.
type RecordStore struct {
	docs       DocumentStore
	objects    objectStore
	readStatus readStateCascade
	schemas    *models.SchemaRegistry
	validator  *validator.Validate
	logger     *zap.Logger
	metrics    remoteObserver
	config     RecordStoreConfig

	mu      sync.RWMutex
	mirrors map[string]map[string]*models.Record
	locks   *recordLocks
	guards  *collectionGuards

	reportMu sync.Mutex
	reported map[string]int
}

// NewRecordStore constructs a RecordStore. objects, readStatus and metrics may be nil.
func NewRecordStore(docs DocumentStore, objects objectStore, readStatus readStateCascade, schemas *models.SchemaRegistry, validate *validator.Validate, logger *zap.Logger, metrics remoteObserver, cfg RecordStoreConfig) *RecordStore {
	if schemas == nil {
		schemas = models.DefaultSchemas()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UploadPolicy != UploadContinue {
		cfg.UploadPolicy = UploadAbort
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &RecordStore{
		docs:       docs,
		objects:    objects,
		readStatus: readStatus,
		schemas:    schemas,
		validator:  validate,
		logger:     logger,
		metrics:    metrics,
		config:     cfg,
		mirrors:    make(map[string]map[string]*models.Record),
		locks:      newRecordLocks(),
		guards:     newCollectionGuards(),
		reported:   make(map[string]int),
	}
}

// Schema resolves the schema of a collection path.
func (s *RecordStore) Schema(collection string) (*models.Schema, error) {
	schema, err := s.schemas.Resolve(models.NormalizeCollection(collection))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "unknown collection")
	}
	return schema, nil
}

// Create validates and writes a new record, uploading its image first when one is attached.
func (s *RecordStore) Create(ctx context.Context, collection string, input models.RecordInput) (*models.Record, error) {
	collection = models.NormalizeCollection(collection)
	schema, err := s.Schema(collection)
	if err != nil {
		return nil, err
	}

	input.Category = strings.TrimSpace(input.Category)
	input.ID = strings.TrimSpace(input.ID)
	if err := s.validateRecord(schema, input.Category, input.Fields, input.Fields.Keys()); err != nil {
		return nil, err
	}
	if strings.Contains(input.ID, "/") {
		return nil, appErrors.Validation("record id must not contain '/'", "id")
	}

	id := input.ID
	if id == "" {
		id = s.config.NewID()
	}
	release := s.guards.shared(collection)
	defer release()
	unlock := s.locks.lock(collection + "/" + id)
	defer unlock()

	if _, exists := s.mirrored(collection, id); exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("record %s already exists", id))
	}
	if err := s.checkUnique(collection, schema, id, input.Fields); err != nil {
		return nil, err
	}

	imageRef, err := s.upload(ctx, collection, input.Image)
	if err != nil {
		return nil, err
	}

	now := s.config.Now()
	record := &models.Record{
		ID:         id,
		Collection: collection,
		Category:   input.Category,
		Fields:     input.Fields.Clone(),
		ImageRef:   imageRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	start := time.Now()
	err = s.docs.Create(ctx, collection, record)
	s.observe("create", collection, err, start)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentExists) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("record %s already exists", id))
		}
		return nil, s.remoteFailure("create", collection, err)
	}

	s.put(collection, record)
	return record, nil
}

// Update merges fields into an existing record. Only supplied keys are replaced.
func (s *RecordStore) Update(ctx context.Context, collection, id string, fields models.Fields, image *models.ImageUpload) (*models.Record, error) {
	collection = models.NormalizeCollection(collection)
	schema, err := s.Schema(collection)
	if err != nil {
		return nil, err
	}

	release := s.guards.shared(collection)
	defer release()
	unlock := s.locks.lock(collection + "/" + id)
	defer unlock()

	current, ok := s.mirrored(collection, id)
	if !ok {
		return nil, s.notFound(collection, id)
	}
	merged := current.Fields.Merge(fields)
	if err := s.validateRecord(schema, current.Category, merged, fields.Keys()); err != nil {
		return nil, err
	}
	if err := s.checkUnique(collection, schema, id, fields); err != nil {
		return nil, err
	}

	imageRef, err := s.upload(ctx, collection, image)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	next.Fields = merged
	if imageRef != "" {
		next.ImageRef = imageRef
	}
	next.UpdatedAt = s.config.Now()
	return s.write(ctx, collection, next)
}

// MoveCategory moves a record to another partition. No other field changes.
func (s *RecordStore) MoveCategory(ctx context.Context, collection, id, category string) (*models.Record, error) {
	collection = models.NormalizeCollection(collection)
	schema, err := s.Schema(collection)
	if err != nil {
		return nil, err
	}
	category = strings.TrimSpace(category)
	if category == "" && schema.CategoryRequired {
		return nil, appErrors.Validation(fmt.Sprintf("%s is required", schema.CategoryLabel), models.FieldCategory)
	}

	release := s.guards.shared(collection)
	defer release()
	unlock := s.locks.lock(collection + "/" + id)
	defer unlock()

	current, ok := s.mirrored(collection, id)
	if !ok {
		return nil, s.notFound(collection, id)
	}
	if current.Category == category {
		return current, nil
	}

	next := current.Clone()
	next.Category = category
	next.UpdatedAt = s.config.Now()
	return s.write(ctx, collection, next)
}

func (s *RecordStore) write(ctx context.Context, collection string, next *models.Record) (*models.Record, error) {
	start := time.Now()
	err := s.docs.Update(ctx, collection, next)
	s.observe("update", collection, err, start)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, fmt.Sprintf("record %s no longer exists remotely; refresh the collection", next.ID))
		}
		return nil, s.remoteFailure("update", collection, err)
	}
	s.put(collection, next)
	return next, nil
}

// Delete removes a record remotely, then from the mirror, then from every viewer's read state.
// A record already gone remotely counts as deleted.
func (s *RecordStore) Delete(ctx context.Context, collection, id string) error {
	collection = models.NormalizeCollection(collection)
	if _, err := s.Schema(collection); err != nil {
		return err
	}

	release := s.guards.shared(collection)
	defer release()
	unlock := s.locks.lock(collection + "/" + id)
	defer unlock()

	if _, ok := s.mirrored(collection, id); !ok {
		return s.notFound(collection, id)
	}

	start := time.Now()
	err := s.docs.Delete(ctx, collection, id)
	s.observe("delete", collection, err, start)
	if err != nil && !errors.Is(err, repository.ErrDocumentNotFound) {
		return s.remoteFailure("delete", collection, err)
	}

	s.mu.Lock()
	delete(s.mirrors[collection], id)
	size := len(s.mirrors[collection])
	s.mu.Unlock()
	s.setMirrorSize(collection, size)

	if s.readStatus != nil {
		s.readStatus.CascadeDelete(ctx, id)
	}
	return nil
}

// Refresh replaces the mirror of a collection with the remote contents and returns a
// restartable sequence over the refreshed records ordered by creation time then id.
// On failure the mirror is left as it was.
func (s *RecordStore) Refresh(ctx context.Context, collection string) (iter.Seq[*models.Record], error) {
	collection = models.NormalizeCollection(collection)
	if _, err := s.Schema(collection); err != nil {
		return nil, err
	}

	release := s.guards.exclusive(collection)
	defer release()

	start := time.Now()
	records, err := s.docs.List(ctx, collection)
	s.observe("refresh", collection, err, start)
	if err != nil {
		return nil, s.remoteFailure("refresh", collection, err)
	}

	mirror := make(map[string]*models.Record, len(records))
	snapshot := make([]*models.Record, 0, len(records))
	for _, rec := range records {
		rec = rec.Clone()
		rec.Collection = collection
		mirror[rec.ID] = rec
	}
	for _, rec := range mirror {
		snapshot = append(snapshot, rec)
	}
	sortByCreation(snapshot)

	s.mu.Lock()
	s.mirrors[collection] = mirror
	s.mu.Unlock()
	s.setMirrorSize(collection, len(mirror))

	return slices.Values(snapshot), nil
}

// Get returns a mirrored record.
func (s *RecordStore) Get(collection, id string) (*models.Record, error) {
	collection = models.NormalizeCollection(collection)
	rec, ok := s.mirrored(collection, id)
	if !ok {
		return nil, s.notFound(collection, id)
	}
	return rec, nil
}

// List returns the mirrored records of a collection ordered by creation time then id.
func (s *RecordStore) List(collection string) []*models.Record {
	collection = models.NormalizeCollection(collection)
	s.mu.RLock()
	records := make([]*models.Record, 0, len(s.mirrors[collection]))
	for _, rec := range s.mirrors[collection] {
		records = append(records, rec)
	}
	s.mu.RUnlock()
	sortByCreation(records)
	return records
}

// Loaded reports whether the collection has been mirrored by a refresh or write.
func (s *RecordStore) Loaded(collection string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.mirrors[models.NormalizeCollection(collection)]
	return ok
}

// Collections lists mirrored collection paths.
func (s *RecordStore) Collections() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.mirrors))
	for name := range s.mirrors {
		names = append(names, name)
	}
	s.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Partitions groups the mirrored collection by category.
func (s *RecordStore) Partitions(collection string) []models.Partition {
	return SortedPartitions(s.List(collection))
}

// Partition returns one category of the mirrored collection with its schema.
func (s *RecordStore) Partition(collection, category string) ([]*models.Record, *models.Schema, error) {
	schema, err := s.Schema(collection)
	if err != nil {
		return nil, nil, err
	}
	return PartitionsOf(s.List(collection))[category], schema, nil
}

// Search filters the mirrored collection, optionally restricted to one category.
func (s *RecordStore) Search(collection, query string, fields []string, category string) ([]*models.Record, error) {
	schema, err := s.Schema(collection)
	if err != nil {
		return nil, err
	}
	records := s.List(collection)
	if category != "" {
		records = PartitionsOf(records)[category]
	}
	return Filter(schema, records, query, fields)
}

// Query runs an equality predicate against the remote store. Results are not mirrored.
func (s *RecordStore) Query(ctx context.Context, collection string, q models.Query) ([]*models.Record, error) {
	collection = models.NormalizeCollection(collection)
	if _, err := s.Schema(collection); err != nil {
		return nil, err
	}
	start := time.Now()
	records, err := s.docs.Query(ctx, collection, q)
	s.observe("query", collection, err, start)
	if err != nil {
		return nil, s.remoteFailure("query", collection, err)
	}
	return records, nil
}

// RosterForTeacher finds the teacher whose uid is teacherUID and returns the students in
// that teacher's class, ordered by creation time then id.
func (s *RecordStore) RosterForTeacher(ctx context.Context, teacherUID string) (string, []*models.Record, error) {
	if strings.TrimSpace(teacherUID) == "" {
		return "", nil, appErrors.Validation("teacher uid is required", "uid")
	}
	teachers, err := s.Query(ctx, models.TeacherSchema.Name, models.Query{Equals: map[string]interface{}{"uid": teacherUID}})
	if err != nil {
		return "", nil, err
	}
	if len(teachers) == 0 || !teachers[0].HasCategory() {
		return "", nil, appErrors.Clone(appErrors.ErrNotFound, "no class assigned to this teacher")
	}
	class := teachers[0].Category
	students, err := s.Query(ctx, models.StudentSchema.Name, models.Query{Category: &class})
	if err != nil {
		return "", nil, err
	}
	sortByCreation(students)
	return class, students, nil
}

// Close drops every mirror.
func (s *RecordStore) Close() {
	s.mu.Lock()
	collections := make([]string, 0, len(s.mirrors))
	for name := range s.mirrors {
		collections = append(collections, name)
	}
	s.mirrors = make(map[string]map[string]*models.Record)
	s.mu.Unlock()
	for _, name := range collections {
		s.setMirrorSize(name, 0)
	}
}

func (s *RecordStore) mirrored(collection, id string) (*models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.mirrors[collection][id]
	return rec, ok
}

func (s *RecordStore) put(collection string, rec *models.Record) {
	s.mu.Lock()
	mirror, ok := s.mirrors[collection]
	if !ok {
		mirror = make(map[string]*models.Record)
		s.mirrors[collection] = mirror
	}
	mirror[rec.ID] = rec
	size := len(mirror)
	s.mu.Unlock()
	s.setMirrorSize(collection, size)
}

// validateRecord checks required presence on the full field set and formats on the named keys.
func (s *RecordStore) validateRecord(schema *models.Schema, category string, fields models.Fields, changed []string) error {
	var invalid []string
	if schema.CategoryRequired && category == "" {
		invalid = append(invalid, models.FieldCategory)
	}
	for _, name := range schema.Required() {
		if strings.TrimSpace(fields.String(name)) == "" {
			invalid = append(invalid, name)
		}
	}
	for _, name := range changed {
		spec, ok := schema.Field(name)
		if !ok || slices.Contains(invalid, name) {
			continue
		}
		value, _ := fields.Get(name)
		if !s.validValue(spec, value) {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		return appErrors.Validation("missing or malformed fields", invalid...)
	}
	return nil
}

func (s *RecordStore) validValue(spec models.FieldSpec, value interface{}) bool {
	if value == nil {
		return true
	}
	switch spec.Type {
	case models.FieldNumber:
		switch v := value.(type) {
		case float64, float32, int, int32, int64:
		case string:
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); v != "" && err != nil {
				return false
			}
		default:
			return false
		}
	case models.FieldList:
		switch value.(type) {
		case []interface{}, []string:
		default:
			return false
		}
	}
	text := strings.TrimSpace(models.Stringify(value))
	if spec.Format != "" && text != "" {
		if err := s.validator.Var(text, spec.Format); err != nil {
			return false
		}
	}
	return true
}

// checkUnique rejects values of unique fields already used by another mirrored record.
func (s *RecordStore) checkUnique(collection string, schema *models.Schema, id string, fields models.Fields) error {
	var taken []string
	s.mu.RLock()
	for _, name := range schema.UniqueFields() {
		value := strings.TrimSpace(fields.String(name))
		if value == "" {
			continue
		}
		for _, other := range s.mirrors[collection] {
			if other.ID != id && strings.EqualFold(strings.TrimSpace(other.Fields.String(name)), value) {
				taken = append(taken, name)
				break
			}
		}
	}
	s.mu.RUnlock()
	if len(taken) > 0 {
		err := appErrors.Clone(appErrors.ErrConflict, "value already in use")
		err.Fields = taken
		return err
	}
	return nil
}

// upload stores an attached image. Under UploadContinue a failure yields an empty reference.
func (s *RecordStore) upload(ctx context.Context, collection string, image *models.ImageUpload) (string, error) {
	if image.Empty() {
		return "", nil
	}
	if s.objects == nil {
		return s.uploadFailed(collection, errors.New("no object store configured"))
	}
	url, err := s.objects.Upload(ctx, *image)
	if err != nil {
		return s.uploadFailed(collection, err)
	}
	s.recordUpload("success")
	return url, nil
}

func (s *RecordStore) uploadFailed(collection string, err error) (string, error) {
	if s.config.UploadPolicy == UploadContinue {
		s.recordUpload("skipped")
		s.logger.Warn("image upload failed, continuing without image",
			zap.String("collection", collection),
			zap.Error(err))
		return "", nil
	}
	s.recordUpload("failed")
	return "", appErrors.WrapAs(appErrors.ErrUpload, err, "")
}

func (s *RecordStore) remoteFailure(op, collection string, err error) error {
	s.logger.Warn("remote store operation failed",
		zap.String("operation", op),
		zap.String("collection", collection),
		zap.Error(err))
	return appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, fmt.Sprintf("remote %s failed", op))
}

func (s *RecordStore) notFound(collection, id string) error {
	return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("record %s not found in %s", id, collection))
}

func (s *RecordStore) observe(op, collection string, err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveRemoteOperation(op, models.CollectionRoot(collection), err, time.Since(start))
	}
}

func (s *RecordStore) recordUpload(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordUpload(outcome)
	}
}

// setMirrorSize reports the change in mirror size so gauges sum across sessions.
func (s *RecordStore) setMirrorSize(collection string, size int) {
	if s.metrics == nil {
		return
	}
	s.reportMu.Lock()
	delta := size - s.reported[collection]
	s.reported[collection] = size
	s.reportMu.Unlock()
	s.metrics.AddMirrorRecords(models.CollectionRoot(collection), delta)
}

// collectionGuards lets writes to a collection run together while a refresh of it runs alone.
type collectionGuards struct {
	mu     sync.Mutex
	guards map[string]*sync.RWMutex
}

func newCollectionGuards() *collectionGuards {
	return &collectionGuards{guards: make(map[string]*sync.RWMutex)}
}

func (g *collectionGuards) get(collection string) *sync.RWMutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	guard, ok := g.guards[collection]
	if !ok {
		guard = &sync.RWMutex{}
		g.guards[collection] = guard
	}
	return guard
}

func (g *collectionGuards) shared(collection string) func() {
	guard := g.get(collection)
	guard.RLock()
	return guard.RUnlock
}

func (g *collectionGuards) exclusive(collection string) func() {
	guard := g.get(collection)
	guard.Lock()
	return guard.Unlock
}

// recordLocks serialises operations per record key.
type recordLocks struct {
	mu    sync.Mutex
	locks map[string]*recordLock
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

func newRecordLocks() *recordLocks {
	return &recordLocks{locks: make(map[string]*recordLock)}
}

func (l *recordLocks) lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &recordLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
