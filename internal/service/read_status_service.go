package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/educore-sync/internal/models"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

type readStateKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

const readStatePrefix = "readStatus_"

// ReadStateKey is the key a viewer's read ids are persisted under.
func ReadStateKey(viewerID string) string {
	return readStatePrefix + viewerID
}

// ReadStatusService persists a ReadTracker to the key-value store so read state
// survives restarts. The tracker stays the source of truth while running.
type ReadStatusService struct {
	tracker *ReadTracker
	kv      readStateKV
	logger  *zap.Logger
}

// NewReadStatusService constructs a ReadStatusService. kv may be nil to keep state in memory only.
func NewReadStatusService(tracker *ReadTracker, kv readStateKV, logger *zap.Logger) *ReadStatusService {
	if tracker == nil {
		tracker = NewReadTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadStatusService{tracker: tracker, kv: kv, logger: logger}
}

// Tracker exposes the underlying tracker.
func (s *ReadStatusService) Tracker() *ReadTracker {
	return s.tracker
}

// IsRead reports whether the viewer has read the record.
func (s *ReadStatusService) IsRead(viewerID, recordID string) bool {
	return s.tracker.IsRead(viewerID, recordID)
}

// UnreadCount counts records the viewer has not read.
func (s *ReadStatusService) UnreadCount(viewerID string, records []*models.Record) int {
	return s.tracker.UnreadCount(viewerID, records)
}

// MarkRead flags the record read and persists the viewer's state. Repeating a call after a
// persistence failure writes the state again.
func (s *ReadStatusService) MarkRead(ctx context.Context, viewerID, recordID string) error {
	var missing []string
	if strings.TrimSpace(viewerID) == "" {
		missing = append(missing, "viewer_id")
	}
	if strings.TrimSpace(recordID) == "" {
		missing = append(missing, "record_id")
	}
	if len(missing) > 0 {
		return appErrors.Validation("viewer and record are required", missing...)
	}
	s.tracker.MarkRead(viewerID, recordID)
	return s.persist(ctx, viewerID)
}

// Load restores a viewer's persisted read state into the tracker.
func (s *ReadStatusService) Load(ctx context.Context, viewerID string) error {
	if s.kv == nil {
		return nil
	}
	raw, err := s.kv.Get(ctx, ReadStateKey(viewerID))
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil
		}
		return appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "failed to load read state")
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return appErrors.WrapAs(appErrors.ErrInternal, err, "corrupt read state")
	}
	s.tracker.Restore(viewerID, ids)
	return nil
}

// CascadeDelete drops the record from every viewer, loaded or not. Viewers held by the
// tracker are re-persisted from memory; every other persisted snapshot holding the id is
// rewritten in place. Persistence failures are logged; the in-memory cascade always completes.
func (s *ReadStatusService) CascadeDelete(ctx context.Context, recordID string) {
	persisted := make(map[string]bool)
	for _, viewerID := range s.tracker.CascadeDelete(recordID) {
		persisted[viewerID] = true
		if err := s.persist(ctx, viewerID); err != nil {
			s.logger.Warn("failed to persist read state after cascade",
				zap.String("viewer_id", viewerID),
				zap.String("record_id", recordID),
				zap.Error(err))
		}
	}
	if s.kv == nil {
		return
	}

	keys, err := s.kv.Keys(ctx, readStatePrefix+"*")
	if err != nil {
		s.logger.Warn("failed to list persisted read state",
			zap.String("record_id", recordID),
			zap.Error(err))
		return
	}
	for _, key := range keys {
		viewerID := strings.TrimPrefix(key, readStatePrefix)
		if persisted[viewerID] {
			continue
		}
		if err := s.scrub(ctx, viewerID, recordID); err != nil {
			s.logger.Warn("failed to scrub persisted read state",
				zap.String("viewer_id", viewerID),
				zap.String("record_id", recordID),
				zap.Error(err))
		}
	}
}

// scrub removes recordID from a persisted snapshot, deleting the key once it is empty.
func (s *ReadStatusService) scrub(ctx context.Context, viewerID, recordID string) error {
	key := ReadStateKey(viewerID)
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil
		}
		return err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return err
	}
	kept := slices.DeleteFunc(ids, func(id string) bool { return id == recordID })
	switch {
	case len(kept) == len(ids):
		return nil
	case len(kept) == 0:
		return s.kv.Delete(ctx, key)
	}
	payload, err := json.Marshal(kept)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, key, string(payload))
}

func (s *ReadStatusService) persist(ctx context.Context, viewerID string) error {
	if s.kv == nil {
		return nil
	}
	payload, err := json.Marshal(s.tracker.Snapshot(viewerID))
	if err != nil {
		return appErrors.WrapAs(appErrors.ErrInternal, err, "encode read state")
	}
	if err := s.kv.Set(ctx, ReadStateKey(viewerID), string(payload)); err != nil {
		return appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "failed to persist read state")
	}
	return nil
}
