package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/pkg/jobs"
	"github.com/noah-isme/educore-sync/pkg/retry"
)

// JobKindRefresh refreshes one collection of one viewer session.
const JobKindRefresh = "refresh"

type sessionGauge interface {
	SessionOpened()
	SessionClosed()
}

type readStateLoader interface {
	Load(ctx context.Context, viewerID string) error
}

// Session is the state a signed-in viewer owns: the viewer and its collection mirrors.
type Session struct {
	Viewer   models.Viewer
	Store    *RecordStore
	OpenedAt time.Time
}

// SessionConfig tunes a SessionManager.
type SessionConfig struct {
	// Collections are refreshed in the background when a session opens.
	Collections []string
	Workers     int
	Retry       retry.Policy
}

// SessionManager owns viewer sessions. A session is created on sign-in or first use
// and dropped on sign-out; nothing about a viewer outlives its session except read state.
type SessionManager struct {
	newStore   func() *RecordStore
	readStatus readStateLoader
	metrics    sessionGauge
	logger     *zap.Logger
	config     SessionConfig
	queue      *jobs.Queue

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager constructs a SessionManager. newStore builds the record store of each new session.
func NewSessionManager(newStore func() *RecordStore, readStatus readStateLoader, metrics sessionGauge, logger *zap.Logger, cfg SessionConfig) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	m := &SessionManager{
		newStore:   newStore,
		readStatus: readStatus,
		metrics:    metrics,
		logger:     logger,
		config:     cfg,
		sessions:   make(map[string]*Session),
	}
	m.queue = jobs.NewQueue("session-refresh", m.handleRefresh, jobs.QueueConfig{
		Workers: cfg.Workers,
		Retry:   cfg.Retry,
		Logger:  logger,
		OnGiveUp: func(job jobs.Job, err error) {
			logger.Error("background refresh abandoned",
				zap.String("viewer_id", job.ViewerID),
				zap.String("collection", job.Collection),
				zap.Int("attempts", job.Attempt),
				zap.Error(err))
		},
	})
	return m
}

// Start runs the background refresh workers.
func (m *SessionManager) Start(ctx context.Context) {
	m.queue.Start(ctx)
}

// Stop halts the workers and closes every session.
func (m *SessionManager) Stop() {
	m.queue.Stop()
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, sess := range sessions {
		sess.Store.Close()
		if m.metrics != nil {
			m.metrics.SessionClosed()
		}
	}
}

// Open returns the viewer's session, creating it when absent. A new session restores the
// viewer's read state and schedules refreshes of the configured collections.
func (m *SessionManager) Open(ctx context.Context, viewer models.Viewer) (*Session, error) {
	if viewer.ID == "" {
		return nil, errors.New("viewer id is required")
	}

	m.mu.Lock()
	if sess, ok := m.sessions[viewer.ID]; ok {
		m.mu.Unlock()
		return sess, nil
	}
	sess := &Session{Viewer: viewer, Store: m.newStore(), OpenedAt: time.Now().UTC()}
	m.sessions[viewer.ID] = sess
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionOpened()
	}
	if m.readStatus != nil {
		if err := m.readStatus.Load(ctx, viewer.ID); err != nil {
			m.logger.Warn("failed to restore read state", zap.String("viewer_id", viewer.ID), zap.Error(err))
		}
	}
	for _, collection := range m.config.Collections {
		job := jobs.Job{
			ID:         uuid.NewString(),
			Kind:       JobKindRefresh,
			ViewerID:   viewer.ID,
			Collection: collection,
		}
		if err := m.queue.Enqueue(job); err != nil {
			m.logger.Warn("refresh not scheduled", zap.String("viewer_id", viewer.ID), zap.String("collection", collection), zap.Error(err))
		}
	}

	m.logger.Info("session opened", zap.String("viewer_id", viewer.ID), zap.String("role", string(viewer.Role)))
	return sess, nil
}

// Get returns an open session.
func (m *SessionManager) Get(viewerID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[viewerID]
	return sess, ok
}

// Close drops the viewer's session and its mirrors. Closing an absent session is a no-op.
func (m *SessionManager) Close(viewerID string) {
	m.mu.Lock()
	sess, ok := m.sessions[viewerID]
	delete(m.sessions, viewerID)
	m.mu.Unlock()
	if !ok {
		return
	}
	sess.Store.Close()
	if m.metrics != nil {
		m.metrics.SessionClosed()
	}
	m.logger.Info("session closed", zap.String("viewer_id", viewerID))
}

// Count returns the number of open sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) handleRefresh(ctx context.Context, job jobs.Job) error {
	if job.Kind != JobKindRefresh {
		return fmt.Errorf("unsupported job kind %q", job.Kind)
	}
	sess, ok := m.Get(job.ViewerID)
	if !ok {
		return nil
	}
	records, err := sess.Store.Refresh(ctx, job.Collection)
	if err != nil {
		return err
	}
	count := 0
	for range records {
		count++
	}
	m.logger.Debug("collection refreshed",
		zap.String("viewer_id", job.ViewerID),
		zap.String("collection", job.Collection),
		zap.Int("records", count),
		zap.Int("attempt", job.Attempt))
	return nil
}
