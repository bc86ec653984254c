package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/internal/repository"
	"github.com/noah-isme/educore-sync/pkg/retry"
)

type flakyListDocs struct {
	*repository.MemoryDocumentRepository
	failures int32
	calls    int32
}

func (d *flakyListDocs) List(ctx context.Context, collection string) ([]*models.Record, error) {
	atomic.AddInt32(&d.calls, 1)
	if atomic.AddInt32(&d.failures, -1) >= 0 {
		return nil, errors.New("connection reset by peer")
	}
	return d.MemoryDocumentRepository.List(ctx, collection)
}

func newTestSessionManager(t *testing.T, docs DocumentStore, kv *repository.MemoryKVRepository) (*SessionManager, *ReadStatusService, *MetricsService) {
	t.Helper()
	readStatus := NewReadStatusService(NewReadTracker(), kv, zap.NewNop())
	metrics := NewMetricsService()
	manager := NewSessionManager(func() *RecordStore {
		return NewRecordStore(docs, nil, readStatus, nil, nil, zap.NewNop(), metrics, RecordStoreConfig{})
	}, readStatus, metrics, zap.NewNop(), SessionConfig{
		Collections: []string{"students", "announcements"},
		Workers:     2,
		Retry:       retry.Policy{MaxAttempts: 3, InitialBackoff: 5 * time.Millisecond, MaxBackoff: 10 * time.Millisecond, Multiplier: 2},
	})
	manager.Start(context.Background())
	t.Cleanup(manager.Stop)
	return manager, readStatus, metrics
}

func TestSessionManagerOpenRefreshesCollections(t *testing.T) {
	ctx := context.Background()
	docs := repository.NewMemoryDocumentRepository()
	require.NoError(t, docs.Create(ctx, "students", &models.Record{ID: "s1", Category: "JHS 1", Fields: models.NewFields("name", "Ama"), CreatedAt: time.Now().UTC()}))
	manager, _, metrics := newTestSessionManager(t, docs, repository.NewMemoryKVRepository())

	sess, err := manager.Open(ctx, models.Viewer{ID: "v1", Role: models.RoleAdmin})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sess.Store.Loaded("students") && sess.Store.Loaded("announcements")
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, sess.Store.List("students"), 1)

	again, err := manager.Open(ctx, models.Viewer{ID: "v1"})
	require.NoError(t, err)
	assert.Same(t, sess, again)
	assert.Equal(t, 1, manager.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.sessions))
}

func TestSessionManagerRetriesFailedRefresh(t *testing.T) {
	docs := &flakyListDocs{MemoryDocumentRepository: repository.NewMemoryDocumentRepository(), failures: 2}
	manager, _, _ := newTestSessionManager(t, docs, repository.NewMemoryKVRepository())

	sess, err := manager.Open(context.Background(), models.Viewer{ID: "v1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sess.Store.Loaded("students") && sess.Store.Loaded("announcements")
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&docs.calls), int32(4))
}

func TestSessionManagerRestoresReadState(t *testing.T) {
	ctx := context.Background()
	kv := repository.NewMemoryKVRepository()
	require.NoError(t, kv.Set(ctx, ReadStateKey("v1"), `["a1","a2"]`))
	manager, readStatus, _ := newTestSessionManager(t, repository.NewMemoryDocumentRepository(), kv)

	_, err := manager.Open(ctx, models.Viewer{ID: "v1"})
	require.NoError(t, err)

	assert.True(t, readStatus.IsRead("v1", "a1"))
	assert.True(t, readStatus.IsRead("v1", "a2"))
}

func TestSessionManagerCloseDropsMirrors(t *testing.T) {
	ctx := context.Background()
	manager, _, metrics := newTestSessionManager(t, repository.NewMemoryDocumentRepository(), repository.NewMemoryKVRepository())

	sess, err := manager.Open(ctx, models.Viewer{ID: "v1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sess.Store.Loaded("students") }, time.Second, 5*time.Millisecond)

	manager.Close("v1")
	manager.Close("v1")

	_, ok := manager.Get("v1")
	assert.False(t, ok)
	assert.Equal(t, 0, manager.Count())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.sessions))

	reopened, err := manager.Open(ctx, models.Viewer{ID: "v1"})
	require.NoError(t, err)
	assert.NotSame(t, sess, reopened)
}

func TestSessionManagerRequiresViewerID(t *testing.T) {
	manager, _, _ := newTestSessionManager(t, repository.NewMemoryDocumentRepository(), repository.NewMemoryKVRepository())

	_, err := manager.Open(context.Background(), models.Viewer{})
	assert.Error(t, err)
}
