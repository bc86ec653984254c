package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/educore-sync/api/swagger"
	"github.com/noah-isme/educore-sync/internal/handler"
	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/internal/repository"
	"github.com/noah-isme/educore-sync/internal/service"
	"github.com/noah-isme/educore-sync/pkg/cache"
	"github.com/noah-isme/educore-sync/pkg/config"
	"github.com/noah-isme/educore-sync/pkg/database"
	"github.com/noah-isme/educore-sync/pkg/database/migrations"
	"github.com/noah-isme/educore-sync/pkg/logger"
	"github.com/noah-isme/educore-sync/pkg/retry"
	"github.com/noah-isme/educore-sync/pkg/storage"
)

// @title EduCore Sync API
// @version 1.0.0
// @description Record store, partitions, search and read status for EduCore school records
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type keyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

type imageUploader interface {
	Upload(ctx context.Context, upload models.ImageUpload) (string, error)
}

type userStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	checks := map[string]handler.ReadinessCheck{}

	var db *sqlx.DB
	if cfg.Store.Backend == config.StoreBackendPostgres {
		conn, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer conn.Close()
		if cfg.Database.AutoMigrate {
			if err := migrations.Up(conn.DB); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		db = conn
		checks["postgres"] = func(ctx context.Context) error { return conn.PingContext(ctx) }
		checks["schema"] = func(context.Context) error { return schemaClean(conn) }
	}

	var kv keyValueStore = repository.NewMemoryKVRepository()
	if cfg.Store.KVBackend == "redis" {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		redisKV := repository.NewRedisKVRepository(client, cfg.Store.KVKeyPrefix, logger.Component(logr, "kv"))
		defer redisKV.Close() //nolint:errcheck
		kv = redisKV
		checks["redis"] = func(ctx context.Context) error { return pingRedis(ctx, client) }
	}

	var docs service.DocumentStore
	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		docs = repository.NewPostgresDocumentRepository(db)
	case config.StoreBackendKV:
		docs = repository.NewKVDocumentRepository(kv)
	default:
		docs = repository.NewMemoryDocumentRepository()
	}

	var users userStore = repository.NewMemoryUserRepository()
	if db != nil {
		users = repository.NewUserRepository(db)
	}

	objects, files, signer, err := newObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	policy := retry.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
		Multiplier:     cfg.Retry.Multiplier,
	}

	readStatus := service.NewReadStatusService(service.NewReadTracker(), kv, logger.Component(logr, "read-status"))
	schemas := models.DefaultSchemas()
	storeLogger := logger.Component(logr, "record-store")
	newStore := func() *service.RecordStore {
		return service.NewRecordStore(docs, objects, readStatus, schemas, validate, storeLogger, metrics, service.RecordStoreConfig{
			UploadPolicy: service.UploadPolicy(cfg.Upload.FailurePolicy),
		})
	}

	sessions := service.NewSessionManager(newStore, readStatus, metrics, logger.Component(logr, "sessions"), service.SessionConfig{
		Collections: cfg.Session.Collections,
		Workers:     cfg.Session.RefreshWorkers,
		Retry:       policy,
	})
	sessions.Start(ctx)
	defer sessions.Stop()

	authLogger := logger.Component(logr, "auth")
	auth := service.NewAuthService(users, service.LogMailer{Logger: authLogger}, validate, authLogger, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		ResetTokenExpiry:  cfg.JWT.PasswordResetExpiry,
		Issuer:            "educore-sync",
	})
	unsubscribe := auth.OnAuthChange(func(viewerID string, viewer *models.Viewer) {
		authLogger.Info("auth state changed", zap.String("viewer_id", viewerID), zap.Bool("signed_in", viewer != nil))
	})
	defer unsubscribe()

	h := routeHandlers{
		auth:       handler.NewAuthHandler(auth, sessions),
		records:    handler.NewRecordHandler(sessions, policy, cfg.Upload.MaxBytes, logger.Component(logr, "records")),
		readStatus: handler.NewReadStatusHandler(readStatus, sessions, policy),
		metrics:    handler.NewMetricsHandler(metrics, checks),
	}
	if cfg.Exports.Enabled {
		h.exports = handler.NewExportHandler(service.NewRosterExportService(nil, nil, logger.Component(logr, "exports")), sessions, policy)
	}
	if files != nil {
		h.files = handler.NewFileHandler(signer, files)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, logr, auth, metrics, h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Store.Backend, "objects", cfg.ObjectStore.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newObjectStore returns the image uploader and, for the local backend, the files and
// signer that back the download route.
func newObjectStore(ctx context.Context, cfg *config.Config) (imageUploader, *storage.LocalStorage, *storage.SignedURLSigner, error) {
	if cfg.ObjectStore.Backend == config.ObjectStoreS3 {
		bucket, err := storage.NewS3Storage(ctx, cfg.ObjectStore.S3)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return repository.NewS3ObjectRepository(bucket, cfg.Upload.MaxBytes), nil, nil, nil
	}

	files, err := storage.NewLocalStorage(cfg.ObjectStore.Dir)
	if err != nil {
		return nil, nil, nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.ObjectStore.SignedURLSecret, cfg.ObjectStore.SignedURLTTL)
	return repository.NewLocalObjectRepository(files, signer, cfg.ObjectStore.PublicBaseURL, cfg.Upload.MaxBytes), files, signer, nil
}

func schemaClean(db *sqlx.DB) error {
	version, dirty, err := migrations.Version(db.DB)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}
	return nil
}

func pingRedis(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
