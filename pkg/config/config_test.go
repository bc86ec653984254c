package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, StoreBackendMemory, cfg.Store.Backend)
	assert.Equal(t, UploadPolicyAbort, cfg.Upload.FailurePolicy)
	assert.Equal(t, int64(5*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, []string{"students", "teachers", "announcements"}, cfg.Session.Collections)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, time.Hour, cfg.JWT.PasswordResetExpiry)
}

func TestOverridesAndFallbacks(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORE_BACKEND", "Postgres")
	v.Set("UPLOAD_FAILURE_POLICY", "sometimes")
	v.Set("OBJECT_STORE_BACKEND", "s3")
	v.Set("OBJECT_STORE_PUBLIC_URL", "https://cdn.example.com/")
	v.Set("RETRY_MULTIPLIER", 0.5)
	v.Set("JWT_EXPIRATION", "not-a-duration")

	cfg := fromViper(v)
	assert.Equal(t, StoreBackendPostgres, cfg.Store.Backend)
	assert.Equal(t, UploadPolicyAbort, cfg.Upload.FailurePolicy)
	assert.Equal(t, ObjectStoreS3, cfg.ObjectStore.Backend)
	assert.Equal(t, "https://cdn.example.com", cfg.ObjectStore.PublicBaseURL)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
}
