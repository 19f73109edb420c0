package storage

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"better-share/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKeyRoundTrip(t *testing.T) {
	key := ObjectKey("abc12345")
	assert.Equal(t, "sessions/abc12345.json", key)

	id, ok := ShareIDFromKey(key)
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)

	id, ok = ShareIDFromKey("/" + key)
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)

	for _, bad := range []string{"", "sessions/.json", "other/abc.json", "sessions/a/b.json", "sessions/abc.txt"} {
		_, ok := ShareIDFromKey(bad)
		assert.False(t, ok, bad)
	}
}

func TestURLSigner(t *testing.T) {
	signer, err := NewURLSigner("test-secret")
	require.NoError(t, err)

	token, err := signer.Sign("sessions/a.json", http.MethodPut, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		key     string
		method  string
		wantErr bool
	}{
		{"Valid token", token, "sessions/a.json", http.MethodPut, false},
		{"Other key", token, "sessions/b.json", http.MethodPut, true},
		{"Other method", token, "sessions/a.json", http.MethodDelete, true},
		{"Empty token", "", "sessions/a.json", http.MethodPut, true},
		{"Invalid format", "invalid.token.format", "sessions/a.json", http.MethodPut, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := signer.Verify(tt.token, tt.key, tt.method)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidUploadToken)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestURLSignerRejectsExpiredAndForeignTokens(t *testing.T) {
	signer, err := NewURLSigner("test-secret")
	require.NoError(t, err)

	expired, err := signer.Sign("sessions/a.json", http.MethodPut, -time.Minute)
	require.NoError(t, err)
	assert.Error(t, signer.Verify(expired, "sessions/a.json", http.MethodPut))

	other, err := NewURLSigner("another-secret")
	require.NoError(t, err)
	foreign, err := other.Sign("sessions/a.json", http.MethodPut, time.Minute)
	require.NoError(t, err)
	assert.Error(t, signer.Verify(foreign, "sessions/a.json", http.MethodPut))
}

func setupLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	signer, err := NewURLSigner("test-secret")
	require.NoError(t, err)
	store, err := NewLocalStore(t.TempDir(), "http://example.test/", signer)
	require.NoError(t, err)
	return store
}

func TestLocalStorePresignPut(t *testing.T) {
	store := setupLocalStore(t)

	raw, err := store.PresignPut(context.Background(), "sessions/abc.json", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "example.test", u.Host)
	assert.Equal(t, "/api/storage/sessions/abc.json", u.Path)
	assert.NoError(t, store.VerifyUpload("sessions/abc.json", u.Query().Get("token")))

	_, err = store.PresignPut(context.Background(), "../etc/passwd", time.Hour)
	assert.Error(t, err)
}

func TestLocalStorePutGetDelete(t *testing.T) {
	store := setupLocalStore(t)
	ctx := context.Background()
	key := ObjectKey("abc")

	_, err := store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	body := []byte(`{"shareId":"abc","messages":[]}`)
	require.NoError(t, store.Put(ctx, key, body))

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, body, data)

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Join(store.dir, "sessions"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), ".upload-"))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// Deleting a missing object is not an error
	assert.NoError(t, store.Delete(ctx, key))
}

func TestS3StorePresignPutIsOffline(t *testing.T) {
	store, err := NewS3Store(config.StorageConfig{
		Endpoint:        "http://localhost:9000",
		Bucket:          "shares",
		Region:          "us-east-1",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio-secret",
	})
	require.NoError(t, err)

	raw, err := store.PresignPut(context.Background(), ObjectKey("abc"), time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Contains(t, u.Path, "sessions/abc.json")
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestNewStoreRejectsUnknownBackend(t *testing.T) {
	_, err := New(config.StorageConfig{Backend: "ftp"}, "http://localhost")
	assert.Error(t, err)

	_, err = NewS3Store(config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)
}
