package blobstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentKey(t *testing.T) {
	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	a := ContentKey("photos", ".PNG", []byte("abc"), now)
	b := ContentKey("/photos/", "png", []byte("abc"), now)
	c := ContentKey("photos", "png", []byte("abd"), now)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "photos/2025/"))
	assert.True(t, strings.HasSuffix(a, ".png"))
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(a, "photos/2025/"), ".png"), 32)

	assert.True(t, strings.HasPrefix(ContentKey("", "", nil, now), "misc/2025/"))
	assert.True(t, strings.HasSuffix(ContentKey("", "", nil, now), ".bin"))
}

func TestExtensionForMime(t *testing.T) {
	assert.Equal(t, "png", ExtensionForMime("image/png"))
	assert.Equal(t, "jpg", ExtensionForMime("IMAGE/JPEG"))
	assert.Equal(t, "pdf", ExtensionForMime("application/pdf"))
	assert.Equal(t, "bin", ExtensionForMime("text/plain"))
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "docs/2025/a.pdf", "application/pdf", []byte("%PDF-1.4")))

	rc, err := store.Get(ctx, "docs/2025/a.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, store.Delete(ctx, "docs/2025/a.pdf"))
	require.NoError(t, store.Delete(ctx, "docs/2025/a.pdf"))

	_, err = store.Get(ctx, "docs/2025/a.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalRejectsTraversal(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../x", "a/../../x", "/etc/passwd", "a//b", `a\b`} {
		assert.Error(t, store.Put(context.Background(), key, "", []byte("x")), key)
	}
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	keys    []string
}

func (f *fakeStorage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Header.Get("apikey") != "service-key" || r.Header.Get("Authorization") != "Bearer service-key" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid key"}`))
		return
	}
	const prefix = "/storage/v1/object/evidence"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")
	switch r.Method {
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		_, _ = w.Write([]byte(`{"Key":"evidence/` + key + `"}`))
	case http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found"}`))
			return
		}
		_, _ = w.Write(data)
	case http.MethodDelete:
		var payload struct {
			Prefixes []string `json:"prefixes"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		for _, p := range payload.Prefixes {
			f.keys = append(f.keys, p)
			delete(f.objects, p)
		}
		_, _ = w.Write([]byte(`[]`))
	}
}

func TestSupabaseRoundTrip(t *testing.T) {
	fake := &fakeStorage{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store, err := NewSupabase(SupabaseConfig{URL: srv.URL + "/", ServiceKey: "service-key", Bucket: "evidence"})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "photos/2025/abc.png", "image/png", []byte("png-bytes")))

	rc, err := store.Get(ctx, "photos/2025/abc.png")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, store.Delete(ctx, "photos/2025/abc.png"))
	assert.Equal(t, []string{"photos/2025/abc.png"}, fake.keys)

	_, err = store.Get(ctx, "photos/2025/abc.png")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, srv.URL+"/storage/v1/object/public/evidence/photos/2025/abc.png", store.PublicURL("photos/2025/abc.png"))
}

func TestSupabaseErrors(t *testing.T) {
	srv := httptest.NewServer(&fakeStorage{objects: map[string][]byte{}})
	defer srv.Close()

	store, err := NewSupabase(SupabaseConfig{URL: srv.URL, ServiceKey: "wrong", Bucket: "evidence"})
	require.NoError(t, err)
	err = store.Put(context.Background(), "a/b.png", "image/png", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key")

	_, err = NewSupabase(SupabaseConfig{URL: srv.URL, Bucket: "evidence"})
	assert.Error(t, err)
}
