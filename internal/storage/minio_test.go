package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// fakeS3 answers the HEAD and PUT calls issued by Create.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodHead:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestMinIOStoreCreateIsExclusive(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store, err := NewMinIOStore(MinIOConfig{
		Endpoint:     srv.URL,
		AccessKey:    "minio",
		SecretKey:    "minio123",
		Region:       "us-east-1",
		BucketPrefix: "pets-",
	})
	if err != nil {
		t.Fatalf("NewMinIOStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Create(ctx, BucketGenerated, "result_1.png", []byte("png"), "image/png"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := fake.objects["/pets-generated/result_1.png"]; !ok {
		t.Fatalf("object stored under unexpected key: %v", fake.objects)
	}
	if err := store.Create(ctx, BucketGenerated, "result_1.png", []byte("other"), "image/png"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestNewMinIOStoreRequiresEndpoint(t *testing.T) {
	if _, err := NewMinIOStore(MinIOConfig{}); err == nil {
		t.Fatalf("expected error without endpoint")
	}
	if err := (&MinIOStore{}).Create(context.Background(), "unknown", "a.png", nil, ""); !errors.Is(err, ErrUnknownBucket) {
		t.Fatalf("expected ErrUnknownBucket, got %v", err)
	}
}
