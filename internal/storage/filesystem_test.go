package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreCreateIsExclusive(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Create(ctx, BucketGenerated, "result_a.png", []byte("first"), "image/png"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, BucketGenerated, "result_a.png", []byte("second"), "image/png"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, BucketGenerated, "result_a.png"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(raw) != "first" {
		t.Fatalf("existing object overwritten: %q", raw)
	}
}

func TestFileStoreOpenAndDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Create(ctx, BucketImages, "cat.jpg", []byte("jpeg-bytes"), "image/jpeg"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	obj, err := store.Open(ctx, BucketImages, "cat.jpg")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body, _ := io.ReadAll(obj.Body)
	obj.Body.Close()
	if string(body) != "jpeg-bytes" || obj.Size != int64(len("jpeg-bytes")) {
		t.Fatalf("unexpected object: %q size=%d", body, obj.Size)
	}
	if obj.ContentType != "image/jpeg" {
		t.Fatalf("content type = %q", obj.ContentType)
	}

	if err := store.Delete(ctx, BucketImages, "cat.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Open(ctx, BucketImages, "cat.jpg"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if err := store.Delete(ctx, BucketImages, "cat.jpg"); err != nil {
		t.Fatalf("Delete of missing object: %v", err)
	}
}

func TestFileStoreRejectsBadNames(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	cases := []struct{ bucket, name string }{
		{"other", "a.png"},
		{BucketImages, "../escape.png"},
		{BucketImages, "nested/a.png"},
		{BucketImages, ".."},
		{BucketImages, ""},
	}
	for _, tc := range cases {
		if err := store.Create(ctx, tc.bucket, tc.name, []byte("x"), ""); err == nil {
			t.Fatalf("Create(%q, %q) expected error", tc.bucket, tc.name)
		}
	}
}

func TestPublicPathRoundTrip(t *testing.T) {
	ref := PublicPath("/uploads/", BucketGenerated, "result_1.png")
	if ref != "/uploads/generated/result_1.png" {
		t.Fatalf("PublicPath = %q", ref)
	}
	bucket, name, ok := SplitPublicPath("/uploads", ref)
	if !ok || bucket != BucketGenerated || name != "result_1.png" {
		t.Fatalf("SplitPublicPath = %q %q %v", bucket, name, ok)
	}
	for _, bad := range []string{"/other/generated/a.png", "/uploads/secret/a.png", "/uploads/images/", "/uploads/images/a/b.png"} {
		if _, _, ok := SplitPublicPath("/uploads", bad); ok {
			t.Fatalf("SplitPublicPath(%q) accepted", bad)
		}
	}
}
