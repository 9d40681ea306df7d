package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	fsstore "wellbore/internal/infra/blob/fs"
	s3store "wellbore/internal/infra/blob/s3"
)

func drivers(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := fsstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fs,
		"s3":     s3store.NewFake(),
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			payload := []byte("temperature,fracture_gradient\n80,14\n")
			info, err := store.Put(ctx, "exports/a/dataset.csv", bytes.NewReader(payload), PutOptions{
				ContentType: "text/csv",
				Metadata:    map[string]string{"format": "csv"},
			})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != int64(len(payload)) || info.ContentType != "text/csv" {
				t.Fatalf("unexpected info %+v", info)
			}

			if _, err := store.Put(ctx, "exports/a/dataset.csv", strings.NewReader("again"), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}

			got, rc, err := store.Get(ctx, "exports/a/dataset.csv")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			if !bytes.Equal(body, payload) {
				t.Fatalf("body mismatch: %q", body)
			}
			if got.Metadata["format"] != "csv" {
				t.Fatalf("metadata lost: %+v", got.Metadata)
			}

			head, err := store.Head(ctx, "exports/a/dataset.csv")
			if err != nil || head.Size != int64(len(payload)) {
				t.Fatalf("head: %+v %v", head, err)
			}

			for _, key := range []string{"exports/b/line.png", "exports/a/bar.svg", "other/x"} {
				if _, err := store.Put(ctx, key, strings.NewReader(key), PutOptions{}); err != nil {
					t.Fatalf("put %s: %v", key, err)
				}
			}
			list, err := store.List(ctx, "exports/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			keys := make([]string, len(list))
			for i, item := range list {
				keys[i] = item.Key
			}
			if diff := cmp.Diff([]string{"exports/a/bar.svg", "exports/a/dataset.csv", "exports/b/line.png"}, keys); diff != "" {
				t.Fatalf("list (-want +got):\n%s", diff)
			}

			existed, err := store.Delete(ctx, "exports/a/dataset.csv")
			if err != nil || !existed {
				t.Fatalf("delete: %v %v", existed, err)
			}
			existed, err = store.Delete(ctx, "exports/a/dataset.csv")
			if err != nil || existed {
				t.Fatalf("second delete: %v %v", existed, err)
			}
			if _, _, err := store.Get(ctx, "exports/a/dataset.csv"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := store.Head(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound from head, got %v", err)
			}
		})
	}
}

func TestConcurrentPutSameKeyHasOneWinner(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := store.Put(context.Background(), "race", strings.NewReader("x"), PutOptions{}); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			if name != "s3" && wins != 1 {
				t.Fatalf("expected exactly one winner, got %d", wins)
			}
			if wins < 1 {
				t.Fatalf("expected a winner")
			}
		})
	}
}

func TestPresignURL(t *testing.T) {
	ctx := context.Background()
	stores := drivers(t)
	if _, err := stores["memory"].PresignURL(ctx, "k", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("memory presign: %v", err)
	}
	u, err := stores["fs"].PresignURL(ctx, "exports/a/b.csv", SignedURLOptions{})
	if err != nil || !strings.HasPrefix(u, "file://") {
		t.Fatalf("fs presign: %s %v", u, err)
	}
	if _, err := stores["fs"].PresignURL(ctx, "k", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("fs presign put: %v", err)
	}
	u, err = stores["s3"].PresignURL(ctx, "exports/a/b.csv", SignedURLOptions{})
	if err != nil || !strings.Contains(u, "X-Amz-Signature") {
		t.Fatalf("s3 presign: %s %v", u, err)
	}
}

func TestFilesystemRejectsUnsafeKeys(t *testing.T) {
	store, err := fsstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	for _, key := range []string{"", "/abs", "../escape", "a/../../b", "x.meta"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || store.Driver() != DriverMemory {
		t.Fatalf("memory: %v", err)
	}
	store, err = Open(ctx, Config{FSRoot: t.TempDir()})
	if err != nil || store.Driver() != DriverFilesystem {
		t.Fatalf("fs: %v", err)
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	if _, err := Open(ctx, Config{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	store, err = Open(ctx, Config{Driver: DriverS3, S3: S3Config{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}})
	if err != nil || store.Driver() != DriverS3 {
		t.Fatalf("s3: %v", err)
	}
	if DefaultConfig().Validate() != nil {
		t.Fatalf("default config invalid")
	}
}
