package dataset

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pkg/errors"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDiscoverShardsSortsAndFilters(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "train", "shard-000002.tar"))
	touch(t, filepath.Join(root, "shard-000010.tar"))
	touch(t, filepath.Join(root, "shard-12.tar"))
	touch(t, filepath.Join(root, ".cache", "shard-000001.tar"))
	touch(t, filepath.Join(root, "labels.txt"))

	got, err := DiscoverShards(root)
	if err != nil {
		t.Fatalf("DiscoverShards: %v", err)
	}
	want := []string{
		filepath.Join(root, "shard-000010.tar"),
		filepath.Join(root, "train", "shard-000002.tar"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("shards = %v, want %v", got, want)
	}
}

func TestDiscoverShardsEmptyRoot(t *testing.T) {
	if _, err := DiscoverShards(t.TempDir()); !errors.Is(err, ErrNoShards) {
		t.Fatalf("expected ErrNoShards, got %v", err)
	}
}

func TestDiscoverShardsMissingRoot(t *testing.T) {
	if _, err := DiscoverShards(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatalf("expected error for missing root")
	}
}
