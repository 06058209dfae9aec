package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiscoverShardsOrdersByIndex(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "z", "shard-000000.tar"))
	mustWrite(t, filepath.Join(dir, "a", "shard-000002.tar"))
	mustWrite(t, filepath.Join(dir, "shard-000001.tar"))
	mustWrite(t, filepath.Join(dir, "ignore.txt"))
	mustWrite(t, filepath.Join(dir, "shard-1.tar"))

	shards, err := DiscoverShards(dir)
	if err != nil {
		t.Fatalf("DiscoverShards error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "z", "shard-000000.tar"),
		filepath.Join(dir, "shard-000001.tar"),
		filepath.Join(dir, "a", "shard-000002.tar"),
	}
	if len(shards) != len(want) {
		t.Fatalf("expected %d shards, got %d: %v", len(want), len(shards), shards)
	}
	for i, shard := range want {
		if shards[i] != shard {
			t.Fatalf("shard[%d]=%s want %s", i, shards[i], shard)
		}
	}
}

func TestDiscoverShardsSkipsHiddenDirs(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "shard-000000.tar"))
	mustWrite(t, filepath.Join(dir, ".cache", "shard-000001.tar"))

	shards, err := DiscoverShards(dir)
	if err != nil {
		t.Fatalf("DiscoverShards error: %v", err)
	}
	if len(shards) != 1 || shards[0] != filepath.Join(dir, "shard-000000.tar") {
		t.Fatalf("unexpected shards %v", shards)
	}
}

func TestDiscoverShardsRejectsDuplicateIndex(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a", "shard-000003.tar"))
	mustWrite(t, filepath.Join(dir, "b", "shard-000003.tar"))

	_, err := DiscoverShards(dir)
	if err == nil || !strings.Contains(err.Error(), "shard index 3") {
		t.Fatalf("expected duplicate index error, got %v", err)
	}
}

func TestDiscoverShardsMissingRoot(t *testing.T) {
	if _, err := DiscoverShards(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
