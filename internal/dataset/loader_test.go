package dataset

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadShardsOrderIndependentOfWorkers(t *testing.T) {
	root := t.TempDir()
	var shards []string
	for i, labels := range [][]int{{0, 1}, {2}, {3, 4, 5}} {
		path := filepath.Join(root, "shard-00000"+string(rune('0'+i))+".tar")
		var entries []shardEntry
		for j, l := range labels {
			entries = append(entries, shardEntry{key: string(rune('a'+j)), shade: uint8(40 * l), label: l})
		}
		writeShard(t, path, entries)
		shards = append(shards, path)
	}

	one, err := LoadShards(context.Background(), LoaderOptions{Shards: shards, NumWorkers: 1})
	if err != nil {
		t.Fatalf("LoadShards(1): %v", err)
	}
	many, err := LoadShards(context.Background(), LoaderOptions{Shards: shards, NumWorkers: 3})
	if err != nil {
		t.Fatalf("LoadShards(3): %v", err)
	}
	if one.Len() != 6 {
		t.Fatalf("expected 6 images, got %d", one.Len())
	}
	if !reflect.DeepEqual(one.Labels, many.Labels) {
		t.Fatalf("label order differs: %v vs %v", one.Labels, many.Labels)
	}
	if !reflect.DeepEqual(one.Pixels, many.Pixels) {
		t.Fatal("pixel order differs between worker counts")
	}
}

func TestLoadShardsPropagatesErrors(t *testing.T) {
	_, err := LoadShards(context.Background(), LoaderOptions{
		Shards:     []string{filepath.Join(t.TempDir(), "shard-000000.tar")},
		NumWorkers: 2,
	})
	if err == nil {
		t.Fatal("expected error for missing shard")
	}
}

func TestOpenSyntheticAndShards(t *testing.T) {
	train, test, err := Open(context.Background(), OpenOptions{Source: "synthetic", SyntheticSize: 8})
	if err != nil {
		t.Fatalf("Open synthetic: %v", err)
	}
	if train.Len() != 8 || test.Len() != 8 {
		t.Fatalf("sizes %d %d", train.Len(), test.Len())
	}

	root := t.TempDir()
	writeShard(t, filepath.Join(root, "train", "shard-000000.tar"), []shardEntry{{key: "x", label: 1}})
	writeShard(t, filepath.Join(root, "test", "shard-000000.tar"), []shardEntry{{key: "y", label: 2}})
	train, test, err = Open(context.Background(), OpenOptions{
		Source:     "shards",
		TrainRoot:  filepath.Join(root, "train"),
		TestRoot:   filepath.Join(root, "test"),
		NumWorkers: 2,
	})
	if err != nil {
		t.Fatalf("Open shards: %v", err)
	}
	if train.Labels[0] != 1 || test.Labels[0] != 2 {
		t.Fatalf("labels %v %v", train.Labels, test.Labels)
	}
}
