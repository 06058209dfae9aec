package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"
)

func TestStreamShardPairsEntries(t *testing.T) {
	dir := t.TempDir()
	shard := filepath.Join(dir, "shard-000000.tar")
	writeShard(t, shard, []shardEntry{
		{key: "000001", shade: 0, label: 3},
		{key: "000002", shade: 255, label: 7},
	})

	samplesCh, errCh := StreamShard(context.Background(), shard, 4)
	var samples []Sample
	for s := range samplesCh {
		samples = append(samples, s)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("StreamShard returned error: %v", err)
	}

	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Key < samples[j].Key })
	if samples[0].Label != 3 || samples[1].Label != 7 {
		t.Fatalf("labels %d %d", samples[0].Label, samples[1].Label)
	}
	if samples[0].Pixels[0] != 0 || samples[1].Pixels[0] != 1 {
		t.Fatalf("unexpected intensities %f %f", samples[0].Pixels[0], samples[1].Pixels[0])
	}
}

func TestStreamShardIncompletePair(t *testing.T) {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	addTarEntry(t, tw, "lonely.cls", []byte("1"))
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	path := filepath.Join(t.TempDir(), "shard-000000.tar")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}

	samplesCh, errCh := StreamShard(context.Background(), path, 4)
	for range samplesCh {
	}
	if err := <-errCh; err == nil {
		t.Fatal("expected incomplete-sample error")
	}
}

func TestDecodeImageResamples(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 56, 56))
	for y := 0; y < 56; y++ {
		for x := 0; x < 56; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 255)})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	pixels, err := DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if len(pixels) != Pixels {
		t.Fatalf("expected %d values, got %d", Pixels, len(pixels))
	}
	for _, v := range pixels {
		if v < 0 || v > 1 {
			t.Fatalf("value out of range: %f", v)
		}
	}
}

type shardEntry struct {
	key   string
	shade uint8
	label int
}

func writeShard(t *testing.T, path string, entries []shardEntry) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for _, e := range entries {
		img := image.NewGray(image.Rect(0, 0, Width, Height))
		for i := range img.Pix {
			img.Pix[i] = e.shade
		}
		pngBuf := &bytes.Buffer{}
		if err := png.Encode(pngBuf, img); err != nil {
			t.Fatalf("encode: %v", err)
		}
		addTarEntry(t, tw, e.key+".png", pngBuf.Bytes())
		addTarEntry(t, tw, e.key+".cls", []byte(strconv.Itoa(e.label)))
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
}

func addTarEntry(t *testing.T, tw *tar.Writer, name string, data []byte) {
	t.Helper()
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatalf("write data: %v", err)
	}
}
