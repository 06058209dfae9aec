package dataset

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Sample is a decoded image/label pair from a WebDataset shard.
type Sample struct {
	Key    string
	Pixels []float64
	Label  int
}

// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
var ErrPendingOverflow = errors.New("webdataset: pending pair buffer exceeded")

const defaultPendingCap = 1024

// StreamShard streams decoded samples from the shard at path. Images are
// converted to grayscale and resampled to Width x Height.
func StreamShard(ctx context.Context, path string, pendingCap int) (<-chan Sample, <-chan error) {
	if pendingCap <= 0 {
		pendingCap = defaultPendingCap
	}
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- errors.Wrap(err, "open shard")
			return
		}
		defer f.Close()

		tr := tar.NewReader(bufio.NewReader(f))
		pending := make(pendingMap)

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			hdr, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				errCh <- errors.Wrap(err, "read tar")
				return
			}
			if hdr.FileInfo().IsDir() {
				continue
			}
			name := filepath.Base(hdr.Name)
			ext := strings.ToLower(filepath.Ext(name))
			key := strings.TrimSuffix(name, ext)

			switch ext {
			case ".jpg", ".jpeg", ".png":
				data, err := io.ReadAll(tr)
				if err != nil {
					errCh <- errors.Wrapf(err, "read image %s", name)
					return
				}
				pixels, err := DecodeImage(data)
				if err != nil {
					errCh <- errors.Wrapf(err, "decode image %s", name)
					return
				}
				pending.get(key).pixels = pixels
			case ".cls":
				payload, err := io.ReadAll(tr)
				if err != nil {
					errCh <- errors.Wrapf(err, "read label %s", name)
					return
				}
				label, err := strconv.Atoi(strings.TrimSpace(string(payload)))
				if err != nil {
					errCh <- errors.Wrapf(err, "parse label %s", name)
					return
				}
				pending.get(key).label = &label
			default:
				continue
			}

			if len(pending) > pendingCap {
				errCh <- ErrPendingOverflow
				return
			}

			if part := pending[key]; part.ready() {
				sample := Sample{Key: key, Pixels: part.pixels, Label: *part.label}
				delete(pending, key)

				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- sample:
				}
			}
		}

		if len(pending) > 0 {
			errCh <- errors.Errorf("%d samples incomplete", len(pending))
		}
	}()

	return out, errCh
}

type partial struct {
	pixels []float64
	label  *int
}

func (p *partial) ready() bool {
	return len(p.pixels) > 0 && p.label != nil
}

type pendingMap map[string]*partial

func (m pendingMap) get(key string) *partial {
	part := m[key]
	if part == nil {
		part = &partial{}
		m[key] = part
	}
	return part
}

// DecodeImage decodes a PNG or JPEG payload into Width*Height grayscale
// intensities in [0,1] using nearest-neighbour resampling.
func DecodeImage(raw []byte) ([]float64, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("empty image")
	}
	pixels := make([]float64, Pixels)
	for y := 0; y < Height; y++ {
		py := bounds.Min.Y + y*h/Height
		for x := 0; x < Width; x++ {
			px := bounds.Min.X + x*w/Width
			r, g, b, _ := img.At(px, py).RGBA()
			pixels[y*Width+x] = (float64(r) + float64(g) + float64(b)) / (3 * 65535.0)
		}
	}
	return pixels, nil
}
