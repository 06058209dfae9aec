package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	idxImageMagic = 0x00000803
	idxLabelMagic = 0x00000801
)

// MaxIDXItems bounds the item count accepted from an IDX header.
const MaxIDXItems = 1 << 20

// MNIST file stems inside a data directory.
const (
	TrainImagesFile = "train-images-idx3-ubyte"
	TrainLabelsFile = "train-labels-idx1-ubyte"
	TestImagesFile  = "t10k-images-idx3-ubyte"
	TestLabelsFile  = "t10k-labels-idx1-ubyte"
)

// LoadIDX reads the MNIST train and test splits from dir. Each file may be
// stored raw or with a .gz suffix.
func LoadIDX(dir string) (train, test *Images, err error) {
	train, err = LoadIDXPair(filepath.Join(dir, TrainImagesFile), filepath.Join(dir, TrainLabelsFile))
	if err != nil {
		return nil, nil, errors.Wrap(err, "load train split")
	}
	test, err = LoadIDXPair(filepath.Join(dir, TestImagesFile), filepath.Join(dir, TestLabelsFile))
	if err != nil {
		return nil, nil, errors.Wrap(err, "load test split")
	}
	return train, test, nil
}

// LoadIDXPair reads one images file and its labels file.
func LoadIDXPair(imagesPath, labelsPath string) (*Images, error) {
	rc, err := openMaybeGzip(imagesPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	pixels, n, err := ReadIDXImages(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", imagesPath)
	}

	lc, err := openMaybeGzip(labelsPath)
	if err != nil {
		return nil, err
	}
	defer lc.Close()
	labels, err := ReadIDXLabels(lc)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", labelsPath)
	}

	if len(labels) != n {
		return nil, errors.Errorf("%d images but %d labels", n, len(labels))
	}
	return &Images{Pixels: pixels, Labels: labels}, nil
}

// ReadIDXImages decodes an idx3 image stream of 28x28 images, scaling bytes to [0,1].
func ReadIDXImages(r io.Reader) ([]float64, int, error) {
	var hdr [4]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, 0, errors.Wrap(err, "read header")
	}
	if hdr[0] != idxImageMagic {
		return nil, 0, errors.Errorf("bad image magic %#x", hdr[0])
	}
	n, rows, cols := int(hdr[1]), int(hdr[2]), int(hdr[3])
	if rows != Height || cols != Width {
		return nil, 0, errors.Errorf("images are %dx%d, want %dx%d", rows, cols, Height, Width)
	}
	if n > MaxIDXItems {
		return nil, 0, errors.Errorf("header claims %d images, limit is %d", n, MaxIDXItems)
	}
	raw := make([]byte, n*Pixels)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, 0, errors.Wrap(err, "read pixels")
	}
	pixels := make([]float64, len(raw))
	for i, b := range raw {
		pixels[i] = float64(b) / 255
	}
	return pixels, n, nil
}

// ReadIDXLabels decodes an idx1 label stream.
func ReadIDXLabels(r io.Reader) ([]int, error) {
	var hdr [2]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if hdr[0] != idxLabelMagic {
		return nil, errors.Errorf("bad label magic %#x", hdr[0])
	}
	if hdr[1] > MaxIDXItems {
		return nil, errors.Errorf("header claims %d labels, limit is %d", hdr[1], MaxIDXItems)
	}
	raw := make([]byte, hdr[1])
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrap(err, "read labels")
	}
	labels := make([]int, len(raw))
	for i, b := range raw {
		labels[i] = int(b)
	}
	return labels, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g gzipFile) Close() error {
	zerr := g.Reader.Close()
	if err := g.f.Close(); err != nil {
		return err
	}
	return zerr
}

type bufferedFile struct {
	*bufio.Reader
	f *os.File
}

func (b bufferedFile) Close() error {
	return b.f.Close()
}

func openMaybeGzip(path string) (io.ReadCloser, error) {
	if f, err := os.Open(path + ".gz"); err == nil {
		zr, err := gzip.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "gunzip %s.gz", path)
		}
		return gzipFile{Reader: zr, f: f}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return bufferedFile{Reader: bufio.NewReader(f), f: f}, nil
}
