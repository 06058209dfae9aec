package dataset

import "github.com/pkg/errors"

// Image geometry shared by every source.
const (
	Height   = 28
	Width    = 28
	Channels = 1
	// Pixels is the number of values per image.
	Pixels = Height * Width * Channels
)

// Images is an in-memory image set with values normalised to [0,1].
type Images struct {
	// Pixels holds Len()*Pixels values, one image after another.
	Pixels []float64
	Labels []int
}

// Len returns the number of images.
func (s *Images) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Labels)
}

// At returns the pixels of image i without copying.
func (s *Images) At(i int) []float64 {
	return s.Pixels[i*Pixels : (i+1)*Pixels]
}

// Head returns the first n images (or all of them if fewer).
func (s *Images) Head(n int) *Images {
	if n > s.Len() {
		n = s.Len()
	}
	return &Images{Pixels: s.Pixels[:n*Pixels], Labels: s.Labels[:n]}
}

func (s *Images) append(pixels []float64, label int) error {
	if len(pixels) != Pixels {
		return errors.Errorf("image has %d values, want %d", len(pixels), Pixels)
	}
	s.Pixels = append(s.Pixels, pixels...)
	s.Labels = append(s.Labels, label)
	return nil
}

// Synthetic returns n all-zero images labelled 0.
func Synthetic(n int) *Images {
	return &Images{
		Pixels: make([]float64, n*Pixels),
		Labels: make([]int, n),
	}
}
