package viz

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/pkg/errors"

	"aae-forge/internal/dataset"
)

// grid tiles 28x28 gray images into rows x cols cells.
type grid struct {
	img *image.Gray
}

func newGrid(rows, cols int) *grid {
	return &grid{img: image.NewGray(image.Rect(0, 0, cols*dataset.Width, rows*dataset.Height))}
}

// put draws pixels (values in [0,1]) into cell (row, col).
func (g *grid) put(row, col int, pixels []float64) {
	x0, y0 := col*dataset.Width, row*dataset.Height
	for y := 0; y < dataset.Height; y++ {
		for x := 0; x < dataset.Width; x++ {
			g.img.SetGray(x0+x, y0+y, color.Gray{Y: toByte(pixels[y*dataset.Width+x])})
		}
	}
}

func (g *grid) save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create image")
	}
	if err := png.Encode(f, g.img); err != nil {
		f.Close()
		return errors.Wrap(err, "encode png")
	}
	return f.Close()
}

func toByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
