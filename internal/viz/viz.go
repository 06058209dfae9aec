// Package viz renders the per-epoch figures of a training run: the latent
// space of the held-out set, reconstructions and decoded samples from a
// regular grid over the latent plane.
package viz

import (
	"fmt"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	_ "gonum.org/v1/plot/vg/vgimg"

	"aae-forge/internal/dataset"
	"aae-forge/internal/model"
)

// Output subdirectories.
const (
	LatentDir         = "latent_space"
	ReconstructionDir = "reconstruction"
	SamplingDir       = "sampling"
)

const (
	gridSide   = 20
	gridExtent = 3.0
	reconCount = 20
)

// Renderer writes epoch_<k>.png files below one experiment directory.
type Renderer struct {
	dir  string
	bank *model.Bank
	test *dataset.Images

	encode      *model.Inference
	reconstruct *model.Inference
	decode      *model.Inference
}

// NewRenderer creates the output tree under dir and compiles the inference
// graphs used for drawing. batch is the fixed inference batch size.
func NewRenderer(dir string, bank *model.Bank, test *dataset.Images, batch int) (*Renderer, error) {
	for _, sub := range []string{LatentDir, ReconstructionDir, SamplingDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errors.Wrap(err, "create output dir")
		}
	}
	r := &Renderer{dir: dir, bank: bank, test: test}
	var err error
	if r.encode, err = model.NewInference(batch, bank.Encoder); err != nil {
		return nil, errors.Wrap(err, "compile encoder")
	}
	if got := r.encode.OutputSize(); got != bank.LatentDim {
		r.Close()
		return nil, errors.Errorf("encoder yields %d values per image, latent dim is %d", got, bank.LatentDim)
	}
	if r.reconstruct, err = model.NewInference(batch, bank.Encoder, bank.Decoder); err != nil {
		r.Close()
		return nil, errors.Wrap(err, "compile autoencoder")
	}
	if r.decode, err = model.NewInference(batch, bank.Decoder); err != nil {
		r.Close()
		return nil, errors.Wrap(err, "compile decoder")
	}
	log.Printf("viz output=%s", dir)
	return r, nil
}

// Render draws every figure for epoch. Figures that need a two dimensional
// latent space are skipped for other sizes.
func (r *Renderer) Render(epoch int) error {
	name := fmt.Sprintf("epoch_%d.png", epoch)
	if r.bank.LatentDim == 2 {
		if err := r.latentSpace(filepath.Join(r.dir, LatentDir, name)); err != nil {
			return errors.Wrap(err, "latent space")
		}
	} else {
		log.Printf("viz skip=latent_space latent_dim=%d", r.bank.LatentDim)
	}
	if err := r.reconstruction(filepath.Join(r.dir, ReconstructionDir, name)); err != nil {
		return errors.Wrap(err, "reconstruction")
	}
	if r.bank.LatentDim == 2 {
		if err := r.sampling(filepath.Join(r.dir, SamplingDir, name)); err != nil {
			return errors.Wrap(err, "sampling")
		}
	} else {
		log.Printf("viz skip=sampling latent_dim=%d", r.bank.LatentDim)
	}
	return nil
}

func (r *Renderer) latentSpace(path string) error {
	n := r.test.Len()
	codes, err := r.encode.Run(r.test.Pixels, n)
	if err != nil {
		return err
	}

	byLabel := map[int]plotter.XYs{}
	for i := 0; i < n; i++ {
		l := r.test.Labels[i]
		byLabel[l] = append(byLabel[l], plotter.XY{X: codes[2*i], Y: codes[2*i+1]})
	}
	labels := make([]int, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	p := plot.New()
	p.Title.Text = "latent space"
	p.Legend.Top = true
	for i, l := range labels {
		s, err := plotter.NewScatter(byLabel[l])
		if err != nil {
			return err
		}
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(1.5)
		s.GlyphStyle.Color = rainbow(i, len(labels))
		p.Add(s)
		p.Legend.Add(strconv.Itoa(l), s)
	}
	p.X.Min, p.X.Max = -gridExtent, gridExtent
	p.Y.Min, p.Y.Max = -gridExtent, gridExtent
	return p.Save(6*vg.Inch, 6*vg.Inch, path)
}

func (r *Renderer) reconstruction(path string) error {
	head := r.test.Head(reconCount)
	n := head.Len()
	out, err := r.reconstruct.Run(head.Pixels, n)
	if err != nil {
		return err
	}
	grid := newGrid(2, reconCount)
	for i := 0; i < n; i++ {
		grid.put(0, i, head.At(i))
		grid.put(1, i, out[i*dataset.Pixels:(i+1)*dataset.Pixels])
	}
	return grid.save(path)
}

func (r *Renderer) sampling(path string) error {
	xs := floats.Span(make([]float64, gridSide), -gridExtent, gridExtent)
	ys := floats.Span(make([]float64, gridSide), -gridExtent, gridExtent)
	codes := make([]float64, 0, gridSide*gridSide*2)
	for _, x := range xs {
		for _, y := range ys {
			codes = append(codes, x, y)
		}
	}
	out, err := r.decode.Run(codes, gridSide*gridSide)
	if err != nil {
		return err
	}
	grid := newGrid(gridSide, gridSide)
	for i := 0; i < gridSide; i++ {
		for j := 0; j < gridSide; j++ {
			k := i*gridSide + j
			grid.put(i, j, out[k*dataset.Pixels:(k+1)*dataset.Pixels])
		}
	}
	return grid.save(path)
}

// Close releases the inference machines.
func (r *Renderer) Close() error {
	var first error
	for _, inf := range []*model.Inference{r.encode, r.reconstruct, r.decode} {
		if inf == nil {
			continue
		}
		if err := inf.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// rainbow spreads n colours evenly over the hue circle.
func rainbow(i, n int) color.Color {
	h := 0.0
	if n > 1 {
		h = float64(i) / float64(n) * 300
	}
	x := 1 - math.Abs(math.Mod(h/60, 2)-1)
	var rf, gf, bf float64
	switch {
	case h < 60:
		rf, gf = 1, x
	case h < 120:
		rf, gf = x, 1
	case h < 180:
		gf, bf = 1, x
	case h < 240:
		gf, bf = x, 1
	default:
		rf, bf = x, 1
	}
	return color.RGBA{R: uint8(rf * 255), G: uint8(gf * 255), B: uint8(bf * 255), A: 255}
}
