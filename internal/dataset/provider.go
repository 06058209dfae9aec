package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Batch is a minibatch of images in NCHW order with C=1.
type Batch struct {
	Size   int
	Pixels []float64
	Labels []int
}

// Provider yields a freshly shuffled sequence of full batches every epoch.
// The trailing partial batch is dropped: 60000 images with batch size 256
// give 234 batches and leave 96 images out of that epoch.
type Provider struct {
	images    *Images
	batchSize int
}

// NewProvider wraps images for batching.
func NewProvider(images *Images, batchSize int) (*Provider, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("dataset: batch size must be > 0 (got %d)", batchSize)
	}
	if images.Len() < batchSize {
		return nil, errors.Errorf("dataset: %d images cannot fill one batch of %d", images.Len(), batchSize)
	}
	return &Provider{images: images, batchSize: batchSize}, nil
}

// NumBatches returns the number of batches per epoch.
func (p *Provider) NumBatches() int {
	return p.images.Len() / p.batchSize
}

// Dropped returns how many images each epoch leaves out.
func (p *Provider) Dropped() int {
	return p.images.Len() % p.batchSize
}

// BatchSize returns the fixed batch size.
func (p *Provider) BatchSize() int {
	return p.batchSize
}

// Epoch reshuffles the full set with rng and returns an iterator over its
// batches. The permutation is a pure function of rng's state, so a seeded
// rng reproduces the same epoch. Batches are materialised lazily.
func (p *Provider) Epoch(rng *rand.Rand) *Epoch {
	order := make([]int, p.images.Len())
	for i := range order {
		order[i] = i
	}
	rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return &Epoch{p: p, order: order}
}

// Epoch iterates over one shuffled pass of a Provider.
type Epoch struct {
	p     *Provider
	order []int
	next  int
}

// Len returns the number of batches in the epoch.
func (e *Epoch) Len() int {
	return e.p.NumBatches()
}

// Next returns the next batch, or false once the epoch is exhausted.
func (e *Epoch) Next() (Batch, bool) {
	if e.next >= e.Len() {
		return Batch{}, false
	}
	bs := e.p.batchSize
	idx := e.order[e.next*bs : (e.next+1)*bs]
	e.next++

	batch := Batch{
		Size:   bs,
		Pixels: make([]float64, 0, bs*Pixels),
		Labels: make([]int, 0, bs),
	}
	for _, i := range idx {
		batch.Pixels = append(batch.Pixels, e.p.images.At(i)...)
		batch.Labels = append(batch.Labels, e.p.images.Labels[i])
	}
	return batch, true
}
