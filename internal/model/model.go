// Package model defines the four networks of the adversarial autoencoder
// and binds their parameters into gorgonia expression graphs.
//
// A Net owns its parameter tensors. Every graph that uses a Net binds nodes
// to the very same *tensor.Dense values, so an optimizer step taken through
// one graph is observed by all the others.
package model

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Param is one tensor of a Net. Non-trainable params are the moving
// statistics of batch normalisation layers.
type Param struct {
	Name      string
	Value     *tensor.Dense
	Trainable bool
}

// Net is a sequential network with its own parameter set.
type Net struct {
	name   string
	inDims []int
	layers []Layer
	params []*Param
	// index of the first param of each layer, -1 for parameterless layers
	paramAt []int
}

// NewNet builds a Net and initialises its parameters from rng.
// inDims is the per-sample input shape (without the batch axis).
func NewNet(name string, inDims []int, layers []Layer, rng *rand.Rand) *Net {
	n := &Net{name: name, inDims: inDims, layers: layers, paramAt: make([]int, len(layers))}
	for i, l := range layers {
		n.paramAt[i] = -1
		ps := l.newParams(i, rng)
		if len(ps) == 0 {
			continue
		}
		n.paramAt[i] = len(n.params)
		n.params = append(n.params, ps...)
	}
	return n
}

// Name returns the network name.
func (n *Net) Name() string { return n.name }

// InputDims returns the per-sample input shape.
func (n *Net) InputDims() []int { return append([]int(nil), n.inDims...) }

// Params returns the parameters in a stable order.
func (n *Net) Params() []*Param { return n.params }

// NumParams counts scalar parameters.
func (n *Net) NumParams() int {
	total := 0
	for _, p := range n.params {
		total += p.Value.Shape().TotalSize()
	}
	return total
}

// Bound is a Net instantiated in one expression graph.
type Bound struct {
	net   *Net
	g     *gorgonia.ExprGraph
	nodes gorgonia.Nodes
	stats []BatchStats
}

// Bind prepares n for use in g. Parameter nodes are created on first use
// and backed by n's shared tensors. A Net must be bound at most once per
// graph; the bound value can be applied any number of times.
func (n *Net) Bind(g *gorgonia.ExprGraph) *Bound {
	return &Bound{net: n, g: g, nodes: make(gorgonia.Nodes, len(n.params))}
}

func (b *Bound) node(i int) *gorgonia.Node {
	if b.nodes[i] == nil {
		p := b.net.params[i]
		b.nodes[i] = gorgonia.NewTensor(b.g, tensor.Float64, p.Value.Dims(),
			gorgonia.WithShape(p.Value.Shape()...),
			gorgonia.WithName(b.net.name+"_"+p.Name),
			gorgonia.WithValue(p.Value),
		)
	}
	return b.nodes[i]
}

// Learnables returns the trainable parameter nodes in Params order.
func (b *Bound) Learnables() gorgonia.Nodes {
	var out gorgonia.Nodes
	for i, p := range b.net.params {
		if p.Trainable {
			out = append(out, b.node(i))
		}
	}
	return out
}

// Stats returns the batch statistics of every training-mode application
// so far, in application order.
func (b *Bound) Stats() []BatchStats { return b.stats }

// Fwd applies the network to x, whose first axis is the batch, in
// training mode: normalisation layers use the statistics of the batch.
func (b *Bound) Fwd(x *gorgonia.Node) (*gorgonia.Node, error) {
	return b.forward(x, true)
}

// Predict applies the network in inference mode: normalisation layers use
// the moving statistics, so each output depends on its own sample only.
func (b *Bound) Predict(x *gorgonia.Node) (*gorgonia.Node, error) {
	return b.forward(x, false)
}

func (b *Bound) forward(x *gorgonia.Node, training bool) (*gorgonia.Node, error) {
	out := x
	for i, l := range b.net.layers {
		var ps gorgonia.Nodes
		if at := b.net.paramAt[i]; at >= 0 {
			for j := range l.paramShapes() {
				ps = append(ps, b.node(at+j))
			}
		}
		next, moments, err := l.apply(out, ps, training)
		if err != nil {
			return nil, errors.Wrapf(err, "%s layer #%d (%s)", b.net.name, i, l.Type)
		}
		if moments != nil {
			at := b.net.paramAt[i]
			b.stats = append(b.stats, BatchStats{
				Mean:       moments.mean,
				Variance:   moments.variance,
				movingMean: b.net.params[at+2].Value,
				movingVar:  b.net.params[at+3].Value,
			})
		}
		out = next
	}
	return out, nil
}

// BatchStats are the per-channel moments computed by one training-mode
// normalisation layer, tied to the moving statistics they feed.
type BatchStats struct {
	Mean     *gorgonia.Node
	Variance *gorgonia.Node

	movingMean *tensor.Dense
	movingVar  *tensor.Dense
}

// Accumulate folds one batch's moments into the moving statistics:
// moving = momentum*moving + (1-momentum)*batch.
func (s BatchStats) Accumulate(mean, variance []float64) error {
	mm := s.movingMean.Data().([]float64)
	mv := s.movingVar.Data().([]float64)
	if len(mean) != len(mm) || len(variance) != len(mv) {
		return errors.Errorf("batch moments have %d/%d channels, want %d", len(mean), len(variance), len(mm))
	}
	for i := range mm {
		mm[i] = bnMomentum*mm[i] + (1-bnMomentum)*mean[i]
		mv[i] = bnMomentum*mv[i] + (1-bnMomentum)*variance[i]
	}
	return nil
}
