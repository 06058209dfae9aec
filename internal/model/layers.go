package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// LayerType enumerates the supported layer kinds.
type LayerType uint8

const (
	LayerConv LayerType = iota
	LayerDense
	LayerUpsample
	LayerReshape
	LayerBatchNorm
)

func (t LayerType) String() string {
	switch t {
	case LayerConv:
		return "conv"
	case LayerDense:
		return "dense"
	case LayerUpsample:
		return "upsample"
	case LayerReshape:
		return "reshape"
	case LayerBatchNorm:
		return "batchnorm"
	default:
		return "unknown"
	}
}

// Activation enumerates the non-linearities applied after a layer.
type Activation uint8

const (
	NoActivation Activation = iota
	ReLU
	LeakyReLU
	Sigmoid
)

// leakySlope is the negative slope of LeakyReLU.
const leakySlope = 0.2

// Batch normalisation constants.
const (
	bnMomentum = 0.99
	bnEpsilon  = 1e-3
)

// Layer describes one step of a sequential Net.
type Layer struct {
	Type LayerType
	// In and Out are channels for conv and batchnorm layers and units for
	// dense layers.
	In, Out int
	Kernel  int
	Stride  int
	Pad     int
	// Scale is the upsampling factor.
	Scale int
	// Dims is the per-sample target shape of a reshape.
	Dims       []int
	Activation Activation
}

// Conv returns a square convolution layer.
func Conv(in, out, kernel, stride, pad int, act Activation) Layer {
	return Layer{Type: LayerConv, In: in, Out: out, Kernel: kernel, Stride: stride, Pad: pad, Activation: act}
}

// Dense returns a fully connected layer.
func Dense(in, out int, act Activation) Layer {
	return Layer{Type: LayerDense, In: in, Out: out, Activation: act}
}

// Upsample returns a nearest-neighbour upsampling layer.
func Upsample(scale int) Layer {
	return Layer{Type: LayerUpsample, Scale: scale}
}

// BatchNorm returns a per-channel batch normalisation layer over NCHW
// input, followed by act.
func BatchNorm(channels int, act Activation) Layer {
	return Layer{Type: LayerBatchNorm, In: channels, Out: channels, Activation: act}
}

// Reshape returns a layer reshaping each sample to dims.
func Reshape(dims ...int) Layer {
	return Layer{Type: LayerReshape, Dims: dims}
}

func (l Layer) paramShapes() []tensor.Shape {
	switch l.Type {
	case LayerConv:
		return []tensor.Shape{{l.Out, l.In, l.Kernel, l.Kernel}, {1, l.Out, 1, 1}}
	case LayerDense:
		return []tensor.Shape{{l.In, l.Out}, {1, l.Out}}
	case LayerBatchNorm:
		// gamma, beta, moving mean, moving variance
		c := tensor.Shape{1, l.Out, 1, 1}
		return []tensor.Shape{c, c.Clone(), c.Clone(), c.Clone()}
	}
	return nil
}

// newParams allocates and initialises the params of layer i.
func (l Layer) newParams(i int, rng *rand.Rand) []*Param {
	shapes := l.paramShapes()
	if len(shapes) == 0 {
		return nil
	}
	if l.Type == LayerBatchNorm {
		return []*Param{
			{Name: fmt.Sprintf("l%d_gamma", i), Value: filled(shapes[0], 1), Trainable: true},
			{Name: fmt.Sprintf("l%d_beta", i), Value: filled(shapes[1], 0), Trainable: true},
			{Name: fmt.Sprintf("l%d_mean", i), Value: filled(shapes[2], 0)},
			{Name: fmt.Sprintf("l%d_var", i), Value: filled(shapes[3], 1)},
		}
	}
	w := tensor.New(tensor.WithShape(shapes[0]...), tensor.WithBacking(glorotUniform(rng, shapes[0], l.fanIn(), l.fanOut())))
	return []*Param{
		{Name: fmt.Sprintf("l%d_w", i), Value: w, Trainable: true},
		{Name: fmt.Sprintf("l%d_b", i), Value: filled(shapes[1], 0), Trainable: true},
	}
}

func filled(shape tensor.Shape, v float64) *tensor.Dense {
	data := make([]float64, shape.TotalSize())
	for i := range data {
		data[i] = v
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func (l Layer) fanIn() int {
	if l.Type == LayerConv {
		return l.In * l.Kernel * l.Kernel
	}
	return l.In
}

func (l Layer) fanOut() int {
	if l.Type == LayerConv {
		return l.Out * l.Kernel * l.Kernel
	}
	return l.Out
}

// moments are the batch statistics produced by a training-mode batchnorm.
type moments struct {
	mean, variance *gorgonia.Node
}

func (l Layer) apply(x *gorgonia.Node, ps gorgonia.Nodes, training bool) (*gorgonia.Node, *moments, error) {
	var (
		out *gorgonia.Node
		m   *moments
		err error
	)
	switch l.Type {
	case LayerConv:
		out, err = gorgonia.Conv2d(x, ps[0], tensor.Shape{l.Kernel, l.Kernel}, []int{l.Pad, l.Pad}, []int{l.Stride, l.Stride}, []int{1, 1})
		if err != nil {
			return nil, nil, errors.Wrap(err, "convolve")
		}
		if out, err = gorgonia.BroadcastAdd(out, ps[1], nil, []byte{0, 2, 3}); err != nil {
			return nil, nil, errors.Wrap(err, "add bias")
		}
	case LayerDense:
		if out, err = gorgonia.Mul(x, ps[0]); err != nil {
			return nil, nil, errors.Wrap(err, "multiply weights")
		}
		if out, err = gorgonia.BroadcastAdd(out, ps[1], nil, []byte{0}); err != nil {
			return nil, nil, errors.Wrap(err, "add bias")
		}
	case LayerBatchNorm:
		if out, m, err = batchNorm(x, ps, training); err != nil {
			return nil, nil, errors.Wrap(err, "normalise")
		}
	case LayerUpsample:
		if out, err = gorgonia.Upsample2D(x, l.Scale); err != nil {
			return nil, nil, errors.Wrap(err, "upsample")
		}
	case LayerReshape:
		shape := append(tensor.Shape{x.Shape()[0]}, l.Dims...)
		if out, err = gorgonia.Reshape(x, shape); err != nil {
			return nil, nil, errors.Wrap(err, "reshape")
		}
	default:
		return nil, nil, errors.Errorf("layer type %d is not handled", l.Type)
	}
	out, err = activate(out, l.Activation)
	return out, m, err
}

// batchNorm normalises NCHW x per channel. In training mode the batch
// moments are used and returned; otherwise the moving statistics in
// ps[2] and ps[3] are used.
func batchNorm(x *gorgonia.Node, ps gorgonia.Nodes, training bool) (*gorgonia.Node, *moments, error) {
	gamma, beta := ps[0], ps[1]
	if x.Dims() != 4 {
		return nil, nil, errors.Errorf("batchnorm wants NCHW input, got shape %v", x.Shape())
	}
	pattern := []byte{0, 2, 3}

	var (
		mean, variance *gorgonia.Node
		m              *moments
		err            error
	)
	if training {
		if mean, err = channelMean(x); err != nil {
			return nil, nil, err
		}
	} else {
		mean = ps[2]
	}
	centered, err := gorgonia.BroadcastSub(x, mean, nil, pattern)
	if err != nil {
		return nil, nil, err
	}
	if training {
		sq, err := gorgonia.Square(centered)
		if err != nil {
			return nil, nil, err
		}
		if variance, err = channelMean(sq); err != nil {
			return nil, nil, err
		}
		m = &moments{mean: mean, variance: variance}
	} else {
		variance = ps[3]
	}

	shifted, err := gorgonia.Add(variance, gorgonia.NewConstant(bnEpsilon))
	if err != nil {
		return nil, nil, err
	}
	std, err := gorgonia.Sqrt(shifted)
	if err != nil {
		return nil, nil, err
	}
	normed, err := gorgonia.BroadcastHadamardDiv(centered, std, nil, pattern)
	if err != nil {
		return nil, nil, err
	}
	scaled, err := gorgonia.BroadcastHadamardProd(normed, gamma, nil, pattern)
	if err != nil {
		return nil, nil, err
	}
	out, err := gorgonia.BroadcastAdd(scaled, beta, nil, pattern)
	return out, m, err
}

// channelMean averages NCHW x over batch and space, keeping a
// (1, C, 1, 1) shape.
func channelMean(x *gorgonia.Node) (*gorgonia.Node, error) {
	s := x.Shape()
	sum := x
	var err error
	for _, axis := range []int{3, 2, 0} {
		if sum, err = gorgonia.Sum(sum, axis); err != nil {
			return nil, err
		}
	}
	n := float64(s[0] * s[2] * s[3])
	mean, err := gorgonia.Div(sum, gorgonia.NewConstant(n))
	if err != nil {
		return nil, err
	}
	return gorgonia.Reshape(mean, tensor.Shape{1, s[1], 1, 1})
}

func activate(x *gorgonia.Node, act Activation) (*gorgonia.Node, error) {
	switch act {
	case NoActivation:
		return x, nil
	case ReLU:
		return gorgonia.Rectify(x)
	case LeakyReLU:
		return gorgonia.LeakyRelu(x, leakySlope)
	case Sigmoid:
		return gorgonia.Sigmoid(x)
	}
	return nil, errors.Errorf("activation %d is not handled", act)
}

// glorotUniform draws weights from U(-limit, limit), limit = sqrt(6/(fanIn+fanOut)).
func glorotUniform(rng *rand.Rand, shape tensor.Shape, fanIn, fanOut int) []float64 {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	out := make([]float64, shape.TotalSize())
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * limit
	}
	return out
}
