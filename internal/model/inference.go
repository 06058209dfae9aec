package model

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Inference evaluates a chain of nets on inputs of any length using a
// fixed-size graph. Inputs are zero-padded to whole batches and padded
// outputs are discarded.
type Inference struct {
	batch   int
	inSize  int
	outSize int
	inDims  []int
	input   *gorgonia.Node
	output  gorgonia.Value
	vm      gorgonia.VM
}

// NewInference compiles nets[0] -> nets[1] -> ... for the given batch size.
func NewInference(batch int, nets ...*Net) (*Inference, error) {
	if len(nets) == 0 {
		return nil, errors.New("inference: no nets")
	}
	if batch <= 0 {
		return nil, errors.Errorf("inference: batch must be > 0 (got %d)", batch)
	}
	g := gorgonia.NewGraph()
	inDims := nets[0].InputDims()
	shape := append(tensor.Shape{batch}, inDims...)
	inf := &Inference{batch: batch, inDims: inDims, inSize: shape.TotalSize() / batch}
	inf.input = gorgonia.NewTensor(g, tensor.Float64, len(shape), gorgonia.WithShape(shape...), gorgonia.WithName("inference_input"))

	out := inf.input
	var err error
	for _, n := range nets {
		if out, err = n.Bind(g).Predict(out); err != nil {
			return nil, err
		}
	}
	inf.outSize = out.Shape().TotalSize() / batch
	gorgonia.Read(out, &inf.output)
	inf.vm = gorgonia.NewTapeMachine(g)
	return inf, nil
}

// OutputSize returns the number of values produced per sample.
func (inf *Inference) OutputSize() int { return inf.outSize }

// Run evaluates n samples laid out back to back in data.
func (inf *Inference) Run(data []float64, n int) ([]float64, error) {
	if len(data) != n*inf.inSize {
		return nil, errors.Errorf("inference: got %d values for %d samples of %d", len(data), n, inf.inSize)
	}
	out := make([]float64, 0, n*inf.outSize)
	chunk := make([]float64, inf.batch*inf.inSize)
	for start := 0; start < n; start += inf.batch {
		end := start + inf.batch
		if end > n {
			end = n
		}
		for i := range chunk {
			chunk[i] = 0
		}
		copy(chunk, data[start*inf.inSize:end*inf.inSize])

		shape := append([]int{inf.batch}, inf.inDims...)
		if err := gorgonia.Let(inf.input, tensor.New(tensor.WithShape(shape...), tensor.WithBacking(chunk))); err != nil {
			return nil, errors.Wrap(err, "inference: bind input")
		}
		if err := inf.vm.RunAll(); err != nil {
			return nil, errors.Wrap(err, "inference: run")
		}
		vals, ok := inf.output.Data().([]float64)
		if !ok {
			return nil, errors.Errorf("inference: unexpected output %T", inf.output.Data())
		}
		out = append(out, vals[:(end-start)*inf.outSize]...)
		inf.vm.Reset()
	}
	return out, nil
}

// Close releases the underlying machine.
func (inf *Inference) Close() error {
	return inf.vm.Close()
}
