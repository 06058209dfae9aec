package loss

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// EvalReconstruction computes Reconstruction on plain slices.
func EvalReconstruction(x, xr []float64, weight float64) (float64, error) {
	return eval(func(g *gorgonia.ExprGraph) (*gorgonia.Node, error) {
		return Reconstruction(column(g, "x", x), column(g, "xr", xr), weight)
	})
}

// EvalDiscriminator computes Discriminator on plain logit slices.
func EvalDiscriminator(realLogits, fakeLogits []float64, weight float64) (float64, error) {
	return eval(func(g *gorgonia.ExprGraph) (*gorgonia.Node, error) {
		return Discriminator(column(g, "real", realLogits), column(g, "fake", fakeLogits), weight)
	})
}

// EvalGenerator computes Generator on a plain logit slice.
func EvalGenerator(fakeLogits []float64, weight float64) (float64, error) {
	return eval(func(g *gorgonia.ExprGraph) (*gorgonia.Node, error) {
		return Generator(column(g, "fake", fakeLogits), weight)
	})
}

func column(g *gorgonia.ExprGraph, name string, vals []float64) *gorgonia.Node {
	backing := append([]float64(nil), vals...)
	return gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(len(vals), 1),
		gorgonia.WithName(name),
		gorgonia.WithValue(tensor.New(tensor.WithShape(len(vals), 1), tensor.WithBacking(backing))),
	)
}

func eval(build func(*gorgonia.ExprGraph) (*gorgonia.Node, error)) (float64, error) {
	g := gorgonia.NewGraph()
	cost, err := build(g)
	if err != nil {
		return 0, err
	}
	var val gorgonia.Value
	gorgonia.Read(cost, &val)
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return 0, errors.Wrap(err, "run loss graph")
	}
	f, ok := val.Data().(float64)
	if !ok {
		return 0, errors.Errorf("loss is %T, want float64", val.Data())
	}
	return f, nil
}
