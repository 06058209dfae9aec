package trainer

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"aae-forge/internal/config"
	"aae-forge/internal/dataset"
	"aae-forge/internal/loss"
	"aae-forge/internal/model"
)

// Weights scale the three loss families.
type Weights struct {
	AE  float64
	Gen float64
	DC  float64
}

// objective is what a sub-step graph computes: a scalar cost and, for the
// discriminator steps, the real and fake logits used for accuracy.
type objective struct {
	cost       *gorgonia.Node
	real, fake *gorgonia.Node
}

// stepSpec declares one sub-step: which nets receive gradients and how the
// objective is assembled from forward passes.
type stepSpec struct {
	name   string
	trains func(b *model.Bank) []*model.Net
	build  func(s *scope) (objective, error)
}

// specs lists the five sub-steps in execution order. The autoencoder step
// runs first so later steps observe the updated encoder and decoder.
func specs(w Weights) []stepSpec {
	return []stepSpec{
		{
			name:   config.StepAE,
			trains: func(b *model.Bank) []*model.Net { return []*model.Net{b.Encoder, b.Decoder} },
			build: func(s *scope) (objective, error) {
				xr, err := s.reconstruct()
				if err != nil {
					return objective{}, err
				}
				cost, err := loss.Reconstruction(s.x, xr, w.AE)
				return objective{cost: cost}, err
			},
		},
		{
			name:   config.StepDCZ,
			trains: func(b *model.Bank) []*model.Net { return []*model.Net{b.LatentDisc} },
			build: func(s *scope) (objective, error) {
				z, err := s.encode()
				if err != nil {
					return objective{}, err
				}
				realLogits, err := s.apply(s.bank.LatentDisc, s.priorInput())
				if err != nil {
					return objective{}, err
				}
				fakeLogits, err := s.apply(s.bank.LatentDisc, z)
				if err != nil {
					return objective{}, err
				}
				cost, err := loss.Discriminator(realLogits, fakeLogits, w.DC)
				return objective{cost: cost, real: realLogits, fake: fakeLogits}, err
			},
		},
		{
			name:   config.StepGenZ,
			trains: func(b *model.Bank) []*model.Net { return []*model.Net{b.Encoder} },
			build: func(s *scope) (objective, error) {
				z, err := s.encode()
				if err != nil {
					return objective{}, err
				}
				fakeLogits, err := s.apply(s.bank.LatentDisc, z)
				if err != nil {
					return objective{}, err
				}
				cost, err := loss.Generator(fakeLogits, w.Gen)
				return objective{cost: cost}, err
			},
		},
		{
			name:   config.StepDCX,
			trains: func(b *model.Bank) []*model.Net { return []*model.Net{b.ImageDisc} },
			build: func(s *scope) (objective, error) {
				xr, err := s.reconstruct()
				if err != nil {
					return objective{}, err
				}
				realLogits, err := s.apply(s.bank.ImageDisc, s.x)
				if err != nil {
					return objective{}, err
				}
				fakeLogits, err := s.apply(s.bank.ImageDisc, xr)
				if err != nil {
					return objective{}, err
				}
				cost, err := loss.Discriminator(realLogits, fakeLogits, w.DC)
				return objective{cost: cost, real: realLogits, fake: fakeLogits}, err
			},
		},
		{
			name:   config.StepGenX,
			trains: func(b *model.Bank) []*model.Net { return []*model.Net{b.Decoder} },
			build: func(s *scope) (objective, error) {
				xr, err := s.reconstruct()
				if err != nil {
					return objective{}, err
				}
				fakeLogits, err := s.apply(s.bank.ImageDisc, xr)
				if err != nil {
					return objective{}, err
				}
				cost, err := loss.Generator(fakeLogits, w.Gen)
				return objective{cost: cost}, err
			},
		},
	}
}

// scope is the graph a single sub-step is built in. Each net is bound at
// most once per scope and reused for every application.
type scope struct {
	g     *gorgonia.ExprGraph
	bank  *model.Bank
	batch int
	x     *gorgonia.Node
	prior *gorgonia.Node
	bound map[*model.Net]*model.Bound
}

func newScope(bank *model.Bank, batch int) *scope {
	g := gorgonia.NewGraph()
	return &scope{
		g:     g,
		bank:  bank,
		batch: batch,
		x: gorgonia.NewTensor(g, tensor.Float64, 4,
			gorgonia.WithShape(batch, dataset.Channels, dataset.Height, dataset.Width),
			gorgonia.WithName("x")),
		bound: make(map[*model.Net]*model.Bound),
	}
}

func (s *scope) net(n *model.Net) *model.Bound {
	b, ok := s.bound[n]
	if !ok {
		b = n.Bind(s.g)
		s.bound[n] = b
	}
	return b
}

func (s *scope) apply(n *model.Net, in *gorgonia.Node) (*gorgonia.Node, error) {
	return s.net(n).Fwd(in)
}

func (s *scope) encode() (*gorgonia.Node, error) {
	return s.apply(s.bank.Encoder, s.x)
}

func (s *scope) reconstruct() (*gorgonia.Node, error) {
	z, err := s.encode()
	if err != nil {
		return nil, err
	}
	return s.apply(s.bank.Decoder, z)
}

func (s *scope) priorInput() *gorgonia.Node {
	if s.prior == nil {
		s.prior = gorgonia.NewMatrix(s.g, tensor.Float64,
			gorgonia.WithShape(s.batch, s.bank.LatentDim),
			gorgonia.WithName("prior"))
	}
	return s.prior
}

func (s *scope) learnables(nets []*model.Net) (gorgonia.Nodes, error) {
	var out gorgonia.Nodes
	for _, n := range nets {
		b, ok := s.bound[n]
		if !ok {
			return nil, errors.Errorf("%s is trained but not used by the objective", n.Name())
		}
		out = append(out, b.Learnables()...)
	}
	return out, nil
}

// batchStats gathers the normalisation moments of every application in
// the scope, net by net in bank order.
func (s *scope) batchStats() []model.BatchStats {
	var out []model.BatchStats
	for _, n := range s.bank.Nets() {
		if b, ok := s.bound[n]; ok {
			out = append(out, b.Stats()...)
		}
	}
	return out
}
