package trainer

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"aae-forge/internal/config"
	"aae-forge/internal/dataset"
	"aae-forge/internal/loss"
	"aae-forge/internal/metrics"
	"aae-forge/internal/model"
)

// StepOptions configures a Stepper.
type StepOptions struct {
	BatchSize    int
	LearningRate float64
	Weights      Weights
	// Updates maps a sub-step name to whether its optimizer update is
	// applied. Losses are computed for every sub-step either way.
	Updates map[string]bool
	// Seed drives the prior samples of the latent discriminator step.
	Seed int64
}

// subStep is one compiled sub-step: its own graph, machine and solver.
type subStep struct {
	name       string
	update     bool
	x          *gorgonia.Node
	prior      *gorgonia.Node
	learnables gorgonia.Nodes

	costVal gorgonia.Value
	realVal gorgonia.Value
	fakeVal gorgonia.Value
	moments []*momentRead

	vm     gorgonia.VM
	solver gorgonia.Solver
}

// momentRead captures one normalisation layer's batch moments.
type momentRead struct {
	stats    model.BatchStats
	mean     gorgonia.Value
	variance gorgonia.Value
}

// Stepper runs the five sub-steps over a batch.
type Stepper struct {
	bank  *model.Bank
	batch int
	steps []*subStep
	prior *rand.Rand
}

// NewStepper compiles every sub-step for bank at a fixed batch size.
func NewStepper(bank *model.Bank, opts StepOptions) (*Stepper, error) {
	if opts.BatchSize <= 0 {
		return nil, errors.Errorf("trainer: batch size must be > 0 (got %d)", opts.BatchSize)
	}
	if opts.LearningRate <= 0 {
		return nil, errors.Errorf("trainer: learning rate must be > 0 (got %g)", opts.LearningRate)
	}
	st := &Stepper{
		bank:  bank,
		batch: opts.BatchSize,
		prior: rand.New(rand.NewSource(opts.Seed + 1)),
	}
	for _, spec := range specs(opts.Weights) {
		sub, err := compile(bank, spec, opts)
		if err != nil {
			st.Close()
			return nil, errors.Wrapf(err, "compile %s", spec.name)
		}
		st.steps = append(st.steps, sub)
	}
	return st, nil
}

func compile(bank *model.Bank, spec stepSpec, opts StepOptions) (*subStep, error) {
	s := newScope(bank, opts.BatchSize)
	obj, err := spec.build(s)
	if err != nil {
		return nil, err
	}
	learnables, err := s.learnables(spec.trains(bank))
	if err != nil {
		return nil, err
	}
	if _, err := gorgonia.Grad(obj.cost, learnables...); err != nil {
		return nil, errors.Wrap(err, "gradients")
	}

	sub := &subStep{
		name:       spec.name,
		update:     opts.Updates[spec.name],
		x:          s.x,
		prior:      s.prior,
		learnables: learnables,
	}
	gorgonia.Read(obj.cost, &sub.costVal)
	if obj.real != nil {
		gorgonia.Read(obj.real, &sub.realVal)
		gorgonia.Read(obj.fake, &sub.fakeVal)
	}
	for _, stats := range s.batchStats() {
		r := &momentRead{stats: stats}
		gorgonia.Read(stats.Mean, &r.mean)
		gorgonia.Read(stats.Variance, &r.variance)
		sub.moments = append(sub.moments, r)
	}
	sub.vm = gorgonia.NewTapeMachine(s.g, gorgonia.BindDualValues(learnables...))
	sub.solver = gorgonia.NewAdamSolver(
		gorgonia.WithLearnRate(opts.LearningRate),
		gorgonia.WithBeta1(0.9),
		gorgonia.WithBeta2(0.999),
		gorgonia.WithEps(1e-7),
	)
	return sub, nil
}

// Step runs ae, dc_z, gen_z, dc_x and gen_x in order on one batch. Each
// sub-step sees the parameters left by the ones before it.
func (st *Stepper) Step(batch dataset.Batch) (metrics.Values, error) {
	var out metrics.Values
	if batch.Size != st.batch || len(batch.Pixels) != st.batch*dataset.Pixels {
		return out, errors.Errorf("trainer: batch of %d (%d values), want %d", batch.Size, len(batch.Pixels), st.batch)
	}
	for _, sub := range st.steps {
		cost, acc, err := st.run(sub, batch)
		if err != nil {
			return out, errors.Wrapf(err, "step %s", sub.name)
		}
		switch sub.name {
		case config.StepAE:
			out.AELoss = cost
		case config.StepDCZ:
			out.DCZLoss, out.DCZAcc = cost, acc
		case config.StepGenZ:
			out.GenZLoss = cost
		case config.StepDCX:
			out.DCXLoss, out.DCXAcc = cost, acc
		case config.StepGenX:
			out.GenXLoss = cost
		}
	}
	return out, nil
}

func (st *Stepper) run(sub *subStep, batch dataset.Batch) (float64, float64, error) {
	defer sub.vm.Reset()

	x := tensor.New(
		tensor.WithShape(st.batch, dataset.Channels, dataset.Height, dataset.Width),
		tensor.WithBacking(append([]float64(nil), batch.Pixels...)),
	)
	if err := gorgonia.Let(sub.x, x); err != nil {
		return 0, 0, errors.Wrap(err, "bind batch")
	}
	if sub.prior != nil {
		if err := gorgonia.Let(sub.prior, st.samplePrior()); err != nil {
			return 0, 0, errors.Wrap(err, "bind prior")
		}
	}
	if err := sub.vm.RunAll(); err != nil {
		return 0, 0, errors.Wrap(err, "run")
	}

	cost, ok := sub.costVal.Data().(float64)
	if !ok {
		return 0, 0, errors.Errorf("cost is %T, want float64", sub.costVal.Data())
	}
	// Every training-mode pass moves the normalisation statistics, whether
	// or not this sub-step's optimizer update is applied.
	for _, r := range sub.moments {
		mean, ok1 := r.mean.Data().([]float64)
		variance, ok2 := r.variance.Data().([]float64)
		if !ok1 || !ok2 {
			return 0, 0, errors.New("batch moments are not float64 slices")
		}
		if err := r.stats.Accumulate(mean, variance); err != nil {
			return 0, 0, err
		}
	}

	var acc float64
	if sub.realVal != nil {
		realLogits, ok1 := sub.realVal.Data().([]float64)
		fakeLogits, ok2 := sub.fakeVal.Data().([]float64)
		if !ok1 || !ok2 {
			return 0, 0, errors.New("logits are not float64 slices")
		}
		acc = loss.Accuracy(realLogits, fakeLogits)
	}

	if sub.update {
		if err := sub.solver.Step(gorgonia.NodesToValueGrads(sub.learnables)); err != nil {
			return 0, 0, errors.Wrap(err, "optimizer")
		}
	}
	return cost, acc, nil
}

// samplePrior draws a fresh (batch, latent) standard normal sample.
func (st *Stepper) samplePrior() *tensor.Dense {
	z := make([]float64, st.batch*st.bank.LatentDim)
	for i := range z {
		z[i] = st.prior.NormFloat64()
	}
	return tensor.New(tensor.WithShape(st.batch, st.bank.LatentDim), tensor.WithBacking(z))
}

// Close releases every machine.
func (st *Stepper) Close() error {
	var first error
	for _, sub := range st.steps {
		if err := sub.vm.Close(); err != nil && first == nil {
			first = err
		}
	}
	st.steps = nil
	return first
}
