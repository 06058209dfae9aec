// Package loss builds the autoencoder and adversarial objectives as
// gorgonia expressions. Discriminator outputs are raw logits; the binary
// cross-entropy terms go through a softplus that never exponentiates a
// positive number, so large logits stay finite:
// BCE(l, 1) = softplus(-l) and BCE(l, 0) = softplus(l).
package loss

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Reconstruction is weight * mean((x - xr)^2).
func Reconstruction(x, xr *gorgonia.Node, weight float64) (*gorgonia.Node, error) {
	if !x.Shape().Eq(xr.Shape()) {
		return nil, errors.Errorf("reconstruction: shape %v != %v", x.Shape(), xr.Shape())
	}
	diff, err := gorgonia.Sub(x, xr)
	if err != nil {
		return nil, errors.Wrap(err, "reconstruction: subtract")
	}
	sq, err := gorgonia.Square(diff)
	if err != nil {
		return nil, errors.Wrap(err, "reconstruction: square")
	}
	mse, err := gorgonia.Mean(sq)
	if err != nil {
		return nil, errors.Wrap(err, "reconstruction: mean")
	}
	return scale(mse, weight)
}

// Discriminator is weight * (BCE(real, 1) + BCE(fake, 0)).
func Discriminator(realLogits, fakeLogits *gorgonia.Node, weight float64) (*gorgonia.Node, error) {
	lossReal, err := bceOnes(realLogits)
	if err != nil {
		return nil, errors.Wrap(err, "discriminator: real term")
	}
	lossFake, err := bceZeros(fakeLogits)
	if err != nil {
		return nil, errors.Wrap(err, "discriminator: fake term")
	}
	sum, err := gorgonia.Add(lossReal, lossFake)
	if err != nil {
		return nil, errors.Wrap(err, "discriminator: sum")
	}
	return scale(sum, weight)
}

// Generator is weight * BCE(fake, 1).
func Generator(fakeLogits *gorgonia.Node, weight float64) (*gorgonia.Node, error) {
	l, err := bceOnes(fakeLogits)
	if err != nil {
		return nil, errors.Wrap(err, "generator")
	}
	return scale(l, weight)
}

func bceOnes(logits *gorgonia.Node) (*gorgonia.Node, error) {
	neg, err := gorgonia.Neg(logits)
	if err != nil {
		return nil, err
	}
	return meanSoftplus(neg)
}

func bceZeros(logits *gorgonia.Node) (*gorgonia.Node, error) {
	return meanSoftplus(logits)
}

func meanSoftplus(x *gorgonia.Node) (*gorgonia.Node, error) {
	sp, err := softplus(x)
	if err != nil {
		return nil, err
	}
	return gorgonia.Mean(sp)
}

// softplus(x) = max(x, 0) + log(1 + exp(-|x|))
func softplus(x *gorgonia.Node) (*gorgonia.Node, error) {
	pos, err := gorgonia.Rectify(x)
	if err != nil {
		return nil, err
	}
	abs, err := gorgonia.Abs(x)
	if err != nil {
		return nil, err
	}
	negAbs, err := gorgonia.Neg(abs)
	if err != nil {
		return nil, err
	}
	e, err := gorgonia.Exp(negAbs)
	if err != nil {
		return nil, err
	}
	tail, err := gorgonia.Log1p(e)
	if err != nil {
		return nil, err
	}
	return gorgonia.Add(pos, tail)
}

func scale(x *gorgonia.Node, weight float64) (*gorgonia.Node, error) {
	if weight == 1 {
		return x, nil
	}
	return gorgonia.Mul(x, gorgonia.NewConstant(weight))
}

// Accuracy is the fraction of correct decisions over real samples labelled
// 1 and fake samples labelled 0, predicting "real" when the logit is
// positive (sigmoid > 0.5). Keras' BinaryAccuracy fed raw logits would
// threshold the logit itself at 0.5; this thresholds the probability.
func Accuracy(realLogits, fakeLogits []float64) float64 {
	total := len(realLogits) + len(fakeLogits)
	if total == 0 {
		return 0
	}
	correct := 0
	for _, l := range realLogits {
		if l > 0 {
			correct++
		}
	}
	for _, l := range fakeLogits {
		if l <= 0 {
			correct++
		}
	}
	return float64(correct) / float64(total)
}
