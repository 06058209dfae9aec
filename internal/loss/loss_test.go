package loss

import (
	"math"
	"testing"
)

// mustEval returns a checker for the (value, error) pair of an Eval* call.
func mustEval(t *testing.T) func(float64, error) float64 {
	t.Helper()
	return func(v float64, err error) float64 {
		t.Helper()
		if err != nil {
			t.Fatalf("eval: %v", err)
		}
		return v
	}
}

func TestReconstructionZeroOnIdentity(t *testing.T) {
	x := []float64{0, 0.25, 0.5, 1}
	for _, w := range []float64{0, 1, 3.5} {
		got := mustEval(t)(EvalReconstruction(x, x, w))
		if got != 0 {
			t.Fatalf("weight %g: reconstruction of identical input = %g", w, got)
		}
	}
}

func TestReconstructionValue(t *testing.T) {
	got := mustEval(t)(EvalReconstruction([]float64{0, 1}, []float64{1, 1}, 2))
	if math.Abs(got-1) > 1e-12 {
		t.Fatalf("expected 2 * 0.5 = 1, got %g", got)
	}
}

func TestReconstructionShapeMismatch(t *testing.T) {
	if _, err := EvalReconstruction([]float64{0, 1}, []float64{1}, 1); err == nil {
		t.Fatal("expected shape error")
	}
}

func TestDiscriminatorMonotonic(t *testing.T) {
	realLogits := []float64{2, 2, 2}
	near := mustEval(t)(EvalDiscriminator(realLogits, []float64{0, 0, 0}, 1))
	far := mustEval(t)(EvalDiscriminator(realLogits, []float64{-50, -50, -50}, 1))
	if !(near > far) {
		t.Fatalf("expected confident fake logits to lower loss: near=%g far=%g", near, far)
	}
	want := math.Log1p(math.Exp(-2)) + math.Ln2
	if math.Abs(near-want) > 1e-9 {
		t.Fatalf("discriminator loss %g want %g", near, want)
	}
}

func TestDiscriminatorStableForExtremeLogits(t *testing.T) {
	got := mustEval(t)(EvalDiscriminator([]float64{-1000}, []float64{1000}, 1))
	if math.IsInf(got, 0) || math.IsNaN(got) {
		t.Fatalf("loss not finite: %g", got)
	}
}

func TestGeneratorMonotonic(t *testing.T) {
	prev := math.Inf(1)
	for _, l := range []float64{-20, -5, -1, 0, 1, 5, 20} {
		got := mustEval(t)(EvalGenerator([]float64{l, l}, 1))
		if !(got < prev) {
			t.Fatalf("generator loss not strictly decreasing at logit %g: %g >= %g", l, got, prev)
		}
		prev = got
	}
}

func TestGeneratorWeight(t *testing.T) {
	one := mustEval(t)(EvalGenerator([]float64{0.3}, 1))
	three := mustEval(t)(EvalGenerator([]float64{0.3}, 3))
	if math.Abs(three-3*one) > 1e-12 {
		t.Fatalf("weight not applied: %g vs 3*%g", three, one)
	}
}

func TestAccuracy(t *testing.T) {
	got := Accuracy([]float64{1, -1, 0.1}, []float64{-2, 3, 0})
	if math.Abs(got-4.0/6.0) > 1e-12 {
		t.Fatalf("accuracy %g want %g", got, 4.0/6.0)
	}
	if Accuracy(nil, nil) != 0 {
		t.Fatal("empty accuracy should be 0")
	}
	// Logits between 0 and 0.5 sit above the probability threshold.
	if got := Accuracy([]float64{0.3}, []float64{-0.3}); got != 1 {
		t.Fatalf("accuracy near the threshold %g want 1", got)
	}
}
