package model

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func outputShape(t *testing.T, n *Net, batch int) tensor.Shape {
	t.Helper()
	g := gorgonia.NewGraph()
	shape := append(tensor.Shape{batch}, n.InputDims()...)
	x := gorgonia.NewTensor(g, tensor.Float64, len(shape), gorgonia.WithShape(shape...), gorgonia.WithName("x"))
	out, err := n.Bind(g).Fwd(x)
	if err != nil {
		t.Fatalf("%s Fwd: %v", n.Name(), err)
	}
	return out.Shape()
}

func TestBankShapes(t *testing.T) {
	bank := NewBank(2, 42)
	cases := []struct {
		net  *Net
		want tensor.Shape
	}{
		{bank.Encoder, tensor.Shape{4, 2}},
		{bank.Decoder, tensor.Shape{4, 1, 28, 28}},
		{bank.LatentDisc, tensor.Shape{4, 1}},
		{bank.ImageDisc, tensor.Shape{4, 1}},
	}
	for _, c := range cases {
		if got := outputShape(t, c.net, 4); !got.Eq(c.want) {
			t.Fatalf("%s output shape %v want %v", c.net.Name(), got, c.want)
		}
	}
}

func TestBankDeterministicAndUnaliased(t *testing.T) {
	a := NewBank(2, 7)
	b := NewBank(2, 7)
	for i, n := range a.Nets() {
		other := b.Nets()[i]
		for j, p := range n.Params() {
			if !reflect.DeepEqual(p.Value.Data(), other.Params()[j].Value.Data()) {
				t.Fatalf("%s/%s differs between identical seeds", n.Name(), p.Name)
			}
		}
	}

	seen := map[*tensor.Dense]string{}
	for _, n := range a.Nets() {
		for _, p := range n.Params() {
			if owner, ok := seen[p.Value]; ok {
				t.Fatalf("%s/%s aliases a tensor of %s", n.Name(), p.Name, owner)
			}
			seen[p.Value] = n.Name()
		}
	}
}

func TestGlorotBounds(t *testing.T) {
	bank := NewBank(2, 1)
	w := bank.LatentDisc.Params()[0].Value.Data().([]float64)
	limit := 0.2149 // sqrt(6/130)
	for _, v := range w {
		if v < -limit || v > limit {
			t.Fatalf("weight %f outside glorot limit", v)
		}
	}
	b := bank.LatentDisc.Params()[1].Value.Data().([]float64)
	for _, v := range b {
		if v != 0 {
			t.Fatalf("bias not zero-initialised: %f", v)
		}
	}
}

func TestInferencePadsAndTrims(t *testing.T) {
	bank := NewBank(2, 3)
	inf, err := NewInference(4, bank.Decoder)
	if err != nil {
		t.Fatalf("NewInference: %v", err)
	}
	defer inf.Close()

	codes := []float64{0, 0, 1, -1, 2, 0.5, -3, 3, 0.1, 0.2}
	out, err := inf.Run(codes, 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 5*28*28 {
		t.Fatalf("expected %d values, got %d", 5*28*28, len(out))
	}
	for _, v := range out {
		if v <= 0 || v >= 1 {
			t.Fatalf("sigmoid output out of range: %f", v)
		}
	}

	again, err := inf.Run(codes[:2], 1)
	if err != nil {
		t.Fatalf("Run single: %v", err)
	}
	if !reflect.DeepEqual(again, out[:28*28]) {
		t.Fatal("decoding depends on batch neighbours")
	}
}

func TestInferenceRejectsLengthMismatch(t *testing.T) {
	inf, err := NewInference(2, NewBank(2, 1).LatentDisc)
	if err != nil {
		t.Fatalf("NewInference: %v", err)
	}
	defer inf.Close()
	if _, err := inf.Run([]float64{1, 2, 3}, 2); err == nil {
		t.Fatal("expected length error")
	}
}

func TestBatchNormParams(t *testing.T) {
	bank := NewBank(2, 1)
	var gammas, stats int
	for _, p := range bank.Encoder.Params() {
		data := p.Value.Data().([]float64)
		switch {
		case strings.HasSuffix(p.Name, "_gamma"), strings.HasSuffix(p.Name, "_var"):
			for _, v := range data {
				if v != 1 {
					t.Fatalf("%s not initialised to 1: %f", p.Name, v)
				}
			}
		case strings.HasSuffix(p.Name, "_beta"), strings.HasSuffix(p.Name, "_mean"):
			for _, v := range data {
				if v != 0 {
					t.Fatalf("%s not initialised to 0: %f", p.Name, v)
				}
			}
		}
		if strings.HasSuffix(p.Name, "_gamma") {
			gammas++
		}
		if !p.Trainable {
			stats++
		}
	}
	if gammas != 3 || stats != 6 {
		t.Fatalf("expected 3 norm layers with 6 moving tensors, got %d/%d", gammas, stats)
	}
}

func TestTrainingForwardRecordsMoments(t *testing.T) {
	bank := NewBank(2, 1)
	g := gorgonia.NewGraph()
	x := gorgonia.NewTensor(g, tensor.Float64, 4, gorgonia.WithShape(4, 1, 28, 28), gorgonia.WithName("x"))
	b := bank.ImageDisc.Bind(g)
	if _, err := b.Fwd(x); err != nil {
		t.Fatalf("Fwd: %v", err)
	}
	if _, err := b.Fwd(x); err != nil {
		t.Fatalf("second Fwd: %v", err)
	}
	if got := len(b.Stats()); got != 4 {
		t.Fatalf("expected 2 norm layers x 2 applications, got %d", got)
	}
	if got := len(b.Learnables()); got != 12 {
		t.Fatalf("expected 12 trainable nodes, got %d", got)
	}

	p := bank.ImageDisc.Bind(gorgonia.NewGraph())
	y := gorgonia.NewTensor(p.g, tensor.Float64, 4, gorgonia.WithShape(4, 1, 28, 28), gorgonia.WithName("x"))
	if _, err := p.Predict(y); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(p.Stats()) != 0 {
		t.Fatalf("inference mode must not record moments")
	}
}

func TestAccumulateMovesTowardsBatch(t *testing.T) {
	bank := NewBank(2, 1)
	g := gorgonia.NewGraph()
	x := gorgonia.NewTensor(g, tensor.Float64, 4, gorgonia.WithShape(2, 1, 28, 28), gorgonia.WithName("x"))
	b := bank.Encoder.Bind(g)
	if _, err := b.Fwd(x); err != nil {
		t.Fatalf("Fwd: %v", err)
	}
	first := b.Stats()[0]
	mean := make([]float64, 64)
	variance := make([]float64, 64)
	for i := range mean {
		mean[i], variance[i] = 1, 3
	}
	if err := first.Accumulate(mean, variance); err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	mm := first.movingMean.Data().([]float64)
	mv := first.movingVar.Data().([]float64)
	if math.Abs(mm[0]-0.01) > 1e-12 || math.Abs(mv[0]-1.02) > 1e-12 {
		t.Fatalf("unexpected moving stats %f %f", mm[0], mv[0])
	}
	if err := first.Accumulate(mean[:3], variance); err == nil {
		t.Fatal("expected channel mismatch error")
	}
}

func TestEncoderInferenceIsPerSample(t *testing.T) {
	bank := NewBank(2, 5)
	inf, err := NewInference(3, bank.Encoder)
	if err != nil {
		t.Fatalf("NewInference: %v", err)
	}
	defer inf.Close()

	data := make([]float64, 3*28*28)
	for i := range data {
		data[i] = float64(i%17) / 17
	}
	all, err := inf.Run(data, 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	one, err := inf.Run(data[:28*28], 1)
	if err != nil {
		t.Fatalf("Run single: %v", err)
	}
	if !reflect.DeepEqual(one, all[:2]) {
		t.Fatalf("encoding depends on batch neighbours: %v vs %v", one, all[:2])
	}
	if inf.OutputSize() != 2 {
		t.Fatalf("output size %d", inf.OutputSize())
	}
}

func TestNumParamsCountsEveryTensor(t *testing.T) {
	bank := NewBank(2, 1)
	// 2*128+128 + 128*128+128 + 128*1+1
	if got := bank.LatentDisc.NumParams(); got != 17025 {
		t.Fatalf("latent discriminator params %d want 17025", got)
	}
	var total int
	for _, p := range bank.Encoder.Params() {
		total += len(p.Value.Data().([]float64))
	}
	if bank.Encoder.NumParams() != total {
		t.Fatalf("encoder params %d want %d", bank.Encoder.NumParams(), total)
	}
}
