package model

import (
	"math/rand"

	"aae-forge/internal/dataset"
)

// Net names.
const (
	EncoderName    = "encoder"
	DecoderName    = "decoder"
	LatentDiscName = "dc_z"
	ImageDiscName  = "dc_x"
)

// Bank holds the four networks of the adversarial autoencoder.
type Bank struct {
	LatentDim  int
	Encoder    *Net
	Decoder    *Net
	LatentDisc *Net
	ImageDisc  *Net
}

// NewBank builds all networks, drawing initial weights from a single
// rng seeded with seed in a fixed order.
func NewBank(latentDim int, seed int64) *Bank {
	rng := rand.New(rand.NewSource(seed))
	return &Bank{
		LatentDim:  latentDim,
		Encoder:    NewNet(EncoderName, imageDims(), encoderLayers(latentDim), rng),
		Decoder:    NewNet(DecoderName, []int{latentDim}, decoderLayers(latentDim), rng),
		LatentDisc: NewNet(LatentDiscName, []int{latentDim}, latentDiscLayers(latentDim), rng),
		ImageDisc:  NewNet(ImageDiscName, imageDims(), imageDiscLayers(), rng),
	}
}

// Nets returns the networks in construction order.
func (b *Bank) Nets() []*Net {
	return []*Net{b.Encoder, b.Decoder, b.LatentDisc, b.ImageDisc}
}

func imageDims() []int {
	return []int{dataset.Channels, dataset.Height, dataset.Width}
}

// 28 -> 14 -> 7 -> 4 -> 2 -> 1
func encoderLayers(z int) []Layer {
	return []Layer{
		Conv(1, 32, 3, 2, 1, LeakyReLU),
		Conv(32, 64, 3, 2, 1, NoActivation),
		BatchNorm(64, LeakyReLU),
		Conv(64, 64, 3, 2, 1, NoActivation),
		BatchNorm(64, LeakyReLU),
		Conv(64, 128, 3, 2, 1, NoActivation),
		BatchNorm(128, LeakyReLU),
		Conv(128, z, 3, 2, 1, NoActivation),
		Reshape(z),
	}
}

// 1 -> 2 -> 4 -> 8 -> 16 -> 14 (valid) -> 28
func decoderLayers(z int) []Layer {
	return []Layer{
		Reshape(z, 1, 1),
		Conv(z, 64, 3, 1, 1, ReLU),
		Upsample(2),
		Conv(64, 64, 3, 1, 1, ReLU),
		Upsample(2),
		Conv(64, 64, 3, 1, 1, ReLU),
		Upsample(2),
		Conv(64, 64, 3, 1, 1, ReLU),
		Upsample(2),
		Conv(64, 64, 3, 1, 0, ReLU),
		Upsample(2),
		Conv(64, 1, 3, 1, 1, Sigmoid),
	}
}

func latentDiscLayers(z int) []Layer {
	return []Layer{
		Dense(z, 128, LeakyReLU),
		Dense(128, 128, LeakyReLU),
		Dense(128, 1, NoActivation),
	}
}

// 28 -> 14 -> 7 -> 4 -> 1; the third conv pads by 2 to land on 4x4.
func imageDiscLayers() []Layer {
	return []Layer{
		Conv(1, 16, 4, 2, 1, LeakyReLU),
		Conv(16, 32, 4, 2, 1, NoActivation),
		BatchNorm(32, LeakyReLU),
		Conv(32, 64, 4, 2, 2, NoActivation),
		BatchNorm(64, LeakyReLU),
		Conv(64, 1, 4, 1, 0, NoActivation),
		Reshape(1),
	}
}
