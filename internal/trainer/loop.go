package trainer

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"aae-forge/internal/dataset"
	"aae-forge/internal/metrics"
)

// StepRunner trains on one batch and reports its losses and accuracies.
type StepRunner interface {
	Step(batch dataset.Batch) (metrics.Values, error)
}

// Renderer draws the per-epoch figures.
type Renderer interface {
	Render(epoch int) error
}

// Checkpointer persists model parameters.
type Checkpointer interface {
	Save(epoch int) error
}

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Epochs int
	// StartEpoch is the first epoch to run; earlier shuffles are replayed
	// so a resumed run sees the same batch order as an uninterrupted one.
	StartEpoch     int
	VisualizeEvery int
	Seed           int64

	Data *dataset.Provider
	Step StepRunner
	// Render and Checkpoint are optional.
	Render     Renderer
	Checkpoint Checkpointer

	// Progress receives one line per epoch. Defaults to io.Discard.
	Progress io.Writer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Run executes the training workload and returns one summary per epoch.
func Run(ctx context.Context, cfg RunConfig) ([]metrics.Snapshot, error) {
	if cfg.Epochs <= 0 {
		return nil, errors.New("trainer: epochs must be > 0")
	}
	if cfg.StartEpoch < 0 || cfg.StartEpoch >= cfg.Epochs {
		return nil, errors.Errorf("trainer: start epoch %d outside [0, %d)", cfg.StartEpoch, cfg.Epochs)
	}
	if cfg.Data == nil {
		return nil, errors.New("trainer: no data provider")
	}
	if cfg.Step == nil {
		return nil, errors.New("trainer: no step runner")
	}
	if cfg.VisualizeEvery <= 0 {
		cfg.VisualizeEvery = 10
	}
	if cfg.Progress == nil {
		cfg.Progress = io.Discard
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	shuffle := rand.New(rand.NewSource(cfg.Seed))
	var window metrics.Window
	for epoch := 0; epoch < cfg.StartEpoch; epoch++ {
		cfg.Data.Epoch(shuffle)
	}
	snaps := make([]metrics.Snapshot, 0, cfg.Epochs-cfg.StartEpoch)

	for epoch := cfg.StartEpoch; epoch < cfg.Epochs; epoch++ {
		window.Start(cfg.Now())
		batches := cfg.Data.Epoch(shuffle)
		for {
			if err := ctx.Err(); err != nil {
				return snaps, err
			}
			batch, ok := batches.Next()
			if !ok {
				break
			}
			vals, err := cfg.Step.Step(batch)
			if err != nil {
				return snaps, errors.Wrapf(err, "epoch %d", epoch)
			}
			window.Record(vals)
		}

		snap := window.Snapshot(epoch, cfg.Epochs-epoch, cfg.Now())
		snaps = append(snaps, snap)
		if _, err := fmt.Fprintln(cfg.Progress, snap.String()); err != nil {
			return snaps, errors.Wrap(err, "write progress")
		}

		visualize := epoch%cfg.VisualizeEvery == 0
		if visualize && cfg.Render != nil {
			if err := cfg.Render.Render(epoch); err != nil {
				return snaps, errors.Wrapf(err, "render epoch %d", epoch)
			}
		}
		if cfg.Checkpoint != nil && (visualize || epoch == cfg.Epochs-1) {
			if err := cfg.Checkpoint.Save(epoch); err != nil {
				return snaps, errors.Wrapf(err, "checkpoint epoch %d", epoch)
			}
		}
	}

	log.Printf("training done epochs=%d..%d batch_size=%d batches_per_epoch=%d dropped_per_epoch=%d",
		cfg.StartEpoch, cfg.Epochs-1, cfg.Data.BatchSize(), cfg.Data.NumBatches(), cfg.Data.Dropped())
	return snaps, nil
}
