package dataset

import (
	"context"
	"log"

	"github.com/pkg/errors"
)

// OpenOptions selects and configures a data source.
type OpenOptions struct {
	Source        string // "idx", "shards" or "synthetic"
	Dir           string
	TrainRoot     string
	TestRoot      string
	NumWorkers    int
	SyntheticSize int
}

// Open loads the training and held-out splits.
func Open(ctx context.Context, opts OpenOptions) (train, test *Images, err error) {
	switch opts.Source {
	case "idx":
		train, test, err = LoadIDX(opts.Dir)
	case "shards":
		train, err = loadRoot(ctx, opts.TrainRoot, opts.NumWorkers)
		if err == nil {
			test, err = loadRoot(ctx, opts.TestRoot, opts.NumWorkers)
		}
	case "synthetic":
		train, test = Synthetic(opts.SyntheticSize), Synthetic(opts.SyntheticSize)
	default:
		return nil, nil, errors.Errorf("dataset: unknown source %q", opts.Source)
	}
	if err != nil {
		return nil, nil, err
	}
	log.Printf("dataset source=%s train=%d test=%d", opts.Source, train.Len(), test.Len())
	return train, test, nil
}

func loadRoot(ctx context.Context, root string, workers int) (*Images, error) {
	shards, err := DiscoverShards(root)
	if err != nil {
		return nil, errors.Wrapf(err, "discover shards under %s", root)
	}
	if len(shards) == 0 {
		return nil, errors.Errorf("no shards discovered under %s", root)
	}
	log.Printf("root=%s shards=%d", root, len(shards))
	return LoadShards(ctx, LoaderOptions{Shards: shards, NumWorkers: workers})
}
