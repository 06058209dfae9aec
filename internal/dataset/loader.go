package dataset

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// LoaderOptions configures LoadShards.
type LoaderOptions struct {
	Shards     []string
	NumWorkers int
	PendingCap int
}

// LoadShards decodes every shard with a pool of workers and returns the
// samples concatenated in shard order, independent of worker scheduling.
func LoadShards(parent context.Context, opts LoaderOptions) (*Images, error) {
	if len(opts.Shards) == 0 {
		return nil, errors.New("loader: no shards provided")
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.PendingCap <= 0 {
		opts.PendingCap = defaultPendingCap
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	jobs := make(chan shardJob, opts.NumWorkers)
	results := make(chan shardResult, opts.NumWorkers)

	go produceJobs(ctx, jobs, opts.Shards)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, jobs, results, opts.PendingCap)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return aggregate(ctx, cancel, results, len(opts.Shards))
}

type shardJob struct {
	id   int
	path string
}

type shardResult struct {
	id      int
	path    string
	samples []Sample
	err     error
}

func produceJobs(ctx context.Context, jobs chan<- shardJob, shards []string) {
	defer close(jobs)
	for id, path := range shards {
		select {
		case <-ctx.Done():
			return
		case jobs <- shardJob{id: id, path: path}:
		}
	}
}

func worker(ctx context.Context, jobs <-chan shardJob, results chan<- shardResult, pendingCap int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			res := shardResult{id: job.id, path: job.path}
			res.samples, res.err = readShard(ctx, job.path, pendingCap)
			select {
			case <-ctx.Done():
				return
			case results <- res:
			}
		}
	}
}

func readShard(ctx context.Context, path string, pendingCap int) ([]Sample, error) {
	samples, errCh := StreamShard(ctx, path, pendingCap)
	var out []Sample
	for sample := range samples {
		out = append(out, sample)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return out, nil
}

func aggregate(ctx context.Context, cancel context.CancelFunc, results <-chan shardResult, total int) (*Images, error) {
	pending := make(map[int]shardResult)
	images := &Images{}
	next := 0
	for next < total {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res, ok := <-results:
			if !ok {
				return nil, errors.Errorf("loader: workers exited after %d of %d shards", next, total)
			}
			if res.err != nil {
				cancel()
				return nil, errors.Wrapf(res.err, "shard %s", res.path)
			}
			pending[res.id] = res
		}
		for {
			res, ok := pending[next]
			if !ok {
				break
			}
			for _, s := range res.samples {
				if err := images.append(s.Pixels, s.Label); err != nil {
					return nil, errors.Wrapf(err, "shard %s sample %s", res.path, s.Key)
				}
			}
			delete(pending, next)
			next++
		}
	}
	return images, nil
}
