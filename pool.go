package consumer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// shardTask is a single shard read for one cycle: the shard, a copy of its
// checkpoint and its share of the cycle budget.
type shardTask struct {
	shardID    string
	checkpoint ShardCheckpoint
	budget     int
}

// workerPool runs the shard tasks of a cycle concurrently and collects their
// outcomes in completion order.
type workerPool struct {
	name       string
	numWorkers int
	fn         func(context.Context, shardTask) (WorkerOutcome, error)
}

func newWorkerPool(name string, numWorkers int, fn func(context.Context, shardTask) (WorkerOutcome, error)) *workerPool {
	return &workerPool{
		name:       fmt.Sprintf("wp-%s", name),
		numWorkers: numWorkers,
		fn:         fn,
	}
}

// run blocks until every task finished. The first error cancels the context
// handed to the remaining tasks and is returned instead of the outcomes.
func (wp *workerPool) run(ctx context.Context, tasks []shardTask) ([]WorkerOutcome, error) {
	g, ctx := errgroup.WithContext(ctx)
	if wp.numWorkers > 0 {
		g.SetLimit(wp.numWorkers)
	}

	outc := make(chan WorkerOutcome, len(tasks))
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			out, err := wp.fn(ctx, task)
			if err != nil {
				return err
			}
			outc <- out
			return nil
		})
	}

	err := g.Wait()
	close(outc)
	if err != nil {
		return nil, err
	}

	outcomes := make([]WorkerOutcome, 0, len(tasks))
	for out := range outc {
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
