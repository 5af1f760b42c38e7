package consumer

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/awslabs/kinesis-aggregation/go/v2/deaggregator"
	"github.com/juju/clock"
	"golang.org/x/time/rate"
)

// WorkerState is the position of a shard worker in its read loop.
type WorkerState int

const (
	StateInit WorkerState = iota
	StateIterating
	StateDrained
	StateBudgetExhausted
	StateClosed
	StateRetryExhausted
	StateStopped
)

func (s WorkerState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateIterating:
		return "iterating"
	case StateDrained:
		return "drained"
	case StateBudgetExhausted:
		return "budget-exhausted"
	case StateClosed:
		return "closed"
	case StateRetryExhausted:
		return "retry-exhausted"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WorkerOutcome is what a shard worker reports back at the end of a cycle.
type WorkerOutcome struct {
	ShardID string
	Records []Record

	// Checkpoint is the worker's final checkpoint. It equals the checkpoint
	// the worker started with when no record was read.
	Checkpoint ShardCheckpoint

	// Closed is set when the shard has been split or merged and has no more
	// records to hand out.
	Closed bool

	// Stale is set when the shard returned nothing and its last record is
	// older than the staleness threshold.
	Stale bool

	State WorkerState
}

// shardWorker reads one shard for one cycle. It owns a private copy of the
// shard's checkpoint and never touches the shard map.
type shardWorker struct {
	streamName string
	shardID    string
	start      ShardCheckpoint
	budget     int

	client  KinesisAPI
	retry   RetryPolicy
	decoder Decoder
	clock   clock.Clock
	limiter *rate.Limiter
	logger  *slog.Logger
	counter Counter
	cfg     Config
}

func (w *shardWorker) run(ctx context.Context) (WorkerOutcome, error) {
	out := WorkerOutcome{
		ShardID:    w.shardID,
		Checkpoint: w.start,
		State:      StateInit,
	}

	remaining := w.budget
	if remaining <= 0 {
		out.State = StateBudgetExhausted
		return out, nil
	}

	iterator, err := w.shardIterator(ctx)
	if err != nil {
		if class := Classify(err); class.Fatal() {
			return out, newConfigError("GetShardIterator", class, err)
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		w.logger.Warn("get shard iterator failed, skipping shard for this cycle",
			slog.String("error", err.Error()),
		)
		out.State = StateStopped
		return out, nil
	}

	out.State = StateIterating
	for {
		if remaining <= 0 {
			out.State = StateBudgetExhausted
			return out, nil
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return out, err
		}

		var resp *kinesis.GetRecordsOutput
		class, err := w.retry.Do(ctx, func() (err error) {
			resp, err = w.client.GetRecords(ctx, &kinesis.GetRecordsInput{
				ShardIterator: iterator,
				Limit:         aws.Int32(int32(min(remaining, w.cfg.PageLimit))),
			})
			return err
		})
		if err != nil {
			switch {
			case class.Fatal():
				return out, newConfigError("GetRecords", class, err)
			case ctx.Err() != nil:
				return out, ctx.Err()
			case class == Retryable:
				w.logger.Warn("shard still throttled after retries, resuming next cycle",
					slog.Int("retries", w.cfg.MaxRetries),
					slog.String("error", err.Error()),
				)
				out.State = StateRetryExhausted
			default:
				w.logger.Warn("get records failed, resuming next cycle",
					slog.String("error", err.Error()),
				)
				out.State = StateStopped
			}
			return out, nil
		}

		lag := aws.ToInt64(resp.MillisBehindLatest)
		collectorMillisBehindLatest.WithLabelValues(w.streamName, w.shardID).Observe(float64(lag))

		if len(resp.Records) > 0 {
			records, used, last := w.take(resp.Records, remaining)
			out.Records = append(out.Records, records...)
			out.Checkpoint = ShardCheckpoint{
				LastSequenceNumber: last,
				LastProcessedAt:    w.clock.Now(),
			}
			// fresh records make an earlier idle page irrelevant
			out.Stale = false
			remaining -= used

			counterCheckpointsAdvanced.WithLabelValues(w.streamName, w.shardID).Inc()
		} else if out.Checkpoint.IdleSince(w.clock.Now(), w.cfg.StaleAfter) {
			out.Stale = true
		}

		// a closed shard answers without a next iterator
		if resp.NextShardIterator == nil {
			w.logger.Info("shard closed", slog.Int("records", len(out.Records)))
			out.Closed = true
			out.State = StateClosed
			return out, nil
		}
		iterator = resp.NextShardIterator

		if lag == 0 {
			out.State = StateDrained
			return out, nil
		}
	}
}

// shardIterator resumes after the checkpoint of a shard that has been read
// before. A shard that was never read starts at the tip of the stream.
func (w *shardWorker) shardIterator(ctx context.Context) (*string, error) {
	params := &kinesis.GetShardIteratorInput{
		StreamName: aws.String(w.streamName),
		ShardId:    aws.String(w.shardID),
	}

	if w.start.Consumed() && w.start.LastSequenceNumber != "" {
		params.ShardIteratorType = types.ShardIteratorTypeAfterSequenceNumber
		params.StartingSequenceNumber = aws.String(w.start.LastSequenceNumber)
	} else {
		params.ShardIteratorType = types.ShardIteratorTypeLatest
	}

	resp, err := w.client.GetShardIterator(ctx, params)
	if err != nil {
		return nil, err
	}
	return resp.ShardIterator, nil
}

// take turns one page of provider records into Records and reports how many
// user records it consumed from the budget and the sequence number to
// checkpoint. With aggregation on, whole aggregates are taken until the budget
// is reached, so a page overshoots by less than one aggregate and the
// checkpoint never lands inside an aggregate that was left unread.
func (w *shardWorker) take(page []types.Record, remaining int) ([]Record, int, string) {
	if !w.cfg.Aggregation {
		return w.decode(page), len(page), aws.ToString(page[len(page)-1].SequenceNumber)
	}

	var (
		user []types.Record
		last string
	)
	for _, r := range page {
		records, err := deaggregator.DeaggregateRecords([]types.Record{r})
		if err != nil {
			w.logger.Warn("de-aggregation failed, decoding record as it is",
				slog.String("sequence-number", aws.ToString(r.SequenceNumber)),
				slog.String("error", err.Error()),
			)
			records = []types.Record{r}
		}
		user = append(user, records...)
		last = aws.ToString(r.SequenceNumber)

		if len(user) >= remaining {
			break
		}
	}
	return w.decode(user), len(user), last
}

// decode turns user records into Records. Records whose payload cannot be
// decoded are counted and skipped; the checkpoint still moves past them so a
// poison record cannot stall the shard.
func (w *shardWorker) decode(records []types.Record) []Record {
	out := make([]Record, 0, len(records))
	var malformed int
	for _, r := range records {
		rec := newRecord(w.shardID, r)
		payload, err := w.decoder.Decode(rec.Data)
		if err != nil {
			malformed++
			w.logger.Warn("skipping malformed record",
				slog.String("sequence-number", rec.SequenceNumber),
				slog.String("error", err.Error()),
			)
			continue
		}
		rec.Payload = payload
		out = append(out, rec)
	}

	if malformed > 0 {
		counterRecordsMalformed.WithLabelValues(w.streamName, w.shardID).Add(float64(malformed))
		w.counter.Add("malformed", int64(malformed))
	}
	counterRecordsConsumed.WithLabelValues(w.streamName, w.shardID).Add(float64(len(out)))
	w.counter.Add("records", int64(len(out)))
	return out
}
