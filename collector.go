package consumer

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelStreamName = "stream_name"
	labelShardID    = "shard_id"
	labelReason     = "reason"
	labelResult     = "result"
)

var (
	collectorMillisBehindLatest = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "milliseconds_behind_latest",
		Help:      "The number of milliseconds the GetRecords response is from the tip of the stream, indicating how far behind current time the consumer is. A value of zero indicates that record processing is caught up, and there are no new records to process at this moment.",
	}, []string{
		labelStreamName,
		labelShardID,
	})

	counterRecordsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "records_consumed_total",
		Help:      "Number of records consumed from the shard belonging to the stream.",
	}, []string{
		labelStreamName,
		labelShardID,
	})

	counterRecordsMalformed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "records_malformed_total",
		Help:      "Number of records skipped because their payload could not be decoded. Their sequence numbers are still checkpointed.",
	}, []string{
		labelStreamName,
		labelShardID,
	})

	counterCheckpointsAdvanced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "checkpoints_advanced_total",
		Help:      "Number of times the checkpoint of the shard moved forward. Note that checkpoints are only durable once the host persisted the shard map.",
	}, []string{
		labelStreamName,
		labelShardID,
	})

	counterRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "retries_total",
		Help:      "Number of throttled provider calls that were retried after a backoff. DescribeStream retries carry an empty shard_id.",
	}, []string{
		labelStreamName,
		labelShardID,
	})

	counterShardsRemoved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "shards_removed_total",
		Help:      "Number of shards dropped from the shard map, by reason (closed or stale).",
	}, []string{
		labelStreamName,
		labelReason,
	})

	counterCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "cycles_total",
		Help:      "Number of read cycles run against the stream, by result (records, empty or error).",
	}, []string{
		labelStreamName,
		labelResult,
	})
)

var collectors = []prometheus.Collector{
	collectorMillisBehindLatest,
	counterRecordsConsumed,
	counterRecordsMalformed,
	counterCheckpointsAdvanced,
	counterRetries,
	counterShardsRemoved,
	counterCycles,
}

// registerMetrics registers the consumer's collectors. Collectors that are
// already registered, e.g. by another consumer sharing the registry, are
// left as they are.
func registerMetrics(r prometheus.Registerer) error {
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return errors.Wrap(err, "register metrics")
		}
	}
	return nil
}

// Counter receives running totals keyed by event name ("records",
// "malformed", "retries", "closed", "stale"). It suits expvar.Map and other
// lightweight sinks that do not need per-shard labels.
type Counter interface {
	Add(string, int64)
}

type noopCounter struct{}

func (noopCounter) Add(string, int64) {}
