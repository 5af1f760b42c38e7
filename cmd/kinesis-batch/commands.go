package main

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	consumer "github.com/alexgridx/kinesis-batch"
)

var counter = expvar.NewMap("kinesis_batch")

func listStreams(c *cli.Context) error {
	ctx, cancel := trap()
	defer cancel()

	client, err := newKinesisClient(ctx, c)
	if err != nil {
		return err
	}

	names, err := consumer.ListStreams(ctx, client, 100)
	if err != nil {
		return report(c, "", err)
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

type shardLine struct {
	ShardID                string     `json:"shard_id"`
	ParentShardID          string     `json:"parent_shard_id,omitempty"`
	AdjacentParentShardID  string     `json:"adjacent_parent_shard_id,omitempty"`
	StartingSequenceNumber string     `json:"starting_sequence_number"`
	EndingSequenceNumber   string     `json:"ending_sequence_number,omitempty"`
	Tracked                bool       `json:"tracked"`
	Checkpoint             string     `json:"checkpoint,omitempty"`
	ProcessedAt            *time.Time `json:"processed_at,omitempty"`
}

func describeShards(c *cli.Context) error {
	streamName := c.String("stream")
	if streamName == "" {
		return cli.NewExitError("--stream is required", 2)
	}

	ctx, cancel := trap()
	defer cancel()

	client, err := newKinesisClient(ctx, c)
	if err != nil {
		return err
	}
	store, closeStore, err := openStoreFromFlags(c)
	if err != nil {
		return err
	}
	defer closeStore()

	logger, err := newLogger(c)
	if err != nil {
		return err
	}

	shards, err := consumer.NewStreamCatalog(client, streamName, logger).Describe(ctx)
	if err != nil {
		return report(c, streamName, err)
	}
	tracked, err := store.GetShards(ctx, streamName)
	if err != nil {
		return err
	}

	return writeShards(os.Stdout, shards, tracked)
}

func writeShards(w io.Writer, shards []consumer.ShardDescriptor, tracked consumer.ShardMap) error {
	sort.Slice(shards, func(i, j int) bool { return shards[i].ShardID < shards[j].ShardID })

	enc := json.NewEncoder(w)
	for _, s := range shards {
		line := shardLine{
			ShardID:                s.ShardID,
			ParentShardID:          s.ParentShardID,
			AdjacentParentShardID:  s.AdjacentParentShardID,
			StartingSequenceNumber: s.StartingSequenceNumber,
			EndingSequenceNumber:   s.EndingSequenceNumber,
		}
		if cp, ok := tracked[s.ShardID]; ok {
			line.Tracked = true
			line.Checkpoint = cp.LastSequenceNumber
			if cp.Consumed() {
				at := cp.LastProcessedAt
				line.ProcessedAt = &at
			}
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

type recordLine struct {
	ShardID        string           `json:"shard_id"`
	SequenceNumber string           `json:"sequence_number"`
	PartitionKey   string           `json:"partition_key"`
	ArrivedAt      time.Time        `json:"arrived_at"`
	Payload        consumer.Payload `json:"payload,omitempty"`
	Data           []byte           `json:"data,omitempty"`
}

func newRecordLine(r *consumer.Record) recordLine {
	line := recordLine{
		ShardID:        r.ShardID,
		SequenceNumber: r.SequenceNumber,
		PartitionKey:   r.PartitionKey,
		ArrivedAt:      r.ApproximateArrivalTimestamp,
		Payload:        r.Payload,
	}
	if r.Payload == nil {
		line.Data = r.Data
	}
	return line
}

func newDecoder(name string) (consumer.Decoder, error) {
	switch name {
	case "", "json":
		return consumer.JSONDecoder{}, nil
	case "msgpack":
		return consumer.MsgpackDecoder{}, nil
	case "snappy":
		return consumer.SnappyDecoder{}, nil
	case "raw":
		return consumer.RawDecoder{}, nil
	default:
		return nil, fmt.Errorf("unknown decoder %q", name)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", slog.String("error", err.Error()))
		}
	}()
	return srv
}

func read(c *cli.Context) error {
	streamName := c.String("stream")
	if streamName == "" {
		return cli.NewExitError("--stream is required", 2)
	}

	ctx, cancel := trap()
	defer cancel()

	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	cfg, err := readConfig(c)
	if err != nil {
		return err
	}
	decoder, err := newDecoder(c.String("decoder"))
	if err != nil {
		return err
	}
	client, err := newKinesisClient(ctx, c)
	if err != nil {
		return err
	}
	store, closeStore, err := openStoreFromFlags(c)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	if addr := c.String("metrics-addr"); addr != "" {
		srv := serveMetrics(addr, reg, logger)
		defer srv.Close()
	}

	cons, err := consumer.New(
		streamName,
		consumer.WithConfig(cfg),
		consumer.WithClient(client),
		consumer.WithStore(store),
		consumer.WithLogger(logger),
		consumer.WithCounter(counter),
		consumer.WithMetricRegistry(reg),
		consumer.WithDecoder(decoder),
	)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	scan := func(r *consumer.Record) error {
		return enc.Encode(newRecordLine(r))
	}

	for {
		err := cons.Scan(ctx, scan)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return report(c, streamName, err)
		}
		if !c.Bool("follow") {
			return nil
		}

		wait := cons.Config().PollInterval
		if wait == 0 {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
