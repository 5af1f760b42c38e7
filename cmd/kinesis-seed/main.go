package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
	"github.com/urfave/cli"

	consumer "github.com/alexgridx/kinesis-batch"
)

const batchSize = 250

func main() {
	app := cli.NewApp()
	app.Name = "kinesis-seed"
	app.Usage = "Put JSON lines into a Kinesis stream, creating it if needed"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "stream",
			Usage:  "stream name",
			EnvVar: "KINESIS_STREAM",
		},
		cli.StringFlag{
			Name:   "region",
			Usage:  "AWS region",
			EnvVar: "AWS_REGION",
			Value:  "us-west-2",
		},
		cli.StringFlag{
			Name:   "endpoint",
			Usage:  "Kinesis endpoint",
			EnvVar: "KINESIS_ENDPOINT",
			Value:  "http://localhost:4567",
		},
		cli.StringFlag{
			Name:   "access-key",
			Usage:  "static AWS access key",
			EnvVar: "KINESIS_ACCESS_KEY",
		},
		cli.StringFlag{
			Name:   "secret-key",
			Usage:  "static AWS secret key",
			EnvVar: "KINESIS_SECRET_KEY",
		},
		cli.IntFlag{
			Name:  "shards",
			Usage: "shard count for a newly created stream",
			Value: 2,
		},
		cli.StringFlag{
			Name:  "file",
			Usage: "file with one JSON document per line, stdin when empty",
		},
		cli.StringFlag{
			Name:  "format",
			Usage: "record encoding: json, msgpack or snappy",
			Value: "json",
		},
	}
	app.Action = seed

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func seed(c *cli.Context) error {
	streamName := c.String("stream")
	if streamName == "" {
		return cli.NewExitError("--stream is required", 2)
	}
	encode, err := newEncoder(c.String("format"))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With(slog.String("stream", streamName))

	client, err := newClient(ctx, c)
	if err != nil {
		return err
	}

	if err := createStream(ctx, client, streamName, int32(c.Int("shards"))); err != nil {
		return errors.Wrap(err, "create stream")
	}

	in := io.Reader(os.Stdin)
	if fname := c.String("file"); fname != "" {
		f, err := os.Open(fname)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	n, err := putLines(ctx, client, streamName, in, encode)
	if err != nil {
		return err
	}
	logger.Info("seeded", slog.Int("records", n))
	return nil
}

func newClient(ctx context.Context, c *cli.Context) (*kinesis.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(c.String("region")),
	}
	if key := c.String("access-key"); key != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, c.String("secret-key"), ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	endpoint := c.String("endpoint")
	return kinesis.NewFromConfig(cfg, func(o *kinesis.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

type encoder func(line []byte) ([]byte, error)

func newEncoder(format string) (encoder, error) {
	switch format {
	case "", "json":
		return func(line []byte) ([]byte, error) {
			return append([]byte(nil), line...), nil
		}, nil
	case "msgpack":
		return func(line []byte) ([]byte, error) {
			var m map[string]interface{}
			if err := json.Unmarshal(line, &m); err != nil {
				return nil, err
			}
			return msgp.AppendMapStrIntf(nil, m)
		}, nil
	case "snappy":
		return func(line []byte) ([]byte, error) {
			return snappy.Encode(nil, line), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

type streamCreator interface {
	consumer.KinesisAPI
	CreateStream(ctx context.Context, params *kinesis.CreateStreamInput, optFns ...func(*kinesis.Options)) (*kinesis.CreateStreamOutput, error)
}

func createStream(ctx context.Context, client streamCreator, streamName string, shardCount int32) error {
	names, err := consumer.ListStreams(ctx, client, 100)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == streamName {
			return nil
		}
	}

	_, err = client.CreateStream(ctx, &kinesis.CreateStreamInput{
		StreamName: aws.String(streamName),
		ShardCount: aws.Int32(shardCount),
	})
	if err != nil {
		return err
	}

	waiter := kinesis.NewStreamExistsWaiter(client)
	return waiter.Wait(ctx, &kinesis.DescribeStreamInput{StreamName: aws.String(streamName)}, time.Minute)
}

type putter interface {
	PutRecords(ctx context.Context, params *kinesis.PutRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error)
}

func putLines(ctx context.Context, client putter, streamName string, in io.Reader, encode encoder) (int, error) {
	var (
		entries []types.PutRecordsRequestEntry
		total   int
	)

	flush := func() error {
		if len(entries) == 0 {
			return nil
		}
		out, err := client.PutRecords(ctx, &kinesis.PutRecordsInput{
			StreamName: aws.String(streamName),
			Records:    entries,
		})
		if err != nil {
			return errors.Wrap(err, "put records")
		}
		if failed := aws.ToInt32(out.FailedRecordCount); failed > 0 {
			return errors.Errorf("put records: %d of %d entries failed", failed, len(entries))
		}
		total += len(entries)
		entries = nil
		return nil
	}

	b := bufio.NewScanner(in)
	for line := 0; b.Scan(); line++ {
		if len(b.Bytes()) == 0 {
			continue
		}
		data, err := encode(b.Bytes())
		if err != nil {
			return total, errors.Wrapf(err, "encode line %d", line+1)
		}
		entries = append(entries, types.PutRecordsRequestEntry{
			Data:         data,
			PartitionKey: aws.String(strconv.Itoa(line)),
		})

		if len(entries) == batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := b.Err(); err != nil {
		return total, err
	}

	return total, flush()
}
