package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/getsentry/raven-go"
	"github.com/urfave/cli"

	consumer "github.com/alexgridx/kinesis-batch"
)

func main() {
	app := cli.NewApp()
	app.Name = "kinesis-batch"
	app.Usage = "Read Kinesis streams in bounded batches"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "region",
			Usage:  "AWS region",
			EnvVar: "AWS_REGION",
			Value:  "us-west-2",
		},
		cli.StringFlag{
			Name:   "endpoint",
			Usage:  "Kinesis endpoint, e.g. http://localhost:4567 for kinesalite",
			EnvVar: "KINESIS_ENDPOINT",
		},
		cli.StringFlag{
			Name:   "access-key",
			Usage:  "static AWS access key, the default credential chain is used when empty",
			EnvVar: "KINESIS_ACCESS_KEY",
		},
		cli.StringFlag{
			Name:   "secret-key",
			Usage:  "static AWS secret key",
			EnvVar: "KINESIS_SECRET_KEY",
		},
		cli.StringFlag{
			Name:   "config",
			Usage:  "YAML file with the consumer configuration",
			EnvVar: "KINESIS_BATCH_CONFIG",
		},
		cli.StringFlag{
			Name:   "log-level",
			Usage:  "debug, info, warn or error",
			EnvVar: "KINESIS_BATCH_LOG_LEVEL",
			Value:  "info",
		},
		cli.StringFlag{
			Name:   "sentry-dsn",
			Usage:  "report fatal errors to Sentry",
			EnvVar: "SENTRY_DSN",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "streams",
			Usage:  "list the streams visible to the credentials",
			Action: listStreams,
		},
		{
			Name:   "shards",
			Usage:  "describe the shards of a stream and their stored checkpoints",
			Flags:  append([]cli.Flag{streamFlag}, storeFlags...),
			Action: describeShards,
		},
		{
			Name:  "read",
			Usage: "read a stream and print its records as JSON lines",
			Flags: append([]cli.Flag{
				streamFlag,
				cli.StringFlag{
					Name:  "decoder",
					Usage: "payload format: json, msgpack, snappy or raw",
					Value: "json",
				},
				cli.BoolFlag{
					Name:  "follow",
					Usage: "keep reading after the stream has been drained",
				},
				cli.StringFlag{
					Name:   "metrics-addr",
					Usage:  "serve /metrics and /debug/vars on this address",
					EnvVar: "KINESIS_BATCH_METRICS_ADDR",
				},
			}, storeFlags...),
			Action: read,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var streamFlag = cli.StringFlag{
	Name:   "stream",
	Usage:  "stream name",
	EnvVar: "KINESIS_STREAM",
}

func trap() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(c *cli.Context) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.GlobalString("log-level"))); err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func readConfig(c *cli.Context) (consumer.Config, error) {
	fname := c.GlobalString("config")
	if fname == "" {
		return consumer.DefaultConfig(), nil
	}

	f, err := os.Open(fname)
	if err != nil {
		return consumer.Config{}, err
	}
	defer f.Close()

	return consumer.ReadConfig(f)
}

func loadAWSConfig(ctx context.Context, c *cli.Context) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(c.GlobalString("region")),
	}
	if key := c.GlobalString("access-key"); key != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, c.GlobalString("secret-key"), ""),
		))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

func newKinesisClient(ctx context.Context, c *cli.Context) (*kinesis.Client, error) {
	cfg, err := loadAWSConfig(ctx, c)
	if err != nil {
		return nil, err
	}

	endpoint := c.GlobalString("endpoint")
	return kinesis.NewFromConfig(cfg, func(o *kinesis.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// report sends fatal configuration errors to Sentry when a DSN is set.
func report(c *cli.Context, streamName string, err error) error {
	if err == nil || c.GlobalString("sentry-dsn") == "" {
		return err
	}
	if !consumer.IsConfigError(err) {
		return err
	}

	if dsnErr := raven.SetDSN(c.GlobalString("sentry-dsn")); dsnErr != nil {
		fmt.Fprintln(os.Stderr, "invalid sentry dsn:", dsnErr)
		return err
	}
	raven.CaptureErrorAndWait(err, map[string]string{
		"stream": streamName,
	})
	return err
}
