// Command datagen runs the churn dataset pipeline from a workstation, against
// AWS or a local emulator.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/spf13/cobra"

	"github.com/jarrod-lowe/churn-datagen/internal/archive"
	"github.com/jarrod-lowe/churn-datagen/internal/enrichment"
	"github.com/jarrod-lowe/churn-datagen/internal/metrics"
	"github.com/jarrod-lowe/churn-datagen/internal/notify"
	"github.com/jarrod-lowe/churn-datagen/internal/pipeline"
	"github.com/jarrod-lowe/churn-datagen/internal/profile"
	"github.com/jarrod-lowe/churn-datagen/internal/stream"
)

// Options collects the command line flags
type Options struct {
	Params           pipeline.Params
	ProfileFile      string
	Endpoint         string
	BatchSize        int
	ShardCount       int
	Bucket           string
	MetricNamespace  string
	TrainingFunction string
	LogLevel         string
}

// runFunc executes a run for the parsed options
type runFunc func(ctx context.Context, opts Options, out io.Writer) error

// buildRootCmd constructs the command with run wired to the parsed options
func buildRootCmd(run runFunc) *cobra.Command {
	opts := Options{}
	var usersGroup1, usersGroup2, eventsPerUser int
	root := &cobra.Command{
		Use:           "datagen",
		Short:         "Generate a synthetic churn dataset and publish it",
		Example:       "  datagen --container bigdata --stream-path churn/events --table-path churn/postcodes\n  datagen --container bigdata --stream-path events --skip-enrichment --endpoint http://localhost:4566",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Unset size flags leave the profile's value; an explicit 0 is kept
			if cmd.Flags().Changed("users-group1") {
				opts.Params.NumUsersGroup1 = &usersGroup1
			}
			if cmd.Flags().Changed("users-group2") {
				opts.Params.NumUsersGroup2 = &usersGroup2
			}
			if cmd.Flags().Changed("events-per-user") {
				opts.Params.EventsPerUser = &eventsPerUser
			}
			if err := opts.Params.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	f := root.Flags()
	f.StringVar(&opts.Params.Container, "container", "", "Container name prefixed to the stream and table names")
	f.StringVar(&opts.Params.OutputStreamPath, "stream-path", "", "Output stream path")
	f.StringVar(&opts.Params.EnrichmentTablePath, "table-path", "", "Enrichment table path")
	f.IntVar(&usersGroup1, "users-group1", 0, "Users in the churn group (unset uses the profile)")
	f.IntVar(&usersGroup2, "users-group2", 0, "Users in the retained group (unset uses the profile)")
	f.IntVar(&eventsPerUser, "events-per-user", 0, "Events per user after registration (unset uses the profile)")
	f.Uint64Var(&opts.Params.Seed, "seed", 0, "Random seed (0 picks one and reports it)")
	f.BoolVar(&opts.Params.SkipEnrichment, "skip-enrichment", false, "Do not populate the enrichment table")
	f.StringVar(&opts.ProfileFile, "profile", "", "YAML group profile file (defaults to the built-in profile)")
	f.StringVar(&opts.Endpoint, "endpoint", "", "Override the AWS endpoint, e.g. LocalStack")
	f.IntVar(&opts.BatchSize, "batch-size", stream.DefaultBatchSize, "Records per logical stream batch")
	f.IntVar(&opts.ShardCount, "shard-count", stream.DefaultShardCount, "Number of stream shards")
	f.StringVar(&opts.Bucket, "bucket", "", "S3 bucket to archive the dataset in")
	f.StringVar(&opts.MetricNamespace, "metric-namespace", "", "CloudWatch namespace for run metrics")
	f.StringVar(&opts.TrainingFunction, "training-function", "", "Lambda function to notify when the dataset is ready")
	f.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug|info|warn|error")

	return root
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// runPipeline wires the AWS clients and runs the pipeline, printing the summary
func runPipeline(ctx context.Context, opts Options, out io.Writer) error {
	logger, err := newLogger(opts.LogLevel, os.Stderr)
	if err != nil {
		return err
	}

	profiles := profile.Default()
	if opts.ProfileFile != "" {
		if profiles, err = profile.Load(opts.ProfileFile); err != nil {
			return err
		}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	if opts.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(opts.Endpoint)
	}

	deps := pipeline.Dependencies{
		Profiles: profiles,
		Stream: stream.NewPublisher(sqs.NewFromConfig(cfg), stream.Config{
			BatchSize:  opts.BatchSize,
			ShardCount: opts.ShardCount,
		}),
		Enrichment: enrichment.NewStore(dynamodb.NewFromConfig(cfg)),
		Logger:     logger,
	}
	if opts.Bucket != "" {
		deps.Archive = archive.NewS3Archive(s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.UsePathStyle = opts.Endpoint != ""
		}), opts.Bucket)
	}
	if opts.MetricNamespace != "" {
		deps.Metrics = metrics.NewCloudWatchPublisher(cloudwatch.NewFromConfig(cfg), opts.MetricNamespace)
	}
	if opts.TrainingFunction != "" {
		deps.Notifier = notify.NewLambdaNotifier(lambdasvc.NewFromConfig(cfg), opts.TrainingFunction)
	}

	summary, err := pipeline.NewRunner(deps).Run(ctx, opts.Params)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func main() {
	if err := buildRootCmd(runPipeline).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "datagen:", err)
		os.Exit(1)
	}
}
