package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"

	"github.com/jarrod-lowe/churn-datagen/internal/archive"
	"github.com/jarrod-lowe/churn-datagen/internal/enrichment"
	"github.com/jarrod-lowe/churn-datagen/internal/metrics"
	"github.com/jarrod-lowe/churn-datagen/internal/notify"
	"github.com/jarrod-lowe/churn-datagen/internal/pipeline"
	"github.com/jarrod-lowe/churn-datagen/internal/profile"
	"github.com/jarrod-lowe/churn-datagen/internal/stream"
	"github.com/jarrod-lowe/churn-datagen/internal/tracing"
)

const functionName = "churn-datagen"

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// PipelineRunner runs one dataset generation
type PipelineRunner interface {
	Run(ctx context.Context, p pipeline.Params) (*pipeline.Summary, error)
}

// Dependencies for handler (injectable for testing)
type Dependencies struct {
	Runner PipelineRunner
}

var deps *Dependencies

// handler is the Lambda entry point. The event payload is the pipeline step
// parameters; the result is the run summary.
func handler(ctx context.Context, params pipeline.Params) (*pipeline.Summary, error) {
	requestID := ""
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		requestID = lc.AwsRequestID
	}

	ctx, span := tracing.StartHandlerSpan(ctx, "DatagenHandler",
		tracing.Function(functionName),
		tracing.RequestID(requestID),
		tracing.Container(params.Container),
	)
	defer span.End()

	logger.InfoContext(ctx, "Starting data generation",
		slog.String("request_id", requestID),
		slog.String("container", params.Container),
		slog.String("output_stream_path", params.OutputStreamPath),
		slog.String("enrichment_table_path", params.EnrichmentTablePath),
	)

	summary, err := deps.Runner.Run(ctx, params)
	if err != nil {
		tracing.RecordError(span, err)
		logger.ErrorContext(ctx, "Data generation failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	logger.InfoContext(ctx, "Data generation completed",
		slog.String("request_id", requestID),
		slog.String("run_id", summary.RunID),
		slog.Int("records_sent", summary.RecordsSent),
		slog.Int("records_failed", summary.RecordsFailed),
	)
	return summary, nil
}

// envInt reads a positive integer environment variable, returning def when unset
func envInt(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return n, nil
}

// loadProfiles picks the group profiles: an SSM parameter, then a file, then
// the embedded defaults.
func loadProfiles(ctx context.Context, ssmLoader func(ctx context.Context, name string) (*profile.Set, error)) (*profile.Set, error) {
	if name := os.Getenv("DATAGEN_PROFILE_PARAMETER"); name != "" {
		return ssmLoader(ctx, name)
	}
	if path := os.Getenv("DATAGEN_PROFILE_FILE"); path != "" {
		return profile.Load(path)
	}
	return profile.Default(), nil
}

func main() {
	ctx := context.Background()

	tp, err := xrayconfig.NewTracerProvider(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize tracer provider",
			slog.String("error", err.Error()),
		)
		panic(err)
	}
	otel.SetTracerProvider(tp)
	tracing.InitPropagator()

	// Create cold start span - all init AWS calls become children
	ctx, coldStartSpan := tracing.StartColdStartSpan(ctx, functionName)
	defer coldStartSpan.End()

	batchSize, err := envInt("STREAM_BATCH_SIZE", stream.DefaultBatchSize)
	if err != nil {
		logger.Error("FATAL: Invalid STREAM_BATCH_SIZE", slog.String("error", err.Error()))
		panic(err)
	}
	shardCount, err := envInt("STREAM_SHARD_COUNT", stream.DefaultShardCount)
	if err != nil {
		logger.Error("FATAL: Invalid STREAM_SHARD_COUNT", slog.String("error", err.Error()))
		panic(err)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to load AWS config",
			slog.String("error", err.Error()),
		)
		panic(err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	profiles, err := loadProfiles(ctx, profile.NewParameterLoader(ssm.NewFromConfig(cfg)).Load)
	if err != nil {
		logger.Error("FATAL: Failed to load group profiles",
			slog.String("error", err.Error()),
		)
		panic(err)
	}
	if err := profiles.Validate(); err != nil {
		logger.Error("FATAL: Invalid group profiles",
			slog.String("error", err.Error()),
		)
		panic(err)
	}

	runnerDeps := pipeline.Dependencies{
		Profiles: profiles,
		Stream: stream.NewPublisher(sqs.NewFromConfig(cfg), stream.Config{
			BatchSize:  batchSize,
			ShardCount: shardCount,
		}),
		Enrichment: enrichment.NewStore(dynamodb.NewFromConfig(cfg)),
		Logger:     logger,
	}

	// Optional outputs
	if bucket := os.Getenv("DATASET_BUCKET"); bucket != "" {
		runnerDeps.Archive = archive.NewS3Archive(s3.NewFromConfig(cfg), bucket)
	}
	if namespace := os.Getenv("METRIC_NAMESPACE"); namespace != "" {
		runnerDeps.Metrics = metrics.NewCloudWatchPublisher(cloudwatch.NewFromConfig(cfg), namespace)
	}
	if target := os.Getenv("TRAINING_FUNCTION_NAME"); target != "" {
		runnerDeps.Notifier = notify.NewLambdaNotifier(lambdasvc.NewFromConfig(cfg), target)
	}

	deps = &Dependencies{
		Runner: pipeline.NewRunner(runnerDeps),
	}

	lambda.Start(otellambda.InstrumentHandler(handler, xrayconfig.WithRecommendedOptions(tp)...))
}
