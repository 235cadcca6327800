// Package pipeline runs one dataset generation: synthesize the event stream,
// publish it, and populate the postcode enrichment table.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/jarrod-lowe/churn-datagen/internal/archive"
	"github.com/jarrod-lowe/churn-datagen/internal/enrichment"
	"github.com/jarrod-lowe/churn-datagen/internal/event"
	"github.com/jarrod-lowe/churn-datagen/internal/generator"
	"github.com/jarrod-lowe/churn-datagen/internal/metrics"
	"github.com/jarrod-lowe/churn-datagen/internal/profile"
	"github.com/jarrod-lowe/churn-datagen/internal/stream"
	"github.com/jarrod-lowe/churn-datagen/internal/tracing"
)

// StreamPublisher sends events to a named stream
type StreamPublisher interface {
	Resolve(ctx context.Context, name string) (stream.Queue, error)
	Publish(ctx context.Context, queue stream.Queue, events []event.Event) (stream.Result, error)
}

// EnrichmentStore populates and reads back an enrichment table
type EnrichmentStore interface {
	Write(ctx context.Context, tableName string, rows []enrichment.Row) (enrichment.WriteResult, error)
	Lookup(ctx context.Context, tableName string, postcode int) (enrichment.Row, bool, error)
}

// DatasetArchive keeps a copy of the generated events
type DatasetArchive interface {
	Store(ctx context.Context, key string, events []event.Event) (int64, error)
}

// MetricsPublisher publishes run counters
type MetricsPublisher interface {
	Publish(ctx context.Context, container string, counts map[string]int) error
}

// Notifier tells the next pipeline step that a dataset is ready
type Notifier interface {
	Notify(ctx context.Context, payload any) error
}

// Dependencies for the runner (injectable for testing). Archive, Metrics and
// Notifier are optional.
type Dependencies struct {
	Profiles   *profile.Set
	Stream     StreamPublisher
	Enrichment EnrichmentStore
	Archive    DatasetArchive
	Metrics    MetricsPublisher
	Notifier   Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

// Summary reports what a run produced. EnrichmentVerified is set when a
// sampled row read back matched what was written.
type Summary struct {
	RunID              string `json:"run_id"`
	Seed               uint64 `json:"seed"`
	Container          string `json:"container"`
	Stream             string `json:"stream"`
	Table              string `json:"table,omitempty"`
	ArchiveKey         string `json:"archive_key,omitempty"`
	EventsGenerated    int    `json:"events_generated"`
	RecordsSent        int    `json:"records_sent"`
	RecordsFailed      int    `json:"records_failed"`
	EnrichmentWritten  int    `json:"enrichment_items_written"`
	EnrichmentFailed   int    `json:"enrichment_items_failed"`
	EnrichmentVerified bool   `json:"enrichment_verified"`
}

// Runner executes pipeline runs
type Runner struct {
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner creates a Runner
func NewRunner(deps Dependencies) *Runner {
	r := &Runner{deps: deps, logger: deps.Logger, now: deps.Now}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.deps.Profiles == nil {
		r.deps.Profiles = profile.Default()
	}
	return r
}

// Run generates the dataset, publishes it and builds the enrichment table.
// Stream and table client errors abort the run. Partial failures are
// counted and logged as warnings.
func (r *Runner) Run(ctx context.Context, p Params) (*Summary, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	seed := p.Seed
	for seed == 0 {
		seed = rand.Uint64()
	}

	summary := &Summary{
		RunID:     uuid.NewString(),
		Seed:      seed,
		Container: p.Container,
		Stream:    ResourceName(p.Container, p.OutputStreamPath),
	}
	logger := r.logger.With(
		slog.String("run_id", summary.RunID),
		slog.String("container", p.Container),
	)

	set := r.deps.Profiles.WithOverrides([]*int{p.NumUsersGroup1, p.NumUsersGroup2}, p.EventsPerUser)
	if err := set.Validate(); err != nil {
		return nil, err
	}

	events := r.generate(ctx, set, seed)
	summary.EventsGenerated = len(events)
	logger.InfoContext(ctx, "Generated events",
		slog.Int("events", len(events)),
		slog.Uint64("seed", seed),
	)

	if r.deps.Archive != nil {
		key := archive.Key(p.Container, p.OutputStreamPath, summary.RunID)
		size, err := r.deps.Archive.Store(ctx, key, events)
		if err != nil {
			return nil, fmt.Errorf("failed to archive dataset: %w", err)
		}
		summary.ArchiveKey = key
		logger.InfoContext(ctx, "Archived dataset",
			slog.String("key", key),
			slog.Int64("bytes", size),
		)
	}

	if err := r.publish(ctx, logger, summary, events); err != nil {
		return nil, err
	}

	if !p.SkipEnrichment {
		summary.Table = ResourceName(p.Container, p.EnrichmentTablePath)
		if err := r.populate(ctx, logger, summary, seed); err != nil {
			return nil, err
		}
	}

	r.report(ctx, logger, summary)
	return summary, nil
}

func (r *Runner) generate(ctx context.Context, set *profile.Set, seed uint64) []event.Event {
	_, span := tracing.StartHandlerSpan(ctx, "GenerateEvents")
	defer span.End()

	events := generator.New(generator.WithSeed(seed), generator.WithClock(r.now)).Generate(set)
	span.SetAttributes(tracing.RecordCount(len(events)))
	return events
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, summary *Summary, events []event.Event) error {
	ctx, span := tracing.StartHandlerSpan(ctx, "PublishEvents", tracing.StreamPath(summary.Stream))
	defer span.End()

	queue, err := r.deps.Stream.Resolve(ctx, summary.Stream)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	result, err := r.deps.Stream.Publish(ctx, queue, events)
	summary.RecordsSent = result.Sent
	summary.RecordsFailed = result.Failed
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	span.SetAttributes(tracing.RecordCount(result.Sent))

	logger.InfoContext(ctx, "Records sent",
		slog.Int("records_sent", result.Sent),
		slog.Int("batches", result.Batches),
		slog.String("queue", queue.Name),
	)
	if result.Failed > 0 {
		logger.WarnContext(ctx, "Failed to stream records",
			slog.Int("failed_records", result.Failed),
		)
	} else {
		logger.InfoContext(ctx, "All data streamed successfully.")
	}
	return nil
}

func (r *Runner) populate(ctx context.Context, logger *slog.Logger, summary *Summary, seed uint64) error {
	ctx, span := tracing.StartHandlerSpan(ctx, "PopulateEnrichmentTable", tracing.TablePath(summary.Table))
	defer span.End()

	rows := enrichment.BuildRows(rand.New(rand.NewPCG(seed, ^seed)))
	result, err := r.deps.Enrichment.Write(ctx, summary.Table, rows)
	summary.EnrichmentWritten = result.Written
	summary.EnrichmentFailed = result.Failed
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	span.SetAttributes(tracing.RecordCount(result.Written))

	logger.InfoContext(ctx, "Created enrichment table",
		slog.String("table", summary.Table),
		slog.Int("items", result.Written),
	)
	if result.Failed > 0 {
		logger.WarnContext(ctx, "Failed to write enrichment items",
			slog.Int("failed_items", result.Failed),
		)
	}

	summary.EnrichmentVerified = r.verify(ctx, logger, summary.Table, rows)
	return nil
}

// verify reads back the middle row of the table and compares it with what was
// written. Mismatches are logged, not returned.
func (r *Runner) verify(ctx context.Context, logger *slog.Logger, table string, rows []enrichment.Row) bool {
	if len(rows) == 0 {
		return false
	}
	want := rows[len(rows)/2]

	got, found, err := r.deps.Enrichment.Lookup(ctx, table, want.Postcode)
	switch {
	case err != nil:
		logger.WarnContext(ctx, "Failed to read back enrichment row",
			slog.Int("postcode", want.Postcode),
			slog.String("error", err.Error()),
		)
		return false
	case !found:
		logger.WarnContext(ctx, "Enrichment row missing after write",
			slog.Int("postcode", want.Postcode),
		)
		return false
	case got != want:
		logger.WarnContext(ctx, "Enrichment row does not match what was written",
			slog.Int("postcode", want.Postcode),
			slog.Int("want_idx", want.SocioeconomicIdx),
			slog.Int("got_idx", got.SocioeconomicIdx),
		)
		return false
	}
	return true
}

// report publishes metrics and notifies the next step. Failures here are
// logged; the dataset is already in place.
func (r *Runner) report(ctx context.Context, logger *slog.Logger, summary *Summary) {
	if r.deps.Metrics != nil {
		err := r.deps.Metrics.Publish(ctx, summary.Container, map[string]int{
			metrics.RecordsSent:            summary.RecordsSent,
			metrics.RecordsFailed:          summary.RecordsFailed,
			metrics.EnrichmentItemsWritten: summary.EnrichmentWritten,
			metrics.EnrichmentItemsFailed:  summary.EnrichmentFailed,
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to publish metrics",
				slog.String("error", err.Error()),
			)
		}
	}

	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.Notify(ctx, summary); err != nil {
			logger.ErrorContext(ctx, "Failed to notify downstream step",
				slog.String("error", err.Error()),
			)
		} else {
			logger.InfoContext(ctx, "Notified downstream step")
		}
	}
}
