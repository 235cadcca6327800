// Package stream publishes event records to an SQS queue acting as the
// event stream.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"github.com/jarrod-lowe/churn-datagen/internal/event"
)

// MaxEntriesPerCall is the SQS limit on entries per SendMessageBatch call
const MaxEntriesPerCall = 10

// Defaults for Config
const (
	DefaultBatchSize  = 1000
	DefaultShardCount = 8
)

// SQSClient is the interface for SQS operations
type SQSClient interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// Config controls batching and sharding
type Config struct {
	// BatchSize is the number of records serialized and sent per logical batch
	BatchSize int
	// ShardCount is the number of shard keys user ids are hashed into
	ShardCount int
}

// Queue identifies a resolved stream
type Queue struct {
	Name string
	URL  string
}

// FIFO reports whether the queue preserves ordering per message group
func (q Queue) FIFO() bool {
	return strings.HasSuffix(q.Name, ".fifo")
}

// Result summarizes a publish run
type Result struct {
	Sent    int
	Failed  int
	Batches int
}

// Publisher sends events to a queue in batches
type Publisher struct {
	client SQSClient
	cfg    Config
}

// NewPublisher creates a new Publisher. Zero config values take the defaults.
func NewPublisher(client SQSClient, cfg Config) *Publisher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = DefaultShardCount
	}
	return &Publisher{client: client, cfg: cfg}
}

// Resolve looks up the URL of the named queue
func (p *Publisher) Resolve(ctx context.Context, name string) (Queue, error) {
	out, err := p.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		return Queue{}, fmt.Errorf("failed to resolve queue %s: %w", name, err)
	}
	return Queue{Name: name, URL: aws.ToString(out.QueueUrl)}, nil
}

// ShardKey hashes a user id into [0, shards)
func ShardKey(userID string, shards int) int {
	return int(murmur3.Sum32([]byte(userID)) % uint32(shards))
}

// Publish serializes events to JSON and sends them in order. Entries the
// service reports as failed are counted, not retried. A client error aborts
// the publish and is returned along with the counts so far.
func (p *Publisher) Publish(ctx context.Context, queue Queue, events []event.Event) (Result, error) {
	var result Result

	for start := 0; start < len(events); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(events))

		entries, err := p.entries(queue, events[start:end])
		if err != nil {
			return result, err
		}

		for i := 0; i < len(entries); i += MaxEntriesPerCall {
			chunk := entries[i:min(i+MaxEntriesPerCall, len(entries))]

			out, err := p.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
				QueueUrl: aws.String(queue.URL),
				Entries:  chunk,
			})
			if err != nil {
				return result, fmt.Errorf("failed to send message batch: %w", err)
			}

			result.Sent += len(chunk)
			result.Failed += len(out.Failed)
		}
		result.Batches++
	}

	return result, nil
}

func (p *Publisher) entries(queue Queue, events []event.Event) ([]types.SendMessageBatchRequestEntry, error) {
	entries := make([]types.SendMessageBatchRequestEntry, 0, len(events))
	for i, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}

		shard := ShardKey(e.UserID, p.cfg.ShardCount)
		entry := types.SendMessageBatchRequestEntry{
			// Ids only need to be unique within one call
			Id:          aws.String(strconv.Itoa(i % MaxEntriesPerCall)),
			MessageBody: aws.String(string(body)),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"event_type": {
					DataType:    aws.String("String"),
					StringValue: aws.String(string(e.EventType)),
				},
				"shard": {
					DataType:    aws.String("Number"),
					StringValue: aws.String(strconv.Itoa(shard)),
				},
			},
		}
		if queue.FIFO() {
			entry.MessageGroupId = aws.String("shard-" + strconv.Itoa(shard))
			entry.MessageDeduplicationId = aws.String(uuid.NewString())
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
