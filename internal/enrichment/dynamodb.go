package enrichment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MaxBatchWriteItems is the DynamoDB limit on items per BatchWriteItem call
const MaxBatchWriteItems = 25

// DynamoDBClient defines the interface for DynamoDB operations
type DynamoDBClient interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// WriteResult summarizes a table population run
type WriteResult struct {
	Written int
	Failed  int
	Batches int
}

// Store reads and writes enrichment tables keyed by postcode
type Store struct {
	client DynamoDBClient
}

// NewStore creates a new Store
func NewStore(client DynamoDBClient) *Store {
	return &Store{client: client}
}

// item is the stored form of a Row; pk is the postcode as a string
type item struct {
	PK               string `dynamodbav:"pk"`
	Postcode         int    `dynamodbav:"postcode"`
	SocioeconomicIdx int    `dynamodbav:"socioeconomic_idx"`
}

// Write puts every row into the table in batches of MaxBatchWriteItems. Items the service
// returns as unprocessed are counted as failed and not retried. A client
// error aborts the write.
func (s *Store) Write(ctx context.Context, tableName string, rows []Row) (WriteResult, error) {
	var result WriteResult

	for start := 0; start < len(rows); start += MaxBatchWriteItems {
		end := min(start+MaxBatchWriteItems, len(rows))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, row := range rows[start:end] {
			av, err := attributevalue.MarshalMap(item{
				PK:               strconv.Itoa(row.Postcode),
				Postcode:         row.Postcode,
				SocioeconomicIdx: row.SocioeconomicIdx,
			})
			if err != nil {
				return result, fmt.Errorf("failed to marshal enrichment row: %w", err)
			}
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
		}

		output, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				tableName: requests,
			},
		})
		if err != nil {
			return result, fmt.Errorf("failed to write enrichment batch: %w", err)
		}
		result.Batches++

		unprocessed := len(output.UnprocessedItems[tableName])
		result.Failed += unprocessed
		result.Written += len(requests) - unprocessed
	}

	return result, nil
}

// Lookup returns the row for a postcode. The boolean is false when the
// postcode is not in the table.
func (s *Store) Lookup(ctx context.Context, tableName string, postcode int) (Row, bool, error) {
	projection := expression.NamesList(expression.Name("postcode"), expression.Name("socioeconomic_idx"))
	expr, err := expression.NewBuilder().WithProjection(projection).Build()
	if err != nil {
		return Row{}, false, fmt.Errorf("failed to build expression: %w", err)
	}

	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: strconv.Itoa(postcode)},
		},
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		return Row{}, false, fmt.Errorf("failed to get enrichment row: %w", err)
	}
	if output.Item == nil {
		return Row{}, false, nil
	}

	var row Row
	if err := attributevalue.UnmarshalMap(output.Item, &row); err != nil {
		return Row{}, false, fmt.Errorf("failed to unmarshal enrichment row: %w", err)
	}
	return row, true, nil
}
