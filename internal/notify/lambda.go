// Package notify starts the next pipeline step once a dataset is published.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// LambdaClient defines the interface for Lambda operations
type LambdaClient interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaNotifier asynchronously invokes a downstream function
type LambdaNotifier struct {
	client       LambdaClient
	functionName string
}

// NewLambdaNotifier creates a new LambdaNotifier
func NewLambdaNotifier(client LambdaClient, functionName string) *LambdaNotifier {
	return &LambdaNotifier{
		client:       client,
		functionName: functionName,
	}
}

// Notify sends payload as a fire-and-forget Event invocation
func (n *LambdaNotifier) Notify(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	output, err := n.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(n.functionName),
		InvocationType: types.InvocationTypeEvent,
		Payload:        body,
	})
	if err != nil {
		return fmt.Errorf("lambda invocation failed: %w", err)
	}

	if output.FunctionError != nil {
		return fmt.Errorf("lambda invocation failed: %s", aws.ToString(output.FunctionError))
	}
	return nil
}
