package profile

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMClient defines the interface for SSM operations
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParameterLoader reads profile YAML from SSM Parameter Store
type ParameterLoader struct {
	client SSMClient
}

// NewParameterLoader creates a new ParameterLoader
func NewParameterLoader(client SSMClient) *ParameterLoader {
	return &ParameterLoader{client: client}
}

// Load fetches the named parameter and parses it as a profile set
func (l *ParameterLoader) Load(ctx context.Context, name string) (*Set, error) {
	result, err := l.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read SSM parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return nil, fmt.Errorf("parameter value is empty")
	}

	return Parse([]byte(*result.Parameter.Value))
}
