package clients

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// NewDynamoDBClient builds a DynamoDB client for region. A non-empty endpoint
// overrides the service endpoint, e.g. http://localhost:8000 for DynamoDB
// Local.
func NewDynamoDBClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	slog.Info("[AWSClient] Initializing AWS Config...",
		slog.String("region", region))

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("[AWSClient] failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	slog.Info("[AWSClient] AWS Config Initialized",
		slog.String("endpoint", endpoint))
	return client, nil
}
