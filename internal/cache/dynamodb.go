package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const DYNAMODB_KEY_ATTRIBUTE = "cache_key"

// DynamoDBAPI is the part of *dynamodb.Client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type dynamoItem struct {
	Key     string `dynamodbav:"cache_key"`
	Payload []byte `dynamodbav:"payload"`
	// ExpiresAt is epoch seconds, rounded up, for the table's TTL attribute.
	ExpiresAt   int64 `dynamodbav:"expires_at"`
	ExpiresAtMs int64 `dynamodbav:"expires_at_ms"`
}

// DynamoDBStore keeps entries in a table keyed by cache_key. DynamoDB deletes
// expired items late, so lookups compare expires_at_ms themselves.
type DynamoDBStore struct {
	client DynamoDBAPI
	table  string
	now    func() time.Time
}

func NewDynamoDBStore(client DynamoDBAPI, table string) *DynamoDBStore {
	return &DynamoDBStore{client: client, table: table, now: time.Now}
}

func (s *DynamoDBStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			DYNAMODB_KEY_ATTRIBUTE: &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: [DynamoDB] get item: %v", ErrUnavailable, err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, false, fmt.Errorf("[DynamoDB] unable to unmarshal cache item: %w", err)
	}
	if s.now().UnixMilli() >= item.ExpiresAtMs {
		return nil, false, nil
	}
	return item.Payload, true, nil
}

func (s *DynamoDBStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expires := s.now().Add(ttl)
	expiresSec := expires.Unix()
	if expires.Nanosecond() > 0 {
		expiresSec++
	}

	av, err := attributevalue.MarshalMap(dynamoItem{
		Key:         key,
		Payload:     value,
		ExpiresAt:   expiresSec,
		ExpiresAtMs: expires.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("[DynamoDB] unable to marshal cache item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("%w: [DynamoDB] put item: %v", ErrUnavailable, err)
	}
	return nil
}
