package thread

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDB item attribute names.
const (
	dynamoKeyAttr    = "thread_key"
	dynamoHandleAttr = "thread_ts"
	dynamoTTLAttr    = "ttl"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore keeps thread handles in a DynamoDB table with a TTL attribute.
// The table's partition key is thread_key (S) and TTL is enabled on ttl.
type DynamoStore struct {
	client DynamoDBAPI
	table  string
	now    func() time.Time
}

// NewDynamoStore creates a DynamoDB-backed store.
func NewDynamoStore(client DynamoDBAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table, now: time.Now}
}

// Get reads the item for key. DynamoDB deletes expired items lazily, so items
// whose ttl has passed are treated as absent.
func (s *DynamoStore) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			dynamoKeyAttr: &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to get thread from DynamoDB: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return "", false, nil
	}

	if ttl, ok := out.Item[dynamoTTLAttr].(*types.AttributeValueMemberN); ok {
		expires, err := strconv.ParseInt(ttl.Value, 10, 64)
		if err == nil && expires <= s.now().Unix() {
			return "", false, nil
		}
	}

	handle, ok := out.Item[dynamoHandleAttr].(*types.AttributeValueMemberS)
	if !ok || handle.Value == "" {
		return "", false, nil
	}
	return handle.Value, true, nil
}

// Put writes the item with ttl set to now + ttl in epoch seconds.
func (s *DynamoStore) Put(ctx context.Context, key, handle string, ttl time.Duration) error {
	expires := s.now().Add(ttl).Unix()
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			dynamoKeyAttr:    &types.AttributeValueMemberS{Value: key},
			dynamoHandleAttr: &types.AttributeValueMemberS{Value: handle},
			dynamoTTLAttr:    &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put thread to DynamoDB: %w", err)
	}
	return nil
}
