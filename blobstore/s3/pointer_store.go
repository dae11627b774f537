package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/smallworld/blobstore"
)

// ErrConcurrentModification is returned when two writers race to publish
// the same version.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// DDBClient is the interface for the DynamoDB operations the pointer store
// needs. Satisfied by *dynamodb.Client; narrowed for testability.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// PointerStore tracks which snapshot blob is current for a graph, using
// DynamoDB conditional writes for the atomic compare-and-swap that S3 lacks.
// Readers resolve the latest snapshot name via Latest and then fetch the
// blob from the object store; writers upload the blob first and Publish the
// pointer last.
//
// Table schema:
//   - Partition key: graph_id (string)
//   - Sort key: version (number) - monotonically increasing
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name smallworld-snapshots \
//	  --attribute-definitions AttributeName=graph_id,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=graph_id,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type PointerStore struct {
	client    DDBClient
	tableName string
	graphID   string
}

// NewPointerStore creates a pointer store for one graph id.
func NewPointerStore(client DDBClient, tableName, graphID string) *PointerStore {
	return &PointerStore{
		client:    client,
		tableName: tableName,
		graphID:   graphID,
	}
}

// Latest returns the name of the most recently published snapshot and its
// version. Returns blobstore.ErrNotFound when nothing was published yet.
func (p *PointerStore) Latest(ctx context.Context) (string, int64, error) {
	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(p.tableName),
		KeyConditionExpression: aws.String("graph_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: p.graphID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return "", 0, err
	}
	if len(out.Items) == 0 {
		return "", 0, blobstore.ErrNotFound
	}

	item := out.Items[0]
	name, ok := item["snapshot"].(*types.AttributeValueMemberS)
	if !ok {
		return "", 0, fmt.Errorf("pointer item for %q has no snapshot attribute", p.graphID)
	}
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return "", 0, fmt.Errorf("pointer item for %q has no version attribute", p.graphID)
	}
	version, err := strconv.ParseInt(versionAttr.Value, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("parse version: %w", err)
	}

	return name.Value, version, nil
}

// Publish atomically records name as the next snapshot version. The
// conditional write fails with ErrConcurrentModification when another
// writer claimed the same version first; callers may re-read Latest and
// retry.
func (p *PointerStore) Publish(ctx context.Context, name string) (int64, error) {
	version := int64(1)
	if _, current, err := p.Latest(ctx); err == nil {
		version = current + 1
	} else if !errors.Is(err, blobstore.ErrNotFound) {
		return 0, err
	}

	_, err := p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(p.tableName),
		Item: map[string]types.AttributeValue{
			"graph_id": &types.AttributeValueMemberS{Value: p.graphID},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
			"snapshot": &types.AttributeValueMemberS{Value: name},
		},
		ConditionExpression: aws.String("attribute_not_exists(graph_id) AND attribute_not_exists(version)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, fmt.Errorf("%w: version %d already published", ErrConcurrentModification, version)
		}
		return 0, err
	}

	return version, nil
}
