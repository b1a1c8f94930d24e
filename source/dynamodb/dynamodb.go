// Package dynamodb discovers DynamoDB table streams and their shards.
//
// TableValidator reports whether a table has a stream and point-in-time
// recovery enabled; ShardLister pages through the shards of a DynamoDB
// Streams stream. Both take the aws-sdk-go service interfaces so tests can
// substitute fakes.
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go/service/dynamodbstreams/dynamodbstreamsiface"

	"github.com/arloliu/sourcecoord/shard"
	"github.com/arloliu/sourcecoord/types"
)

// DefaultPageSize is the DescribeStream shard limit per call.
const DefaultPageSize = 100

var (
	_ shard.Validator = (*TableValidator)(nil)
	_ shard.Lister    = (*ShardLister)(nil)
)

// NewSession creates an AWS session for region.
func NewSession(region string) (*session.Session, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return sess, nil
}

// TableValidator describes DynamoDB tables.
type TableValidator struct {
	client dynamodbiface.DynamoDBAPI
}

// NewTableValidator creates a validator on client.
//
// Example:
//
//	sess, err := dynamodb.NewSession("us-east-1")
//	if err != nil {
//	    return err
//	}
//	validator := dynamodb.NewTableValidator(awsdynamodb.New(sess))
func NewTableValidator(client dynamodbiface.DynamoDBAPI) *TableValidator {
	return &TableValidator{client: client}
}

// DescribeSource describes the table named sourceID.
//
// Returns:
//   - shard.SourceDescription: Stream and point-in-time recovery status
//   - error: ErrSourceNotFound for a missing table, or the AWS error
func (v *TableValidator) DescribeSource(ctx context.Context, sourceID string) (shard.SourceDescription, error) {
	table, err := v.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(sourceID),
	})
	if err != nil {
		return shard.SourceDescription{}, wrapAWSError("describe table", sourceID, err)
	}

	desc := shard.SourceDescription{SourceID: sourceID}
	if t := table.Table; t != nil {
		if spec := t.StreamSpecification; spec != nil {
			desc.StreamEnabled = aws.BoolValue(spec.StreamEnabled)
		}
		desc.StreamID = aws.StringValue(t.LatestStreamArn)
	}

	backups, err := v.client.DescribeContinuousBackupsWithContext(ctx, &dynamodb.DescribeContinuousBackupsInput{
		TableName: aws.String(sourceID),
	})
	if err != nil {
		return shard.SourceDescription{}, wrapAWSError("describe continuous backups", sourceID, err)
	}
	if cb := backups.ContinuousBackupsDescription; cb != nil && cb.PointInTimeRecoveryDescription != nil {
		status := aws.StringValue(cb.PointInTimeRecoveryDescription.PointInTimeRecoveryStatus)
		desc.PointInTimeRecoveryEnabled = status == dynamodb.PointInTimeRecoveryStatusEnabled
	}

	return desc, nil
}

// ShardLister pages through DynamoDB Streams shards.
type ShardLister struct {
	client   dynamodbstreamsiface.DynamoDBStreamsAPI
	pageSize int64
}

// ListerOption configures a ShardLister.
type ListerOption func(*ShardLister)

// WithPageSize sets the DescribeStream shard limit (1-100).
func WithPageSize(n int64) ListerOption {
	return func(l *ShardLister) {
		l.pageSize = n
	}
}

// NewShardLister creates a lister on client.
func NewShardLister(client dynamodbstreamsiface.DynamoDBStreamsAPI, opts ...ListerOption) *ShardLister {
	l := &ShardLister{client: client, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// ListShards returns one DescribeStream page of streamID (a stream ARN).
func (l *ShardLister) ListShards(ctx context.Context, streamID, exclusiveStartShardID string) ([]types.UnitDescriptor, string, error) {
	input := &dynamodbstreams.DescribeStreamInput{
		StreamArn: aws.String(streamID),
		Limit:     aws.Int64(l.pageSize),
	}
	if exclusiveStartShardID != "" {
		input.ExclusiveStartShardId = aws.String(exclusiveStartShardID)
	}

	out, err := l.client.DescribeStreamWithContext(ctx, input)
	if err != nil {
		return nil, "", wrapAWSError("describe stream", streamID, err)
	}
	if out.StreamDescription == nil {
		return nil, "", nil
	}

	units := make([]types.UnitDescriptor, 0, len(out.StreamDescription.Shards))
	for _, s := range out.StreamDescription.Shards {
		units = append(units, types.UnitDescriptor{
			ID:       aws.StringValue(s.ShardId),
			ParentID: aws.StringValue(s.ParentShardId),
		})
	}

	return units, aws.StringValue(out.StreamDescription.LastEvaluatedShardId), nil
}

func wrapAWSError(op, resource string, err error) error {
	var aerr awserr.Error
	// DynamoDB and DynamoDB Streams share the ResourceNotFoundException code.
	if errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeResourceNotFoundException {
		return fmt.Errorf("%w: %s: %s", types.ErrSourceNotFound, op, resource)
	}

	return fmt.Errorf("failed to %s %s: %w", op, resource, err)
}
