package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ErrExportInProgress is returned when another export job already holds the
// lock for the account.
var ErrExportInProgress = errors.New("an export job is already running")

// ExportLock serializes export jobs per account with a DynamoDB conditional
// write. Only one export may run at a time; the lock expires on its own if the
// holder crashes without releasing it.
type ExportLock struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewExportLock creates an export lock backed by the given table.
func NewExportLock(client *dynamodb.Client, tableName string, logger *zap.Logger) *ExportLock {
	return &ExportLock{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

const exportLockSK = "LOCK"

func exportLockPK(accountID string) string {
	return "EXPORTLOCK#" + accountID
}

// Acquire takes the export lock for the account on behalf of jobID. It fails
// with ErrExportInProgress when a live lock is held by another job.
func (l *ExportLock) Acquire(ctx context.Context, accountID, jobID string, duration time.Duration) (*LockLease, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(duration)

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: exportLockPK(accountID)},
			"SK":         &types.AttributeValueMemberS{Value: exportLockSK},
			"JobID":      &types.AttributeValueMemberS{Value: jobID},
			"AcquiredAt": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			"ExpiresAt":  &types.AttributeValueMemberS{Value: expiresAt.Format(time.RFC3339)},
			"TTL":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiresAt.Unix())},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			l.logger.Debug("Export lock already held",
				zap.String("accountId", accountID),
				zap.String("jobId", jobID),
			)
			return nil, ErrExportInProgress
		}
		return nil, fmt.Errorf("acquire export lock: %w", err)
	}

	l.logger.Debug("Export lock acquired",
		zap.String("accountId", accountID),
		zap.String("jobId", jobID),
		zap.Duration("duration", duration),
	)
	return &LockLease{
		lock:      l,
		accountID: accountID,
		jobID:     jobID,
		expiresAt: expiresAt,
	}, nil
}

// Release deletes the lock if it is still held by jobID. Releasing a lock
// that has already expired or been taken over is not an error.
func (l *ExportLock) Release(ctx context.Context, accountID, jobID string) error {
	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: exportLockPK(accountID)},
			"SK": &types.AttributeValueMemberS{Value: exportLockSK},
		},
		ConditionExpression: aws.String("JobID = :jobId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			l.logger.Warn("Export lock already released or reassigned",
				zap.String("accountId", accountID),
				zap.String("jobId", jobID),
			)
			return nil
		}
		return fmt.Errorf("release export lock: %w", err)
	}
	return nil
}

// LockLease is an acquired export lock.
type LockLease struct {
	lock      *ExportLock
	accountID string
	jobID     string
	expiresAt time.Time
}

// Release gives the lock back.
func (le *LockLease) Release(ctx context.Context) error {
	return le.lock.Release(ctx, le.accountID, le.jobID)
}

// Expired reports whether the lease outlived its duration.
func (le *LockLease) Expired() bool {
	return time.Now().After(le.expiresAt)
}
