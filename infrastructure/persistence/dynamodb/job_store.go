package dynamodb

import (
	"context"
	"fmt"
	"time"

	"qsportal-backend/application/ports"
	apperrors "qsportal-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	logLevelInfo  = "INFO"
	logLevelWarn  = "WARN"
	logLevelError = "ERROR"

	// Log entries expire after 30 days via the table's TTL attribute.
	logRetention = 30 * 24 * time.Hour
)

// JobRecord is the persisted shape of one export job.
type JobRecord struct {
	PK             string             `dynamodbav:"PK"` // JOB#<jobID>
	SK             string             `dynamodbav:"SK"` // STATUS
	JobID          string             `dynamodbav:"JobID"`
	Status         string             `dynamodbav:"Status"`
	Message        string             `dynamodbav:"Message,omitempty"`
	TotalAssets    int                `dynamodbav:"TotalAssets"`
	ProcessedCount int                `dynamodbav:"ProcessedCount"`
	FailedCount    int                `dynamodbav:"FailedCount"`
	Failures       []ports.JobFailure `dynamodbav:"Failures,omitempty"`
	StopRequested  bool               `dynamodbav:"StopRequested"`
	CreatedAt      string             `dynamodbav:"CreatedAt"`
	UpdatedAt      string             `dynamodbav:"UpdatedAt"`
}

// logRecord is one persisted log line attached to a job.
type logRecord struct {
	PK      string         `dynamodbav:"PK"` // JOB#<jobID>
	SK      string         `dynamodbav:"SK"` // LOG#<timestamp>#<uuid>
	Level   string         `dynamodbav:"Level"`
	Message string         `dynamodbav:"Message"`
	Details map[string]any `dynamodbav:"Details,omitempty"`
	TTL     int64          `dynamodbav:"TTL"`
}

// JobStore tracks export job progress, stop flags, and logs in DynamoDB.
type JobStore struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewJobStore creates a job store backed by the given table.
func NewJobStore(client *dynamodb.Client, tableName string, logger *zap.Logger) *JobStore {
	return &JobStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

var _ ports.JobStateService = (*JobStore)(nil)

func jobPK(jobID string) string {
	return "JOB#" + jobID
}

// CreateJob writes the initial record for a new export job.
func (s *JobStore) CreateJob(ctx context.Context, jobID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	record := JobRecord{
		PK:        jobPK(jobID),
		SK:        "STATUS",
		JobID:     jobID,
		Status:    "running",
		CreatedAt: now,
		UpdatedAt: now,
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return apperrors.Wrapf(err, "marshal job %s", jobID)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return apperrors.NewStorageError("create job", err)
	}
	return nil
}

// GetJob loads a job record, or nil when no such job exists.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPK(jobID)},
			"SK": &types.AttributeValueMemberS{Value: "STATUS"},
		},
	})
	if err != nil {
		return nil, apperrors.NewStorageError("get job", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var record JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return nil, apperrors.Wrapf(err, "unmarshal job %s", jobID)
	}
	return &record, nil
}

// UpdateJobStatus applies a partial update to the job record. Nil patch
// fields are left untouched; failures are appended, not replaced.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID string, patch ports.JobStatusPatch) error {
	update := expression.Set(
		expression.Name("UpdatedAt"),
		expression.Value(time.Now().UTC().Format(time.RFC3339)),
	)
	if patch.Status != nil {
		update = update.Set(expression.Name("Status"), expression.Value(*patch.Status))
	}
	if patch.Message != nil {
		update = update.Set(expression.Name("Message"), expression.Value(*patch.Message))
	}
	if patch.TotalAssets != nil {
		update = update.Set(expression.Name("TotalAssets"), expression.Value(*patch.TotalAssets))
	}
	if patch.ProcessedCount != nil {
		update = update.Set(expression.Name("ProcessedCount"), expression.Value(*patch.ProcessedCount))
	}
	if patch.FailedCount != nil {
		update = update.Set(expression.Name("FailedCount"), expression.Value(*patch.FailedCount))
	}
	if len(patch.Failures) > 0 {
		failures, err := attributevalue.MarshalList(patch.Failures)
		if err != nil {
			return apperrors.Wrapf(err, "marshal failures for job %s", jobID)
		}
		update = update.Set(
			expression.Name("Failures"),
			expression.ListAppend(
				expression.IfNotExists(expression.Name("Failures"), expression.Value([]types.AttributeValue{})),
				expression.Value(failures),
			),
		)
	}

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return apperrors.Wrapf(err, "build update for job %s", jobID)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPK(jobID)},
			"SK": &types.AttributeValueMemberS{Value: "STATUS"},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return apperrors.NewStorageError("update job", err)
	}
	return nil
}

// RequestStop flags the job for cooperative cancellation. Workers observe the
// flag between batches; in-flight items run to completion.
func (s *JobStore) RequestStop(ctx context.Context, jobID string) error {
	update := expression.Set(expression.Name("StopRequested"), expression.Value(true)).
		Set(expression.Name("UpdatedAt"), expression.Value(time.Now().UTC().Format(time.RFC3339)))

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return apperrors.Wrapf(err, "build stop update for job %s", jobID)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPK(jobID)},
			"SK": &types.AttributeValueMemberS{Value: "STATUS"},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConditionExpression:       aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		return apperrors.NewStorageError("request stop", err)
	}
	return nil
}

// IsStopRequested reports whether cooperative cancellation has been requested.
// A read failure returns false so a flaky table never aborts a healthy export.
func (s *JobStore) IsStopRequested(ctx context.Context, jobID string) bool {
	record, err := s.GetJob(ctx, jobID)
	if err != nil {
		s.logger.Warn("Failed to check stop flag",
			zap.String("jobId", jobID),
			zap.Error(err),
		)
		return false
	}
	return record != nil && record.StopRequested
}

// LogInfo writes an info-level log line for the job.
func (s *JobStore) LogInfo(ctx context.Context, jobID, message string, details map[string]any) {
	s.writeLog(ctx, jobID, logLevelInfo, message, details)
}

// LogWarn writes a warn-level log line for the job.
func (s *JobStore) LogWarn(ctx context.Context, jobID, message string, details map[string]any) {
	s.writeLog(ctx, jobID, logLevelWarn, message, details)
}

// LogError writes an error-level log line for the job.
func (s *JobStore) LogError(ctx context.Context, jobID, message string, details map[string]any) {
	s.writeLog(ctx, jobID, logLevelError, message, details)
}

// writeLog persists one log line. Logging is best-effort: a failed write is
// reported locally and dropped rather than failing the caller's operation.
func (s *JobStore) writeLog(ctx context.Context, jobID, level, message string, details map[string]any) {
	now := time.Now().UTC()
	record := logRecord{
		PK:      jobPK(jobID),
		SK:      fmt.Sprintf("LOG#%s#%s", now.Format(time.RFC3339Nano), uuid.New().String()),
		Level:   level,
		Message: message,
		Details: details,
		TTL:     now.Add(logRetention).Unix(),
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		s.logger.Warn("Failed to marshal job log", zap.String("jobId", jobID), zap.Error(err))
		return
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		s.logger.Warn("Failed to write job log",
			zap.String("jobId", jobID),
			zap.String("level", level),
			zap.Error(err),
		)
	}
}

// GetJobLogs returns the persisted log lines for a job in chronological order.
func (s *JobStore) GetJobLogs(ctx context.Context, jobID string, limit int32) ([]map[string]any, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(jobPK(jobID))).
		And(expression.Key("SK").BeginsWith("LOG#"))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.Wrapf(err, "build log query for job %s", jobID)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, apperrors.NewStorageError("query job logs", err)
	}

	logs := make([]map[string]any, 0, len(out.Items))
	for _, item := range out.Items {
		var record logRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			continue
		}
		logs = append(logs, map[string]any{
			"level":   record.Level,
			"message": record.Message,
			"details": record.Details,
		})
	}
	return logs, nil
}
