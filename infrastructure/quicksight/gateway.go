package quicksight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"qsportal-backend/application/ports"
	"qsportal-backend/domain/assets"
	apperrors "qsportal-backend/pkg/errors"
	"qsportal-backend/pkg/ratelimit"
	"qsportal-backend/pkg/retry"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/quicksight"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// Gateway implements the AssetGateway port against the QuickSight
// control-plane API. Every call passes through a rate-limiter bucket and the
// retry combinator; list calls paginate internally via continuation tokens.
type Gateway struct {
	client    *quicksight.Client
	accountID string
	namespace string
	limits    *ratelimit.Pair
	policy    retry.Policy
	logger    *zap.Logger
}

// NewGateway creates a QuickSight gateway.
func NewGateway(
	client *quicksight.Client,
	accountID string,
	namespace string,
	limits *ratelimit.Pair,
	policy retry.Policy,
	logger *zap.Logger,
) *Gateway {
	if namespace == "" {
		namespace = "default"
	}
	return &Gateway{
		client:    client,
		accountID: accountID,
		namespace: namespace,
		limits:    limits,
		policy:    policy,
		logger:    logger,
	}
}

var _ ports.AssetGateway = (*Gateway)(nil)

// call runs one rate-limited, retried API operation against the general
// bucket. Permission operations use callPermissions instead.
func (g *Gateway) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return g.callWithBucket(ctx, g.limits.General, operation, fn)
}

func (g *Gateway) callPermissions(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return g.callWithBucket(ctx, g.limits.Permissions, operation, fn)
}

func (g *Gateway) callWithBucket(ctx context.Context, bucket *ratelimit.TokenBucket, operation string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, g.policy, func(ctx context.Context) error {
		if err := bucket.Acquire(ctx); err != nil {
			return err
		}
		if err := fn(ctx); err != nil {
			return classifyError(operation, err)
		}
		return nil
	})
}

// classifyError translates SDK failures into the typed error taxonomy.
// The API error code is preserved so callers can key fallback behavior off
// structured codes instead of message substrings.
func classifyError(operation string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch code {
		case "ThrottlingException", "TooManyRequestsException", "LimitExceededException":
			return apperrors.NewThrottledError(operation, err).WithCode(code)
		case "InternalFailure", "InternalServerException", "ServiceUnavailable":
			return apperrors.NewRetryableExternalError("quicksight", err).WithCode(code)
		case "ResourceNotFoundException":
			return apperrors.NewNotFoundError(operation).WithCause(err).WithCode(code)
		default:
			return apperrors.NewExternalError("quicksight", err).WithCode(code)
		}
	}
	return apperrors.NewRetryableExternalError("quicksight", err)
}

// ListAll lists every asset of the given type, following continuation
// tokens until the remote reports no more pages.
func (g *Gateway) ListAll(ctx context.Context, assetType assets.AssetType) (*ports.ListResult, error) {
	result := &ports.ListResult{}
	var nextToken *string

	for {
		var page []assets.AssetSummary
		var token *string
		err := g.call(ctx, "list-"+string(assetType), func(ctx context.Context) error {
			var pageErr error
			page, token, pageErr = g.listPage(ctx, assetType, nextToken)
			return pageErr
		})
		if err != nil {
			return nil, apperrors.Wrapf(err, "list %s", assetType)
		}

		result.Items = append(result.Items, page...)
		result.APICallCount++

		if token == nil {
			break
		}
		nextToken = token
	}

	g.logger.Debug("Listed assets",
		zap.String("assetType", string(assetType)),
		zap.Int("count", len(result.Items)),
		zap.Int("apiCalls", result.APICallCount),
	)
	return result, nil
}

func (g *Gateway) listPage(ctx context.Context, assetType assets.AssetType, nextToken *string) ([]assets.AssetSummary, *string, error) {
	account := aws.String(g.accountID)

	switch assetType {
	case assets.AssetTypeDashboard:
		out, err := g.client.ListDashboards(ctx, &quicksight.ListDashboardsInput{
			AwsAccountId: account,
			NextToken:    nextToken,
		})
		if err != nil {
			return nil, nil, err
		}
		summaries := make([]assets.AssetSummary, 0, len(out.DashboardSummaryList))
		for _, d := range out.DashboardSummaryList {
			summaries = append(summaries, assets.AssetSummary{
				ID:              aws.ToString(d.DashboardId),
				Name:            aws.ToString(d.Name),
				ARN:             aws.ToString(d.Arn),
				CreatedTime:     d.CreatedTime,
				LastUpdatedTime: d.LastUpdatedTime,
				Raw:             toMap(d),
			})
		}
		return summaries, out.NextToken, nil

	case assets.AssetTypeAnalysis:
		out, err := g.client.ListAnalyses(ctx, &quicksight.ListAnalysesInput{
			AwsAccountId: account,
			NextToken:    nextToken,
		})
		if err != nil {
			return nil, nil, err
		}
		summaries := make([]assets.AssetSummary, 0, len(out.AnalysisSummaryList))
		for _, a := range out.AnalysisSummaryList {
			summaries = append(summaries, assets.AssetSummary{
				ID:              aws.ToString(a.AnalysisId),
				Name:            aws.ToString(a.Name),
				ARN:             aws.ToString(a.Arn),
				CreatedTime:     a.CreatedTime,
				LastUpdatedTime: a.LastUpdatedTime,
				RemoteStatus:    string(a.Status),
				Raw:             toMap(a),
			})
		}
		return summaries, out.NextToken, nil

	case assets.AssetTypeDataset:
		out, err := g.client.ListDataSets(ctx, &quicksight.ListDataSetsInput{
			AwsAccountId: account,
			NextToken:    nextToken,
		})
		if err != nil {
			return nil, nil, err
		}
		summaries := make([]assets.AssetSummary, 0, len(out.DataSetSummaries))
		for _, d := range out.DataSetSummaries {
			summaries = append(summaries, assets.AssetSummary{
				ID:              aws.ToString(d.DataSetId),
				Name:            aws.ToString(d.Name),
				ARN:             aws.ToString(d.Arn),
				CreatedTime:     d.CreatedTime,
				LastUpdatedTime: d.LastUpdatedTime,
				Raw:             toMap(d),
			})
		}
		return summaries, out.NextToken, nil

	case assets.AssetTypeDatasource:
		out, err := g.client.ListDataSources(ctx, &quicksight.ListDataSourcesInput{
			AwsAccountId: account,
			NextToken:    nextToken,
		})
		if err != nil {
			return nil, nil, err
		}
		summaries := make([]assets.AssetSummary, 0, len(out.DataSources))
		for _, d := range out.DataSources {
			summaries = append(summaries, assets.AssetSummary{
				ID:              aws.ToString(d.DataSourceId),
				Name:            aws.ToString(d.Name),
				ARN:             aws.ToString(d.Arn),
				CreatedTime:     d.CreatedTime,
				LastUpdatedTime: d.LastUpdatedTime,
				Raw:             toMap(d),
			})
		}
		return summaries, out.NextToken, nil

	case assets.AssetTypeFolder:
		out, err := g.client.ListFolders(ctx, &quicksight.ListFoldersInput{
			AwsAccountId: account,
			NextToken:    nextToken,
		})
		if err != nil {
			return nil, nil, err
		}
		summaries := make([]assets.AssetSummary, 0, len(out.FolderSummaryList))
		for _, f := range out.FolderSummaryList {
			summaries = append(summaries, assets.AssetSummary{
				ID:              aws.ToString(f.FolderId),
				Name:            aws.ToString(f.Name),
				ARN:             aws.ToString(f.Arn),
				CreatedTime:     f.CreatedTime,
				LastUpdatedTime: f.LastUpdatedTime,
				Raw:             toMap(f),
			})
		}
		return summaries, out.NextToken, nil

	case assets.AssetTypeUser:
		out, err := g.client.ListUsers(ctx, &quicksight.ListUsersInput{
			AwsAccountId: account,
			Namespace:    aws.String(g.namespace),
			NextToken:    nextToken,
		})
		if err != nil {
			return nil, nil, err
		}
		summaries := make([]assets.AssetSummary, 0, len(out.UserList))
		for _, u := range out.UserList {
			summaries = append(summaries, assets.AssetSummary{
				ID:   aws.ToString(u.UserName),
				Name: aws.ToString(u.UserName),
				ARN:  aws.ToString(u.Arn),
				Raw:  toMap(u),
			})
		}
		return summaries, out.NextToken, nil

	case assets.AssetTypeGroup:
		out, err := g.client.ListGroups(ctx, &quicksight.ListGroupsInput{
			AwsAccountId: account,
			Namespace:    aws.String(g.namespace),
			NextToken:    nextToken,
		})
		if err != nil {
			return nil, nil, err
		}
		summaries := make([]assets.AssetSummary, 0, len(out.GroupList))
		for _, grp := range out.GroupList {
			summaries = append(summaries, assets.AssetSummary{
				ID:   aws.ToString(grp.GroupName),
				Name: aws.ToString(grp.GroupName),
				ARN:  aws.ToString(grp.Arn),
				Raw:  toMap(grp),
			})
		}
		return summaries, out.NextToken, nil

	default:
		return nil, nil, fmt.Errorf("unsupported asset type: %s", assetType)
	}
}

// toMap serializes an SDK value into a generic map, preserving the vendor's
// PascalCase field naming.
func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
