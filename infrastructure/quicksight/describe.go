package quicksight

import (
	"context"
	"fmt"

	"qsportal-backend/domain/assets"
	apperrors "qsportal-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/quicksight"
)

// Describe fetches the describe payload for one asset. Users and groups have
// no describe call worth making beyond their list entry, so they are rejected
// here; the capability table keeps callers away from this path.
func (g *Gateway) Describe(ctx context.Context, assetType assets.AssetType, assetID string) (map[string]any, error) {
	account := aws.String(g.accountID)
	var payload map[string]any

	err := g.call(ctx, "describe-"+string(assetType), func(ctx context.Context) error {
		switch assetType {
		case assets.AssetTypeDashboard:
			out, err := g.client.DescribeDashboard(ctx, &quicksight.DescribeDashboardInput{
				AwsAccountId: account,
				DashboardId:  aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = toMap(out.Dashboard)
		case assets.AssetTypeAnalysis:
			out, err := g.client.DescribeAnalysis(ctx, &quicksight.DescribeAnalysisInput{
				AwsAccountId: account,
				AnalysisId:   aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = toMap(out.Analysis)
		case assets.AssetTypeDataset:
			out, err := g.client.DescribeDataSet(ctx, &quicksight.DescribeDataSetInput{
				AwsAccountId: account,
				DataSetId:    aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = toMap(out.DataSet)
		case assets.AssetTypeDatasource:
			out, err := g.client.DescribeDataSource(ctx, &quicksight.DescribeDataSourceInput{
				AwsAccountId: account,
				DataSourceId: aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = toMap(out.DataSource)
		case assets.AssetTypeFolder:
			out, err := g.client.DescribeFolder(ctx, &quicksight.DescribeFolderInput{
				AwsAccountId: account,
				FolderId:     aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = toMap(out.Folder)
		default:
			return fmt.Errorf("describe not supported for asset type: %s", assetType)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// DescribeDefinition fetches the full definition payload for dashboards,
// analyses, and datasets. Dataset definitions come from the same describe
// call; the dashboard and analysis APIs expose dedicated definition
// operations.
func (g *Gateway) DescribeDefinition(ctx context.Context, assetType assets.AssetType, assetID string) (map[string]any, error) {
	account := aws.String(g.accountID)
	var payload map[string]any

	err := g.call(ctx, "describe-"+string(assetType)+"-definition", func(ctx context.Context) error {
		switch assetType {
		case assets.AssetTypeDashboard:
			out, err := g.client.DescribeDashboardDefinition(ctx, &quicksight.DescribeDashboardDefinitionInput{
				AwsAccountId: account,
				DashboardId:  aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = toMap(out)
		case assets.AssetTypeAnalysis:
			out, err := g.client.DescribeAnalysisDefinition(ctx, &quicksight.DescribeAnalysisDefinitionInput{
				AwsAccountId: account,
				AnalysisId:   aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = toMap(out)
		case assets.AssetTypeDataset:
			out, err := g.client.DescribeDataSet(ctx, &quicksight.DescribeDataSetInput{
				AwsAccountId: account,
				DataSetId:    aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = toMap(out.DataSet)
		default:
			return fmt.Errorf("definition not supported for asset type: %s", assetType)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// DescribePermissions fetches the resource permissions for one asset. These
// calls run against the dedicated permissions bucket because the remote
// enforces a separate, tighter quota for them.
func (g *Gateway) DescribePermissions(ctx context.Context, assetType assets.AssetType, assetID string) ([]assets.Permission, error) {
	account := aws.String(g.accountID)
	var payload []map[string]any

	err := g.callPermissions(ctx, "describe-"+string(assetType)+"-permissions", func(ctx context.Context) error {
		switch assetType {
		case assets.AssetTypeDashboard:
			out, err := g.client.DescribeDashboardPermissions(ctx, &quicksight.DescribeDashboardPermissionsInput{
				AwsAccountId: account,
				DashboardId:  aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = permissionMaps(out.Permissions)
		case assets.AssetTypeAnalysis:
			out, err := g.client.DescribeAnalysisPermissions(ctx, &quicksight.DescribeAnalysisPermissionsInput{
				AwsAccountId: account,
				AnalysisId:   aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = permissionMaps(out.Permissions)
		case assets.AssetTypeDataset:
			out, err := g.client.DescribeDataSetPermissions(ctx, &quicksight.DescribeDataSetPermissionsInput{
				AwsAccountId: account,
				DataSetId:    aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = permissionMaps(out.Permissions)
		case assets.AssetTypeDatasource:
			out, err := g.client.DescribeDataSourcePermissions(ctx, &quicksight.DescribeDataSourcePermissionsInput{
				AwsAccountId: account,
				DataSourceId: aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = permissionMaps(out.Permissions)
		case assets.AssetTypeFolder:
			out, err := g.client.DescribeFolderPermissions(ctx, &quicksight.DescribeFolderPermissionsInput{
				AwsAccountId: account,
				FolderId:     aws.String(assetID),
			})
			if err != nil {
				return err
			}
			payload = permissionMaps(out.Permissions)
		default:
			return fmt.Errorf("permissions not supported for asset type: %s", assetType)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	perms := make([]assets.Permission, 0, len(payload))
	for _, p := range payload {
		perm := assets.Permission{}
		if principal, ok := p["Principal"].(string); ok {
			perm.Principal = principal
		}
		if actions, ok := p["Actions"].([]any); ok {
			for _, a := range actions {
				if s, ok := a.(string); ok {
					perm.Actions = append(perm.Actions, s)
				}
			}
		}
		perms = append(perms, perm)
	}
	return perms, nil
}

func permissionMaps[T any](perms []T) []map[string]any {
	out := make([]map[string]any, 0, len(perms))
	for _, p := range perms {
		if m := toMap(p); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// DescribeTags fetches the tags attached to a resource ARN.
func (g *Gateway) DescribeTags(ctx context.Context, arn string) ([]assets.Tag, error) {
	var tags []assets.Tag

	err := g.call(ctx, "list-tags", func(ctx context.Context) error {
		out, err := g.client.ListTagsForResource(ctx, &quicksight.ListTagsForResourceInput{
			ResourceArn: aws.String(arn),
		})
		if err != nil {
			return err
		}
		tags = make([]assets.Tag, 0, len(out.Tags))
		for _, t := range out.Tags {
			tags = append(tags, assets.Tag{
				Key:   aws.ToString(t.Key),
				Value: aws.ToString(t.Value),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// DescribeSpecial fetches per-kind extras: dataset refresh schedules, folder
// members, and group membership. Uninspectable uploaded-file datasets surface
// their structured API error code to the caller, which degrades gracefully.
func (g *Gateway) DescribeSpecial(ctx context.Context, assetType assets.AssetType, assetID string) (map[string]any, error) {
	account := aws.String(g.accountID)
	special := map[string]any{}

	switch assetType {
	case assets.AssetTypeDataset:
		err := g.call(ctx, "list-refresh-schedules", func(ctx context.Context) error {
			out, err := g.client.ListRefreshSchedules(ctx, &quicksight.ListRefreshSchedulesInput{
				AwsAccountId: account,
				DataSetId:    aws.String(assetID),
			})
			if err != nil {
				return err
			}
			schedules := make([]map[string]any, 0, len(out.RefreshSchedules))
			for _, s := range out.RefreshSchedules {
				if m := toMap(s); m != nil {
					schedules = append(schedules, m)
				}
			}
			special["refreshSchedules"] = schedules
			return nil
		})
		if err != nil {
			return nil, err
		}

	case assets.AssetTypeFolder:
		var members []map[string]any
		var nextToken *string
		for {
			var token *string
			err := g.call(ctx, "list-folder-members", func(ctx context.Context) error {
				out, err := g.client.ListFolderMembers(ctx, &quicksight.ListFolderMembersInput{
					AwsAccountId: account,
					FolderId:     aws.String(assetID),
					NextToken:    nextToken,
				})
				if err != nil {
					return err
				}
				for _, m := range out.FolderMemberList {
					if mm := toMap(m); mm != nil {
						members = append(members, mm)
					}
				}
				token = out.NextToken
				return nil
			})
			if err != nil {
				return nil, err
			}
			if token == nil {
				break
			}
			nextToken = token
		}
		special["members"] = members

	case assets.AssetTypeGroup:
		var memberships []map[string]any
		var nextToken *string
		for {
			var token *string
			err := g.call(ctx, "list-group-memberships", func(ctx context.Context) error {
				out, err := g.client.ListGroupMemberships(ctx, &quicksight.ListGroupMembershipsInput{
					AwsAccountId: account,
					GroupName:    aws.String(assetID),
					Namespace:    aws.String(g.namespace),
					NextToken:    nextToken,
				})
				if err != nil {
					return err
				}
				for _, m := range out.GroupMemberList {
					if mm := toMap(m); mm != nil {
						memberships = append(memberships, mm)
					}
				}
				token = out.NextToken
				return nil
			})
			if err != nil {
				return nil, err
			}
			if token == nil {
				break
			}
			nextToken = token
		}
		special["memberships"] = memberships

	case assets.AssetTypeUser:
		// The list payload already carries everything the portal shows for a
		// user; there is no extra call to make.
		return special, nil

	default:
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("no special operations for asset type %s", assetType))
	}

	return special, nil
}
