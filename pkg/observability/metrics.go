package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

const metricNamespace = "QSPortal/Export"

// MetricsEmitter publishes export job metrics to CloudWatch. Emission is
// best-effort: a failed publish is logged and dropped so metrics never fail
// an export.
type MetricsEmitter struct {
	client  *cloudwatch.Client
	enabled bool
	logger  *zap.Logger
}

// NewMetricsEmitter creates a metrics emitter. When disabled, every call is
// a no-op.
func NewMetricsEmitter(client *cloudwatch.Client, enabled bool, logger *zap.Logger) *MetricsEmitter {
	return &MetricsEmitter{
		client:  client,
		enabled: enabled,
		logger:  logger,
	}
}

// RecordExportSummary publishes the headline counters for one completed
// export pass of a single asset type.
func (m *MetricsEmitter) RecordExportSummary(ctx context.Context, assetType string, processed, cached, failed, archived, apiCalls int) {
	if !m.enabled {
		return
	}

	dims := []types.Dimension{
		{Name: aws.String("AssetType"), Value: aws.String(assetType)},
	}
	now := time.Now().UTC()

	data := []types.MetricDatum{
		datum("AssetsProcessed", processed, dims, now),
		datum("AssetsCached", cached, dims, now),
		datum("AssetsFailed", failed, dims, now),
		datum("AssetsArchived", archived, dims, now),
		datum("APICalls", apiCalls, dims, now),
	}

	m.put(ctx, data)
}

// RecordJobDuration publishes the wall-clock duration of one export job.
func (m *MetricsEmitter) RecordJobDuration(ctx context.Context, status string, duration time.Duration) {
	if !m.enabled {
		return
	}

	m.put(ctx, []types.MetricDatum{
		{
			MetricName: aws.String("JobDuration"),
			Value:      aws.Float64(duration.Seconds()),
			Unit:       types.StandardUnitSeconds,
			Timestamp:  aws.Time(time.Now().UTC()),
			Dimensions: []types.Dimension{
				{Name: aws.String("Status"), Value: aws.String(status)},
			},
		},
	})
}

func datum(name string, value int, dims []types.Dimension, at time.Time) types.MetricDatum {
	return types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(value)),
		Unit:       types.StandardUnitCount,
		Timestamp:  aws.Time(at),
		Dimensions: dims,
	}
}

func (m *MetricsEmitter) put(ctx context.Context, data []types.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(metricNamespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.Warn("Failed to publish metrics", zap.Error(err))
	}
}
