package metrics

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"bookfeed/config"
	"bookfeed/logger"
)

//go:embed dashboard.json
var dashboardTemplate string

const (
	templateNamespace = "Bookfeed"
	templateRegion    = "ap-northeast-1"
)

type cloudWatchState struct {
	client        *cloudwatch.Client
	namespace     string
	dashboardName string
	region        string
}

var cwState atomic.Pointer[cloudWatchState]

var (
	// cloudWatchPublishInterval bounds how often a single metric series is
	// pushed. Frame counters fire many times a second.
	cloudWatchPublishInterval = 10 * time.Second
	timeNow                   = time.Now
	publishMetricsFunc        = publishMetrics

	metricPublishMu    sync.Mutex
	metricPublishTimes = make(map[string]time.Time)
)

func init() {
	cwState.Store(&cloudWatchState{
		namespace:     templateNamespace,
		dashboardName: "bookfeed",
	})
}

// InitCloudWatch creates the CloudWatch client and applies the embedded
// dashboard. When the client cannot be created a warning is logged and
// publishing stays disabled.
func InitCloudWatch(ctx context.Context, cfg config.CloudWatchConfig, s3 config.S3Config) {
	log := logger.GetLogger().WithComponent("cloudwatch")

	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if s3.AccessKeyID != "" && s3.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3.AccessKeyID, s3.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	state := cloudWatchState{namespace: templateNamespace, dashboardName: "bookfeed"}
	if current := cwState.Load(); current != nil {
		state = *current
	}
	state.client = cloudwatch.NewFromConfig(awsCfg)
	if cfg.Namespace != "" {
		state.namespace = cfg.Namespace
	}
	if cfg.Dashboard != "" {
		state.dashboardName = cfg.Dashboard
	}
	state.region = region
	if awsCfg.Region != "" {
		state.region = awsCfg.Region
	}
	cwState.Store(&state)

	log.WithFields(logger.Fields{
		"region":    state.region,
		"namespace": state.namespace,
	}).Info("initialized CloudWatch client")

	if err := CreateDashboardFromTemplate(ctx); err != nil {
		log.WithError(err).Warn("failed to create CloudWatch dashboard")
	}
}

// EmitMetric logs the metric locally, hands it to registered handlers and
// publishes it to CloudWatch when configured.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	metricEvent, ok := recordMetric(log, component, metric, value, metricType, fields)
	if !ok {
		return
	}

	numericValue, ok := toFloat64(metricEvent.Value)
	if !ok {
		logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": metricEvent.Name}).Debug("non-numeric metric value; skipping publish")
		return
	}

	publishMetricDatum(metricEvent, numericValue)
}

// dashboardBody renders the embedded template for the configured namespace
// and region.
func dashboardBody(namespace, region string) (string, error) {
	body := dashboardTemplate
	if namespace != "" {
		body = strings.ReplaceAll(body, fmt.Sprintf("%q", templateNamespace), fmt.Sprintf("%q", namespace))
	}
	if region != "" {
		body = strings.ReplaceAll(body, fmt.Sprintf("%q", templateRegion), fmt.Sprintf("%q", region))
	}
	if !json.Valid([]byte(body)) {
		return "", fmt.Errorf("dashboard template is not valid JSON after substitution")
	}
	return body, nil
}

// CreateDashboardFromTemplate updates the configured CloudWatch dashboard
// from the embedded definition.
func CreateDashboardFromTemplate(ctx context.Context) error {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return nil
	}

	body, err := dashboardBody(state.namespace, state.region)
	if err != nil {
		return err
	}

	_, err = state.client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(state.dashboardName),
		DashboardBody: aws.String(body),
	})
	if err != nil {
		return err
	}

	logger.GetLogger().WithComponent("cloudwatch").Debug("updated CloudWatch dashboard from template")
	return nil
}

func publishMetricDatum(metric Metric, value float64) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}
	if !allowPublish(metric.Component + "/" + metric.Name) {
		return
	}

	unit := cwtypes.StandardUnitCount
	if rawUnit, ok := metric.Fields["unit"]; ok {
		if unitStr, ok := rawUnit.(string); ok {
			if parsedUnit, found := metricUnitFromString(unitStr); found {
				unit = parsedUnit
			} else {
				logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": metric.Name, "unit": unitStr}).Debug("unsupported metric unit; defaulting to Count")
			}
		}
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(metric.Component)}}
	for k, v := range metric.Fields {
		if k == "unit" {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	ts := metric.Timestamp
	if ts.IsZero() {
		ts = timeNow()
	}
	data := []cwtypes.MetricDatum{{
		MetricName: aws.String(metric.Name),
		Dimensions: dims,
		Timestamp:  aws.Time(ts),
		Unit:       unit,
		Value:      aws.Float64(value),
	}}
	publishMetricsFunc(context.Background(), state, data)
}

// allowPublish reports whether the series identified by key may be pushed
// now and records the push when it may.
func allowPublish(key string) bool {
	now := timeNow()
	metricPublishMu.Lock()
	defer metricPublishMu.Unlock()
	if last, ok := metricPublishTimes[key]; ok && now.Sub(last) < cloudWatchPublishInterval {
		return false
	}
	metricPublishTimes[key] = now
	return true
}

func resetMetricPublishTimes() {
	metricPublishMu.Lock()
	metricPublishTimes = make(map[string]time.Time)
	metricPublishMu.Unlock()
}

func publishMetrics(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
	if state == nil || state.client == nil {
		return
	}
	if len(data) == 0 {
		logger.GetLogger().WithComponent("cloudwatch").Debug("no metric data to publish")
		return
	}

	if _, err := state.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}); err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}

	names := make([]string, 0, len(data))
	for _, datum := range data {
		if datum.MetricName != nil {
			names = append(names, *datum.MetricName)
		}
	}

	logger.GetLogger().WithComponent("cloudwatch").WithField("metrics", strings.Join(names, ",")).Debug("published metrics to CloudWatch")
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case time.Duration:
		return float64(v) / float64(time.Millisecond), true
	default:
		return 0, false
	}
}

func metricUnitFromString(unit string) (cwtypes.StandardUnit, bool) {
	switch strings.ToLower(unit) {
	case "count":
		return cwtypes.StandardUnitCount, true
	case "percent":
		return cwtypes.StandardUnitPercent, true
	case "milliseconds", "ms":
		return cwtypes.StandardUnitMilliseconds, true
	case "seconds", "s":
		return cwtypes.StandardUnitSeconds, true
	case "bytes":
		return cwtypes.StandardUnitBytes, true
	case "megabytes", "mb":
		return cwtypes.StandardUnitMegabytes, true
	default:
		return cwtypes.StandardUnitCount, false
	}
}
