package writer

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "bookfeed/config"
	"bookfeed/internal/metrics"
	"bookfeed/logger"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror copies the latest published document to a single S3 object.
// Uploads run on one worker off the receive path. Only the newest pending
// payload is kept; older ones are replaced before they are uploaded.
type S3Mirror struct {
	client objectPutter
	bucket string
	key    string
	slot   chan []byte
	log    *logger.Log

	uploads int64
	errors  int64
}

// NewS3Mirror configures the AWS SDK from cfg. Static credentials are used
// when both keys are set, otherwise the default chain applies.
func NewS3Mirror(ctx context.Context, cfg appconfig.S3Config) (*S3Mirror, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.GetLogger().WithComponent("s3_mirror").WithFields(logger.Fields{
		"bucket": cfg.Bucket,
		"key":    cfg.Key,
		"region": cfg.Region,
	}).Info("s3 mirror initialized")

	return newS3Mirror(client, cfg.Bucket, cfg.Key), nil
}

func newS3Mirror(client objectPutter, bucket, key string) *S3Mirror {
	return &S3Mirror{
		client: client,
		bucket: bucket,
		key:    key,
		slot:   make(chan []byte, 1),
		log:    logger.GetLogger(),
	}
}

// Offer queues payload for upload without blocking. A payload still waiting
// in the slot is replaced.
func (m *S3Mirror) Offer(payload []byte) {
	for {
		select {
		case m.slot <- payload:
			return
		default:
		}
		select {
		case <-m.slot:
		default:
		}
	}
}

// Run uploads queued payloads until ctx is done.
func (m *S3Mirror) Run(ctx context.Context) {
	log := m.log.WithComponent("s3_mirror")
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-m.slot:
			if err := m.upload(ctx, payload); err != nil {
				if ctx.Err() != nil {
					return
				}
				atomic.AddInt64(&m.errors, 1)
				metrics.IncrementS3MirrorFailed()
				log.WithError(err).WithFields(logger.Fields{"bucket": m.bucket, "key": m.key}).Warn("failed to mirror snapshot")
				continue
			}
			atomic.AddInt64(&m.uploads, 1)
			metrics.IncrementS3Mirrored()
		}
	}
}

func (m *S3Mirror) upload(ctx context.Context, payload []byte) error {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(m.key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	return err
}

// Stats returns the number of successful and failed uploads.
func (m *S3Mirror) Stats() (uploads, errors int64) {
	return atomic.LoadInt64(&m.uploads), atomic.LoadInt64(&m.errors)
}
