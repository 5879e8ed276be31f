package archive

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/config"
)

// objectPutter is the part of the S3 API the archive needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver stores raw webhook payloads that were rejected or failed.
type S3Archiver struct {
	client objectPutter
	bucket string
	now    func() time.Time
}

// NewS3Archiver builds the S3 client from static credentials. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig) (*S3Archiver, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("S3 archive is disabled")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	log.Infof("[Archive] S3 payload archive enabled for bucket: %s", cfg.BucketName)
	return newS3Archiver(client, cfg.BucketName), nil
}

func newS3Archiver(client objectPutter, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, now: time.Now}
}

// ArchivePayload uploads raw and returns the object key.
func (a *S3Archiver) ArchivePayload(ctx context.Context, d *models.WebhookDelivery, raw []byte) (string, error) {
	key := a.objectKey(d)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(raw),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(raw))),
		Metadata: map[string]string{
			"order-id":      d.OrderID,
			"state":         d.State,
			"source":        d.Source,
			"upload-source": "cashier-paytiko",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload payload to S3: %w", err)
	}
	return key, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectKey format: webhooks/paytiko/YYYY/MM/DD/<state>/<order>-<uuid>.json
func (a *S3Archiver) objectKey(d *models.WebhookDelivery) string {
	ts := a.now().UTC()
	order := unsafeKeyChars.ReplaceAllString(d.OrderID, "_")
	if order == "" {
		order = "unknown"
	}
	state := d.State
	if state == "" {
		state = "unknown"
	}
	return fmt.Sprintf("webhooks/paytiko/%04d/%02d/%02d/%s/%s-%s.json",
		ts.Year(), ts.Month(), ts.Day(), state, order, uuid.NewString())
}
