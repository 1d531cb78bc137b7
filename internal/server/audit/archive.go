package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/companion/internal/server/models"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// Archiver stores a copy of a moderation record outside the database.
type Archiver interface {
	Archive(ctx context.Context, record *models.ModerationRecord) error
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes each record as one JSON object.
type S3Archiver struct {
	client putObjectAPI
	bucket string
}

func NewS3Archiver(client putObjectAPI, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

// S3Options configure NewS3Client. Empty keys fall back to the default AWS
// credential chain; an endpoint switches to path-style addressing (MinIO).
type S3Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Client builds an S3 client from opts.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ObjectKey is moderation/yyyy/mm/dd/<record id>.json, dated by CreatedAt.
func ObjectKey(record *models.ModerationRecord) string {
	d := record.CreatedAt.UTC()
	return fmt.Sprintf("moderation/%04d/%02d/%02d/%s.json", d.Year(), d.Month(), d.Day(), record.ID)
}

type archivedRecord struct {
	ID         string  `json:"id"`
	OwnerID    string  `json:"owner_id"`
	ExchangeID string  `json:"exchange_id,omitempty"`
	Message    string  `json:"message"`
	Response   *string `json:"response"`
	Reason     string  `json:"reason"`
	CreatedAt  string  `json:"created_at"`
}

func (a *S3Archiver) Archive(ctx context.Context, record *models.ModerationRecord) error {
	body, err := json.Marshal(archivedRecord{
		ID:         record.ID,
		OwnerID:    record.OwnerID,
		ExchangeID: record.ExchangeID,
		Message:    record.Message,
		Response:   record.Response,
		Reason:     record.Reason,
		CreatedAt:  record.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return err
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ObjectKey(record)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive moderation record: %w", err)
	}
	return nil
}
