// Package photostore keeps profile photos in S3-compatible object storage:
// direct upload on save, presigned GET links for viewing, delete on profile
// or account removal.
package photostore

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"
)

// viewURLExpiry is how long a presigned photo link stays valid.
const viewURLExpiry = 15 * time.Minute

// Seams for tests: the SDK constructors and calls are reached through
// package variables so tests can stub them without a live bucket.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}

	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}

	readFile = os.ReadFile
)

// Config selects the bucket and its credentials. BaseEndpoint is set for
// S3-compatible stores like MinIO and left empty for AWS itself.
type Config struct {
	Region       string
	Bucket       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// Store is the photo storage gateway.
type Store struct {
	cfg Config
	log logging.Logger
}

// New builds a Store for the configured bucket.
func New(cfg Config, log logging.Logger) *Store {
	if log == nil {
		log = logging.Discard()
	}
	return &Store{cfg: cfg, log: log}
}

// Enabled reports whether object storage is configured at all.
func (s *Store) Enabled() bool { return s.cfg.Bucket != "" }

// StorageKey returns a fresh collision-free object key for userID's photo.
func StorageKey(userID string) string {
	d := time.Now()
	return fmt.Sprintf("profiles/%s/%d/%d/%d/%v", userID, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *Store) client() (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(s.cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.AccessKey,
			s.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.BaseEndpoint)
		}
	}), nil
}

// Upload stores the photo at path under a fresh key and returns that key.
// The content type is sniffed from the file's leading bytes.
func (s *Store) Upload(ctx context.Context, userID, path string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("photo storage not configured")
	}

	data, err := readFile(path)
	if err != nil {
		return "", fmt.Errorf("reading photo %s: %w", path, err)
	}

	client, err := s.client()
	if err != nil {
		return "", fmt.Errorf("creating storage client: %w", err)
	}

	key := StorageKey(userID)
	contentType := http.DetectContentType(data)

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &s.cfg.Bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading photo: %w", err)
	}

	s.log.Info(ctx, "profile photo uploaded", "user_id", userID, "key", key, "bytes", len(data))
	return key, nil
}

// ViewURL returns a short-lived presigned GET link for the stored photo.
func (s *Store) ViewURL(ctx context.Context, key string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("photo storage not configured")
	}

	client, err := s.client()
	if err != nil {
		return "", fmt.Errorf("creating storage client: %w", err)
	}

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &key,
	}, s3.WithPresignExpires(viewURLExpiry))
	if err != nil {
		return "", fmt.Errorf("presigning photo link: %w", err)
	}
	return req.URL, nil
}

// Delete removes the stored photo. Deleting an absent key is a no-op at
// the storage layer.
func (s *Store) Delete(ctx context.Context, key string) error {
	if !s.Enabled() || key == "" {
		return nil
	}

	client, err := s.client()
	if err != nil {
		return fmt.Errorf("creating storage client: %w", err)
	}

	if _, err := deleteObject(client, ctx, &s3.DeleteObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &key,
	}); err != nil {
		return fmt.Errorf("deleting photo: %w", err)
	}
	return nil
}
