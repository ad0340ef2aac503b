package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// S3Config holds the S3 backend settings
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store keeps objects in an S3 (or S3-compatible) bucket
type S3Store struct {
	bucket   string
	api      s3iface.S3API
	uploader s3manageriface.UploaderAPI
	logger   *slog.Logger
}

// NewS3Store creates an S3 store. Without static keys the default credential chain is used.
func NewS3Store(config S3Config, logger *slog.Logger) (*S3Store, error) {
	awsConfig := &aws.Config{
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(config.ForcePathStyle),
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}
	if config.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKeyID, config.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	api := s3.New(sess)
	return newS3Store(config.Bucket, api, s3manager.NewUploaderWithClient(api), logger), nil
}

func newS3Store(bucket string, api s3iface.S3API, uploader s3manageriface.UploaderAPI, logger *slog.Logger) *S3Store {
	return &S3Store{
		bucket:   bucket,
		api:      api,
		uploader: uploader,
		logger:   logger,
	}
}

// Upload stores data at objectPath
func (s *S3Store) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectPath),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}

	s.logger.Debug("Object uploaded",
		slog.String("bucket", s.bucket),
		slog.String("path", objectPath),
		slog.Int("size", len(data)),
	)
	return nil
}

// Download fetches the object at objectPath
func (s *S3Store) Download(ctx context.Context, objectPath string) ([]byte, error) {
	out, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("failed to download %s: %w", objectPath, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to download %s: %w", objectPath, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", objectPath, err)
	}
	return data, nil
}

// SignedURL presigns a GET for objectPath
func (s *S3Store) SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	req, _ := s.api.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectPath),
	})
	req.SetContext(ctx)

	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", objectPath, err)
	}
	return url, nil
}

// Delete removes objects in one batch
func (s *S3Store) Delete(ctx context.Context, objectPaths ...string) error {
	if len(objectPaths) == 0 {
		return nil
	}

	objects := make([]*s3.ObjectIdentifier, 0, len(objectPaths))
	for _, p := range objectPaths {
		objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(p)})
	}

	_, err := s.api.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to delete objects: %w", err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
