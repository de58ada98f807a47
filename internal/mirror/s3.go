package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fmuoria/resume-parser/internal/config"
)

// Key prefixes inside the bucket
const (
	InputsPrefix  = "inputs"
	OutputsPrefix = "outputs"
)

// objectPutter is the subset of the S3 client used here
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store copies uploads and artifacts to an S3-compatible bucket
type Store struct {
	client objectPutter
	bucket string
}

// NewStore creates an S3 store from mirror settings. A custom endpoint
// (MinIO, R2) switches the client to path-style addressing.
func NewStore(ctx context.Context, cfg config.MirrorConfig) (*Store, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the target bucket name
func (s *Store) Bucket() string {
	return s.bucket
}

// Upload writes body to key and returns the object location
func (s *Store) Upload(ctx context.Context, body io.Reader, key, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// MirrorFile uploads the local file at localPath under prefix/<base name>
func (s *Store) MirrorFile(ctx context.Context, prefix, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	name := filepath.Base(localPath)
	return s.Upload(ctx, f, path.Join(prefix, name), contentTypeFor(name))
}

func contentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
