// Package s3 implements the storage adapter on an S3-compatible object
// store. Each family gets its own bucket, <prefix>-<familyId> lowercased;
// object keys mirror the virtual folder layout.
package s3

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/famgate/famgate/pkg/metadata"
	"github.com/famgate/famgate/pkg/storage"
)

// Config for the object store adapter.
type Config struct {
	// Endpoint is the S3 endpoint URL (empty for AWS).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Region is the AWS region.
	Region string `mapstructure:"region" yaml:"region"`

	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`

	// BucketPrefix is prepended to the lowercased family id.
	BucketPrefix string `mapstructure:"bucket_prefix" yaml:"bucket_prefix"`

	// AutoCreateBucket creates missing family buckets on first upload.
	AutoCreateBucket bool `mapstructure:"auto_create_bucket" yaml:"auto_create_bucket"`

	// ForcePathStyle is required for MinIO and Localstack.
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// Adapter is the S3-compatible object storage backend.
type Adapter struct {
	client       *awss3.Client
	presign      *awss3.PresignClient
	bucketPrefix string
	autoCreate   bool
	logger       *slog.Logger
}

var _ storage.Adapter = (*Adapter)(nil)

// New creates an adapter with an existing client.
func New(client *awss3.Client, cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		client:       client,
		presign:      awss3.NewPresignClient(client),
		bucketPrefix: cfg.BucketPrefix,
		autoCreate:   cfg.AutoCreateBucket,
		logger:       logger,
	}
}

// NewFromConfig builds the S3 client from configuration and wraps it.
func NewFromConfig(ctx context.Context, cfg Config, logger *slog.Logger) (*Adapter, error) {
	if cfg.BucketPrefix == "" {
		return nil, fmt.Errorf("object storage bucket prefix is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return New(client, cfg, logger), nil
}

func (a *Adapter) Type() string { return storage.TypeObject }

// BucketName returns the bucket for a family.
func (a *Adapter) BucketName(familyID string) string {
	return strings.ToLower(a.bucketPrefix + "-" + familyID)
}

func (a *Adapter) Upload(ctx context.Context, m *metadata.FileMetadata, payload io.Reader) (string, error) {
	bucket := a.BucketName(m.FamilyID)
	if a.autoCreate {
		if err := a.ensureBucket(ctx, bucket); err != nil {
			return "", err
		}
	}

	key := storage.ObjectKey(m.FolderPath, m.FileID, m.Extension())
	tags := url.Values{}
	tags.Set("familyId", m.FamilyID)
	tags.Set("uploaderUserId", m.OwnerID)
	tags.Set("uploadTime", m.UploadTime.UTC().Format(time.RFC3339))

	input := &awss3.PutObjectInput{
		Bucket:  aws.String(bucket),
		Key:     aws.String(key),
		Body:    payload,
		Tagging: aws.String(tags.Encode()),
	}
	if m.FileType != "" {
		input.ContentType = aws.String(m.FileType)
	}
	if m.FileSize > 0 {
		input.ContentLength = aws.Int64(m.FileSize)
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}

	a.logger.Debug("object stored", "file_id", m.FileID, "bucket", bucket, "key", key)
	return bucket + "/" + key, nil
}

func (a *Adapter) Download(ctx context.Context, fileID, familyID string) (io.ReadCloser, error) {
	bucket := a.BucketName(familyID)
	key, err := a.resolveKey(ctx, bucket, fileID)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	return resp.Body, nil
}

func (a *Adapter) Delete(ctx context.Context, fileID, familyID string) (bool, error) {
	bucket := a.BucketName(familyID)
	key, err := a.resolveKey(ctx, bucket, fileID)
	if err != nil {
		if err == storage.ErrNotFound {
			return false, nil
		}
		return false, err
	}

	if _, err := a.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, fmt.Errorf("s3 delete object: %w", err)
	}
	return true, nil
}

func (a *Adapter) List(ctx context.Context, familyID, folderPath string) ([]string, error) {
	bucket := a.BucketName(familyID)

	prefix := storage.SanitizeFolderPath(folderPath)
	if prefix != "" {
		prefix += "/"
	}

	var names []string
	paginator := awss3.NewListObjectsV2Paginator(a.client, &awss3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNotFoundError(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			names = append(names, path.Base(aws.ToString(obj.Key)))
		}
		for _, cp := range page.CommonPrefixes {
			sub := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if sub != "" {
				names = append(names, sub)
			}
		}
	}
	return names, nil
}

// Healthy verifies the endpoint is reachable by enumerating buckets.
func (a *Adapter) Healthy(ctx context.Context) error {
	if _, err := a.client.ListBuckets(ctx, &awss3.ListBucketsInput{}); err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) AccessURL(ctx context.Context, fileID, familyID string, expire time.Duration) (string, error) {
	bucket := a.BucketName(familyID)
	key, err := a.resolveKey(ctx, bucket, fileID)
	if err != nil {
		return "", err
	}

	req, err := a.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(expire))
	if err != nil {
		return "", fmt.Errorf("presigning object url: %w", err)
	}
	return req.URL, nil
}

// ensureBucket creates the family bucket if it does not exist yet.
func (a *Adapter) ensureBucket(ctx context.Context, bucket string) error {
	_, err := a.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}

	_, err = a.client.CreateBucket(ctx, &awss3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil && !strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
		return fmt.Errorf("creating bucket %s: %w", bucket, err)
	}
	return nil
}

// resolveKey scans the bucket for an object whose leaf name starts with
// "<fileId>.".
func (a *Adapter) resolveKey(ctx context.Context, bucket, fileID string) (string, error) {
	paginator := awss3.NewListObjectsV2Paginator(a.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNotFoundError(err) {
				return "", storage.ErrNotFound
			}
			return "", fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			leaf := path.Base(key)
			if strings.HasPrefix(leaf, fileID+".") || leaf == fileID {
				return key, nil
			}
		}
	}
	return "", storage.ErrNotFound
}

// isNotFoundError matches missing-bucket and missing-key responses.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") ||
		strings.Contains(msg, "NoSuchBucket") ||
		strings.Contains(msg, "NotFound") ||
		strings.Contains(msg, "404")
}
