package publish

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"

	"github.com/AlecRosenbaum/GearGen/artifact"
	"github.com/AlecRosenbaum/GearGen/errors"
)

// defaultContentType is used when content type detection fails.
const defaultContentType = "application/octet-stream"

// s3API is the subset of the S3 client the publisher uses, extracted so
// tests can substitute a fake.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 publishes artifact sets to an S3 bucket configured for static
// hosting. Each file uploads under <prefix>/<path> with a detected
// content type; the public URL is the bucket website endpoint.
type S3 struct {
	client s3API
	bucket string
	prefix string
	region string
	logger *slog.Logger
}

type s3Options struct {
	region   string
	prefix   string
	endpoint string
	client   s3API
	logger   *slog.Logger
}

// S3Option customizes an S3 publisher.
type S3Option func(*s3Options)

// WithRegion sets the AWS region. Defaults to the ambient configuration.
func WithRegion(region string) S3Option {
	return func(o *s3Options) {
		o.region = region
	}
}

// WithPrefix uploads all objects under the given key prefix.
func WithPrefix(prefix string) S3Option {
	return func(o *s3Options) {
		o.prefix = prefix
	}
}

// WithEndpoint points the client at a custom S3-compatible endpoint
// (MinIO, localstack) using path-style addressing.
func WithEndpoint(endpoint string) S3Option {
	return func(o *s3Options) {
		o.endpoint = endpoint
	}
}

// WithS3Client injects a pre-built S3 client. Tests use this to avoid
// touching real credentials.
func WithS3Client(client s3API) S3Option {
	return func(o *s3Options) {
		o.client = client
	}
}

// WithS3Logger sets the logger. Defaults to slog.Default().
func WithS3Logger(logger *slog.Logger) S3Option {
	return func(o *s3Options) {
		o.logger = logger
	}
}

// NewS3 creates an S3 publisher for the given bucket. Credentials come
// from the default AWS credential chain.
func NewS3(ctx context.Context, bucket string, opts ...S3Option) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}

	options := &s3Options{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	client := options.client
	region := options.region
	if client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if options.region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(options.region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS configuration: %w", err)
		}
		region = cfg.Region
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if options.endpoint != "" {
				o.BaseEndpoint = aws.String(options.endpoint)
				o.UsePathStyle = true
			}
		})
	}

	return &S3{
		client: client,
		bucket: bucket,
		prefix: options.prefix,
		region: region,
		logger: options.logger,
	}, nil
}

// Publish implements Publisher. Files upload in the set's deterministic
// walk order; the first failed upload aborts the publish.
func (p *S3) Publish(ctx context.Context, set *artifact.Set, target string) (*Deployment, error) {
	p.logger.Info("publishing to s3",
		"bucket", p.bucket, "target", target, "files", set.Len())

	err := set.Walk(func(name string, f artifact.File) error {
		key := p.objectKey(f.Path)
		_, putErr := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(f.Content),
			ContentType: aws.String(detectContentType(f.Path, f.Content)),
		})
		if putErr != nil {
			return wrapS3Error(putErr, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Deployment{
		Target:      target,
		URL:         p.websiteURL(),
		Digest:      set.Digest(),
		CompletedAt: time.Now().UTC(),
	}, nil
}

func (p *S3) objectKey(filePath string) string {
	key := filepath.ToSlash(filePath)
	if p.prefix != "" {
		key = path.Join(p.prefix, key)
	}
	return key
}

func (p *S3) websiteURL() string {
	region := p.region
	if region == "" {
		region = "us-east-1"
	}
	url := fmt.Sprintf("http://%s.s3-website-%s.amazonaws.com", p.bucket, region)
	if p.prefix != "" {
		url += "/" + p.prefix
	}
	return url
}

// wrapS3Error maps an SDK error to a structured publish failure, keeping
// the smithy API error code when one is present.
func wrapS3Error(err error, key string) error {
	context := map[string]interface{}{"key": key}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		context["code"] = apiErr.ErrorCode()
	}
	return errors.WrapWithContext(err, errors.CodePublishFailed, "uploading object", context)
}

// detectContentType determines the content type from the file extension
// where possible, falling back to sniffing the content.
func detectContentType(filePath string, data []byte) string {
	if byExt := mime.TypeByExtension(path.Ext(filePath)); byExt != "" {
		return byExt
	}
	if mt := mimetype.Detect(data); mt != nil {
		return mt.String()
	}
	return defaultContentType
}
