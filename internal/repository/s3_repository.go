package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	appconfig "github.com/vicosurge/revista-lavanda/internal/config"
	"github.com/vicosurge/revista-lavanda/internal/domain"
	"github.com/vicosurge/revista-lavanda/pkg/utils"
)

const (
	providerS3 = "s3"

	// maxRenameAttempts bounds the "name (n).ext" probing on collisions.
	maxRenameAttempts = 100
)

// S3API is the part of the S3 client the repository uses.
type S3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Presigner is the part of the presign client the repository uses.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type s3Repository struct {
	client   S3API
	presign  S3Presigner
	cfg      *appconfig.S3Config
	prefix   string
	fallback string
	log      *zap.Logger
}

func NewS3Repository(ctx context.Context, cfg *appconfig.S3Config, prefix string, log *zap.Logger) (FileStorage, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	repo := newS3Repository(client, s3.NewPresignClient(client), cfg, prefix, log)

	if err := repo.ensureBucketExists(ctx); err != nil {
		log.Warn("Failed to ensure bucket exists", zap.Error(err))
	}

	return repo, nil
}

func newS3Repository(client S3API, presign S3Presigner, cfg *appconfig.S3Config, prefix string, log *zap.Logger) *s3Repository {
	prefix = strings.Trim(prefix, "/")
	fallback := fmt.Sprintf("https://s3.console.aws.amazon.com/s3/buckets/%s?prefix=%s/", cfg.BucketName, prefix)
	if cfg.Endpoint != "" {
		fallback = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.BucketName + "/" + prefix + "/"
	}
	return &s3Repository{
		client:   client,
		presign:  presign,
		cfg:      cfg,
		prefix:   prefix,
		fallback: fallback,
		log:      log,
	}
}

func (r *s3Repository) ensureBucketExists(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.cfg.BucketName),
	})

	if err == nil {
		r.log.Info("Bucket already exists", zap.String("bucket", r.cfg.BucketName))
		return nil
	}

	r.log.Info("Creating bucket", zap.String("bucket", r.cfg.BucketName))

	in := &s3.CreateBucketInput{Bucket: aws.String(r.cfg.BucketName)}
	// us-east-1 rejects an explicit location constraint.
	if r.cfg.Region != "" && r.cfg.Region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(r.cfg.Region),
		}
	}
	if _, err := r.client.CreateBucket(ctx, in); err != nil {
		return err
	}

	r.log.Info("Bucket created successfully", zap.String("bucket", r.cfg.BucketName))
	return nil
}

func (r *s3Repository) Upload(ctx context.Context, filename string, data []byte) (*domain.StoredFile, error) {
	contentType := mime.TypeByExtension(path.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var key string
	for n := 0; ; n++ {
		if n == maxRenameAttempts {
			err := fmt.Errorf("no free name for %q after %d attempts", filename, maxRenameAttempts)
			return nil, &domain.StageError{Stage: domain.StageUpload, Provider: providerS3, Err: err}
		}
		key = path.Join(r.prefix, utils.RenameCandidate(filename, n))

		taken, err := r.exists(ctx, key)
		if err != nil {
			return nil, r.uploadError(key, err)
		}
		if taken {
			r.log.Debug("Key taken, trying next name", zap.String("key", key))
			continue
		}

		// IfNoneMatch makes the put fail instead of overwriting an object
		// created after the HeadObject check.
		_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(r.cfg.BucketName),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(int64(len(data))),
			IfNoneMatch:   aws.String("*"),
		})
		if err == nil {
			break
		}
		if statusOf(err) == http.StatusPreconditionFailed {
			r.log.Debug("Key created concurrently, trying next name", zap.String("key", key))
			continue
		}
		return nil, r.uploadError(key, err)
	}

	r.log.Info("File uploaded to S3",
		zap.String("key", key),
		zap.Int("size", len(data)))

	url, source := ResolveLink(ctx, r.log, key, r.linkStrategies(), r.fallback)

	return &domain.StoredFile{
		Path:       "/" + key,
		URL:        url,
		LinkSource: source,
	}, nil
}

func (r *s3Repository) exists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.cfg.BucketName),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (r *s3Repository) uploadError(key string, err error) error {
	r.log.Error("Failed to upload file to S3",
		zap.String("key", key),
		zap.Error(err))
	return &domain.StageError{Stage: domain.StageUpload, Provider: providerS3, StatusCode: statusOf(err), Body: err.Error(), Err: err}
}

func (r *s3Repository) linkStrategies() []LinkStrategy {
	return []LinkStrategy{
		{
			Name: "presigned",
			Create: func(ctx context.Context, key string) (string, error) {
				req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
					Bucket: aws.String(r.cfg.BucketName),
					Key:    aws.String(key),
				}, s3.WithPresignExpires(r.cfg.PresignTTL))
				if err != nil {
					return "", err
				}
				return req.URL, nil
			},
		},
	}
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	return statusOf(err) == http.StatusNotFound
}

// statusOf returns the HTTP status carried by an SDK response error, or 0.
func statusOf(err error) int {
	var re interface{ HTTPStatusCode() int }
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}
