package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"github.com/vicosurge/revista-lavanda/internal/config"
	"github.com/vicosurge/revista-lavanda/internal/domain"
	"github.com/vicosurge/revista-lavanda/pkg/utils"
)

const providerGCS = "gcs"

// errObjectExists is returned when a conditional write found the object.
var errObjectExists = errors.New("object already exists")

// GCSBucket is the part of a bucket handle the repository uses.
type GCSBucket interface {
	WriteIfAbsent(ctx context.Context, name, contentType string, data []byte) error
	SignedURL(name string, opts *storage.SignedURLOptions) (string, error)
	Attrs(ctx context.Context, name string) (*storage.ObjectAttrs, error)
}

type bucketHandle struct {
	bucket *storage.BucketHandle
}

// WriteIfAbsent writes data only if the object does not exist yet.
func (b *bucketHandle) WriteIfAbsent(ctx context.Context, name, contentType string, data []byte) error {
	writer := b.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func (b *bucketHandle) SignedURL(name string, opts *storage.SignedURLOptions) (string, error) {
	return b.bucket.SignedURL(name, opts)
}

func (b *bucketHandle) Attrs(ctx context.Context, name string) (*storage.ObjectAttrs, error) {
	return b.bucket.Object(name).Attrs(ctx)
}

type gcsRepository struct {
	bucket   GCSBucket
	cfg      *config.GCSConfig
	prefix   string
	fallback string
	log      *zap.Logger
	now      func() time.Time
}

// NewGCSRepository creates the storage client with application default
// credentials. The returned close function releases the client.
func NewGCSRepository(ctx context.Context, cfg *config.GCSConfig, prefix string, log *zap.Logger) (FileStorage, func() error, error) {
	if cfg.BucketName == "" {
		return nil, nil, fmt.Errorf("bucket name must be provided to create a gcs repository")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	repo := newGCSRepository(&bucketHandle{bucket: client.Bucket(cfg.BucketName)}, cfg, prefix, log)
	return repo, client.Close, nil
}

func newGCSRepository(bucket GCSBucket, cfg *config.GCSConfig, prefix string, log *zap.Logger) *gcsRepository {
	prefix = strings.Trim(prefix, "/")
	return &gcsRepository{
		bucket:   bucket,
		cfg:      cfg,
		prefix:   prefix,
		fallback: fmt.Sprintf("https://console.cloud.google.com/storage/browser/%s/%s", cfg.BucketName, prefix),
		log:      log,
		now:      time.Now,
	}
}

func (r *gcsRepository) Upload(ctx context.Context, filename string, data []byte) (*domain.StoredFile, error) {
	contentType := mime.TypeByExtension(path.Ext(filename))

	var objectName string
	for n := 0; ; n++ {
		if n == maxRenameAttempts {
			err := fmt.Errorf("no free name for %q after %d attempts", filename, maxRenameAttempts)
			return nil, &domain.StageError{Stage: domain.StageUpload, Provider: providerGCS, Err: err}
		}
		objectName = path.Join(r.prefix, utils.RenameCandidate(filename, n))
		err := preconditionAware(r.bucket.WriteIfAbsent(ctx, objectName, contentType, data))
		if err == nil {
			break
		}
		if errors.Is(err, errObjectExists) {
			r.log.Debug("Object exists, trying next name", zap.String("object", objectName))
			continue
		}
		r.log.Error("Failed to upload file to GCS",
			zap.String("object", objectName),
			zap.Error(err))
		stageErr := &domain.StageError{Stage: domain.StageUpload, Provider: providerGCS, Err: err}
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			stageErr.StatusCode = gerr.Code
			stageErr.Body = gerr.Message
		}
		return nil, stageErr
	}

	r.log.Info("File uploaded to GCS",
		zap.String("object", objectName),
		zap.Int("size", len(data)))

	url, source := ResolveLink(ctx, r.log, objectName, r.linkStrategies(), r.fallback)

	return &domain.StoredFile{
		Path:       "/" + objectName,
		URL:        url,
		LinkSource: source,
	}, nil
}

func preconditionAware(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return errObjectExists
	}
	return err
}

func (r *gcsRepository) linkStrategies() []LinkStrategy {
	return []LinkStrategy{
		{
			Name: "signed",
			Create: func(ctx context.Context, objectName string) (string, error) {
				return r.bucket.SignedURL(objectName, &storage.SignedURLOptions{
					Method:  http.MethodGet,
					Expires: r.now().Add(r.cfg.SignedTTL),
					Scheme:  storage.SigningSchemeV4,
				})
			},
		},
		{
			Name: "media_link",
			Create: func(ctx context.Context, objectName string) (string, error) {
				attrs, err := r.bucket.Attrs(ctx, objectName)
				if err != nil {
					return "", err
				}
				return attrs.MediaLink, nil
			},
		},
	}
}
