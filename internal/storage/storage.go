// Package storage puts submission files in the event's Cloud Storage bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"

	"startup-spark/internal/config"
	"startup-spark/internal/errs"
)

type Uploader interface {
	// Upload stores r under name and returns a URL for it.
	Upload(ctx context.Context, name string, r io.Reader, contentType string) (string, error)
}

type GCS struct {
	svc    *gcs.Service
	bucket string
	log    *zap.Logger
}

func NewGCS(ctx context.Context, bucket string, log *zap.Logger, opts ...option.ClientOption) (*GCS, error) {
	svc, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage service: %w", err)
	}
	return &GCS{svc: svc, bucket: bucket, log: log}, nil
}

// New picks the GCS uploader when a bucket and credentials are configured.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (Uploader, error) {
	if cfg.Google.Bucket == "" || cfg.Google.ServiceAccountJSON == "" {
		log.Info("file uploads disabled: GCS_BUCKET or GOOGLE_SERVICE_ACCOUNT_JSON not set")
		return Disabled{}, nil
	}
	return NewGCS(ctx, cfg.Google.Bucket, log,
		option.WithCredentialsJSON([]byte(cfg.Google.ServiceAccountJSON)),
		option.WithScopes(gcs.DevstorageReadWriteScope))
}

func (g *GCS) Upload(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	obj := &gcs.Object{Name: name, ContentType: contentType}
	res, err := g.svc.Objects.Insert(g.bucket, obj).Media(r).Context(ctx).Do()
	if err != nil {
		g.log.Error("upload failed", zap.String("object", name), zap.Error(err))
		return "", fmt.Errorf("%w: upload %s", errs.ErrStorage, name)
	}
	g.log.Info("file uploaded", zap.String("object", res.Name), zap.Uint64("size", res.Size))
	return PublicURL(g.bucket, res.Name), nil
}

func PublicURL(bucket, name string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + escapePath(name)
}

func escapePath(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// ObjectName is where a team's phase-1 file lives.
func ObjectName(registrationID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = "file"
	}
	return "phase1_submissions/" + registrationID + "_" + base
}

// Disabled rejects every upload.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, io.Reader, string) (string, error) {
	return "", fmt.Errorf("%w: uploads are not configured", errs.ErrStorage)
}
