// Package media issues presigned upload URLs for trip cover images and
// comment photos. Clients PUT the object straight to the bucket; the API
// never proxies image bytes.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tripboard/api/internal/util"
)

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ErrUnsupportedType is returned for content types outside the image allowlist.
var ErrUnsupportedType = errors.New("unsupported content type")

type Service struct {
	client    *minio.Client
	bucket    string
	publicURL string
	expiry    time.Duration
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string // base URL where uploaded objects are served from
}

func NewService(cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Service{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		expiry:    15 * time.Minute,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Upload is the response handed to the client: where to PUT the bytes and
// the URL the object will be readable from afterwards.
type Upload struct {
	UploadURL string `json:"uploadUrl"`
	ObjectURL string `json:"objectUrl"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"`
}

// PresignUpload returns a presigned PUT URL for one image object, keyed under
// the itinerary so cleanup can delete per trip.
func (s *Service) PresignUpload(ctx context.Context, itineraryID, contentType string) (Upload, error) {
	extension, ok := allowedContentTypes[contentType]
	if !ok {
		return Upload{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	key := path.Join("itineraries", itineraryID, util.NewID("img")+extension)

	presigned, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.expiry)
	if err != nil {
		return Upload{}, fmt.Errorf("presign put %s: %w", key, err)
	}

	return Upload{
		UploadURL: presigned.String(),
		ObjectURL: s.objectURL(key),
		Key:       key,
		ExpiresIn: int(s.expiry.Seconds()),
	}, nil
}

func (s *Service) objectURL(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + key
	}
	u := url.URL{Scheme: "https", Host: s.client.EndpointURL().Host, Path: path.Join(s.bucket, key)}
	return u.String()
}
