package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/gogotex/gogotex/backend/notary-service/internal/apperr"
	"github.com/gogotex/gogotex/backend/notary-service/internal/fingerprint"
)

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// MinIOMirror stores blobs in a bucket keyed by their content address.
type MinIOMirror struct {
	client *minio.Client
	bucket string
}

// NewMinIOMirror creates the client and ensures the bucket exists.
func NewMinIOMirror(cfg *MinIOConfig) (*MinIOMirror, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	m := &MinIOMirror{client: mc, bucket: cfg.Bucket}
	// ensure bucket exists (idempotent)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := mc.BucketExists(ctx, m.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return m, nil
}

func (m *MinIOMirror) Name() string { return "minio" }

func (m *MinIOMirror) Put(ctx context.Context, b []byte) (string, error) {
	addr, err := fingerprint.ContentAddress(b)
	if err != nil {
		return "", err
	}
	_, err = m.client.PutObject(ctx, m.bucket, addr, bytes.NewReader(b), int64(len(b)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", err
	}
	return addr, nil
}

func (m *MinIOMirror) Get(ctx context.Context, addr string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, addr, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.classify(addr, err)
	}
	defer obj.Close()
	// stat first so a missing key surfaces as NoSuchKey rather than a read error
	if _, err := obj.Stat(); err != nil {
		return nil, m.classify(addr, err)
	}
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.classify(addr, err)
	}
	return b, nil
}

func (m *MinIOMirror) Has(ctx context.Context, addr string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, addr, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	err = m.classify(addr, err)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	}
	return false, err
}

func (m *MinIOMirror) classify(addr string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return apperr.Wrap(apperr.ErrContentNotFound, "%s on minio", addr)
	}
	return err
}
