package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kalambet/mdnotes/internal/apperr"
)

// MinIOOptions configures the MinIO backend.
type MinIOOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	// URLExpiry > 0 makes Upload return presigned GET URLs valid for that
	// long instead of plain public URLs.
	URLExpiry time.Duration
	MaxSize   int64
	Logger    *slog.Logger
}

// MinIO stores notes in a MinIO or other S3 compatible bucket.
type MinIO struct {
	client    *minio.Client
	endpoint  string
	bucket    string
	secure    bool
	urlExpiry time.Duration
	maxSize   int64
	logger    *slog.Logger
}

// NewMinIO connects to the object store and makes sure the bucket exists
// with a public-read policy. Failing to apply the policy is logged and does
// not fail construction.
func NewMinIO(ctx context.Context, opts MinIOOptions) (*MinIO, error) {
	if opts.Endpoint == "" {
		return nil, apperr.E(apperr.StorageUnavailable, "object store endpoint is empty", nil)
	}
	if opts.Bucket == "" {
		return nil, apperr.E(apperr.StorageUnavailable, "object store bucket is empty", nil)
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, apperr.E(apperr.StorageUnavailable, "creating object store client", err)
	}

	m := &MinIO{
		client:    client,
		endpoint:  opts.Endpoint,
		bucket:    opts.Bucket,
		secure:    opts.Secure,
		urlExpiry: opts.URLExpiry,
		maxSize:   opts.MaxSize,
		logger:    opts.Logger,
	}
	if m.maxSize <= 0 {
		m.maxSize = DefaultMaxSize
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}

	if err := m.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MinIO) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return apperr.E(apperr.StorageUnavailable, fmt.Sprintf("checking bucket %q", m.bucket), err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return apperr.E(apperr.StorageUnavailable, fmt.Sprintf("creating bucket %q", m.bucket), err)
		}
		m.logger.Info("created bucket", "bucket", m.bucket)
	}

	if err := m.client.SetBucketPolicy(ctx, m.bucket, bucketPolicy(m.bucket)); err != nil {
		m.logger.Warn("could not set public-read bucket policy", "bucket", m.bucket, "error", err)
	}
	return nil
}

func (m *MinIO) Upload(ctx context.Context, r io.Reader, size int64, key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	if err := checkSize(size, m.maxSize); err != nil {
		return "", err
	}

	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: ContentType,
	})
	if err != nil {
		return "", apperr.E(apperr.UploadFailed, "failed to upload file", err)
	}

	if m.urlExpiry > 0 {
		u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.urlExpiry, url.Values{})
		if err != nil {
			return "", apperr.E(apperr.UploadFailed, "presigning object URL", err)
		}
		return u.String(), nil
	}
	return publicURL(m.secure, m.endpoint, m.bucket, key), nil
}

func (m *MinIO) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fetchError(key, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fetchError(key, err)
	}
	return data, nil
}

func (m *MinIO) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperr.E(apperr.DeleteFailed, fmt.Sprintf("deleting object %q", key), err)
	}
	return nil
}

func fetchError(key string, err error) error {
	if isNoSuchKey(err) {
		return apperr.E(apperr.NotFound, fmt.Sprintf("object %q not found", key), err)
	}
	return apperr.E(apperr.FetchFailed, fmt.Sprintf("fetching object %q", key), err)
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
	}
	return false
}

func publicURL(secure bool, endpoint, bucket, key string) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: endpoint, Path: "/" + bucket + "/" + key}
	return u.String()
}

type policyStatement struct {
	Effect    string              `json:"Effect"`
	Principal map[string][]string `json:"Principal"`
	Action    []string            `json:"Action"`
	Resource  []string            `json:"Resource"`
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

// bucketPolicy grants anonymous s3:GetObject on every object in bucket.
func bucketPolicy(bucket string) string {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Effect:    "Allow",
			Principal: map[string][]string{"AWS": {"*"}},
			Action:    []string{"s3:GetObject"},
			Resource:  []string{"arn:aws:s3:::" + bucket + "/*"},
		}},
	}
	b, _ := json.Marshal(doc)
	return string(b)
}
