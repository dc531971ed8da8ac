// Package archive stores raw fetched documents in S3-compatible object
// storage before extraction, so an ingest run can be audited or replayed.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tripwell/policy-rag/pkg/models"
)

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9002" for MinIO
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Client wraps the MinIO/S3 client for raw-document archival.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// New creates a new archive client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Manifest records what an ingest run archived for one source.
type Manifest struct {
	SourceURL string   `json:"source_url"`
	Timestamp string   `json:"timestamp"`
	PageCount int      `json:"page_count"`
	Pages     []string `json:"pages"` // URLs of the archived pages
}

// objectPrefix derives the archive prefix for a source URL:
// archives/{host}/{hash}.
func objectPrefix(sourceURL string) string {
	host := "unknown"
	if parsed, err := url.Parse(sourceURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}
	return path.Join("archives", host, models.SourceKey(sourceURL))
}

// PutPage archives one raw fetched page under the source's prefix.
func (c *Client) PutPage(ctx context.Context, sourceURL, pageURL, body, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	objectName := path.Join(objectPrefix(sourceURL), "pages", models.SourceKey(pageURL)+".raw")
	reader := strings.NewReader(body)

	_, err := c.minioClient.PutObject(ctx, c.bucket, objectName, reader, int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put page: %w", err)
	}
	return nil
}

// PutManifest writes the ingest manifest for a source.
func (c *Client) PutManifest(ctx context.Context, sourceURL string, pageURLs []string) error {
	manifest := Manifest{
		SourceURL: sourceURL,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		PageCount: len(pageURLs),
		Pages:     pageURLs,
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	objectName := path.Join(objectPrefix(sourceURL), "manifest.json")
	_, err = c.minioClient.PutObject(ctx, c.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to put manifest: %w", err)
	}
	return nil
}

// GetManifest reads the ingest manifest for a source.
func (c *Client) GetManifest(ctx context.Context, sourceURL string) (*Manifest, error) {
	objectName := path.Join(objectPrefix(sourceURL), "manifest.json")

	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get manifest: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &manifest, nil
}

// GetPage reads an archived raw page.
func (c *Client) GetPage(ctx context.Context, sourceURL, pageURL string) (string, error) {
	objectName := path.Join(objectPrefix(sourceURL), "pages", models.SourceKey(pageURL)+".raw")

	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get page: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}
	return string(data), nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
