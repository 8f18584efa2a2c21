// Package s3 uploads pipeline artifacts (frames, clips, merged videos) to an
// S3-compatible bucket and resolves their public URLs, preferring the
// configured CDN distribution when one exists.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config captures the bucket settings for artifact storage. Static credentials
// are optional; when unset the default AWS credential chain applies.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	CDNBaseURL      string
	KeyPrefix       string
}

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	UploadFile(ctx context.Context, key, path string) (string, error)
}

// Client implements Uploader against a real bucket.
type Client struct {
	cfg      Config
	uploader *manager.Uploader
}

// NewClient builds an S3 client. Explicit access keys in cfg take precedence
// over the default AWS credential chain.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	api := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Client{
		cfg:      cfg,
		uploader: manager.NewUploader(api),
	}, nil
}

// Upload stores body under key and returns the public URL.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	objectKey := c.objectKey(key)
	if objectKey == "" {
		return "", errors.New("s3: object key required")
	}
	input := &awss3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(objectKey),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := c.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("s3: upload %s: %w", objectKey, err)
	}
	return c.ObjectURL(key), nil
}

// UploadFile stores the file at path under key, inferring the content type
// from the file extension.
func (c *Client) UploadFile(ctx context.Context, key, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("s3: open %s: %w", filePath, err)
	}
	defer file.Close()
	return c.Upload(ctx, key, file, ContentTypeForPath(filePath))
}

// ObjectURL resolves the public URL for a stored key.
func (c *Client) ObjectURL(key string) string {
	objectKey := c.objectKey(key)
	if c.cfg.CDNBaseURL != "" {
		return strings.TrimRight(c.cfg.CDNBaseURL, "/") + "/" + escapeKey(objectKey)
	}
	if c.cfg.Endpoint != "" {
		return strings.TrimRight(c.cfg.Endpoint, "/") + "/" + c.cfg.Bucket + "/" + escapeKey(objectKey)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.cfg.Bucket, c.cfg.Region, escapeKey(objectKey))
}

func (c *Client) objectKey(key string) string {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return ""
	}
	prefix := strings.Trim(strings.TrimSpace(c.cfg.KeyPrefix), "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// ContentTypeForPath guesses a MIME type from the file extension, defaulting
// to octet-stream.
func ContentTypeForPath(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	}
	if byExt := mime.TypeByExtension(filepath.Ext(filePath)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
