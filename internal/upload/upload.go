// Package upload stores community logos and returns their public URL. The
// directory only ever keeps that URL; the bytes live in S3 (or any
// S3-compatible store) in production and on local disk in development.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
)

// DefaultMaxBytes caps a logo at 2 MiB.
const DefaultMaxBytes int64 = 2 << 20

var (
	// ErrEmpty is returned for zero-byte uploads.
	ErrEmpty = errors.New("empty file")
	// ErrTooLarge is returned when the file exceeds the configured cap.
	ErrTooLarge = errors.New("file too large")
	// ErrType is returned when the sniffed content type is not an allowed image.
	ErrType = errors.New("unsupported file type")
)

// allowedTypes are the image types accepted as logos, keyed by sniffed MIME.
var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Object is one file to store.
type Object struct {
	FileName string
	Data     []byte
}

// Uploader stores a file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, obj Object) (url string, err error)
}

// Check validates obj against maxBytes and the allowed image types and
// returns the sniffed MIME type and the extension to store under.
func Check(obj Object, maxBytes int64) (mime, ext string, err error) {
	if len(obj.Data) == 0 {
		return "", "", ErrEmpty
	}
	if maxBytes > 0 && int64(len(obj.Data)) > maxBytes {
		return "", "", ErrTooLarge
	}
	mime = http.DetectContentType(obj.Data)
	ext, ok := allowedTypes[mime]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrType, mime)
	}
	return mime, ext, nil
}

// objectKey builds "<prefix>/<uuid><ext>". The client's file name is never
// used in the key.
func objectKey(prefix, ext string) string {
	prefix = strings.Trim(prefix, "/")
	name := uuid.NewString() + ext
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// S3Config configures the S3 uploader.
type S3Config struct {
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Prefix         string
	PublicEndpoint string
	SSLDisabled    bool
	MaxBytes       int64
}

// S3 uploads through s3manager.
type S3 struct {
	uploader *s3manager.Uploader
	cfg      S3Config
}

// NewS3 builds an S3 uploader. Path-style addressing is forced so that
// S3-compatible stores (MinIO, R2) work with a custom endpoint.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(true),
		DisableSSL:       aws.Bool(cfg.SSLDisabled),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &S3{uploader: s3manager.NewUploader(sess), cfg: cfg}, nil
}

// Upload stores obj publicly readable and returns its URL.
func (s *S3) Upload(ctx context.Context, obj Object) (string, error) {
	mime, ext, err := Check(obj, s.cfg.MaxBytes)
	if err != nil {
		return "", err
	}
	key := objectKey(s.cfg.Prefix, ext)
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(obj.Data),
		ACL:         aws.String("public-read"),
		ContentType: aws.String(mime),
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w, bucket %s, key %s", err, s.cfg.Bucket, key)
	}
	return s.publicURL(key), nil
}

func (s *S3) publicURL(key string) string {
	base := strings.TrimRight(s.cfg.PublicEndpoint, "/")
	if base == "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
	}
	return fmt.Sprintf("%s/%s/%s", base, s.cfg.Bucket, key)
}

// Local writes files under Dir and serves them from BaseURL. BaseURL is
// usually the path the router mounts Dir on, e.g. "/static/logos".
type Local struct {
	Dir      string
	BaseURL  string
	MaxBytes int64
}

// Upload writes obj to disk and returns its URL.
func (l *Local) Upload(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_, ext, err := Check(obj, l.MaxBytes)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", err
	}
	name := objectKey("", ext)
	if err := os.WriteFile(filepath.Join(l.Dir, name), obj.Data, 0o644); err != nil {
		return "", err
	}
	return path.Join("/", strings.Trim(l.BaseURL, "/"), name), nil
}

var (
	_ Uploader = (*S3)(nil)
	_ Uploader = (*Local)(nil)
)
