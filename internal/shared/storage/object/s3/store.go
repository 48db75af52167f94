// Package s3 stores résumé uploads in an S3 bucket (or an S3-compatible
// endpoint such as MinIO) and signs direct-upload URLs.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"jobfit-backend/internal/shared/storage/object"
)

// API is the subset of the S3 client the store uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// PresignAPI signs direct-upload requests.
type PresignAPI interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config locates the bucket. Endpoint is only set for S3-compatible
// services and switches the client to path-style addressing.
type Config struct {
	Region   string
	Bucket   string
	Prefix   string
	KMSKeyID string
	Endpoint string
}

type Store struct {
	api    API
	signer PresignAPI
	bucket string
	prefix string
	kmsKey string
}

// New loads the default AWS credential chain and builds a store with presigning.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3: bucket is required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg).WithPresigner(s3.NewPresignClient(client)), nil
}

// NewWithClient wires a preconstructed client; Region and Endpoint are ignored.
func NewWithClient(api API, cfg Config) *Store {
	return &Store{
		api:    api,
		bucket: cfg.Bucket,
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		kmsKey: strings.TrimSpace(cfg.KMSKeyID),
	}
}

// WithPresigner enables PresignUpload.
func (s *Store) WithPresigner(p PresignAPI) *Store {
	s.signer = p
	return s
}

// Save uploads r under a fresh key in the owner's namespace.
func (s *Store) Save(ctx context.Context, ownerID, fileName string, r io.Reader) (object.Object, error) {
	key, err := object.NewKey(ownerID, fileName)
	if err != nil {
		return object.Object{}, fmt.Errorf("s3: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}
	contentType, body, err := object.Sniff(r)
	if err != nil {
		return object.Object{}, fmt.Errorf("s3: sniff upload: %w", err)
	}

	counted := &countingReader{r: body}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		ContentType: aws.String(contentType),
		Body:        counted,
	}
	s.encrypt(in)
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return object.Object{}, s.fail("put", key, err)
	}
	return object.Object{Key: key, Size: counted.n, ContentType: contentType}, nil
}

// Open streams a stored object; a missing key maps to object.ErrNotFound.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	var missing *s3types.NoSuchKey
	switch {
	case errors.As(err, &missing):
		return nil, object.ErrNotFound
	case err != nil:
		return nil, s.fail("get", key, err)
	}
	return out.Body, nil
}

// Delete removes key. S3 reports success for keys that never existed.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return s.fail("delete", key, err)
	}
	return nil
}

// PresignUpload returns a PUT URL for key valid for expires. Only bucket
// and key are signed so browsers need not echo encryption headers; the
// bucket's default encryption applies instead.
func (s *Store) PresignUpload(ctx context.Context, key string, expires time.Duration) (string, error) {
	if s.signer == nil {
		return "", errors.New("s3: presigning not configured")
	}
	req, err := s.signer.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", s.fail("presign", key, err)
	}
	return req.URL, nil
}

func (s *Store) encrypt(in *s3.PutObjectInput) {
	if s.kmsKey == "" {
		in.ServerSideEncryption = s3types.ServerSideEncryptionAes256
		return
	}
	in.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
	in.SSEKMSKeyId = aws.String(s.kmsKey)
}

// objectKey joins the configured prefix and key without doubled slashes.
func (s *Store) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	switch {
	case s.prefix == "":
		return key
	case key == "":
		return s.prefix
	}
	return path.Join(s.prefix, key)
}

func (s *Store) fail(op, key string, err error) error {
	return fmt.Errorf("s3: %s s3://%s/%s: %w", op, s.bucket, s.objectKey(key), err)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ object.ObjectStore = (*Store)(nil)
