package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/stemsplit/api/internal/config"
	apperrors "github.com/stemsplit/api/internal/errors"
)

// S3Store keeps blobs in an S3-compatible bucket (AWS S3, Cloudflare R2,
// MinIO) under the same key layout as LocalStore. ResolveAudio downloads
// the object to a scratch file because the inference scripts read local
// paths only.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an object-store backend from config
func NewS3Store(cfg *config.S3Config) (*S3Store, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 storage configuration incomplete")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint}, nil
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
	}, nil
}

// SaveArtifact uploads one artifact. Keys are deterministic, so reruns of
// the same job overwrite the same objects.
func (s *S3Store) SaveArtifact(ctx context.Context, jobID, category, filename string, data io.Reader) (string, error) {
	key := ArtifactKey(jobID, category, filename)
	if err := s.put(ctx, key, filename, data); err != nil {
		return "", fmt.Errorf("save artifact %s: %w", key, err)
	}
	return key, nil
}

// SaveAudio uploads one source file
func (s *S3Store) SaveAudio(ctx context.Context, audioID, filename string, data io.Reader) (string, error) {
	key := AudioKey(audioID, filename)
	if err := s.put(ctx, key, filename, data); err != nil {
		return "", fmt.Errorf("save audio %s: %w", key, err)
	}
	return key, nil
}

// ResolveAudio downloads the object into the OS temp dir and returns the
// local path. The caller owns the scratch file's lifetime; the worker's
// job directory cleanup reclaims it.
func (s *S3Store) ResolveAudio(ctx context.Context, relPath string) (string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(relPath),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", fmt.Errorf("%s: %w", relPath, apperrors.ErrAudioNotFound)
		}
		return "", fmt.Errorf("fetch audio %s: %w", relPath, err)
	}
	defer out.Body.Close()

	f, err := os.CreateTemp("", "audio-*"+filepath.Ext(relPath))
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("download audio %s: %w", relPath, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func (s *S3Store) put(ctx context.Context, key, filename string, data io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(ContentTypeFor(filename)),
	})
	return err
}
