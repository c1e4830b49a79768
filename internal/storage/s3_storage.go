package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/Satyam8589/SaveServe-sub000/internal/config"
)

// ErrUnsupportedContentType is returned for uploads that are not images.
var ErrUnsupportedContentType = errors.New("unsupported content type")

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// IS3Storage defines the interface for listing photo storage.
type IS3Storage interface {
	GeneratePresignedPutURL(ctx context.Context, providerID, listingID, filename, contentType string) (url, objectKey string, err error)
	// OwnsKey reports whether objectKey was issued for this listing.
	OwnsKey(providerID, listingID, objectKey string) bool
}

// s3Storage implements IS3Storage.
type s3Storage struct {
	bucket        string
	urlTTL        time.Duration
	presignClient *s3.PresignClient
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(cfg *config.Config) (IS3Storage, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &s3Storage{
		bucket:        cfg.AwsS3Bucket,
		urlTTL:        cfg.UploadURLTTL,
		presignClient: s3.NewPresignClient(s3.NewFromConfig(awsCfg)),
	}, nil
}

// ObjectKeyPrefix is the key prefix under which a listing's photos live.
func ObjectKeyPrefix(providerID, listingID string) string {
	return fmt.Sprintf("listings/%s/%s/", providerID, listingID)
}

// NewObjectKey builds a fresh object key for a photo upload. The client's
// filename only contributes its base name.
func NewObjectKey(providerID, listingID, filename, contentType string) (string, error) {
	ext, ok := allowedImageTypes[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	base := strings.TrimSuffix(path.Base(strings.ReplaceAll(filename, "\\", "/")), path.Ext(filename))
	base = sanitize(base)
	if base == "" {
		base = "photo"
	}
	return ObjectKeyPrefix(providerID, listingID) + uuid.NewString() + "_" + base + ext, nil
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
		if b.Len() >= 64 {
			break
		}
	}
	return b.String()
}

// GeneratePresignedPutURL creates a pre-signed URL for uploading a listing photo.
// It returns the URL and the generated S3 object key.
func (s *s3Storage) GeneratePresignedPutURL(ctx context.Context, providerID, listingID, filename, contentType string) (string, string, error) {
	objectKey, err := NewObjectKey(providerID, listingID, filename, contentType)
	if err != nil {
		return "", "", err
	}

	presignedReq, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.urlTTL))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}

	return presignedReq.URL, objectKey, nil
}

func (s *s3Storage) OwnsKey(providerID, listingID, objectKey string) bool {
	return strings.HasPrefix(objectKey, ObjectKeyPrefix(providerID, listingID)) &&
		!strings.Contains(objectKey, "..")
}
