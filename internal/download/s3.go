// Package download signs short-lived URLs for the installer artifact.
package download

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultExpiry keeps signed URLs barely long enough for the redirect to
// land; the token, not the URL, is the capability.
const DefaultExpiry = 60 * time.Second

type Signer interface {
	SignURL(ctx context.Context) (string, error)
}

type S3Signer struct {
	presign *s3.PresignClient
	bucket  string
	key     string
	expiry  time.Duration
}

func NewS3Signer(ctx context.Context, region, bucket, key string) (*S3Signer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Signer{
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		key:     key,
		expiry:  DefaultExpiry,
	}, nil
}

func (s *S3Signer) SignURL(ctx context.Context) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("presign installer download: %w", err)
	}
	return req.URL, nil
}
