// Package storage turns private object-storage references into URLs a
// remote executor can download.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Presigner issues time-limited GET URLs for private objects.
type Presigner interface {
	Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

type S3Presigner struct {
	client *s3.PresignClient
}

// NewS3Presigner uses the default AWS credential chain. endpoint may point
// at an S3-compatible store; path-style addressing is used in that case.
func NewS3Presigner(ctx context.Context, region, endpoint string) (*S3Presigner, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Presigner{client: s3.NewPresignClient(client)}, nil
}

func (p *S3Presigner) Presign(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := p.client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

// ParseS3 splits an s3://bucket/key reference.
func ParseS3(ref string) (bucket, key string, ok bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", false
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", false
	}
	return u.Host, key, true
}

// ResolveURL returns a downloadable URL for ref. http(s) URLs pass through;
// s3 references are presigned for ttl.
func ResolveURL(ctx context.Context, p Presigner, ref string, ttl time.Duration) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	bucket, key, ok := ParseS3(ref)
	if !ok {
		return "", fmt.Errorf("video reference %q is neither an http(s) URL nor s3://bucket/key", ref)
	}
	if p == nil {
		return "", fmt.Errorf("video reference %q needs presigning but no object store is configured", ref)
	}
	return p.Presign(ctx, bucket, key, ttl)
}
