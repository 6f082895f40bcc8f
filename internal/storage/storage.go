// Package storage talks to the S3-compatible buckets that back each
// preservation tier.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/preservaudit/internal/audit"
	"github.com/dmitrijs2005/preservaudit/internal/common"
)

// User metadata keys that attribute a stored object to a bag and a path
// inside it.
const (
	MetaBag     = "bag"
	MetaBagPath = "bagpath"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// API is the part of *s3.Client the tiers need.
type API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Options selects the endpoint, credentials and bucket per tier.
type Options struct {
	Region        string
	BaseEndpoint  string
	AccessKey     string
	SecretKey     string
	PrimaryBucket string
	ColdBucket    string
}

// Object is one listed storage object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Client maps tiers to buckets on one S3 endpoint.
type Client struct {
	api     API
	buckets map[audit.Tier]string
}

// New builds a Client from static credentials. Path-style addressing is
// used so MinIO and other S3-compatible endpoints work unchanged.
func New(ctx context.Context, opts Options) (*Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	api := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return NewWithAPI(api, opts.PrimaryBucket, opts.ColdBucket), nil
}

// NewWithAPI wraps an existing API implementation.
func NewWithAPI(api API, primaryBucket, coldBucket string) *Client {
	return &Client{
		api: api,
		buckets: map[audit.Tier]string{
			audit.Primary: primaryBucket,
			audit.Cold:    coldBucket,
		},
	}
}

// Bucket returns the bucket backing tier.
func (c *Client) Bucket(tier audit.Tier) (string, error) {
	b, ok := c.buckets[tier]
	if !ok || b == "" {
		return "", fmt.Errorf("no bucket for tier %v: %w", tier, audit.ErrInvalidTier)
	}
	return b, nil
}

// Walk lists every object in tier, page by page, and calls fn for each one.
// Walk stops at the first error returned by fn.
func (c *Client) Walk(ctx context.Context, tier audit.Tier, fn func(Object) error) error {
	bucket, err := c.Bucket(tier)
	if err != nil {
		return err
	}

	p := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", bucket, err)
		}
		for _, o := range page.Contents {
			obj := Object{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)}
			if o.LastModified != nil {
				obj.LastModified = o.LastModified.UTC()
			}
			if err := fn(obj); err != nil {
				return err
			}
		}
	}
	return nil
}

// Metadata returns the user metadata of key in tier, or common.ErrNotFound.
func (c *Client) Metadata(ctx context.Context, tier audit.Tier, key string) (map[string]string, error) {
	bucket, err := c.Bucket(tier)
	if err != nil {
		return nil, err
	}

	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("head %s/%s: %w", bucket, key, err)
	}
	return out.Metadata, nil
}

// Exists reports whether key is stored in tier.
func (c *Client) Exists(ctx context.Context, tier audit.Tier, key string) (bool, error) {
	_, err := c.Metadata(ctx, tier, key)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Copy replicates key from one tier to the other under the same key. Content
// type and user metadata travel with the copy.
func (c *Client) Copy(ctx context.Context, key string, from, to audit.Tier) error {
	src, err := c.Bucket(from)
	if err != nil {
		return err
	}
	dst, err := c.Bucket(to)
	if err != nil {
		return err
	}

	_, err = c.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(dst),
		Key:               aws.String(key),
		CopySource:        aws.String(src + "/" + key),
		MetadataDirective: types.MetadataDirectiveCopy,
	})
	if err != nil {
		return fmt.Errorf("copy %s/%s to %s: %w", src, key, dst, err)
	}
	return nil
}

// Delete removes key from tier. Deleting an absent key succeeds.
func (c *Client) Delete(ctx context.Context, tier audit.Tier, key string) error {
	bucket, err := c.Bucket(tier)
	if err != nil {
		return err
	}

	_, err = c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}
