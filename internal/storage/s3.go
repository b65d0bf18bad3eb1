package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/snapgov/snapgov/pkg/types"
)

// S3Config holds configuration for the S3-backed partition store.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	MaxRetries   int
	RetryBackoff time.Duration
}

// S3Store reads partitions from an S3 bucket using the lake layout as
// the key prefix structure.
type S3Store struct {
	client     *s3.Client
	bucket     string
	maxRetries int
	backoff    time.Duration
}

// NewS3Store creates an S3-backed partition store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: s3 bucket cannot be empty")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		client:     client,
		bucket:     cfg.Bucket,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
	}, nil
}

func (s *S3Store) ListRefs(ctx context.Context, sourceFilter string) ([]types.DatasetRef, error) {
	var sources []string
	if sourceFilter != "" {
		sources = []string{sourceFilter}
	} else {
		prefixes, err := s.listPrefixes(ctx, "")
		if err != nil {
			return nil, err
		}
		sources = prefixes
	}

	var refs []types.DatasetRef
	for _, src := range sources {
		datasets, err := s.listPrefixes(ctx, src+"/")
		if err != nil {
			return nil, err
		}
		for _, ds := range datasets {
			refs = append(refs, types.DatasetRef{Source: src, Dataset: ds})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Source != refs[j].Source {
			return refs[i].Source < refs[j].Source
		}
		return refs[i].Dataset < refs[j].Dataset
	})
	return refs, nil
}

func (s *S3Store) ListDates(ctx context.Context, ref types.DatasetRef) ([]types.SnapshotDate, error) {
	prefixes, err := s.listPrefixes(ctx, ref.Source+"/"+ref.Dataset+"/")
	if err != nil {
		return nil, err
	}

	var dates []types.SnapshotDate
	for _, p := range prefixes {
		if d, ok := ParsePartitionDir(p); ok {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (s *S3Store) ListFiles(ctx context.Context, key types.PartitionKey) ([]FileInfo, error) {
	prefix := key.Path() + "/"

	var files []FileInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := s.pageWithRetry(ctx, paginator)
		if err != nil {
			return nil, fmt.Errorf("storage: %w: %s: %v", ErrListFailed, prefix, err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			name := strings.TrimPrefix(k, prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			files = append(files, FileInfo{
				Path: k,
				Name: name,
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("storage: %w: %s", ErrPartitionNotFound, key.Path())
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *S3Store) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := s.retryWithBackoff(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(path),
		})
		if err != nil {
			return err
		}
		body = out.Body
		return nil
	})
	if err != nil {
		var nf *s3types.NoSuchKey
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("storage: %w: %s", ErrObjectNotFound, path)
		}
		return nil, fmt.Errorf("storage: %w: %s: %v", ErrReadFailed, path, err)
	}
	return body, nil
}

func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("storage: failed to head %s: %w", path, err)
	}
	return true, nil
}

// listPrefixes lists the immediate child "directories" under a prefix
// using delimiter-based listing.
func (s *S3Store) listPrefixes(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := s.pageWithRetry(ctx, paginator)
		if err != nil {
			return nil, fmt.Errorf("storage: %w: %s: %v", ErrListFailed, prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			p := aws.ToString(cp.Prefix)
			p = strings.TrimSuffix(strings.TrimPrefix(p, prefix), "/")
			if p != "" {
				names = append(names, p)
			}
		}
	}
	return names, nil
}

func (s *S3Store) pageWithRetry(ctx context.Context, paginator *s3.ListObjectsV2Paginator) (*s3.ListObjectsV2Output, error) {
	var page *s3.ListObjectsV2Output
	err := s.retryWithBackoff(ctx, func() error {
		var err error
		page, err = paginator.NextPage(ctx)
		return err
	})
	return page, err
}

// retryWithBackoff retries transient failures with exponential backoff.
func (s *S3Store) retryWithBackoff(ctx context.Context, fn func() error) error {
	var lastErr error
	backoff := s.backoff
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var nf *s3types.NoSuchKey
		var hnf *s3types.NotFound
		if errors.As(lastErr, &nf) || errors.As(lastErr, &hnf) {
			return lastErr
		}
	}
	return lastErr
}
