package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"gopkg.in/yaml.v3"

	"github.com/depforge/depforge/pkg/spec"
)

// S3Source serves packages from an S3 bucket that mirrors the directory
// source layout: {prefix}{name}/{version}/package.yaml plus the artifact
// object next to it.
type S3Source struct {
	name     string
	client   *s3.Client
	bucket   string
	prefix   string
	priority int
	trusted  bool
}

// NewS3Source creates an S3-backed source using the default AWS
// credential chain. prefix may be empty or a key prefix ending in "/";
// region may be empty to use the chain's region.
func NewS3Source(ctx context.Context, name, bucket, prefix, region string, priority int, trusted bool) (*S3Source, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Source{
		name:     name,
		client:   s3.NewFromConfig(cfg),
		bucket:   bucket,
		prefix:   prefix,
		priority: priority,
		trusted:  trusted,
	}, nil
}

func (s *S3Source) Name() string  { return s.name }
func (s *S3Source) Priority() int { return s.priority }
func (s *S3Source) Trusted() bool { return s.trusted }

func (s *S3Source) Versions(ctx context.Context, name string) ([]string, error) {
	prefix := s.prefix + name + "/"
	var versions []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			v := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if v != "" {
				versions = append(versions, v)
			}
		}
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions, nil
}

func (s *S3Source) Metadata(ctx context.Context, name, version string) (*Metadata, error) {
	key := path.Join(s.prefix+name, version, manifestFile)
	body, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse s3://%s/%s: %w", s.bucket, key, err)
	}
	if meta.Name == "" {
		meta.Name = name
	}
	if meta.Version == "" {
		meta.Version = version
	}
	return &meta, nil
}

func (s *S3Source) FetchArtifact(ctx context.Context, name, version string) (io.ReadCloser, error) {
	key, err := s.artifactKey(ctx, name, version)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, key)
}

func (s *S3Source) Signature(ctx context.Context, name, version string) (string, error) {
	key, err := s.artifactKey(ctx, name, version)
	if err != nil {
		return "", err
	}
	body, err := s.get(ctx, key+".sig")
	if err == ErrNotFound {
		return "", ErrNoSignature
	}
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *S3Source) Search(ctx context.Context, query string) ([]Metadata, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})

	query = strings.ToLower(query)
	var out []Metadata
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list packages: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix), "/")
			if name == "" || !strings.Contains(strings.ToLower(name), query) {
				continue
			}
			versions, err := s.Versions(ctx, name)
			if err != nil {
				continue
			}
			latest, ok := spec.MaxSatisfying(versions, spec.Spec{Name: name})
			if !ok {
				continue
			}
			meta, err := s.Metadata(ctx, name, latest)
			if err != nil {
				continue
			}
			out = append(out, *meta)
		}
	}
	return out, nil
}

// artifactKey resolves the S3 key of a version's artifact from its
// manifest.
func (s *S3Source) artifactKey(ctx context.Context, name, version string) (string, error) {
	meta, err := s.Metadata(ctx, name, version)
	if err != nil {
		return "", err
	}
	if meta.Artifact == "" {
		return "", fmt.Errorf("s3 source %s: %s@%s manifest has no artifact field", s.name, name, version)
	}
	return path.Join(s.prefix+name, version, meta.Artifact), nil
}

func (s *S3Source) get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Body, nil
}

// Ensure S3Source implements Source.
var _ Source = (*S3Source)(nil)
