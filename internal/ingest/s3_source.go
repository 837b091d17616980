package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/joseph-ayodele/datalake-etl/constants"
	"github.com/joseph-ayodele/datalake-etl/internal/common"
)

// S3API is the subset of the S3 client the source uses.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Source reads landing categories from key prefixes in one bucket.
type S3Source struct {
	client   S3API
	bucket   string
	prefixes map[constants.Category]string
	logger   *slog.Logger
}

// NewS3Source builds a source from the default AWS credential chain.
func NewS3Source(ctx context.Context, bucket, region string, prefixes map[constants.Category]string, logger *slog.Logger) (*S3Source, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithDefaultRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3SourceWithClient(s3.NewFromConfig(cfg), bucket, prefixes, logger), nil
}

func NewS3SourceWithClient(client S3API, bucket string, prefixes map[constants.Category]string, logger *slog.Logger) *S3Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Source{client: client, bucket: bucket, prefixes: prefixes, logger: logger.With("source", "s3")}
}

func (s *S3Source) Location(c constants.Category) string {
	return "s3://" + s.bucket + "/" + strings.Trim(s.prefixes[c], "/")
}

func (s *S3Source) List(ctx context.Context, c constants.Category) ([]FileRef, error) {
	prefix := strings.Trim(s.prefixes[c], "/")
	if prefix != "" {
		prefix += "/"
	}

	var refs []FileRef
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", common.ErrUnavailable, s.Location(c), err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			rest := strings.TrimPrefix(key, prefix)
			if strings.Contains(rest, "/") || !keep(c, rest) {
				continue
			}
			ref := FileRef{Category: c, Name: rest, Location: key, Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				ref.ModTime = obj.LastModified.UTC()
			}
			refs = append(refs, ref)
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	sortRefs(refs)
	return refs, nil
}

func (s *S3Source) Open(ctx context.Context, ref FileRef) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref.Location),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", ref.Location, err)
	}
	return out.Body, nil
}

// Put buffers the body so the SDK can sign a seekable payload.
func (s *S3Source) Put(ctx context.Context, c constants.Category, name string, r io.Reader) (FileRef, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return FileRef{}, fmt.Errorf("read %s: %w", name, err)
	}
	key := objectKey(s.prefixes[c], name)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return FileRef{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return FileRef{Category: c, Name: name, Location: key, Size: int64(len(body))}, nil
}
