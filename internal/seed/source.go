package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of the S3 client used to fetch an export.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ErrObjectNotFound is returned when an s3:// source does not exist.
var ErrObjectNotFound = errors.New("seed: s3 object not found")

// Opener opens an export from a local path or an s3://bucket/key URL.
type Opener struct {
	s3 s3API
}

// NewOpener creates an Opener. A nil client disables s3:// sources.
func NewOpener(client s3API) *Opener {
	return &Opener{s3: client}
}

// NewS3Client builds an S3 client using the default AWS credential chain.
// A non-empty endpoint selects path-style addressing for S3-compatible
// stores such as MinIO or LocalStack.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("seed: load aws config: %w", err)
	}

	var s3OptFns []func(*s3.Options)
	if endpoint != "" {
		s3OptFns = append(s3OptFns, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3OptFns...), nil
}

// Open returns a reader for source. The caller closes it.
func (o *Opener) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	if !strings.HasPrefix(source, "s3://") {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("seed: open %s: %w", source, err)
		}
		return f, nil
	}

	bucket, key, err := parseS3URL(source)
	if err != nil {
		return nil, err
	}
	if o.s3 == nil {
		return nil, fmt.Errorf("seed: no s3 client configured for %s", source)
	}

	out, err := o.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, source)
		}
		return nil, fmt.Errorf("seed: get %s: %w", source, err)
	}
	return out.Body, nil
}

func parseS3URL(source string) (bucket, key string, err error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", fmt.Errorf("seed: parse %s: %w", source, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("seed: %s must be s3://bucket/key", source)
	}
	return bucket, key, nil
}
