package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	fingerprintMetaKey = "fingerprint"
	maxDeleteBatch     = 1000
)

type s3API interface {
	s3.HeadObjectAPIClient
	s3.ListObjectsV2APIClient
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Destination stores synced files in an S3 bucket. Content type, cache
// policy and fingerprint are written with the object in a single request.
type S3Destination struct {
	client   s3API
	uploader s3Uploader
	bucket   string
}

// NewS3Destination creates a new S3Destination.
func NewS3Destination(client *s3.Client, bucket string) *S3Destination {
	return &S3Destination{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

func (d *S3Destination) Put(ctx context.Context, key string, r io.Reader, meta ObjectMeta) error {
	_, err := d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(d.bucket),
		Key:          aws.String(key),
		Body:         r,
		ContentType:  aws.String(meta.ContentType),
		CacheControl: aws.String(meta.CacheControl),
		Metadata: map[string]string{
			fingerprintMetaKey: meta.Fingerprint,
		},
	})
	return err
}

func (d *S3Destination) Stat(ctx context.Context, key string) (*ObjectMeta, error) {
	out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	// objects written by other tools have no fingerprint metadata; fall back
	// to the ETag, which is the MD5 for single-part uploads
	fp, ok := out.Metadata[fingerprintMetaKey]
	if !ok {
		fp = strings.ReplaceAll(aws.ToString(out.ETag), "\"", "")
	}

	return &ObjectMeta{
		ContentType:  aws.ToString(out.ContentType),
		CacheControl: aws.ToString(out.CacheControl),
		Fingerprint:  fp,
		Size:         aws.ToInt64(out.ContentLength),
	}, nil
}

func (d *S3Destination) List(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (d *S3Destination) Delete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := d.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("delete %s: %s: %s (%d failed)",
				aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message), len(out.Errors))
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
