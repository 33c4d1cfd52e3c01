package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3Getter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3CredentialState implements CredentialState backed by S3
type S3CredentialState struct {
	bucket string
	key    string
	s3     s3Getter
}

func NewS3CredentialState(s3Client s3Getter, bucket, key string) *S3CredentialState {
	return &S3CredentialState{
		bucket: bucket,
		key:    key,
		s3:     s3Client,
	}
}

func (s *S3CredentialState) Load(ctx context.Context) ([]byte, error) {
	return getObject(ctx, s.s3, s.bucket, s.key, "credentials")
}

// S3ReferenceState implements ReferenceState backed by S3
type S3ReferenceState struct {
	bucket string
	key    string
	s3     s3Getter
}

func NewS3ReferenceState(s3Client s3Getter, bucket, key string) *S3ReferenceState {
	return &S3ReferenceState{
		bucket: bucket,
		key:    key,
		s3:     s3Client,
	}
}

func (s *S3ReferenceState) Load(ctx context.Context) ([]byte, error) {
	return getObject(ctx, s.s3, s.bucket, s.key, "references")
}

func getObject(ctx context.Context, client s3Getter, bucket, key, what string) ([]byte, error) {
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s object from S3: %w", what, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
