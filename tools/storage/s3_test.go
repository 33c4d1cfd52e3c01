package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	objects map[string]string
	input   *s3.GetObjectInput
}

func (m *mockS3) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.input = in
	body, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3States(t *testing.T) {
	client := &mockS3{objects: map[string]string{
		"artifacts/credentials.json": `{"logmeal_tokens":["t1"]}`,
		"artifacts/references.json":  `[{"name":"cachapa","profile":{"calories":230}}]`,
	}}

	creds, err := LoadCredentials(context.Background(), NewS3CredentialState(client, "artifacts", "credentials.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, creds.LogMeal)
	assert.Equal(t, "credentials.json", aws.ToString(client.input.Key))

	refs, err := LoadReferences(context.Background(), NewS3ReferenceState(client, "artifacts", "references.json"))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.True(t, refs[0].Pattern.MatchString("cachapa"), "an empty pattern matches the name")

	_, err = NewS3CredentialState(client, "artifacts", "missing.json").Load(context.Background())
	assert.ErrorContains(t, err, "failed to get credentials object from S3")
}
