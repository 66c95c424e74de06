package blobstore

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOfflineS3(t *testing.T) *S3 {
	t.Helper()
	s, err := NewS3(context.Background(), S3Options{
		Endpoint:  "http://localhost:9000",
		Region:    "us-east-1",
		AccessKey: "access",
		SecretKey: "secret-key-value",
		Bucket:    "shares",
	})
	require.NoError(t, err)
	return s
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Options{Region: "us-east-1"})
	require.Error(t, err)
}

func TestS3_SignDownload(t *testing.T) {
	s := newOfflineS3(t)

	raw, err := s.Sign(context.Background(), "p1/report.pdf", 30*time.Minute, true)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/shares/p1/report.pdf", u.Path)

	q := u.Query()
	assert.NotEmpty(t, q.Get("X-Amz-Signature"))
	assert.Equal(t, "1800", q.Get("X-Amz-Expires"))
	assert.Equal(t, `attachment; filename="report.pdf"`, q.Get("response-content-disposition"))
}

func TestS3_SignUpload(t *testing.T) {
	s := newOfflineS3(t)

	raw, err := s.SignUpload(context.Background(), "p1/a.txt", time.Minute, "text/plain")
	require.NoError(t, err)
	assert.Contains(t, raw, "/shares/p1/a.txt")
	assert.Contains(t, raw, "X-Amz-Signature")
}

func TestS3_SignError(t *testing.T) {
	s := newOfflineS3(t)

	orig := presignGetObject
	t.Cleanup(func() { presignGetObject = orig })
	presignGetObject = func(*s3.PresignClient, context.Context, *s3.GetObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign boom")
	}

	_, err := s.Sign(context.Background(), "p1/a.txt", time.Minute, false)
	require.EqualError(t, err, "presign boom")
}

func TestS3_SignUploadPassesContentType(t *testing.T) {
	s := newOfflineS3(t)

	orig := presignPutObject
	t.Cleanup(func() { presignPutObject = orig })

	var got *s3.PutObjectInput
	presignPutObject = func(_ *s3.PresignClient, _ context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		got = in
		return &v4.PresignedHTTPRequest{URL: "http://signed"}, nil
	}

	raw, err := s.SignUpload(context.Background(), "p1/a.txt", time.Minute, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "http://signed", raw)
	require.NotNil(t, got)
	assert.Equal(t, "shares", *got.Bucket)
	assert.Equal(t, "p1/a.txt", *got.Key)
	assert.Equal(t, "text/plain", *got.ContentType)
}

func TestMapS3Err(t *testing.T) {
	assert.ErrorIs(t, mapS3Err(&types.NoSuchKey{}), ErrNotFound)
	assert.ErrorIs(t, mapS3Err(&types.NotFound{}), ErrNotFound)

	other := errors.New("access denied")
	assert.Equal(t, other, mapS3Err(other))
}
