package artifact

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePresigner struct {
	input   *s3.PutObjectInput
	expires time.Duration
	err     error
}

func (f *fakePresigner) PresignPutObject(_ context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{
		URL:    "https://uploads.example.com/" + *params.Key + "?X-Amz-Signature=abc",
		Method: http.MethodPut,
		SignedHeader: http.Header{
			"Host":         []string{"uploads.example.com"},
			"Content-Type": []string{*params.ContentType},
		},
	}, nil
}

func newTestService(presigner Presigner, storage config.StorageConfig) *Service {
	return NewService(Params{
		Config:    config.Config{Storage: storage},
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)),
		Presigner: presigner,
	})
}

func TestPresignUpload(t *testing.T) {
	presigner := &fakePresigner{}
	svc := newTestService(presigner, config.StorageConfig{
		Bucket:        "agentdesk-artifacts",
		Region:        "eu-west-1",
		PublicBaseURL: "https://cdn.example.com/",
		UploadTTL:     5 * time.Minute,
	})

	upload, err := svc.PresignUpload(context.Background(), UploadRequest{
		OwnerID:     "agent-1",
		FileName:    "Passport Photo.JPG",
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(upload.Key, "input/agent-1/"))
	assert.True(t, strings.HasSuffix(upload.Key, "-passport-photo.jpg"))
	assert.Equal(t, "https://cdn.example.com/"+upload.Key, upload.PublicURL)
	assert.Equal(t, http.MethodPut, upload.Method)
	assert.Equal(t, "image/jpeg", upload.Headers["Content-Type"])
	assert.NotContains(t, upload.Headers, "Host")
	assert.Equal(t, time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC), upload.ExpiresAt)

	assert.Equal(t, "agentdesk-artifacts", *presigner.input.Bucket)
	assert.Equal(t, "agent-1", presigner.input.Metadata["owner_id"])
	assert.Equal(t, 5*time.Minute, presigner.expires)
}

func TestPresignUploadDefaultsToBucketURL(t *testing.T) {
	svc := newTestService(&fakePresigner{}, config.StorageConfig{Bucket: "b", Region: "eu-west-1"})
	upload, err := svc.PresignUpload(context.Background(), UploadRequest{
		OwnerID:     "admin-1",
		Purpose:     PurposeResult,
		FileName:    "certificate.pdf",
		ContentType: "application/pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com/"+upload.Key, upload.PublicURL)
	assert.True(t, strings.HasPrefix(upload.Key, "result/admin-1/"))
}

func TestPresignUploadValidation(t *testing.T) {
	svc := newTestService(&fakePresigner{}, config.StorageConfig{Bucket: "b", Region: "eu-west-1"})
	ctx := context.Background()

	cases := []struct {
		name string
		req  UploadRequest
		want error
	}{
		{"owner", UploadRequest{FileName: "a.png", ContentType: "image/png"}, ErrInvalidOwner},
		{"purpose", UploadRequest{OwnerID: "a", Purpose: "other", FileName: "a.png", ContentType: "image/png"}, ErrInvalidPurpose},
		{"content type", UploadRequest{OwnerID: "a", FileName: "a.exe", ContentType: "application/x-msdownload"}, ErrInvalidContentType},
		{"file name", UploadRequest{OwnerID: "a", FileName: "   ", ContentType: "image/png"}, ErrInvalidFileName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PresignUpload(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPresignUploadWithoutStorage(t *testing.T) {
	svc := newTestService(nil, config.StorageConfig{})
	_, err := svc.PresignUpload(context.Background(), UploadRequest{OwnerID: "a", FileName: "a.png", ContentType: "image/png"})
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	failing := newTestService(&fakePresigner{err: errors.New("no credentials")}, config.StorageConfig{Bucket: "b"})
	_, err = failing.PresignUpload(context.Background(), UploadRequest{OwnerID: "a", FileName: "a.png", ContentType: "image/png"})
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}
