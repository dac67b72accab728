// Package artifact issues presigned upload URLs for request documents and
// admin result files. The lifecycle core only ever stores the returned public URL.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/agentdesk/internal/clock"
	"github.com/smallbiznis/agentdesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrStorageUnavailable = errors.New("storage_unavailable")
	ErrInvalidOwner       = errors.New("invalid_owner")
	ErrInvalidPurpose     = errors.New("invalid_purpose")
	ErrInvalidFileName    = errors.New("invalid_file_name")
	ErrInvalidContentType = errors.New("invalid_content_type")
)

// Purpose separates agent-supplied inputs from admin-attached results.
type Purpose string

const (
	PurposeInput  Purpose = "input"
	PurposeResult Purpose = "result"
)

var allowedContentTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

const defaultUploadTTL = 15 * time.Minute

// Presigner is the subset of *s3.PresignClient used here.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type UploadRequest struct {
	OwnerID     string  `json:"-"`
	Purpose     Purpose `json:"purpose"`
	FileName    string  `json:"file_name" binding:"required"`
	ContentType string  `json:"content_type" binding:"required"`
}

type Upload struct {
	Key         string            `json:"key"`
	UploadURL   string            `json:"upload_url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	PublicURL   string            `json:"public_url"`
	ContentType string            `json:"content_type"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

type Params struct {
	fx.In

	Config    config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	Presigner Presigner `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	clock     clock.Clock
	presigner Presigner
	bucket    string
	region    string
	baseURL   string
	ttl       time.Duration
}

func NewService(p Params) *Service {
	ttl := p.Config.Storage.UploadTTL
	if ttl <= 0 {
		ttl = defaultUploadTTL
	}
	return &Service{
		log:       p.Log.Named("artifact.service"),
		clock:     p.Clock,
		presigner: p.Presigner,
		bucket:    strings.TrimSpace(p.Config.Storage.Bucket),
		region:    strings.TrimSpace(p.Config.Storage.Region),
		baseURL:   strings.TrimRight(strings.TrimSpace(p.Config.Storage.PublicBaseURL), "/"),
		ttl:       ttl,
	}
}

// PresignUpload returns a short-lived PUT URL and the stable URL the object
// will be served from once uploaded.
func (s *Service) PresignUpload(ctx context.Context, req UploadRequest) (Upload, error) {
	if s == nil || s.presigner == nil || s.bucket == "" {
		return Upload{}, ErrStorageUnavailable
	}

	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return Upload{}, ErrInvalidOwner
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = PurposeInput
	}
	if purpose != PurposeInput && purpose != PurposeResult {
		return Upload{}, ErrInvalidPurpose
	}
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return Upload{}, ErrInvalidContentType
	}
	base := slug.Make(strings.TrimSuffix(path.Base(strings.TrimSpace(req.FileName)), path.Ext(req.FileName)))
	if base == "" {
		return Upload{}, ErrInvalidFileName
	}

	now := s.clock.Now().UTC()
	key := BuildKey(purpose, ownerID, ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(), base+ext)

	presigned, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"owner_id": ownerID,
			"purpose":  string(purpose),
		},
	}, func(o *s3.PresignOptions) { o.Expires = s.ttl })
	if err != nil {
		s.log.Warn("presign upload failed", zap.String("key", key), zap.Error(err))
		return Upload{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	headers := make(map[string]string, len(presigned.SignedHeader))
	for name, values := range presigned.SignedHeader {
		if len(values) > 0 && !strings.EqualFold(name, "host") {
			headers[name] = values[0]
		}
	}
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = contentType
	}

	return Upload{
		Key:         key,
		UploadURL:   presigned.URL,
		Method:      presigned.Method,
		Headers:     headers,
		PublicURL:   s.PublicURL(key),
		ContentType: contentType,
		ExpiresAt:   now.Add(s.ttl),
	}, nil
}

// PublicURL is where an uploaded key is served from.
func (s *Service) PublicURL(key string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// BuildKey lays objects out as <purpose>/<owner>/<id>-<name>.
func BuildKey(purpose Purpose, ownerID, id, name string) string {
	owner := slug.Make(ownerID)
	if owner == "" {
		owner = "unknown"
	}
	return fmt.Sprintf("%s/%s/%s-%s", purpose, owner, strings.ToLower(id), name)
}
