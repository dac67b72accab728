package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrRefundFailed      = errors.New("refund_failed")
	ErrNotFound          = errors.New("not_found")
	ErrInvalidRequestID  = errors.New("invalid_request_id")
	ErrInvalidService    = errors.New("invalid_service")
	ErrFeeMismatch       = errors.New("fee_mismatch")
	ErrNoteRequired      = errors.New("note_required")
	ErrInvalidDeduction  = errors.New("invalid_deduction")
	ErrInvalidArtifact   = errors.New("invalid_artifact")
	ErrInvalidFormData   = errors.New("invalid_form_data")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrVersionConflict   = errors.New("version_conflict")
)

// ArtifactInput names a stored file reference supplied by a caller.
type ArtifactInput struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required"`
}

type CreateRequest struct {
	ServiceCode string            `json:"service_code" binding:"required"`
	FormData    map[string]any    `json:"form_data"`
	Inputs      map[string]string `json:"inputs"`
	// QuotedFee is the price the submitter was shown. A stale quote is rejected.
	QuotedFee *int64          `json:"quoted_fee"`
	Artifacts []ArtifactInput `json:"artifacts"`
}

type BeginProcessingRequest struct {
	ID   string `json:"-"`
	Note string `json:"note"`
}

type CompleteRequest struct {
	ID        string `json:"-"`
	ResultURL string `json:"result_url"`
	Note      string `json:"note"`
}

type FailRequest struct {
	ID           string `json:"-"`
	ShouldRefund bool   `json:"should_refund"`
	Note         string `json:"note"`
	// Deduction is withheld from the refund, e.g. a wrong-submission penalty.
	Deduction int64 `json:"deduction"`
}

type AttachArtifactRequest struct {
	ID   string `json:"-"`
	Name string `json:"name"`
	URL  string `json:"url" binding:"required"`
}

type ListRequest struct {
	pagination.Pagination
	OwnerID string
	Status  string
	Kind    string
}

type ListResponse struct {
	pagination.PageInfo
	Requests []ServiceRequest `json:"requests"`
}

// ListFilter is the repository-level query.
type ListFilter struct {
	OwnerID string
	Status  Status
	Kind    string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (ServiceRequest, error)
	Get(ctx context.Context, id string) (ServiceRequest, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	BeginProcessing(ctx context.Context, req BeginProcessingRequest) (ServiceRequest, error)
	Complete(ctx context.Context, req CompleteRequest) (ServiceRequest, error)
	Fail(ctx context.Context, req FailRequest) (ServiceRequest, error)
	AttachArtifact(ctx context.Context, req AttachArtifactRequest) (ServiceRequest, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, req *ServiceRequest) error
	InsertArtifacts(ctx context.Context, db *gorm.DB, artifacts []Artifact) error
	// FindByID loads a request with its artifacts, locking the row when
	// forUpdate is set and the dialect supports it.
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*ServiceRequest, error)
	// UpdateState writes the mutable fields when the stored version still
	// equals expectedVersion. It reports false when another writer won.
	UpdateState(ctx context.Context, db *gorm.DB, req *ServiceRequest, expectedVersion int64) (bool, error)
	UpsertArtifact(ctx context.Context, db *gorm.DB, artifact *Artifact) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*ServiceRequest, error)
}

// Locker serializes operations on one request across processes.
type Locker interface {
	LockRequest(ctx context.Context, requestID string) (func(), error)
}
