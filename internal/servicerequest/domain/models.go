// Package domain contains the service request model and its status machine.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the lifecycle state of a service request.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// ArtifactRole separates submitted documents from admin results.
type ArtifactRole string

const (
	ArtifactRoleInput  ArtifactRole = "input"
	ArtifactRoleResult ArtifactRole = "result"
)

// ResultArtifactName is the artifact written by Complete.
const ResultArtifactName = "result"

// FormFieldResultURL is the derived form field mirroring the result artifact.
const FormFieldResultURL = "result_url"

// ReservedFormField reports whether key is written only by the workflow and
// must not arrive in caller-supplied form data.
func ReservedFormField(key string) bool {
	return strings.EqualFold(strings.TrimSpace(key), FormFieldResultURL)
}

// ServiceRequest is one submitted service instance.
type ServiceRequest struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	ServiceCode        string            `gorm:"type:text;not null;index" json:"service_code"`
	Kind               string            `gorm:"type:text;not null;index" json:"kind"`
	OwnerID            string            `gorm:"type:text;not null;index:idx_service_requests_owner_created,priority:1" json:"owner_id"`
	FormData           datatypes.JSONMap `json:"form_data"`
	FeeBreakdown       datatypes.JSONMap `json:"fee_breakdown"`
	FeeScheduleVersion string            `gorm:"type:text;not null" json:"fee_schedule_version"`
	ComputedFee        int64             `gorm:"not null" json:"computed_fee"`
	Currency           string            `gorm:"type:text;not null" json:"currency"`
	Status             Status            `gorm:"type:text;not null;index" json:"status"`
	StatusMessage      *string           `gorm:"type:text" json:"status_message,omitempty"`
	Refunded           bool              `gorm:"not null;default:false" json:"refunded"`
	RefundAmount       int64             `gorm:"not null;default:0" json:"refund_amount"`
	RefundDeduction    int64             `gorm:"not null;default:0" json:"refund_deduction"`
	Version            int64             `gorm:"not null;default:1" json:"version"`
	CreatedAt          time.Time         `gorm:"not null;index:idx_service_requests_owner_created,priority:2" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null" json:"updated_at"`

	Artifacts []Artifact `gorm:"foreignKey:ServiceRequestID" json:"artifacts"`
}

func (ServiceRequest) TableName() string { return "service_requests" }

// ResultURL returns the attached result artifact URL, if any.
func (r ServiceRequest) ResultURL() string {
	for _, a := range r.Artifacts {
		if a.Role == ArtifactRoleResult && a.Name == ResultArtifactName {
			return a.URL
		}
	}
	return ""
}

// Artifact is a named file reference on a request. Names are unique per request.
type Artifact struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	ServiceRequestID snowflake.ID `gorm:"not null;uniqueIndex:ux_service_request_artifact_name,priority:1" json:"-"`
	Name             string       `gorm:"type:text;not null;uniqueIndex:ux_service_request_artifact_name,priority:2" json:"name"`
	URL              string       `gorm:"type:text;not null" json:"url"`
	Role             ArtifactRole `gorm:"type:text;not null" json:"role"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (Artifact) TableName() string { return "service_request_artifacts" }
