package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/agentdesk/internal/artifact"
	auditdomain "github.com/smallbiznis/agentdesk/internal/audit/domain"
	"github.com/smallbiznis/agentdesk/internal/authorization"
	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	ledgerdomain "github.com/smallbiznis/agentdesk/internal/ledger/domain"
	"github.com/smallbiznis/agentdesk/internal/ratelimit"
	servicerequestdomain "github.com/smallbiznis/agentdesk/internal/servicerequest/domain"
	walletdomain "github.com/smallbiznis/agentdesk/internal/wallet/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type          string            `json:"type"`
	Message       string            `json:"message"`
	CurrentStatus string            `json:"current_status,omitempty"`
	Errors        []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationSentinels maps caller mistakes to a stable code; order matters
// only when an error wraps more than one of them.
var validationSentinels = []error{
	ErrInvalidRequest,
	servicerequestdomain.ErrInvalidRequestID,
	servicerequestdomain.ErrInvalidService,
	servicerequestdomain.ErrNoteRequired,
	servicerequestdomain.ErrInvalidDeduction,
	servicerequestdomain.ErrInvalidArtifact,
	servicerequestdomain.ErrInvalidFormData,
	servicerequestdomain.ErrInvalidStatus,
	servicerequestdomain.ErrInvalidPageToken,
	feedomain.ErrInvalidService,
	feedomain.ErrInvalidDate,
	feedomain.ErrInvalidInstitution,
	feedomain.ErrInvalidAmount,
	walletdomain.ErrInvalidOwner,
	walletdomain.ErrInvalidAmount,
	artifact.ErrInvalidOwner,
	artifact.ErrInvalidPurpose,
	artifact.ErrInvalidFileName,
	artifact.ErrInvalidContentType,
	authorization.ErrInvalidRole,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	ledgerdomain.ErrInvalidSourceType,
	ledgerdomain.ErrInvalidAccount,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	// Refund failures wrap the wallet cause, which may itself look like a validation error.
	if errors.Is(err, servicerequestdomain.ErrRefundFailed) {
		return http.StatusBadGateway, errorPayload{
			Type:    "refund_failed",
			Message: "refund could not be credited; request left unchanged",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var transitionErr *servicerequestdomain.TransitionError
	var policyErr *feedomain.PolicyError

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.As(err, &transitionErr):
		return http.StatusConflict, errorPayload{
			Type:          "invalid_transition",
			Message:       fmt.Sprintf("request is %s; %s is not allowed", transitionErr.Current, transitionErr.Action),
			CurrentStatus: string(transitionErr.Current),
		}
	case errors.Is(err, servicerequestdomain.ErrInvalidTransition):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_transition",
			Message: "transition not allowed",
		}
	case errors.Is(err, servicerequestdomain.ErrVersionConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "request was modified concurrently, retry",
		}
	case errors.Is(err, servicerequestdomain.ErrFeeMismatch):
		return http.StatusConflict, errorPayload{
			Type:    "fee_mismatch",
			Message: "quoted fee is out of date, request a new quote",
		}
	case errors.Is(err, walletdomain.ErrInsufficientFunds):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_funds",
			Message: "wallet balance is too low for this service",
		}
	case errors.As(err, &policyErr):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "policy_violation",
			Message: fmt.Sprintf("%s does not support date changes beyond five years", policyErr.Institution),
		}
	case errors.Is(err, feedomain.ErrPolicyViolation):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "policy_violation",
			Message: "request violates an institution policy",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, artifact.ErrStorageUnavailable),
		errors.Is(err, ratelimit.ErrLockTimeout):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, feedomain.ErrConfiguration):
		return http.StatusInternalServerError, errorPayload{
			Type:    "configuration_error",
			Message: "service is not configured",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger with the envelope type and status.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	return payload.Type, fmt.Sprintf("%d", status)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, servicerequestdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if code == "note_required" {
		return "note"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "note_required":
		return "a note is required when failing a request"
	default:
		return "invalid value"
	}
}
