package domain

import (
	"context"
	"errors"
	"fmt"
)

type QuoteRequest struct {
	ServiceCode string            `json:"service_code"`
	Inputs      map[string]string `json:"inputs"`
}

type Service interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
	Catalog(ctx context.Context) Catalog
}

// ScheduleSource yields the schedule in force at call time.
type ScheduleSource interface {
	Schedule() Schedule
}

// StaticSource serves a fixed schedule.
type StaticSource Schedule

func (s StaticSource) Schedule() Schedule { return Schedule(s) }

var (
	ErrConfiguration      = errors.New("configuration_error")
	ErrPolicyViolation    = errors.New("policy_violation")
	ErrInvalidService     = errors.New("invalid_service")
	ErrInvalidDate        = errors.New("invalid_date")
	ErrInvalidInstitution = errors.New("invalid_institution")
	ErrInvalidAmount      = errors.New("invalid_amount")
)

// PolicyError reports a request the schedule refuses to price.
type PolicyError struct {
	ServiceCode string
	Institution string
	GapYears    float64
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s does not support date changes beyond five years (requested %.2f years) for %s",
		ErrPolicyViolation.Error(), e.Institution, e.GapYears, e.ServiceCode)
}

func (e *PolicyError) Unwrap() error { return ErrPolicyViolation }
