package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/authorization"
	ledgerdomain "github.com/smallbiznis/agentdesk/internal/ledger/domain"
	"github.com/smallbiznis/agentdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/agentdesk/internal/observability/metrics"
	servicerequestdomain "github.com/smallbiznis/agentdesk/internal/servicerequest/domain"
	walletdomain "github.com/smallbiznis/agentdesk/internal/wallet/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// lifecycleOp is one admin operation on a locked request.
type lifecycleOp struct {
	action servicerequestdomain.Action
	// apply mutates req in memory. It reports replay when the requested
	// outcome already holds and nothing must be written.
	apply func(req *servicerequestdomain.ServiceRequest) (replay bool, err error)
	// effect runs inside the transaction after the state row is written.
	effect func(ctx context.Context, tx *gorm.DB, req *servicerequestdomain.ServiceRequest) error
	// metadata is added to the audit entry.
	metadata map[string]any
}

type lifecycleResult struct {
	before servicerequestdomain.Status
	after  servicerequestdomain.ServiceRequest
	replay bool
}

var authzActions = map[servicerequestdomain.Action]string{
	servicerequestdomain.ActionBeginProcessing: authorization.ActionServiceRequestBeginProcessing,
	servicerequestdomain.ActionComplete:        authorization.ActionServiceRequestComplete,
	servicerequestdomain.ActionFail:            authorization.ActionServiceRequestFail,
	servicerequestdomain.ActionAttachArtifact:  authorization.ActionServiceRequestAttachArtifact,
}

var auditActions = map[servicerequestdomain.Action]string{
	servicerequestdomain.ActionBeginProcessing: "service_request.processing_started",
	servicerequestdomain.ActionComplete:        "service_request.completed",
	servicerequestdomain.ActionFail:            "service_request.failed",
	servicerequestdomain.ActionAttachArtifact:  "service_request.artifact_attached",
}

func (s *Service) BeginProcessing(ctx context.Context, req servicerequestdomain.BeginProcessingRequest) (servicerequestdomain.ServiceRequest, error) {
	return s.run(ctx, req.ID, lifecycleOp{
		action: servicerequestdomain.ActionBeginProcessing,
		apply: func(r *servicerequestdomain.ServiceRequest) (bool, error) {
			if r.Status == servicerequestdomain.StatusProcessing {
				return true, nil
			}
			next, err := servicerequestdomain.Transition(r.ID.String(), r.Status, servicerequestdomain.ActionBeginProcessing)
			if err != nil {
				return false, err
			}
			r.Status = next
			if note := notePtr(req.Note); note != nil {
				r.StatusMessage = note
			}
			return false, nil
		},
	})
}

func (s *Service) Complete(ctx context.Context, req servicerequestdomain.CompleteRequest) (servicerequestdomain.ServiceRequest, error) {
	resultURL := strings.TrimSpace(req.ResultURL)
	if resultURL != "" {
		normalized, err := normalizeURL(resultURL)
		if err != nil {
			return servicerequestdomain.ServiceRequest{}, err
		}
		resultURL = normalized
	}

	op := lifecycleOp{
		action:   servicerequestdomain.ActionComplete,
		metadata: map[string]any{"result_attached": resultURL != ""},
		apply: func(r *servicerequestdomain.ServiceRequest) (bool, error) {
			if r.Status == servicerequestdomain.StatusCompleted {
				if resultURL == "" || resultURL == r.ResultURL() {
					return true, nil
				}
				// A different result on a completed request goes through AttachArtifact.
				return false, &servicerequestdomain.TransitionError{
					RequestID: r.ID.String(),
					Current:   r.Status,
					Action:    servicerequestdomain.ActionComplete,
				}
			}
			next, err := servicerequestdomain.Transition(r.ID.String(), r.Status, servicerequestdomain.ActionComplete)
			if err != nil {
				return false, err
			}
			r.Status = next
			if note := notePtr(req.Note); note != nil {
				r.StatusMessage = note
			}
			if resultURL != "" {
				r.FormData[servicerequestdomain.FormFieldResultURL] = resultURL
			}
			return false, nil
		},
	}
	if resultURL != "" {
		op.effect = s.resultArtifactEffect(servicerequestdomain.ResultArtifactName, resultURL)
	}
	return s.run(ctx, req.ID, op)
}

func (s *Service) Fail(ctx context.Context, req servicerequestdomain.FailRequest) (servicerequestdomain.ServiceRequest, error) {
	note := notePtr(req.Note)
	if note == nil {
		return servicerequestdomain.ServiceRequest{}, servicerequestdomain.ErrNoteRequired
	}
	if req.Deduction < 0 || (!req.ShouldRefund && req.Deduction != 0) {
		return servicerequestdomain.ServiceRequest{}, servicerequestdomain.ErrInvalidDeduction
	}

	return s.run(ctx, req.ID, lifecycleOp{
		action: servicerequestdomain.ActionFail,
		metadata: map[string]any{
			"should_refund": req.ShouldRefund,
			"deduction":     req.Deduction,
		},
		apply: func(r *servicerequestdomain.ServiceRequest) (bool, error) {
			if r.Status == servicerequestdomain.StatusFailed {
				if r.Refunded == req.ShouldRefund && (!req.ShouldRefund || r.RefundDeduction == req.Deduction) {
					return true, nil
				}
				return false, &servicerequestdomain.TransitionError{
					RequestID: r.ID.String(),
					Current:   r.Status,
					Action:    servicerequestdomain.ActionFail,
				}
			}
			next, err := servicerequestdomain.Transition(r.ID.String(), r.Status, servicerequestdomain.ActionFail)
			if err != nil {
				return false, err
			}
			if req.Deduction > r.ComputedFee {
				return false, fmt.Errorf("%w: deduction %d exceeds fee %d", servicerequestdomain.ErrInvalidDeduction, req.Deduction, r.ComputedFee)
			}
			r.Status = next
			r.StatusMessage = note
			if req.ShouldRefund {
				r.Refunded = true
				r.RefundDeduction = req.Deduction
				r.RefundAmount = r.ComputedFee - req.Deduction
			}
			return false, nil
		},
		effect: func(ctx context.Context, tx *gorm.DB, r *servicerequestdomain.ServiceRequest) error {
			if !r.Refunded || r.RefundAmount <= 0 {
				return nil
			}
			return s.refund(ctx, tx, r, *note)
		},
	})
}

func (s *Service) AttachArtifact(ctx context.Context, req servicerequestdomain.AttachArtifactRequest) (servicerequestdomain.ServiceRequest, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = servicerequestdomain.ResultArtifactName
	}
	link, err := normalizeURL(req.URL)
	if err != nil {
		return servicerequestdomain.ServiceRequest{}, err
	}

	return s.run(ctx, req.ID, lifecycleOp{
		action:   servicerequestdomain.ActionAttachArtifact,
		metadata: map[string]any{"artifact": name},
		apply: func(r *servicerequestdomain.ServiceRequest) (bool, error) {
			if _, err := servicerequestdomain.Transition(r.ID.String(), r.Status, servicerequestdomain.ActionAttachArtifact); err != nil {
				return false, err
			}
			for _, existing := range r.Artifacts {
				if existing.Name != name {
					continue
				}
				if existing.Role == servicerequestdomain.ArtifactRoleInput {
					return false, fmt.Errorf("%w: input artifact %q cannot be replaced", servicerequestdomain.ErrInvalidArtifact, name)
				}
				if existing.URL == link {
					return true, nil
				}
			}
			if name == servicerequestdomain.ResultArtifactName {
				r.FormData[servicerequestdomain.FormFieldResultURL] = link
			}
			return false, nil
		},
		effect: s.resultArtifactEffect(name, link),
	})
}

func (s *Service) resultArtifactEffect(name, link string) func(context.Context, *gorm.DB, *servicerequestdomain.ServiceRequest) error {
	return func(ctx context.Context, tx *gorm.DB, r *servicerequestdomain.ServiceRequest) error {
		return s.repo.UpsertArtifact(ctx, tx, &servicerequestdomain.Artifact{
			ID:               s.genID.Generate(),
			ServiceRequestID: r.ID,
			Name:             name,
			URL:              link,
			Role:             servicerequestdomain.ArtifactRoleResult,
			CreatedAt:        r.UpdatedAt,
			UpdatedAt:        r.UpdatedAt,
		})
	}
}

// refund credits the owner and books the reversal in the caller's transaction.
func (s *Service) refund(ctx context.Context, tx *gorm.DB, r *servicerequestdomain.ServiceRequest, note string) error {
	if _, err := s.walletSvc.Credit(ctx, tx, walletdomain.PostingRequest{
		OwnerID:    r.OwnerID,
		Amount:     r.RefundAmount,
		SourceType: string(ledgerdomain.SourceTypeRefund),
		SourceID:   r.ID,
		Reason:     "refund: " + note,
	}); err != nil {
		return fmt.Errorf("%w: %w", servicerequestdomain.ErrRefundFailed, err)
	}
	if _, err := s.ledgerSvc.CreateEntry(ctx, tx, ledgerdomain.Entry{
		SourceType: ledgerdomain.SourceTypeRefund,
		SourceID:   r.ID,
		Currency:   r.Currency,
		OccurredAt: r.UpdatedAt,
		Lines:      ledgerdomain.RefundLines(r.RefundAmount),
	}); err != nil {
		return fmt.Errorf("%w: %w", servicerequestdomain.ErrRefundFailed, err)
	}
	return nil
}

// run authorizes, serializes and applies op, retrying lost version races.
func (s *Service) run(ctx context.Context, rawID string, op lifecycleOp) (servicerequestdomain.ServiceRequest, error) {
	start := time.Now()
	action := string(op.action)

	result, err := s.execute(ctx, rawID, op)
	if err != nil {
		s.observeFailure(action, err, time.Since(start))
		logger.WithContext(ctx, s.log).Info("lifecycle operation rejected",
			zap.String("action", action),
			zap.String("request_id", rawID),
			zap.Error(err),
		)
		return servicerequestdomain.ServiceRequest{}, err
	}

	after := result.after
	if result.replay {
		s.lifecycleMetrics.ObserveOperation(action, "replayed", time.Since(start))
		s.obsMetrics.RecordTransition(ctx, action, "replayed")
		return after, nil
	}

	s.lifecycleMetrics.ObserveOperation(action, "applied", time.Since(start))
	s.obsMetrics.RecordTransition(ctx, action, "applied")
	if result.before != after.Status {
		s.lifecycleMetrics.IncTransition(string(result.before), string(after.Status))
	}
	if after.Refunded && op.action == servicerequestdomain.ActionFail {
		s.obsMetrics.RecordRefund(ctx, after.Kind, after.RefundAmount)
	}

	logger.WithContext(ctx, s.log).Info("lifecycle operation applied",
		zap.String("action", action),
		zap.String("request_id", after.ID.String()),
		zap.String("from", string(result.before)),
		zap.String("to", string(after.Status)),
		zap.Bool("refunded", after.Refunded),
	)
	metadata := map[string]any{"from": string(result.before)}
	for k, v := range op.metadata {
		metadata[k] = v
	}
	if after.Refunded {
		metadata["refund_amount"] = after.RefundAmount
	}
	if err := s.audit(ctx, nil, auditActions[op.action], after, metadata); err != nil {
		logger.WithContext(ctx, s.log).Warn("lifecycle audit not recorded",
			zap.String("request_id", after.ID.String()),
			zap.Error(err),
		)
	}
	return after, nil
}

func (s *Service) execute(ctx context.Context, rawID string, op lifecycleOp) (lifecycleResult, error) {
	actorID := actorIDFromContext(ctx)
	if err := s.authzSvc.Authorize(ctx, actorID, authorization.ObjectServiceRequest, authzActions[op.action]); err != nil {
		return lifecycleResult{}, err
	}
	id, err := parseID(rawID)
	if err != nil {
		return lifecycleResult{}, err
	}

	if s.locker != nil {
		lockStart := time.Now()
		release, err := s.locker.LockRequest(ctx, id.String())
		s.lifecycleMetrics.ObserveLockWait(obsmetrics.LockResourceRequestMutex, time.Since(lockStart))
		if err != nil {
			return lifecycleResult{}, err
		}
		defer release()
	}

	for attempt := 1; ; attempt++ {
		result, err := s.attempt(ctx, id, op)
		if err == nil {
			return result, nil
		}
		retryable := errors.Is(err, servicerequestdomain.ErrVersionConflict) || obsmetrics.IsRetryable(err)
		if !retryable || attempt >= maxLifecycleAttempts {
			return lifecycleResult{}, err
		}
		s.lifecycleMetrics.IncVersionConflict(string(op.action))
	}
}

func (s *Service) attempt(ctx context.Context, id snowflake.ID, op lifecycleOp) (lifecycleResult, error) {
	var result lifecycleResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		current, err := s.repo.FindByID(ctx, tx, id, true)
		if resource := rowLockResource(tx); resource != "" {
			s.lifecycleMetrics.ObserveLockWait(resource, time.Since(lockStart))
		}
		if err != nil {
			return err
		}
		if current == nil {
			return servicerequestdomain.ErrNotFound
		}

		next := *current
		next.FormData = cloneJSONMap(current.FormData)
		replay, err := op.apply(&next)
		if err != nil {
			return err
		}
		result.before = current.Status
		if replay {
			result.after = *current
			result.replay = true
			return nil
		}

		next.UpdatedAt = s.clock.Now().UTC()
		ok, err := s.repo.UpdateState(ctx, tx, &next, current.Version)
		if err != nil {
			return err
		}
		if !ok {
			return servicerequestdomain.ErrVersionConflict
		}
		if op.effect != nil {
			if err := op.effect(ctx, tx, &next); err != nil {
				return err
			}
		}
		result.after = next
		return nil
	})
	if err != nil {
		return lifecycleResult{}, err
	}
	if result.replay {
		return result, nil
	}

	// Reload so callers see artifacts written by the effect.
	fresh, err := s.repo.FindByID(ctx, s.db, id, false)
	if err == nil && fresh != nil {
		result.after = *fresh
	}
	return result, nil
}
