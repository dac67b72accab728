package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/agentdesk/internal/audit/domain"
	"github.com/smallbiznis/agentdesk/internal/authorization"
	"github.com/smallbiznis/agentdesk/internal/clock"
	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	ledgerdomain "github.com/smallbiznis/agentdesk/internal/ledger/domain"
	obscontext "github.com/smallbiznis/agentdesk/internal/observability/context"
	"github.com/smallbiznis/agentdesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/agentdesk/internal/observability/metrics"
	servicerequestdomain "github.com/smallbiznis/agentdesk/internal/servicerequest/domain"
	walletdomain "github.com/smallbiznis/agentdesk/internal/wallet/domain"
	"github.com/smallbiznis/agentdesk/pkg/db"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxLifecycleAttempts = 3

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             servicerequestdomain.Repository
	FeeSvc           feedomain.Service
	WalletSvc        walletdomain.Service
	LedgerSvc        ledgerdomain.Service
	AuthzSvc         authorization.Service
	AuditSvc         auditdomain.Service          `optional:"true"`
	Locker           servicerequestdomain.Locker  `optional:"true"`
	ObsMetrics       *obsmetrics.Metrics          `optional:"true"`
	LifecycleMetrics *obsmetrics.LifecycleMetrics `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             servicerequestdomain.Repository
	feeSvc           feedomain.Service
	walletSvc        walletdomain.Service
	ledgerSvc        ledgerdomain.Service
	authzSvc         authorization.Service
	auditSvc         auditdomain.Service
	locker           servicerequestdomain.Locker
	obsMetrics       *obsmetrics.Metrics
	lifecycleMetrics *obsmetrics.LifecycleMetrics
}

func NewService(p Params) servicerequestdomain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("servicerequest.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		feeSvc:           p.FeeSvc,
		walletSvc:        p.WalletSvc,
		ledgerSvc:        p.LedgerSvc,
		authzSvc:         p.AuthzSvc,
		auditSvc:         p.AuditSvc,
		locker:           p.Locker,
		obsMetrics:       p.ObsMetrics,
		lifecycleMetrics: p.LifecycleMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req servicerequestdomain.CreateRequest) (servicerequestdomain.ServiceRequest, error) {
	start := time.Now()
	ownerID := actorIDFromContext(ctx)
	if err := s.authzSvc.Authorize(ctx, ownerID, authorization.ObjectServiceRequest, authorization.ActionServiceRequestCreate); err != nil {
		return servicerequestdomain.ServiceRequest{}, err
	}

	serviceCode := strings.TrimSpace(req.ServiceCode)
	if serviceCode == "" {
		return servicerequestdomain.ServiceRequest{}, servicerequestdomain.ErrInvalidService
	}
	for key := range req.FormData {
		if servicerequestdomain.ReservedFormField(key) {
			return servicerequestdomain.ServiceRequest{}, fmt.Errorf("%w: %q is set by the workflow", servicerequestdomain.ErrInvalidFormData, key)
		}
	}

	quote, err := s.feeSvc.Quote(ctx, feedomain.QuoteRequest{ServiceCode: serviceCode, Inputs: req.Inputs})
	if err != nil {
		return servicerequestdomain.ServiceRequest{}, err
	}
	if req.QuotedFee != nil && *req.QuotedFee != quote.Total {
		return servicerequestdomain.ServiceRequest{}, fmt.Errorf("%w: quoted %d, current price %d", servicerequestdomain.ErrFeeMismatch, *req.QuotedFee, quote.Total)
	}

	now := s.clock.Now().UTC()
	id := s.genID.Generate()
	artifacts, err := s.inputArtifacts(id, req.Artifacts, now)
	if err != nil {
		return servicerequestdomain.ServiceRequest{}, err
	}

	breakdown := quote.Breakdown()
	if len(req.Inputs) > 0 {
		inputs := make(map[string]any, len(req.Inputs))
		for k, v := range req.Inputs {
			inputs[k] = v
		}
		breakdown["inputs"] = inputs
	}

	entity := servicerequestdomain.ServiceRequest{
		ID:                 id,
		ServiceCode:        quote.ServiceCode,
		Kind:               string(quote.Kind),
		OwnerID:            ownerID,
		FormData:           cloneJSONMap(req.FormData),
		FeeBreakdown:       datatypes.JSONMap(breakdown),
		FeeScheduleVersion: quote.ScheduleVersion,
		ComputedFee:        quote.Total,
		Currency:           quote.Currency,
		Status:             servicerequestdomain.StatusPending,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if entity.ComputedFee > 0 {
			if _, err := s.walletSvc.Debit(ctx, tx, walletdomain.PostingRequest{
				OwnerID:    ownerID,
				Amount:     entity.ComputedFee,
				SourceType: string(ledgerdomain.SourceTypeServiceCharge),
				SourceID:   id,
				Reason:     quote.ServiceName,
			}); err != nil {
				return err
			}
			if _, err := s.ledgerSvc.CreateEntry(ctx, tx, ledgerdomain.Entry{
				SourceType: ledgerdomain.SourceTypeServiceCharge,
				SourceID:   id,
				Currency:   entity.Currency,
				OccurredAt: now,
				Lines:      ledgerdomain.ServiceChargeLines(entity.ComputedFee),
			}); err != nil {
				return err
			}
		}
		if err := s.repo.Insert(ctx, tx, &entity); err != nil {
			return err
		}
		if err := s.repo.InsertArtifacts(ctx, tx, artifacts); err != nil {
			return err
		}
		return s.audit(ctx, tx, "service_request.created", entity, map[string]any{
			"service_code":         entity.ServiceCode,
			"computed_fee":         entity.ComputedFee,
			"fee_schedule_version": entity.FeeScheduleVersion,
		})
	})
	if err != nil {
		s.observeFailure("create", err, time.Since(start))
		return servicerequestdomain.ServiceRequest{}, err
	}
	entity.Artifacts = artifacts

	s.lifecycleMetrics.ObserveOperation("create", "applied", time.Since(start))
	s.obsMetrics.RecordServiceRequestCreated(ctx, entity.Kind, entity.ServiceCode)
	logger.WithContext(ctx, s.log).Info("service request created",
		zap.String("request_id", entity.ID.String()),
		zap.String("service_code", entity.ServiceCode),
		zap.Int64("computed_fee", entity.ComputedFee),
	)
	return entity, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (servicerequestdomain.ServiceRequest, error) {
	id, err := parseID(rawID)
	if err != nil {
		return servicerequestdomain.ServiceRequest{}, err
	}
	actorID := actorIDFromContext(ctx)
	viewAny, err := s.viewScope(ctx, actorID)
	if err != nil {
		return servicerequestdomain.ServiceRequest{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		return servicerequestdomain.ServiceRequest{}, err
	}
	if item == nil || (!viewAny && item.OwnerID != actorID) {
		return servicerequestdomain.ServiceRequest{}, servicerequestdomain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req servicerequestdomain.ListRequest) (servicerequestdomain.ListResponse, error) {
	actorID := actorIDFromContext(ctx)
	viewAny, err := s.viewScope(ctx, actorID)
	if err != nil {
		return servicerequestdomain.ListResponse{}, err
	}

	filter := servicerequestdomain.ListFilter{
		OwnerID: strings.TrimSpace(req.OwnerID),
		Kind:    strings.TrimSpace(req.Kind),
	}
	if !viewAny {
		filter.OwnerID = actorID
	}
	if raw := strings.ToUpper(strings.TrimSpace(req.Status)); raw != "" {
		status := servicerequestdomain.Status(raw)
		if !status.Valid() {
			return servicerequestdomain.ListResponse{}, servicerequestdomain.ErrInvalidStatus
		}
		filter.Status = status
	}
	if req.PageToken != "" {
		if _, err := pagination.DecodeCursor(req.PageToken); err != nil {
			return servicerequestdomain.ListResponse{}, servicerequestdomain.ErrInvalidPageToken
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	if pageSize > pagination.MaxPageSize {
		pageSize = pagination.MaxPageSize
	}
	page := req.Pagination
	page.PageSize = pageSize

	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return servicerequestdomain.ListResponse{}, err
	}
	items, info := pagination.Trim(items, pageSize, func(r *servicerequestdomain.ServiceRequest) pagination.Cursor {
		return pagination.Cursor{ID: r.ID.String(), CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano)}
	})

	requests := make([]servicerequestdomain.ServiceRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, *item)
	}
	return servicerequestdomain.ListResponse{PageInfo: info, Requests: requests}, nil
}

func (s *Service) viewScope(ctx context.Context, actorID string) (bool, error) {
	viewAny, err := s.authzSvc.Can(ctx, actorID, authorization.ObjectServiceRequest, authorization.ActionServiceRequestViewAny)
	if err != nil {
		return false, err
	}
	if viewAny {
		return true, nil
	}
	if err := s.authzSvc.Authorize(ctx, actorID, authorization.ObjectServiceRequest, authorization.ActionServiceRequestViewOwn); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Service) inputArtifacts(requestID snowflake.ID, inputs []servicerequestdomain.ArtifactInput, now time.Time) ([]servicerequestdomain.Artifact, error) {
	artifacts := make([]servicerequestdomain.Artifact, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if name == "" || name == servicerequestdomain.ResultArtifactName {
			return nil, fmt.Errorf("%w: name %q is not allowed", servicerequestdomain.ErrInvalidArtifact, name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", servicerequestdomain.ErrInvalidArtifact, name)
		}
		seen[name] = struct{}{}
		link, err := normalizeURL(in.URL)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, servicerequestdomain.Artifact{
			ID:               s.genID.Generate(),
			ServiceRequestID: requestID,
			Name:             name,
			URL:              link,
			Role:             servicerequestdomain.ArtifactRoleInput,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}
	return artifacts, nil
}

// audit records action against req. A nil tx writes outside any transaction.
func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, req servicerequestdomain.ServiceRequest, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["owner_id"] = req.OwnerID
	metadata["status"] = string(req.Status)
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		Action:     action,
		TargetType: "service_request",
		TargetID:   req.ID.String(),
		Metadata:   metadata,
	})
}

func (s *Service) observeFailure(action string, err error, d time.Duration) {
	reason := failureReason(err)
	outcome := "error"
	if errors.Is(err, servicerequestdomain.ErrInvalidTransition) || errors.Is(err, authorization.ErrForbidden) {
		outcome = "rejected"
	}
	s.lifecycleMetrics.IncError(action, reason)
	s.lifecycleMetrics.ObserveOperation(action, outcome, d)
}

func failureReason(err error) string {
	for _, known := range []error{
		servicerequestdomain.ErrInvalidTransition,
		servicerequestdomain.ErrRefundFailed,
		servicerequestdomain.ErrNotFound,
		servicerequestdomain.ErrNoteRequired,
		servicerequestdomain.ErrInvalidDeduction,
		servicerequestdomain.ErrInvalidArtifact,
		servicerequestdomain.ErrInvalidFormData,
		servicerequestdomain.ErrFeeMismatch,
		walletdomain.ErrInsufficientFunds,
		feedomain.ErrPolicyViolation,
		feedomain.ErrConfiguration,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return obsmetrics.ClassifyLifecycleReason(err)
}

func actorIDFromContext(ctx context.Context) string {
	_, actorID := obscontext.ActorFromContext(ctx)
	return strings.TrimSpace(actorID)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, servicerequestdomain.ErrInvalidRequestID
	}
	return id, nil
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.ParseRequestURI(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		return "", fmt.Errorf("%w: url must be absolute http(s)", servicerequestdomain.ErrInvalidArtifact)
	}
	return raw, nil
}

func cloneJSONMap(in map[string]any) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func notePtr(note string) *string {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil
	}
	return &note
}

func rowLockResource(tx *gorm.DB) string {
	if db.SupportsRowLocks(tx) {
		return obsmetrics.LockResourceRequestRow
	}
	return ""
}
