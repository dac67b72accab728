package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/agentdesk/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed model.conf
var modelText string

const (
	ObjectServiceRequest = "service_request"
	ObjectWallet         = "wallet"
	ObjectUpload         = "upload"
	ObjectAuditLog       = "audit_log"
	ObjectLedger         = "ledger"
	ObjectRole           = "role"
)

const (
	ActionServiceRequestCreate          = "service_request.create"
	ActionServiceRequestViewOwn         = "service_request.view_own"
	ActionServiceRequestViewAny         = "service_request.view_any"
	ActionServiceRequestBeginProcessing = "service_request.begin_processing"
	ActionServiceRequestComplete        = "service_request.complete"
	ActionServiceRequestFail            = "service_request.fail"
	ActionServiceRequestAttachArtifact  = "service_request.attach_artifact"

	ActionWalletViewOwn = "wallet.view_own"
	ActionWalletViewAny = "wallet.view_any"
	ActionWalletFund    = "wallet.fund"

	ActionUploadCreate = "upload.create"

	ActionAuditLogView = "audit_log.view"
	ActionLedgerView   = "ledger.view"
	ActionRoleAssign   = "role.assign"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service

	// grouped remembers the role last linked per subject so decisions only
	// touch the grouping policy when the stored role changes.
	mu      sync.Mutex
	grouped map[string]string
}

// NewEnforcer builds a casbin enforcer persisted through the gorm adapter
// and seeded with the built-in role policies.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return newEnforcer(adapter)
}

// NewMemoryEnforcer builds an enforcer without persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	return newEnforcer(nil)
}

func newEnforcer(adapter *gormadapter.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	var enforcer *casbin.SyncedEnforcer
	if adapter != nil {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	}
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoBuildRoleLinks(true)
	if adapter != nil {
		enforcer.EnableAutoSave(true)
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
		grouped:  make(map[string]string),
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actorID string, object string, action string) error {
	role, allowed, err := s.decide(ctx, actorID, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, role, strings.TrimSpace(actorID), object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) Can(ctx context.Context, actorID string, object string, action string) (bool, error) {
	_, allowed, err := s.decide(ctx, actorID, object, action)
	return allowed, err
}

func (s *ServiceImpl) decide(ctx context.Context, actorID string, object string, action string) (string, bool, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return "", false, ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return "", false, ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return "", false, ErrInvalidAction
	}

	role, err := s.RoleOf(ctx, actorID)
	if err != nil {
		return "", false, err
	}
	subject := subjectFor(actorID)
	if s.linkedRole(subject) != roleName(role) {
		if err := s.ensureGrouping(subject, roleName(role)); err != nil {
			return "", false, err
		}
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return "", false, err
	}
	return role, allowed, nil
}

func (s *ServiceImpl) RoleOf(ctx context.Context, actorID string) (string, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return "", ErrInvalidActor
	}
	if actorID == SystemActor {
		return RoleSystem, nil
	}

	var row ActorRole
	err := s.db.WithContext(ctx).Where("actor_id = ?", actorID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RoleAgent, nil
	}
	if err != nil {
		return "", err
	}
	role := strings.ToLower(strings.TrimSpace(row.Role))
	if !ValidRole(role) {
		return RoleAgent, nil
	}
	return role, nil
}

func (s *ServiceImpl) AssignRole(ctx context.Context, actorID string, role string, grantedBy string) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" || actorID == SystemActor {
		return ErrInvalidActor
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !ValidRole(role) {
		return ErrInvalidRole
	}

	now := time.Now().UTC()
	row := ActorRole{
		ActorID:   actorID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if grantedBy = strings.TrimSpace(grantedBy); grantedBy != "" {
		row.GrantedBy = &grantedBy
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "granted_by", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return err
	}
	if err := s.ensureGrouping(subjectFor(actorID), roleName(role)); err != nil {
		return err
	}

	s.log.Info("role assigned", zap.String("actor_id", actorID), zap.String("role", role))
	if s.auditSvc != nil {
		_ = s.auditSvc.Record(ctx, nil, auditdomain.Entry{
			ActorID:    grantedBy,
			Action:     "authorization.role_assigned",
			TargetType: "actor",
			TargetID:   actorID,
			Metadata:   map[string]any{"role": role},
		})
	}
	return nil
}

func (s *ServiceImpl) ensureGrouping(subject string, role string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != role {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
				s.forgetRole(subject)
				return fmt.Errorf("remove grouping %s -> %s: %w", subject, rule[1], err)
			}
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, role)
	if err != nil {
		return err
	}
	if !has {
		if _, err := s.enforcer.AddGroupingPolicy(subject, role); err != nil {
			s.forgetRole(subject)
			return err
		}
	}

	s.mu.Lock()
	s.grouped[subject] = role
	s.mu.Unlock()
	return nil
}

func (s *ServiceImpl) linkedRole(subject string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grouped[subject]
}

func (s *ServiceImpl) forgetRole(subject string) {
	s.mu.Lock()
	delete(s.grouped, subject)
	s.mu.Unlock()
}

func (s *ServiceImpl) auditDenied(ctx context.Context, role string, actorID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		ActorType:  actorTypeFor(role),
		ActorID:    actorID,
		Action:     "authorization.denied",
		TargetType: "authorization",
		TargetID:   object + ":" + action,
		Metadata: map[string]any{
			"object": object,
			"action": action,
			"role":   role,
		},
	})
}

func subjectFor(actorID string) string {
	if actorID == SystemActor {
		return SystemActor
	}
	return fmt.Sprintf("user:%s", actorID)
}

func roleName(role string) string {
	return fmt.Sprintf("role:%s", role)
}

func actorTypeFor(role string) auditdomain.ActorType {
	switch role {
	case RoleAdmin:
		return auditdomain.ActorTypeAdmin
	case RoleSystem:
		return auditdomain.ActorTypeSystem
	default:
		return auditdomain.ActorTypeAgent
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	agent := [][]string{
		{ObjectServiceRequest, ActionServiceRequestCreate},
		{ObjectServiceRequest, ActionServiceRequestViewOwn},
		{ObjectWallet, ActionWalletViewOwn},
		{ObjectUpload, ActionUploadCreate},
	}
	admin := [][]string{
		{ObjectServiceRequest, ActionServiceRequestViewOwn},
		{ObjectServiceRequest, ActionServiceRequestViewAny},
		{ObjectServiceRequest, ActionServiceRequestBeginProcessing},
		{ObjectServiceRequest, ActionServiceRequestComplete},
		{ObjectServiceRequest, ActionServiceRequestFail},
		{ObjectServiceRequest, ActionServiceRequestAttachArtifact},
		{ObjectWallet, ActionWalletViewOwn},
		{ObjectWallet, ActionWalletViewAny},
		{ObjectWallet, ActionWalletFund},
		{ObjectUpload, ActionUploadCreate},
		{ObjectAuditLog, ActionAuditLogView},
		{ObjectLedger, ActionLedgerView},
		{ObjectRole, ActionRoleAssign},
	}
	system := [][]string{
		{ObjectWallet, ActionWalletFund},
		{ObjectRole, ActionRoleAssign},
		{ObjectServiceRequest, ActionServiceRequestViewAny},
	}

	for role, rules := range map[string][][]string{
		RoleAgent:  agent,
		RoleAdmin:  admin,
		RoleSystem: system,
	} {
		for _, rule := range rules {
			if _, err := enforcer.AddPolicy(roleName(role), rule[0], rule[1]); err != nil {
				return err
			}
		}
	}
	_, err := enforcer.AddGroupingPolicy(SystemActor, roleName(RoleSystem))
	return err
}
