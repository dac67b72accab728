package authorization

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAuthz(t *testing.T) Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&ActorRole{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	enforcer, err := NewMemoryEnforcer()
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}
	return NewService(Params{DB: db, Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAgentCannotResolveRequests(t *testing.T) {
	svc := setupAuthz(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, "agent-1", ObjectServiceRequest, ActionServiceRequestCreate); err != nil {
		t.Fatalf("agent should create requests: %v", err)
	}
	for _, action := range []string{
		ActionServiceRequestBeginProcessing,
		ActionServiceRequestComplete,
		ActionServiceRequestFail,
		ActionServiceRequestAttachArtifact,
	} {
		if err := svc.Authorize(ctx, "agent-1", ObjectServiceRequest, action); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected forbidden for %s, got %v", action, err)
		}
	}
}

func TestAssignRoleGrantsAdminActions(t *testing.T) {
	svc := setupAuthz(t)
	ctx := context.Background()

	if err := svc.AssignRole(ctx, "ops-1", RoleAdmin, SystemActor); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	role, err := svc.RoleOf(ctx, "ops-1")
	if err != nil || role != RoleAdmin {
		t.Fatalf("expected admin role, got %q (%v)", role, err)
	}
	if err := svc.Authorize(ctx, "ops-1", ObjectServiceRequest, ActionServiceRequestFail); err != nil {
		t.Fatalf("admin should fail requests: %v", err)
	}

	if err := svc.AssignRole(ctx, "ops-1", RoleAgent, SystemActor); err != nil {
		t.Fatalf("demote: %v", err)
	}
	if err := svc.Authorize(ctx, "ops-1", ObjectServiceRequest, ActionServiceRequestFail); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected demoted actor to be forbidden, got %v", err)
	}
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := setupAuthz(t)
	if err := svc.Authorize(context.Background(), " ", ObjectWallet, ActionWalletFund); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected invalid actor, got %v", err)
	}
	if err := svc.AssignRole(context.Background(), "x", "superuser", ""); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}
}

func TestSystemActorCanFundWallets(t *testing.T) {
	svc := setupAuthz(t)
	if err := svc.Authorize(context.Background(), SystemActor, ObjectWallet, ActionWalletFund); err != nil {
		t.Fatalf("system should fund wallets: %v", err)
	}
}

func TestCanReportsViewScope(t *testing.T) {
	svc := setupAuthz(t)
	ctx := context.Background()

	anyScope, err := svc.Can(ctx, "agent-1", ObjectServiceRequest, ActionServiceRequestViewAny)
	if err != nil || anyScope {
		t.Fatalf("agent must not view any request: allowed=%v err=%v", anyScope, err)
	}
	own, err := svc.Can(ctx, "agent-1", ObjectServiceRequest, ActionServiceRequestViewOwn)
	if err != nil || !own {
		t.Fatalf("agent must view own requests: allowed=%v err=%v", own, err)
	}
	if _, err := svc.Can(ctx, "", ObjectServiceRequest, ActionServiceRequestViewOwn); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected invalid actor, got %v", err)
	}
}

func TestDecideRegroupsOnlyWhenStoredRoleChanges(t *testing.T) {
	svc := setupAuthz(t)
	impl := svc.(*ServiceImpl)
	ctx := context.Background()
	subject := subjectFor("ops-2")

	if err := svc.AssignRole(ctx, "ops-2", RoleAdmin, SystemActor); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := svc.Authorize(ctx, "ops-2", ObjectServiceRequest, ActionServiceRequestComplete); err != nil {
			t.Fatalf("admin should complete requests: %v", err)
		}
	}
	if got := impl.linkedRole(subject); got != roleName(RoleAdmin) {
		t.Fatalf("expected cached admin link, got %q", got)
	}

	// Another instance demotes the actor directly in the table.
	if err := impl.db.Model(&ActorRole{}).Where("actor_id = ?", "ops-2").Update("role", RoleAgent).Error; err != nil {
		t.Fatalf("demote row: %v", err)
	}
	if err := svc.Authorize(ctx, "ops-2", ObjectServiceRequest, ActionServiceRequestComplete); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected demoted actor to be forbidden, got %v", err)
	}

	rules, err := impl.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		t.Fatalf("grouping policy: %v", err)
	}
	if len(rules) != 1 || rules[0][1] != roleName(RoleAgent) {
		t.Fatalf("expected a single agent link, got %v", rules)
	}
	if got := impl.linkedRole(subject); got != roleName(RoleAgent) {
		t.Fatalf("expected cached agent link, got %q", got)
	}
}
