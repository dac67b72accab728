package authorization

import (
	"context"
	"errors"
	"time"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidRole   = errors.New("invalid_role")
)

const (
	RoleAgent  = "agent"
	RoleAdmin  = "admin"
	RoleSystem = "system"

	SystemActor = "system"
)

// ActorRole stores the role assigned to an upstream identity. Actors
// without a row are agents.
type ActorRole struct {
	ActorID   string    `gorm:"primaryKey;type:text" json:"actor_id"`
	Role      string    `gorm:"type:text;not null" json:"role"`
	GrantedBy *string   `gorm:"type:text" json:"granted_by,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ActorRole) TableName() string { return "actor_roles" }

type Service interface {
	// Authorize returns ErrForbidden when actorID may not perform action on object.
	Authorize(ctx context.Context, actorID string, object string, action string) error
	// Can reports the same decision as Authorize without recording denials.
	Can(ctx context.Context, actorID string, object string, action string) (bool, error)
	AssignRole(ctx context.Context, actorID string, role string, grantedBy string) error
	RoleOf(ctx context.Context, actorID string) (string, error)
}

func ValidRole(role string) bool {
	switch role {
	case RoleAgent, RoleAdmin:
		return true
	default:
		return false
	}
}
