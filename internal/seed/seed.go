package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/authorization"
	ledgerdomain "github.com/smallbiznis/agentdesk/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var chartOfAccounts = []ledgerdomain.LedgerAccount{
	{Code: ledgerdomain.AccountCodeCash, Name: "Cash received"},
	{Code: ledgerdomain.AccountCodeWalletLiability, Name: "Agent wallet liability"},
	{Code: ledgerdomain.AccountCodeServiceRevenue, Name: "Service revenue"},
}

// EnsureLedgerAccounts seeds the chart of accounts used by wallet and request postings.
func EnsureLedgerAccounts(ctx context.Context, db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, account := range chartOfAccounts {
			row := account
			row.ID = node.Generate()
			row.CreatedAt = now
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "code"}},
				DoNothing: true,
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureBootstrapAdmin grants the admin role to the configured operator.
func EnsureBootstrapAdmin(ctx context.Context, authz authorization.Service, adminID string) error {
	if authz == nil {
		return errors.New("seed authorization service is required")
	}
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return nil
	}

	role, err := authz.RoleOf(ctx, adminID)
	if err != nil {
		return err
	}
	if role == authorization.RoleAdmin {
		return nil
	}
	return authz.AssignRole(ctx, adminID, authorization.RoleAdmin, authorization.SystemActor)
}
