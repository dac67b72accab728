package repository

import (
	"context"
	"errors"
	"time"

	walletdomain "github.com/smallbiznis/agentdesk/internal/wallet/domain"
	"github.com/smallbiznis/agentdesk/pkg/db/option"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"github.com/smallbiznis/agentdesk/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() walletdomain.Repository {
	return &repo{}
}

func (r *repo) Ensure(ctx context.Context, db *gorm.DB, wallet *walletdomain.Wallet) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "owner_id"}}, DoNothing: true}).
		Create(wallet).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, ownerID string) (*walletdomain.Wallet, error) {
	var wallet walletdomain.Wallet
	err := db.WithContext(ctx).Where("owner_id = ?", ownerID).Take(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repo) Adjust(ctx context.Context, db *gorm.DB, ownerID string, delta int64) (bool, error) {
	stmt := db.WithContext(ctx).Model(&walletdomain.Wallet{}).Where("owner_id = ?", ownerID)
	if delta < 0 {
		stmt = stmt.Where("balance >= ?", -delta)
	}
	result := stmt.Updates(map[string]any{
		"balance":    gorm.Expr("balance + ?", delta),
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *walletdomain.Transaction) error {
	return repository.ProvideStore[walletdomain.Transaction](db).Create(ctx, txn)
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, ownerID string, page pagination.Pagination) ([]*walletdomain.Transaction, error) {
	return repository.ProvideStore[walletdomain.Transaction](db).Find(ctx,
		&walletdomain.Transaction{OwnerID: ownerID},
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
		option.ApplyPagination(page),
	)
}
