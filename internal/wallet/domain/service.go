package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"gorm.io/gorm"
)

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks

var (
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrInvalidOwner      = errors.New("invalid_owner")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidSource     = errors.New("invalid_source")
	ErrDuplicatePosting  = errors.New("duplicate_posting")
)

// PostingRequest moves Amount in or out of OwnerID's wallet on behalf of a source record.
type PostingRequest struct {
	OwnerID    string
	Amount     int64
	SourceType string
	SourceID   snowflake.ID
	Reason     string
}

type FundRequest struct {
	OwnerID   string
	Amount    int64
	Reference string
}

type ListTransactionsRequest struct {
	pagination.Pagination
	OwnerID string
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

type Service interface {
	// Debit and Credit run inside tx when it is non-nil so callers can bind
	// the balance change to their own state change.
	Debit(ctx context.Context, tx *gorm.DB, req PostingRequest) (Transaction, error)
	Credit(ctx context.Context, tx *gorm.DB, req PostingRequest) (Transaction, error)
	Fund(ctx context.Context, req FundRequest) (Transaction, error)
	GetWallet(ctx context.Context, ownerID string) (Wallet, error)
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)
}

type Repository interface {
	Ensure(ctx context.Context, db *gorm.DB, wallet *Wallet) error
	Get(ctx context.Context, db *gorm.DB, ownerID string) (*Wallet, error)
	// Adjust applies delta to the balance. A negative delta only applies
	// when the balance covers it; the return reports whether a row changed.
	Adjust(ctx context.Context, db *gorm.DB, ownerID string, delta int64) (bool, error)
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *Transaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, ownerID string, page pagination.Pagination) ([]*Transaction, error)
}
