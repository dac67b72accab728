package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/agentdesk/internal/audit/domain"
	"github.com/smallbiznis/agentdesk/internal/clock"
	ledgerdomain "github.com/smallbiznis/agentdesk/internal/ledger/domain"
	"github.com/smallbiznis/agentdesk/internal/observability/logger"
	walletdomain "github.com/smallbiznis/agentdesk/internal/wallet/domain"
	"github.com/smallbiznis/agentdesk/pkg/db"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      walletdomain.Repository
	LedgerSvc ledgerdomain.Service
	AuditSvc  auditdomain.Service `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      walletdomain.Repository
	ledgerSvc ledgerdomain.Service
	auditSvc  auditdomain.Service
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("wallet.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		ledgerSvc: p.LedgerSvc,
		auditSvc:  p.AuditSvc,
	}
}

func (s *Service) Debit(ctx context.Context, tx *gorm.DB, req walletdomain.PostingRequest) (walletdomain.Transaction, error) {
	if err := validatePosting(&req); err != nil {
		return walletdomain.Transaction{}, err
	}

	var txn walletdomain.Transaction
	err := s.within(ctx, tx, func(tx *gorm.DB) error {
		ok, err := s.repo.Adjust(ctx, tx, req.OwnerID, -req.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return walletdomain.ErrInsufficientFunds
		}
		txn, err = s.record(ctx, tx, req, walletdomain.DirectionDebit)
		return err
	})
	if err != nil {
		return walletdomain.Transaction{}, err
	}
	return txn, nil
}

func (s *Service) Credit(ctx context.Context, tx *gorm.DB, req walletdomain.PostingRequest) (walletdomain.Transaction, error) {
	if err := validatePosting(&req); err != nil {
		return walletdomain.Transaction{}, err
	}

	var txn walletdomain.Transaction
	err := s.within(ctx, tx, func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		if err := s.repo.Ensure(ctx, tx, &walletdomain.Wallet{
			OwnerID:   req.OwnerID,
			Currency:  walletdomain.DefaultCurrency,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		ok, err := s.repo.Adjust(ctx, tx, req.OwnerID, req.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("credit wallet %s: no row updated", req.OwnerID)
		}
		txn, err = s.record(ctx, tx, req, walletdomain.DirectionCredit)
		return err
	})
	if err != nil {
		return walletdomain.Transaction{}, err
	}
	return txn, nil
}

func (s *Service) Fund(ctx context.Context, req walletdomain.FundRequest) (walletdomain.Transaction, error) {
	fundingID := s.genID.Generate()
	reason := strings.TrimSpace(req.Reference)
	if reason == "" {
		reason = "wallet funding"
	}

	var txn walletdomain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.Credit(ctx, tx, walletdomain.PostingRequest{
			OwnerID:    req.OwnerID,
			Amount:     req.Amount,
			SourceType: string(ledgerdomain.SourceTypeWalletFunding),
			SourceID:   fundingID,
			Reason:     reason,
		})
		if err != nil {
			return err
		}
		if _, err := s.ledgerSvc.CreateEntry(ctx, tx, ledgerdomain.Entry{
			SourceType: ledgerdomain.SourceTypeWalletFunding,
			SourceID:   fundingID,
			Currency:   walletdomain.DefaultCurrency,
			OccurredAt: txn.CreatedAt,
			Lines:      ledgerdomain.FundingLines(req.Amount),
		}); err != nil {
			return err
		}
		if s.auditSvc == nil {
			return nil
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "wallet.funded",
			TargetType: "wallet",
			TargetID:   txn.OwnerID,
			Metadata: map[string]any{
				"amount":         txn.Amount,
				"balance_after":  txn.BalanceAfter,
				"transaction_id": txn.ID.String(),
				"reference":      reason,
			},
		})
	})
	if err != nil {
		return walletdomain.Transaction{}, err
	}

	logger.WithContext(ctx, s.log).Info("wallet funded",
		zap.String("owner_id", txn.OwnerID),
		zap.Int64("amount", txn.Amount),
		zap.Int64("balance_after", txn.BalanceAfter),
	)
	return txn, nil
}

func (s *Service) GetWallet(ctx context.Context, ownerID string) (walletdomain.Wallet, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return walletdomain.Wallet{}, walletdomain.ErrInvalidOwner
	}
	wallet, err := s.repo.Get(ctx, s.db, ownerID)
	if err != nil {
		return walletdomain.Wallet{}, err
	}
	if wallet == nil {
		return walletdomain.Wallet{OwnerID: ownerID, Currency: walletdomain.DefaultCurrency}, nil
	}
	return *wallet, nil
}

func (s *Service) ListTransactions(ctx context.Context, req walletdomain.ListTransactionsRequest) (walletdomain.ListTransactionsResponse, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return walletdomain.ListTransactionsResponse{}, walletdomain.ErrInvalidOwner
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

	items, err := s.repo.ListTransactions(ctx, s.db, ownerID, page)
	if err != nil {
		return walletdomain.ListTransactionsResponse{}, err
	}
	items, info := pagination.Trim(items, pageSize, func(t *walletdomain.Transaction) pagination.Cursor {
		return pagination.Cursor{ID: t.ID.String(), CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano)}
	})

	txns := make([]walletdomain.Transaction, 0, len(items))
	for _, item := range items {
		txns = append(txns, *item)
	}
	return walletdomain.ListTransactionsResponse{PageInfo: info, Transactions: txns}, nil
}

func (s *Service) within(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, req walletdomain.PostingRequest, direction walletdomain.Direction) (walletdomain.Transaction, error) {
	wallet, err := s.repo.Get(ctx, tx, req.OwnerID)
	if err != nil {
		return walletdomain.Transaction{}, err
	}
	if wallet == nil {
		return walletdomain.Transaction{}, walletdomain.ErrInvalidOwner
	}

	txn := walletdomain.Transaction{
		ID:           s.genID.Generate(),
		OwnerID:      req.OwnerID,
		Direction:    direction,
		Amount:       req.Amount,
		BalanceAfter: wallet.Balance,
		Currency:     wallet.Currency,
		SourceType:   req.SourceType,
		SourceID:     req.SourceID,
		Reason:       req.Reason,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.repo.InsertTransaction(ctx, tx, &txn); err != nil {
		if db.IsUniqueViolation(err) {
			return walletdomain.Transaction{}, walletdomain.ErrDuplicatePosting
		}
		return walletdomain.Transaction{}, err
	}
	return txn, nil
}

func validatePosting(req *walletdomain.PostingRequest) error {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if req.OwnerID == "" {
		return walletdomain.ErrInvalidOwner
	}
	if req.Amount <= 0 {
		return walletdomain.ErrInvalidAmount
	}
	req.SourceType = strings.TrimSpace(req.SourceType)
	if req.SourceType == "" || req.SourceID == 0 {
		return walletdomain.ErrInvalidSource
	}
	return nil
}
