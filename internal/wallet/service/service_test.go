package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/agentdesk/internal/clock"
	ledgerdomain "github.com/smallbiznis/agentdesk/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/agentdesk/internal/ledger/service"
	walletdomain "github.com/smallbiznis/agentdesk/internal/wallet/domain"
	"github.com/smallbiznis/agentdesk/internal/wallet/repository"
	"github.com/smallbiznis/agentdesk/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc    walletdomain.Service
	ledger ledgerdomain.Service
	db     *gorm.DB
	clock  *clock.FakeClock
}

func setupWallet(t *testing.T) fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&walletdomain.Wallet{},
		&walletdomain.Transaction{},
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.LedgerEntryLine{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk})
	svc := NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      repository.Provide(),
		LedgerSvc: ledger,
	})
	return fixture{svc: svc, ledger: ledger, db: db, clock: clk}
}

func TestFundCreditsWalletAndLedger(t *testing.T) {
	ctx := context.Background()
	f := setupWallet(t)

	txn, err := f.svc.Fund(ctx, walletdomain.FundRequest{OwnerID: "agent-1", Amount: 20000, Reference: "bank transfer"})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), txn.BalanceAfter)
	assert.Equal(t, walletdomain.DirectionCredit, txn.Direction)

	wallet, err := f.svc.GetWallet(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), wallet.Balance)
	assert.Equal(t, "NGN", wallet.Currency)

	liability, err := f.ledger.AccountBalance(ctx, ledgerdomain.AccountCodeWalletLiability)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), liability)
}

func TestDebitRejectsInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := setupWallet(t)

	_, err := f.svc.Fund(ctx, walletdomain.FundRequest{OwnerID: "agent-1", Amount: 100})
	require.NoError(t, err)

	_, err = f.svc.Debit(ctx, nil, walletdomain.PostingRequest{
		OwnerID: "agent-1", Amount: 200, SourceType: "service_charge", SourceID: 1,
	})
	assert.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)

	wallet, err := f.svc.GetWallet(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), wallet.Balance)
}

func TestDebitUnknownWalletIsInsufficient(t *testing.T) {
	f := setupWallet(t)
	_, err := f.svc.Debit(context.Background(), nil, walletdomain.PostingRequest{
		OwnerID: "nobody", Amount: 1, SourceType: "service_charge", SourceID: 1,
	})
	assert.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)
}

func TestCreditIsSinglePerSource(t *testing.T) {
	ctx := context.Background()
	f := setupWallet(t)

	req := walletdomain.PostingRequest{OwnerID: "agent-1", Amount: 1000, SourceType: "refund", SourceID: 77}
	_, err := f.svc.Credit(ctx, nil, req)
	require.NoError(t, err)

	_, err = f.svc.Credit(ctx, nil, req)
	assert.ErrorIs(t, err, walletdomain.ErrDuplicatePosting)

	wallet, err := f.svc.GetWallet(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), wallet.Balance)
}

func TestDebitInsideCallerTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	f := setupWallet(t)
	_, err := f.svc.Fund(ctx, walletdomain.FundRequest{OwnerID: "agent-1", Amount: 500})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = f.db.Transaction(func(tx *gorm.DB) error {
		if _, err := f.svc.Debit(ctx, tx, walletdomain.PostingRequest{
			OwnerID: "agent-1", Amount: 300, SourceType: "service_charge", SourceID: 5,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	wallet, err := f.svc.GetWallet(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), wallet.Balance)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := setupWallet(t)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Fund(ctx, walletdomain.FundRequest{OwnerID: "agent-1", Amount: int64(100 * (i + 1))})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	resp, err := f.svc.ListTransactions(ctx, walletdomain.ListTransactionsRequest{
		OwnerID:    "agent-1",
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, resp.Transactions, 2)
	assert.True(t, resp.HasMore)
	assert.Equal(t, int64(300), resp.Transactions[0].Amount)
	assert.Equal(t, int64(600), resp.Transactions[0].BalanceAfter)
}
