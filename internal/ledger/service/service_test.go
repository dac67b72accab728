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
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupLedger(t *testing.T) (ledgerdomain.Service, *gorm.DB) {
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
	if err := db.AutoMigrate(&ledgerdomain.LedgerAccount{}, &ledgerdomain.LedgerEntry{}, &ledgerdomain.LedgerEntryLine{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
	})
	return svc, db
}

func TestCreateEntryIsIdempotentPerSource(t *testing.T) {
	ctx := context.Background()
	svc, db := setupLedger(t)

	entry := ledgerdomain.Entry{
		SourceType: ledgerdomain.SourceTypeServiceCharge,
		SourceID:   snowflake.ID(1001),
		Currency:   "ngn",
		OccurredAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Lines:      ledgerdomain.ServiceChargeLines(15000),
	}

	inserted, err := svc.CreateEntry(ctx, nil, entry)
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first posting to insert")
	}

	inserted, err = svc.CreateEntry(ctx, nil, entry)
	if err != nil {
		t.Fatalf("replay entry: %v", err)
	}
	if inserted {
		t.Fatalf("expected replay to be a no-op")
	}

	var lines int64
	db.Model(&ledgerdomain.LedgerEntryLine{}).Count(&lines)
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}

	entries, err := svc.ListEntries(ctx, ledgerdomain.ListEntriesRequest{SourceID: 1001})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || len(entries[0].Lines) != 2 || entries[0].Currency != "NGN" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestCreateEntryRejectsUnbalanced(t *testing.T) {
	svc, _ := setupLedger(t)
	_, err := svc.CreateEntry(context.Background(), nil, ledgerdomain.Entry{
		SourceType: ledgerdomain.SourceTypeRefund,
		SourceID:   snowflake.ID(7),
		Currency:   "NGN",
		OccurredAt: time.Now(),
		Lines: []ledgerdomain.Line{
			{Account: ledgerdomain.AccountCodeServiceRevenue, Direction: ledgerdomain.LedgerEntryDirectionDebit, Amount: 1000},
			{Account: ledgerdomain.AccountCodeWalletLiability, Direction: ledgerdomain.LedgerEntryDirectionCredit, Amount: 500},
		},
	})
	if !errors.Is(err, ledgerdomain.ErrUnbalancedEntry) {
		t.Fatalf("expected unbalanced error, got %v", err)
	}
}

func TestCreateEntryInsideCallerTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	svc, db := setupLedger(t)

	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.CreateEntry(ctx, tx, ledgerdomain.Entry{
			SourceType: ledgerdomain.SourceTypeWalletFunding,
			SourceID:   snowflake.ID(55),
			Currency:   "NGN",
			OccurredAt: time.Now(),
			Lines:      ledgerdomain.FundingLines(5000),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int64
	db.Model(&ledgerdomain.LedgerEntry{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected rollback to discard entry, got %d", count)
	}
}

func TestAccountBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupLedger(t)
	now := time.Now()

	post := func(sourceType ledgerdomain.LedgerSourceType, id int64, lines []ledgerdomain.Line) {
		t.Helper()
		if _, err := svc.CreateEntry(ctx, nil, ledgerdomain.Entry{
			SourceType: sourceType, SourceID: snowflake.ID(id), Currency: "NGN", OccurredAt: now, Lines: lines,
		}); err != nil {
			t.Fatalf("post: %v", err)
		}
	}
	post(ledgerdomain.SourceTypeWalletFunding, 1, ledgerdomain.FundingLines(20000))
	post(ledgerdomain.SourceTypeServiceCharge, 2, ledgerdomain.ServiceChargeLines(15000))
	post(ledgerdomain.SourceTypeRefund, 2, ledgerdomain.RefundLines(14500))

	cases := map[ledgerdomain.LedgerAccountCode]int64{
		ledgerdomain.AccountCodeCash:            20000,
		ledgerdomain.AccountCodeWalletLiability: 19500,
		ledgerdomain.AccountCodeServiceRevenue:  500,
	}
	for code, want := range cases {
		got, err := svc.AccountBalance(ctx, code)
		if err != nil {
			t.Fatalf("balance %s: %v", code, err)
		}
		if got != want {
			t.Fatalf("balance %s: expected %d, got %d", code, want, got)
		}
	}
}
