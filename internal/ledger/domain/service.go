package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
)

// Line is a posting against an account code.
type Line struct {
	Account   LedgerAccountCode
	Direction LedgerEntryDirection
	Amount    int64
}

// Entry describes a balanced posting for a single financial event.
type Entry struct {
	SourceType LedgerSourceType
	SourceID   snowflake.ID
	Currency   string
	OccurredAt time.Time
	Lines      []Line
}

type ListEntriesRequest struct {
	SourceType LedgerSourceType
	SourceID   snowflake.ID
	Limit      int
}

type Service interface {
	// CreateEntry posts entry inside tx, or in its own transaction when tx
	// is nil. Posting the same source twice is a no-op and reports false.
	CreateEntry(ctx context.Context, tx *gorm.DB, entry Entry) (bool, error)
	ListEntries(ctx context.Context, req ListEntriesRequest) ([]LedgerEntry, error)
	AccountBalance(ctx context.Context, code LedgerAccountCode) (int64, error)
}

// ValidateBalanced checks that debits equal credits per currency.
func ValidateBalanced(lines []Line) error {
	if len(lines) < 2 {
		return ErrInvalidEntryLines
	}
	var debit, credit int64
	for _, line := range lines {
		switch line.Direction {
		case LedgerEntryDirectionDebit:
			debit += line.Amount
		case LedgerEntryDirectionCredit:
			credit += line.Amount
		default:
			return ErrInvalidLineDirection
		}
	}
	if debit != credit {
		return ErrUnbalancedEntry
	}
	return nil
}

// ServiceChargeLines moves a submission fee out of the agent wallet liability into revenue.
func ServiceChargeLines(amount int64) []Line {
	return []Line{
		{Account: AccountCodeWalletLiability, Direction: LedgerEntryDirectionDebit, Amount: amount},
		{Account: AccountCodeServiceRevenue, Direction: LedgerEntryDirectionCredit, Amount: amount},
	}
}

// RefundLines reverses revenue back into the agent wallet liability.
func RefundLines(amount int64) []Line {
	return []Line{
		{Account: AccountCodeServiceRevenue, Direction: LedgerEntryDirectionDebit, Amount: amount},
		{Account: AccountCodeWalletLiability, Direction: LedgerEntryDirectionCredit, Amount: amount},
	}
}

// FundingLines records cash received against the wallet liability.
func FundingLines(amount int64) []Line {
	return []Line{
		{Account: AccountCodeCash, Direction: LedgerEntryDirectionDebit, Amount: amount},
		{Account: AccountCodeWalletLiability, Direction: LedgerEntryDirectionCredit, Amount: amount},
	}
}
