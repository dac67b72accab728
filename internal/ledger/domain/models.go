package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LedgerEntryDirection represents debit or credit postings.
type LedgerEntryDirection string

const (
	LedgerEntryDirectionDebit  LedgerEntryDirection = "debit"
	LedgerEntryDirectionCredit LedgerEntryDirection = "credit"
)

type LedgerSourceType string

const (
	SourceTypeServiceCharge LedgerSourceType = "service_charge" // wallet debited at submission
	SourceTypeRefund        LedgerSourceType = "refund"         // fee returned on a failed request
	SourceTypeWalletFunding LedgerSourceType = "wallet_funding" // admin top-up
)

type LedgerAccountCode string

const (
	// Assets
	AccountCodeCash LedgerAccountCode = "cash"

	// Liabilities
	AccountCodeWalletLiability LedgerAccountCode = "wallet_liability"

	// Revenue
	AccountCodeServiceRevenue LedgerAccountCode = "service_revenue"
)

var accountNames = map[LedgerAccountCode]string{
	AccountCodeCash:            "Cash",
	AccountCodeWalletLiability: "Agent wallet balances",
	AccountCodeServiceRevenue:  "Service revenue",
}

// AccountName returns the display name for a chart-of-accounts code.
func AccountName(code LedgerAccountCode) string {
	if name, ok := accountNames[code]; ok {
		return name
	}
	return string(code)
}

// LedgerAccount defines a chart-of-accounts entry.
type LedgerAccount struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	Code      LedgerAccountCode `gorm:"type:text;not null;uniqueIndex:ux_ledger_accounts_code"`
	Name      string            `gorm:"type:text;not null"`
	CreatedAt time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerAccount) TableName() string { return "ledger_accounts" }

// LedgerEntry captures the immutable header for a financial event.
// One entry exists per (source type, source id).
type LedgerEntry struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	SourceType LedgerSourceType  `gorm:"type:text;not null;uniqueIndex:ux_ledger_entries_source,priority:1"`
	SourceID   snowflake.ID      `gorm:"not null;uniqueIndex:ux_ledger_entries_source,priority:2"`
	Currency   string            `gorm:"type:text;not null"`
	OccurredAt time.Time         `gorm:"not null"`
	CreatedAt  time.Time         `gorm:"not null"`
	Lines      []LedgerEntryLine `gorm:"foreignKey:LedgerEntryID"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// LedgerEntryLine is a double-entry posting line.
type LedgerEntryLine struct {
	ID            snowflake.ID         `gorm:"primaryKey"`
	LedgerEntryID snowflake.ID         `gorm:"not null;index"`
	AccountID     snowflake.ID         `gorm:"not null;index"`
	AccountCode   LedgerAccountCode    `gorm:"type:text;not null"`
	Direction     LedgerEntryDirection `gorm:"type:text;not null"`
	Currency      string               `gorm:"type:text;not null"`
	Amount        int64                `gorm:"not null"`
	CreatedAt     time.Time            `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntryLine) TableName() string { return "ledger_entry_lines" }
