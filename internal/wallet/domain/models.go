package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const DefaultCurrency = "NGN"

type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Wallet holds an agent's spendable balance in whole Naira.
type Wallet struct {
	OwnerID   string    `gorm:"primaryKey;type:text" json:"owner_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	Currency  string    `gorm:"type:text;not null" json:"currency"`
	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

// Transaction is one line of a wallet statement. At most one transaction
// exists per (source type, source id, direction).
type Transaction struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID      string       `gorm:"type:text;not null;index" json:"owner_id"`
	Direction    Direction    `gorm:"type:text;not null;uniqueIndex:ux_wallet_transactions_source,priority:3" json:"direction"`
	Amount       int64        `gorm:"not null" json:"amount"`
	BalanceAfter int64        `gorm:"not null" json:"balance_after"`
	Currency     string       `gorm:"type:text;not null" json:"currency"`
	SourceType   string       `gorm:"type:text;not null;uniqueIndex:ux_wallet_transactions_source,priority:1" json:"source_type"`
	SourceID     snowflake.ID `gorm:"not null;uniqueIndex:ux_wallet_transactions_source,priority:2" json:"source_id"`
	Reason       string       `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt    time.Time    `gorm:"not null;index" json:"created_at"`
}

func (Transaction) TableName() string { return "wallet_transactions" }
