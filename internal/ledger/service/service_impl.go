package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/agentdesk/internal/clock"
	ledgerdomain "github.com/smallbiznis/agentdesk/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/agentdesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateEntry(ctx context.Context, tx *gorm.DB, entry ledgerdomain.Entry) (bool, error) {
	sourceType := ledgerdomain.LedgerSourceType(strings.TrimSpace(string(entry.SourceType)))
	if sourceType == "" {
		return false, ledgerdomain.ErrInvalidSourceType
	}
	if entry.SourceID == 0 {
		return false, ledgerdomain.ErrInvalidSourceID
	}
	currency := strings.ToUpper(strings.TrimSpace(entry.Currency))
	if currency == "" {
		return false, ledgerdomain.ErrInvalidCurrency
	}
	if entry.OccurredAt.IsZero() {
		return false, ledgerdomain.ErrInvalidOccurredAt
	}

	normalized := make([]ledgerdomain.Line, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		if strings.TrimSpace(string(line.Account)) == "" {
			return false, ledgerdomain.ErrInvalidAccount
		}
		direction, err := normalizeDirection(line.Direction)
		if err != nil {
			return false, err
		}
		if line.Amount < 0 {
			return false, ledgerdomain.ErrInvalidLineAmount
		}
		normalized = append(normalized, ledgerdomain.Line{
			Account:   line.Account,
			Direction: direction,
			Amount:    line.Amount,
		})
	}
	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return false, err
	}

	post := func(tx *gorm.DB) (bool, error) {
		return s.post(ctx, tx, sourceType, entry.SourceID, currency, entry.OccurredAt.UTC(), normalized)
	}

	if tx != nil {
		return post(tx)
	}

	var inserted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = post(tx)
		return err
	})
	if err != nil {
		return false, err
	}
	if inserted {
		s.obsMetrics.RecordLedgerEntry(ctx, string(sourceType))
	}
	return inserted, nil
}

func (s *Service) post(
	ctx context.Context,
	tx *gorm.DB,
	sourceType ledgerdomain.LedgerSourceType,
	sourceID snowflake.ID,
	currency string,
	occurredAt time.Time,
	lines []ledgerdomain.Line,
) (bool, error) {
	codes := make([]ledgerdomain.LedgerAccountCode, 0, len(lines))
	for _, line := range lines {
		codes = append(codes, line.Account)
	}
	accounts, err := s.ensureAccounts(ctx, tx, codes)
	if err != nil {
		return false, err
	}

	now := s.clock.Now().UTC()
	header := ledgerdomain.LedgerEntry{
		ID:         s.genID.Generate(),
		SourceType: sourceType,
		SourceID:   sourceID,
		Currency:   currency,
		OccurredAt: occurredAt,
		CreatedAt:  now,
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_type"}, {Name: "source_id"}},
			DoNothing: true,
		}).
		Omit("Lines").
		Create(&header)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		s.log.Info("ledger entry already exists",
			zap.String("source_type", string(sourceType)),
			zap.String("source_id", sourceID.String()),
		)
		return false, nil
	}

	rows := make([]ledgerdomain.LedgerEntryLine, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, ledgerdomain.LedgerEntryLine{
			ID:            s.genID.Generate(),
			LedgerEntryID: header.ID,
			AccountID:     accounts[line.Account],
			AccountCode:   line.Account,
			Direction:     line.Direction,
			Currency:      currency,
			Amount:        line.Amount,
			CreatedAt:     now,
		})
	}
	if err := tx.WithContext(ctx).Create(&rows).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) ensureAccounts(ctx context.Context, tx *gorm.DB, codes []ledgerdomain.LedgerAccountCode) (map[ledgerdomain.LedgerAccountCode]snowflake.ID, error) {
	now := s.clock.Now().UTC()
	for _, code := range codes {
		account := ledgerdomain.LedgerAccount{
			ID:        s.genID.Generate(),
			Code:      code,
			Name:      ledgerdomain.AccountName(code),
			CreatedAt: now,
		}
		if err := tx.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
			Create(&account).Error; err != nil {
			return nil, err
		}
	}

	var accounts []ledgerdomain.LedgerAccount
	if err := tx.WithContext(ctx).Where("code IN ?", codes).Find(&accounts).Error; err != nil {
		return nil, err
	}
	out := make(map[ledgerdomain.LedgerAccountCode]snowflake.ID, len(accounts))
	for _, account := range accounts {
		out[account.Code] = account.ID
	}
	for _, code := range codes {
		if _, ok := out[code]; !ok {
			return nil, ledgerdomain.ErrInvalidAccount
		}
	}
	return out, nil
}

func (s *Service) ListEntries(ctx context.Context, req ledgerdomain.ListEntriesRequest) ([]ledgerdomain.LedgerEntry, error) {
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	stmt := s.db.WithContext(ctx).Preload("Lines").Order("created_at desc, id desc").Limit(limit)
	if req.SourceType != "" {
		stmt = stmt.Where("source_type = ?", req.SourceType)
	}
	if req.SourceID != 0 {
		stmt = stmt.Where("source_id = ?", req.SourceID)
	}
	var entries []ledgerdomain.LedgerEntry
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// AccountBalance returns credits minus debits for liability and revenue
// accounts and debits minus credits for asset accounts.
func (s *Service) AccountBalance(ctx context.Context, code ledgerdomain.LedgerAccountCode) (int64, error) {
	var totals struct {
		Debit  int64
		Credit int64
	}
	err := s.db.WithContext(ctx).
		Model(&ledgerdomain.LedgerEntryLine{}).
		Select(
			"COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE 0 END), 0) AS debit, "+
				"COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE 0 END), 0) AS credit",
			ledgerdomain.LedgerEntryDirectionDebit, ledgerdomain.LedgerEntryDirectionCredit,
		).
		Where("account_code = ?", code).
		Scan(&totals).Error
	if err != nil {
		return 0, err
	}
	if code == ledgerdomain.AccountCodeCash {
		return totals.Debit - totals.Credit, nil
	}
	return totals.Credit - totals.Debit, nil
}

func normalizeDirection(direction ledgerdomain.LedgerEntryDirection) (ledgerdomain.LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(ledgerdomain.LedgerEntryDirectionDebit):
		return ledgerdomain.LedgerEntryDirectionDebit, nil
	case string(ledgerdomain.LedgerEntryDirectionCredit):
		return ledgerdomain.LedgerEntryDirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}
