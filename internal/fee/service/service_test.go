package service

import (
	"context"
	"testing"

	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(schedule feedomain.Schedule) feedomain.Service {
	return NewService(Params{
		Log:    zap.NewNop(),
		Source: feedomain.StaticSource(schedule),
	})
}

func TestServiceQuoteUsesCurrentSchedule(t *testing.T) {
	schedule := feedomain.DefaultSchedule()
	schedule.Version = "test-v2"

	svc := newTestService(schedule)
	quote, err := svc.Quote(context.Background(), feedomain.QuoteRequest{
		ServiceCode: "NIN_MOD_DOB",
		Inputs:      dates("2000-01-01", "2012-01-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, "test-v2", quote.ScheduleVersion)
	assert.Equal(t, int64(60000), quote.Total)
}

func TestServiceQuotePropagatesPolicyViolation(t *testing.T) {
	svc := newTestService(feedomain.DefaultSchedule())
	inputs := dates("2000-01-01", "2012-01-01")
	inputs[feedomain.InputInstitution] = "Zenith Bank"

	_, err := svc.Quote(context.Background(), feedomain.QuoteRequest{ServiceCode: "BVN_MOD_DOB", Inputs: inputs})
	assert.ErrorIs(t, err, feedomain.ErrPolicyViolation)
}

func TestServiceCatalogFormatsPrices(t *testing.T) {
	svc := newTestService(feedomain.DefaultSchedule())
	catalog := svc.Catalog(context.Background())

	assert.Equal(t, feedomain.DefaultScheduleVersion, catalog.Version)
	assert.Equal(t, feedomain.CurrencyNGN, catalog.Currency)
	require.NotEmpty(t, catalog.Services)

	var found bool
	for _, entry := range catalog.Services {
		if entry.Code != "NIN_MOD_DOB" {
			continue
		}
		found = true
		assert.True(t, entry.DateGap)
		assert.Equal(t, "₦15,000.00", entry.DisplayPrice)
	}
	assert.True(t, found)
}

func TestQuoteOutcome(t *testing.T) {
	assert.Equal(t, "priced", quoteOutcome(nil))
	assert.Equal(t, "policy_violation", quoteOutcome(&feedomain.PolicyError{}))
	assert.Equal(t, "configuration_error", quoteOutcome(feedomain.ErrConfiguration))
	assert.Equal(t, "invalid_input", quoteOutcome(feedomain.ErrInvalidAmount))
}
