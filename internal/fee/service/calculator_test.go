package service

import (
	"errors"
	"testing"

	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dates(oldDate, newDate string) map[string]string {
	return map[string]string{
		feedomain.InputOldDate: oldDate,
		feedomain.InputNewDate: newDate,
	}
}

func TestCalculate_BasePrice(t *testing.T) {
	quote, err := Calculate(feedomain.DefaultSchedule(), "CAC_BN_REG", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), quote.Total)
	assert.Equal(t, int64(0), quote.Surcharge)
	assert.Equal(t, feedomain.KindCACRegistration, quote.Kind)
	assert.Equal(t, feedomain.DefaultScheduleVersion, quote.ScheduleVersion)
}

func TestCalculate_Deterministic(t *testing.T) {
	schedule := feedomain.DefaultSchedule()
	inputs := dates("2000-01-01", "2006-06-01")

	first, err := Calculate(schedule, "NIN_MOD_DOB", inputs)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := Calculate(schedule, "NIN_MOD_DOB", inputs)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCalculate_NINDateGapTiers(t *testing.T) {
	schedule := feedomain.DefaultSchedule()

	tests := []struct {
		name     string
		oldDate  string
		newDate  string
		tier     feedomain.SurchargeTier
		expected int64
	}{
		{"under five years", "2000-01-01", "2004-12-31", feedomain.TierNone, 15000},
		{"exactly five years", "2000-01-01T00:00:00Z", "2004-12-31T06:00:00Z", feedomain.TierNone, 15000},
		{"five calendar years crosses the line", "2000-01-01", "2005-01-01", feedomain.TierOne, 50000},
		{"six point four years", "2000-01-01", "2006-06-01", feedomain.TierOne, 50000},
		{"exactly ten years", "2000-01-01T00:00:00Z", "2009-12-31T12:00:00Z", feedomain.TierOne, 50000},
		{"twelve years", "2000-01-01", "2012-01-01", feedomain.TierTwo, 60000},
		{"reversed dates", "2012-01-01", "2000-01-01", feedomain.TierTwo, 60000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			quote, err := Calculate(schedule, "NIN_MOD_DOB", dates(tc.oldDate, tc.newDate))
			require.NoError(t, err)
			assert.Equal(t, tc.tier, quote.Tier)
			assert.Equal(t, tc.expected, quote.Total)
		})
	}
}

func TestTierForGapBoundaries(t *testing.T) {
	assert.Equal(t, feedomain.TierNone, tierForGap(0))
	assert.Equal(t, feedomain.TierNone, tierForGap(5.0))
	assert.Equal(t, feedomain.TierOne, tierForGap(5.0000001))
	assert.Equal(t, feedomain.TierOne, tierForGap(10.0))
	assert.Equal(t, feedomain.TierTwo, tierForGap(10.0000001))
}

func TestGapYearsUsesFixedYearLength(t *testing.T) {
	gap, err := gapYears("2000-01-01T00:00:00Z", "2004-12-31T06:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 5.0, gap)

	gap, err = gapYears("2000-01-01", "2005-01-01")
	require.NoError(t, err)
	assert.InDelta(t, 1827.0/365.25, gap, 1e-12)
}

func TestCalculate_MalformedDatesLenient(t *testing.T) {
	quote, err := Calculate(feedomain.DefaultSchedule(), "NIN_MOD_DOB", dates("not-a-date", "2012-01-01"))
	require.NoError(t, err)
	assert.Equal(t, feedomain.TierNone, quote.Tier)
	assert.Equal(t, int64(15000), quote.Total)
	assert.True(t, quote.DatesUnparsed)
	assert.Equal(t, true, quote.Breakdown()["dates_unparsed"])
}

func TestCalculate_MalformedDatesStrict(t *testing.T) {
	schedule := feedomain.DefaultSchedule()
	schedule.StrictDates = true

	_, err := Calculate(schedule, "NIN_MOD_DOB", dates("2000-01-01", "01/01/2012"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, feedomain.ErrInvalidDate))
}

func TestCalculate_BVNInstitutionBuckets(t *testing.T) {
	schedule := feedomain.DefaultSchedule()

	withInstitution := func(name string) map[string]string {
		inputs := dates("2000-01-01", "2008-01-01")
		inputs[feedomain.InputInstitution] = name
		return inputs
	}

	quote, err := Calculate(schedule, "BVN_MOD_DOB", withInstitution("Opay"))
	require.NoError(t, err)
	assert.Equal(t, feedomain.BucketAgency, quote.InstitutionBucket)
	assert.Equal(t, int64(9000), quote.Total)

	quote, err = Calculate(schedule, "BVN_MOD_DOB", withInstitution("Access Bank"))
	require.NoError(t, err)
	assert.Equal(t, feedomain.BucketStandard, quote.InstitutionBucket)
	assert.Equal(t, int64(6000), quote.Total)

	_, err = Calculate(schedule, "BVN_MOD_DOB", withInstitution("FCMB"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, feedomain.ErrPolicyViolation))
	var policyErr *feedomain.PolicyError
	require.True(t, errors.As(err, &policyErr))
	assert.Equal(t, "FCMB", policyErr.Institution)
}

func TestCalculate_BVNWithinFiveYearsIgnoresInstitution(t *testing.T) {
	inputs := dates("2000-01-01", "2003-01-01")
	inputs[feedomain.InputInstitution] = "FCMB"

	quote, err := Calculate(feedomain.DefaultSchedule(), "BVN_MOD_DOB", inputs)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), quote.Total)
	assert.Empty(t, quote.InstitutionBucket)
}

func TestCalculate_BVNRequiresInstitutionBeyondFiveYears(t *testing.T) {
	_, err := Calculate(feedomain.DefaultSchedule(), "BVN_MOD_DOB", dates("2000-01-01", "2008-01-01"))
	assert.ErrorIs(t, err, feedomain.ErrInvalidInstitution)
}

func TestCalculate_UnknownService(t *testing.T) {
	_, err := Calculate(feedomain.DefaultSchedule(), "PASSPORT_RENEWAL", nil)
	assert.ErrorIs(t, err, feedomain.ErrConfiguration)

	_, err = Calculate(feedomain.DefaultSchedule(), "  ", nil)
	assert.ErrorIs(t, err, feedomain.ErrInvalidService)
}

func TestCalculate_VariableAmount(t *testing.T) {
	schedule := feedomain.DefaultSchedule()

	quote, err := Calculate(schedule, "VTU_AIRTIME", map[string]string{feedomain.InputAmount: "1500"})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), quote.VariableAmount)
	assert.Equal(t, int64(1500), quote.Total)

	for _, raw := range []string{"", "abc", "10", "50001", "12.50"} {
		_, err := Calculate(schedule, "VTU_AIRTIME", map[string]string{feedomain.InputAmount: raw})
		assert.ErrorIs(t, err, feedomain.ErrInvalidAmount, "amount %q", raw)
	}
}
