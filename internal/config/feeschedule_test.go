package config

import (
	"os"
	"path/filepath"
	"testing"

	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSchedule = `
fee_schedule:
  version: "2024-07"
  strict_dates: true
  services:
    - code: NIN_MOD_DOB
      name: NIN date of birth modification
      kind: nin_modification
      base_price: 16000
      date_gap:
        tier1: 36000
        tier2: 46000
    - code: BVN_MOD_DOB
      name: BVN date of birth modification
      kind: bvn_modification
      base_price: 2000
      date_gap:
        institutions:
          unsupported: ["FCMB"]
          agency: ["Opay"]
          agency_surcharge: 7000
          standard_surcharge: 4000
`

func writeSchedule(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeschedule.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFeeScheduleFromFile(t *testing.T) {
	schedule, err := LoadFeeSchedule(writeSchedule(t, sampleSchedule))
	require.NoError(t, err)

	assert.Equal(t, "2024-07", schedule.Version)
	assert.True(t, schedule.StrictDates)
	require.Len(t, schedule.Services, 2)

	nin, ok := schedule.Lookup("NIN_MOD_DOB")
	require.True(t, ok)
	assert.Equal(t, feedomain.KindNINModification, nin.Kind)
	assert.Equal(t, int64(16000), nin.BasePrice)
	require.NotNil(t, nin.DateGap)
	assert.Equal(t, int64(46000), nin.DateGap.Tier2)

	bvn, ok := schedule.Lookup("bvn_mod_dob")
	require.True(t, ok)
	require.NotNil(t, bvn.DateGap.Institutions)
	assert.Equal(t, feedomain.BucketUnsupported, bvn.DateGap.Institutions.Bucket("  fcmb "))
	assert.Equal(t, feedomain.BucketAgency, bvn.DateGap.Institutions.Bucket("OPAY"))
	assert.Equal(t, feedomain.BucketStandard, bvn.DateGap.Institutions.Bucket("Access Bank"))
}

func TestLoadFeeScheduleRejectsInvalidFile(t *testing.T) {
	_, err := LoadFeeSchedule(writeSchedule(t, `
fee_schedule:
  version: "broken"
  services:
    - code: TIN_REG
      kind: not_a_kind
      base_price: 3000
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, feedomain.ErrConfiguration)
}

func TestLoadFeeScheduleDefaultsWithoutPath(t *testing.T) {
	schedule, err := LoadFeeSchedule("")
	require.NoError(t, err)
	assert.Equal(t, feedomain.DefaultScheduleVersion, schedule.Version)
	assert.NoError(t, schedule.Validate())
}

func TestFeeScheduleHolderServesLoadedSchedule(t *testing.T) {
	holder, err := NewFeeScheduleHolder(writeSchedule(t, sampleSchedule))
	require.NoError(t, err)
	assert.Equal(t, "2024-07", holder.Schedule().Version)
}
