package service

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	feedomain "github.com/smallbiznis/agentdesk/internal/fee/domain"
)

// daysPerYear is the year length used for date-gap surcharges. It is not
// calendar aware, so the same two dates always yield the same gap.
const daysPerYear = 365.25

const (
	tierOneThreshold = 5.0
	tierTwoThreshold = 10.0
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Calculate prices serviceCode against schedule. It reads nothing but its
// arguments and is safe to call speculatively.
func Calculate(schedule feedomain.Schedule, serviceCode string, inputs map[string]string) (feedomain.Quote, error) {
	code := strings.TrimSpace(serviceCode)
	if code == "" {
		return feedomain.Quote{}, feedomain.ErrInvalidService
	}

	entry, ok := schedule.Lookup(code)
	if !ok {
		return feedomain.Quote{}, fmt.Errorf("%w: no fee schedule entry for %s", feedomain.ErrConfiguration, code)
	}

	quote := feedomain.Quote{
		ServiceCode:     entry.Code,
		ServiceName:     entry.Name,
		Kind:            entry.Kind,
		ScheduleVersion: schedule.Version,
		Currency:        feedomain.CurrencyNGN,
		BasePrice:       entry.BasePrice,
	}

	if entry.Variable != nil {
		amount, err := variableAmount(entry, inputs)
		if err != nil {
			return feedomain.Quote{}, err
		}
		quote.VariableAmount = amount
	}

	if entry.DateGap != nil {
		if err := applyDateGap(&quote, schedule.StrictDates, entry, inputs); err != nil {
			return feedomain.Quote{}, err
		}
	}

	quote.Total = quote.BasePrice + quote.VariableAmount + quote.Surcharge
	return quote, nil
}

func applyDateGap(quote *feedomain.Quote, strict bool, entry feedomain.ServiceFee, inputs map[string]string) error {
	gap, err := gapYears(inputs[feedomain.InputOldDate], inputs[feedomain.InputNewDate])
	if err != nil {
		if strict {
			return err
		}
		gap = 0
		quote.DatesUnparsed = true
	}

	tier := tierForGap(gap)
	quote.GapYears = gap
	quote.Tier = tier

	policy := entry.DateGap.Institutions
	if policy == nil {
		switch tier {
		case feedomain.TierOne:
			quote.Surcharge = entry.DateGap.Tier1
		case feedomain.TierTwo:
			quote.Surcharge = entry.DateGap.Tier2
		}
		return nil
	}

	if tier == feedomain.TierNone {
		return nil
	}

	institution := strings.TrimSpace(inputs[feedomain.InputInstitution])
	if institution == "" {
		return fmt.Errorf("%w: %s requires an institution for date changes beyond five years", feedomain.ErrInvalidInstitution, entry.Code)
	}

	bucket := policy.Bucket(institution)
	quote.InstitutionBucket = bucket
	switch bucket {
	case feedomain.BucketUnsupported:
		return &feedomain.PolicyError{
			ServiceCode: entry.Code,
			Institution: institution,
			GapYears:    gap,
		}
	case feedomain.BucketAgency:
		quote.Surcharge = policy.AgencySurcharge
	default:
		quote.Surcharge = policy.StandardSurcharge
	}
	return nil
}

func tierForGap(gap float64) feedomain.SurchargeTier {
	switch {
	case gap > tierTwoThreshold:
		return feedomain.TierTwo
	case gap > tierOneThreshold:
		return feedomain.TierOne
	default:
		return feedomain.TierNone
	}
}

func gapYears(oldRaw, newRaw string) (float64, error) {
	oldDate, err := parseDate(oldRaw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", feedomain.ErrInvalidDate, feedomain.InputOldDate, err)
	}
	newDate, err := parseDate(newRaw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", feedomain.ErrInvalidDate, feedomain.InputNewDate, err)
	}
	days := math.Abs(newDate.Sub(oldDate).Hours()) / 24
	return days / daysPerYear, nil
}

func parseDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, errors.New("missing")
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func variableAmount(entry feedomain.ServiceFee, inputs map[string]string) (int64, error) {
	raw := strings.TrimSpace(inputs[feedomain.InputAmount])
	if raw == "" {
		return 0, fmt.Errorf("%w: %s requires an amount", feedomain.ErrInvalidAmount, entry.Code)
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole Naira amount", feedomain.ErrInvalidAmount, raw)
	}
	if amount < entry.Variable.Min || amount > entry.Variable.Max {
		return 0, fmt.Errorf("%w: %s accepts %d to %d", feedomain.ErrInvalidAmount, entry.Code, entry.Variable.Min, entry.Variable.Max)
	}
	return amount, nil
}
