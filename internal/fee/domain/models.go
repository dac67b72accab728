// Package domain contains the fee schedule model and fee quote types.
package domain

import (
	"fmt"
	"strings"
)

// CurrencyNGN is the only currency the schedule prices in. Amounts are whole Naira.
const CurrencyNGN = "NGN"

// ServiceKind groups catalog services that share a request workflow.
type ServiceKind string

const (
	KindNINModification      ServiceKind = "nin_modification"
	KindBVNModification      ServiceKind = "bvn_modification"
	KindCACRegistration      ServiceKind = "cac_registration"
	KindTINRegistration      ServiceKind = "tin_registration"
	KindExamResult           ServiceKind = "exam_result"
	KindNewspaperPublication ServiceKind = "newspaper_publication"
	KindNPCAttestation       ServiceKind = "npc_attestation"
	KindVTUVend              ServiceKind = "vtu_vend"
)

// Valid reports whether k is a known kind.
func (k ServiceKind) Valid() bool {
	switch k {
	case KindNINModification, KindBVNModification, KindCACRegistration,
		KindTINRegistration, KindExamResult, KindNewspaperPublication,
		KindNPCAttestation, KindVTUVend:
		return true
	default:
		return false
	}
}

// SurchargeTier is the date-gap band a quote fell into.
type SurchargeTier string

const (
	TierNone SurchargeTier = "none"
	TierOne  SurchargeTier = "tier1"
	TierTwo  SurchargeTier = "tier2"
)

// InstitutionBucket is the category of the enrolling institution for
// institution-sensitive surcharges.
type InstitutionBucket string

const (
	BucketUnsupported InstitutionBucket = "unsupported"
	BucketAgency      InstitutionBucket = "agency"
	BucketStandard    InstitutionBucket = "standard"
)

// Input keys understood by the calculator.
const (
	InputOldDate     = "oldDate"
	InputNewDate     = "newDate"
	InputInstitution = "institution"
	InputAmount      = "amount"
)

// Schedule is the read-only price catalog.
type Schedule struct {
	Version     string       `mapstructure:"version" json:"version" yaml:"version"`
	StrictDates bool         `mapstructure:"strict_dates" json:"strict_dates" yaml:"strict_dates"`
	Services    []ServiceFee `mapstructure:"services" json:"services" yaml:"services"`
}

// ServiceFee prices one catalog service.
type ServiceFee struct {
	Code      string            `mapstructure:"code" json:"code" yaml:"code"`
	Name      string            `mapstructure:"name" json:"name" yaml:"name"`
	Kind      ServiceKind       `mapstructure:"kind" json:"kind" yaml:"kind"`
	BasePrice int64             `mapstructure:"base_price" json:"base_price" yaml:"base_price"`
	Variable  *VariableAmount   `mapstructure:"variable" json:"variable,omitempty" yaml:"variable,omitempty"`
	DateGap   *DateGapSurcharge `mapstructure:"date_gap" json:"date_gap,omitempty" yaml:"date_gap,omitempty"`
}

// VariableAmount bounds the face value a caller supplies for vend services.
type VariableAmount struct {
	Min int64 `mapstructure:"min" json:"min" yaml:"min"`
	Max int64 `mapstructure:"max" json:"max" yaml:"max"`
}

// DateGapSurcharge adds a fixed amount when the requested date change spans
// more than five years.
type DateGapSurcharge struct {
	Tier1        int64              `mapstructure:"tier1" json:"tier1" yaml:"tier1"`
	Tier2        int64              `mapstructure:"tier2" json:"tier2" yaml:"tier2"`
	Institutions *InstitutionPolicy `mapstructure:"institutions" json:"institutions,omitempty" yaml:"institutions,omitempty"`
}

// InstitutionPolicy replaces the tier table with an institution dispatch.
// Institutions not listed as unsupported or agency fall in the standard bucket.
type InstitutionPolicy struct {
	Unsupported       []string `mapstructure:"unsupported" json:"unsupported" yaml:"unsupported"`
	Agency            []string `mapstructure:"agency" json:"agency" yaml:"agency"`
	AgencySurcharge   int64    `mapstructure:"agency_surcharge" json:"agency_surcharge" yaml:"agency_surcharge"`
	StandardSurcharge int64    `mapstructure:"standard_surcharge" json:"standard_surcharge" yaml:"standard_surcharge"`
}

// Bucket classifies an institution name.
func (p *InstitutionPolicy) Bucket(institution string) InstitutionBucket {
	name := NormalizeInstitution(institution)
	for _, candidate := range p.Unsupported {
		if NormalizeInstitution(candidate) == name {
			return BucketUnsupported
		}
	}
	for _, candidate := range p.Agency {
		if NormalizeInstitution(candidate) == name {
			return BucketAgency
		}
	}
	return BucketStandard
}

// NormalizeInstitution lower-cases and collapses whitespace.
func NormalizeInstitution(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Lookup returns the entry for code.
func (s Schedule) Lookup(code string) (ServiceFee, bool) {
	code = strings.TrimSpace(code)
	for _, svc := range s.Services {
		if strings.EqualFold(svc.Code, code) {
			return svc, true
		}
	}
	return ServiceFee{}, false
}

// Validate rejects schedules that cannot price every listed service.
func (s Schedule) Validate() error {
	if strings.TrimSpace(s.Version) == "" {
		return fmt.Errorf("%w: version is required", ErrConfiguration)
	}
	if len(s.Services) == 0 {
		return fmt.Errorf("%w: services cannot be empty", ErrConfiguration)
	}

	seen := make(map[string]struct{}, len(s.Services))
	for _, svc := range s.Services {
		code := strings.ToUpper(strings.TrimSpace(svc.Code))
		if code == "" {
			return fmt.Errorf("%w: service code is required", ErrConfiguration)
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("%w: duplicate service %s", ErrConfiguration, code)
		}
		seen[code] = struct{}{}

		if !svc.Kind.Valid() {
			return fmt.Errorf("%w: service %s has unknown kind %q", ErrConfiguration, code, svc.Kind)
		}
		if svc.BasePrice < 0 {
			return fmt.Errorf("%w: service %s has negative base price", ErrConfiguration, code)
		}
		if v := svc.Variable; v != nil {
			if v.Min <= 0 || v.Max < v.Min {
				return fmt.Errorf("%w: service %s has invalid variable bounds", ErrConfiguration, code)
			}
		}
		if gap := svc.DateGap; gap != nil {
			if gap.Tier1 < 0 || gap.Tier2 < 0 {
				return fmt.Errorf("%w: service %s has negative surcharge", ErrConfiguration, code)
			}
			if p := gap.Institutions; p != nil && (p.AgencySurcharge < 0 || p.StandardSurcharge < 0) {
				return fmt.Errorf("%w: service %s has negative institution surcharge", ErrConfiguration, code)
			}
		}
	}
	return nil
}

// Quote is the priced result of one calculation.
type Quote struct {
	ServiceCode       string            `json:"service_code"`
	ServiceName       string            `json:"service_name"`
	Kind              ServiceKind       `json:"kind"`
	ScheduleVersion   string            `json:"schedule_version"`
	Currency          string            `json:"currency"`
	BasePrice         int64             `json:"base_price"`
	VariableAmount    int64             `json:"variable_amount,omitempty"`
	Surcharge         int64             `json:"surcharge"`
	Total             int64             `json:"total"`
	GapYears          float64           `json:"gap_years,omitempty"`
	Tier              SurchargeTier     `json:"tier,omitempty"`
	InstitutionBucket InstitutionBucket `json:"institution_bucket,omitempty"`
	// DatesUnparsed marks a lenient quote priced with a zero gap because a
	// supplied date could not be read.
	DatesUnparsed bool `json:"dates_unparsed,omitempty"`
}

// Breakdown returns the quote as a flat map suitable for a JSON column.
func (q Quote) Breakdown() map[string]any {
	out := map[string]any{
		"schedule_version": q.ScheduleVersion,
		"base_price":       q.BasePrice,
		"surcharge":        q.Surcharge,
		"total":            q.Total,
	}
	if q.VariableAmount > 0 {
		out["variable_amount"] = q.VariableAmount
	}
	if q.Tier != "" {
		out["tier"] = string(q.Tier)
		out["gap_years"] = q.GapYears
	}
	if q.InstitutionBucket != "" {
		out["institution_bucket"] = string(q.InstitutionBucket)
	}
	if q.DatesUnparsed {
		out["dates_unparsed"] = true
	}
	return out
}

// CatalogEntry is a display row for the service catalog.
type CatalogEntry struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Kind         ServiceKind     `json:"kind"`
	BasePrice    int64           `json:"base_price"`
	DisplayPrice string          `json:"display_price"`
	Variable     *VariableAmount `json:"variable,omitempty"`
	DateGap      bool            `json:"date_gap"`
}

// Catalog lists every service in the active schedule.
type Catalog struct {
	Version  string         `json:"version"`
	Currency string         `json:"currency"`
	Services []CatalogEntry `json:"services"`
}
