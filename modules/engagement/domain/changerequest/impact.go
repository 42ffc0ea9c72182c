package changerequest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stafflink/engage-sdk/modules/engagement/domain/contract"
)

type BillingType string

const (
	BillingMonthly BillingType = "Monthly"
	BillingHourly  BillingType = "Hourly"
)

func (b BillingType) IsValid() bool {
	return b == BillingMonthly || b == BillingHourly
}

// FixedPriceImpact is the analysis shape for fixed-price contracts. Every
// field is optional: the analysis fills in gradually while the request is
// Processing.
type FixedPriceImpact struct {
	DevHours          *decimal.Decimal `json:"dev_hours,omitempty"`
	TestHours         *decimal.Decimal `json:"test_hours,omitempty"`
	NewEndDate        *time.Time       `json:"new_end_date,omitempty"`
	DelayDurationDays *int             `json:"delay_duration_days,omitempty"`
	AdditionalCost    *decimal.Decimal `json:"additional_cost,omitempty"`
}

// EngagedEngineer is one row of a retainer impact's staffing plan. For
// Monthly billing, Rate is the monthly rating and Total the salary; for
// Hourly billing, Rate is the hourly rate and Total the subtotal, which is
// always recomputed from Rate and Hours.
type EngagedEngineer struct {
	EngineerLevel string          `json:"engineer_level"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	BillingType   BillingType     `json:"billing_type"`
	Rate          decimal.Decimal `json:"rate"`
	Hours         decimal.Decimal `json:"hours"`
	Total         decimal.Decimal `json:"total"`
}

type BillingDetail struct {
	PaymentDate  time.Time       `json:"payment_date"`
	DeliveryNote string          `json:"delivery_note"`
	Amount       decimal.Decimal `json:"amount"`
}

// RetainerImpact is the analysis shape for retainer contracts.
type RetainerImpact struct {
	EngagedEngineers []EngagedEngineer `json:"engaged_engineers"`
	BillingDetails   []BillingDetail   `json:"billing_details"`
}

// ImpactAnalysis is a tagged union keyed by the owning contract's engagement
// type; exactly one branch is set.
type ImpactAnalysis struct {
	EngagementType contract.EngagementType `json:"engagement_type"`
	FixedPrice     *FixedPriceImpact       `json:"fixed_price,omitempty"`
	Retainer       *RetainerImpact         `json:"retainer,omitempty"`
}

// subtotalTolerance is the accepted drift between a submitted hourly
// subtotal and the recomputed one before the row counts as corrected.
var subtotalTolerance = decimal.NewFromFloat(0.01)

// BuildImpact validates the candidate analysis against the contract's
// engagement type and normalizes it. Hourly engineer rows get their subtotal
// recomputed from rate and hours; an inconsistent submitted value is
// overwritten, never stored. Problems come back as a field-keyed map; an
// empty map means the returned analysis is ready to persist.
func BuildImpact(et contract.EngagementType, candidate ImpactAnalysis) (ImpactAnalysis, map[string]string) {
	problems := map[string]string{}

	if !et.IsValid() {
		problems["engagement_type"] = fmt.Sprintf("unknown engagement type %q", et)
		return ImpactAnalysis{}, problems
	}
	if candidate.EngagementType != "" && candidate.EngagementType != et {
		problems["engagement_type"] = fmt.Sprintf("impact analysis is for %s but the contract is %s", candidate.EngagementType, et)
		return ImpactAnalysis{}, problems
	}

	out := ImpactAnalysis{EngagementType: et}

	switch et {
	case contract.EngagementFixedPrice:
		if candidate.Retainer != nil {
			problems["retainer"] = "retainer payload is not allowed for a fixed-price contract"
			return ImpactAnalysis{}, problems
		}
		fp := FixedPriceImpact{}
		if candidate.FixedPrice != nil {
			fp = *candidate.FixedPrice
		}
		validateOptionalNonNegative(problems, "dev_hours", fp.DevHours)
		validateOptionalNonNegative(problems, "test_hours", fp.TestHours)
		validateOptionalNonNegative(problems, "additional_cost", fp.AdditionalCost)
		if fp.DelayDurationDays != nil && *fp.DelayDurationDays < 0 {
			problems["delay_duration_days"] = "delay_duration_days must be non-negative"
		}
		out.FixedPrice = &fp

	case contract.EngagementRetainer:
		if candidate.FixedPrice != nil {
			problems["fixed_price"] = "fixed-price payload is not allowed for a retainer contract"
			return ImpactAnalysis{}, problems
		}
		rt := RetainerImpact{}
		if candidate.Retainer != nil {
			rt = *candidate.Retainer
		}
		engineers := make([]EngagedEngineer, len(rt.EngagedEngineers))
		for i, row := range rt.EngagedEngineers {
			engineers[i] = buildEngineerRow(problems, i, row)
		}
		details := make([]BillingDetail, len(rt.BillingDetails))
		for i, d := range rt.BillingDetails {
			key := fmt.Sprintf("billing_details[%d]", i)
			if d.PaymentDate.IsZero() {
				problems[key+".payment_date"] = "payment_date is required"
			}
			if d.Amount.IsNegative() {
				problems[key+".amount"] = "amount must be non-negative"
			}
			details[i] = d
		}
		rt.EngagedEngineers = engineers
		rt.BillingDetails = details
		out.Retainer = &rt
	}

	if len(problems) > 0 {
		return ImpactAnalysis{}, problems
	}
	return out, problems
}

func buildEngineerRow(problems map[string]string, i int, row EngagedEngineer) EngagedEngineer {
	key := fmt.Sprintf("engaged_engineers[%d]", i)

	if row.EngineerLevel == "" {
		problems[key+".engineer_level"] = "engineer_level is required"
	}
	if !row.BillingType.IsValid() {
		problems[key+".billing_type"] = fmt.Sprintf("billing_type must be %s or %s", BillingMonthly, BillingHourly)
	}
	if row.StartDate.IsZero() {
		problems[key+".start_date"] = "start_date is required"
	}
	if row.EndDate.IsZero() {
		problems[key+".end_date"] = "end_date is required"
	}
	if !row.StartDate.IsZero() && !row.EndDate.IsZero() && row.EndDate.Before(row.StartDate) {
		problems[key+".end_date"] = "end_date must not be before start_date"
	}
	if row.Rate.IsNegative() {
		problems[key+".rate"] = "rate must be non-negative"
	}
	if row.Hours.IsNegative() {
		problems[key+".hours"] = "hours must be non-negative"
	}
	if row.Total.IsNegative() {
		problems[key+".total"] = "total must be non-negative"
	}

	if row.BillingType == BillingHourly {
		computed := row.Rate.Mul(row.Hours)
		if row.Total.Sub(computed).Abs().GreaterThan(subtotalTolerance) {
			row.Total = computed
		}
	}
	return row
}

func validateOptionalNonNegative(problems map[string]string, field string, v *decimal.Decimal) {
	if v != nil && v.IsNegative() {
		problems[field] = field + " must be non-negative"
	}
}
