package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InterestMethod determines how interest is computed over the life of a loan.
type InterestMethod string

const (
	// InterestFixed is simple interest on the original principal, spread evenly.
	InterestFixed InterestMethod = "fixed"
	// InterestReducing recomputes interest each period on the outstanding balance.
	InterestReducing InterestMethod = "reducing"
)

// RepaymentStyle determines the shape of the installment sequence.
type RepaymentStyle string

const (
	StyleEMI          RepaymentStyle = "emi"
	StyleInterestOnly RepaymentStyle = "interest_only"
	StyleFullPayment  RepaymentStyle = "full_payment"
)

// Frequency is the installment cadence. It is ignored for StyleFullPayment.
type Frequency string

const (
	FrequencyWeekly     Frequency = "weekly"
	FrequencyBiWeekly   Frequency = "biweekly"
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencyHalfYearly Frequency = "half_yearly"
	FrequencyYearly     Frequency = "yearly"
)

// PeriodsPerYear returns the number of installment periods in a year for the
// frequency, and false if the frequency is unknown.
func (f Frequency) PeriodsPerYear() (int, bool) {
	switch f {
	case FrequencyWeekly:
		return 52, true
	case FrequencyBiWeekly:
		return 26, true
	case FrequencyMonthly:
		return 12, true
	case FrequencyQuarterly:
		return 4, true
	case FrequencyHalfYearly:
		return 2, true
	case FrequencyYearly:
		return 1, true
	}
	return 0, false
}

// TenureUnit is the unit the loan duration is expressed in.
type TenureUnit string

const (
	TenureMonths TenureUnit = "months"
	TenureYears  TenureUnit = "years"
)

// LoanTerms is the immutable commercial description of a loan. It is the sole
// input to the amortization engine; normalization of loosely-shaped API input
// happens at the HTTP boundary, never inside calculation code.
type LoanTerms struct {
	Principal         decimal.Decimal `json:"principal"`
	AnnualRatePercent decimal.Decimal `json:"annual_rate_percent"`
	InterestMethod    InterestMethod  `json:"interest_method"`
	TenureValue       int             `json:"tenure_value"`
	TenureUnit        TenureUnit      `json:"tenure_unit"`
	RepaymentStyle    RepaymentStyle  `json:"repayment_style"`
	Frequency         Frequency       `json:"frequency"`
	StartDate         time.Time       `json:"start_date"`
}

// TenureMonths normalizes the tenure to months.
func (t LoanTerms) TenureMonths() int {
	if t.TenureUnit == TenureYears {
		return t.TenureValue * 12
	}
	return t.TenureValue
}
