// Package schedule is the loan amortization engine: a pure function from
// LoanTerms to the full repayment schedule. It performs no I/O, holds no
// state, and is safe for concurrent use.
package schedule

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jmdavis/peerlend/pkg/dates"
	"github.com/jmdavis/peerlend/pkg/models"
	"github.com/jmdavis/peerlend/pkg/money"
)

var one = decimal.NewFromInt(1)

// Build computes the full installment sequence and summary for the given
// terms. The returned schedule always closes exactly: the principal column
// sums to the principal and the final remaining balance is zero, with all
// rounding drift absorbed by the last installment.
func Build(terms models.LoanTerms) (s *models.RepaymentSchedule, err error) {
	// Arithmetic faults inside the engine surface as invalid terms, never
	// as a partial schedule.
	defer func() {
		if p := recover(); p != nil {
			s = nil
			err = &InvalidTermsError{Field: "terms", Reason: "arithmetic failure", Cause: fmt.Errorf("%v", p)}
		}
	}()

	if err := validate(terms); err != nil {
		return nil, err
	}

	var items []models.PaymentScheduleItem
	var nominalEMI *decimal.Decimal

	switch terms.RepaymentStyle {
	case models.StyleFullPayment:
		items = buildFullPayment(terms)
	case models.StyleEMI:
		n, r, err := periodization(terms)
		if err != nil {
			return nil, err
		}
		var emi decimal.Decimal
		items, emi = buildEMI(terms, n, r)
		nominalEMI = &emi
	case models.StyleInterestOnly:
		n, r, err := periodization(terms)
		if err != nil {
			return nil, err
		}
		items = buildInterestOnly(terms, n, r)
	default:
		return nil, &InvalidTermsError{Field: "repayment_style", Reason: fmt.Sprintf("unsupported repayment style %q", terms.RepaymentStyle)}
	}

	return summarize(items, nominalEMI), nil
}

func validate(terms models.LoanTerms) error {
	if !money.IsPositive(terms.Principal) {
		return &InvalidTermsError{Field: "principal", Reason: "must be greater than zero"}
	}
	if terms.AnnualRatePercent.IsNegative() {
		return &InvalidTermsError{Field: "annual_rate_percent", Reason: "must not be negative"}
	}
	if terms.TenureValue <= 0 {
		return &InvalidTermsError{Field: "tenure_value", Reason: "must be greater than zero"}
	}
	switch terms.TenureUnit {
	case models.TenureMonths, models.TenureYears:
	default:
		return &InvalidTermsError{Field: "tenure_unit", Reason: fmt.Sprintf("unsupported tenure unit %q", terms.TenureUnit)}
	}
	switch terms.InterestMethod {
	case models.InterestFixed, models.InterestReducing:
	default:
		return &InvalidTermsError{Field: "interest_method", Reason: fmt.Sprintf("unsupported interest method %q", terms.InterestMethod)}
	}
	return nil
}

// periodization resolves the installment count and per-period rate for the
// periodic styles. The tenure must divide into a whole, positive number of
// installments at the requested frequency.
func periodization(terms models.LoanTerms) (int, decimal.Decimal, error) {
	ppy, ok := terms.Frequency.PeriodsPerYear()
	if !ok {
		return 0, decimal.Zero, &InvalidTermsError{Field: "frequency", Reason: fmt.Sprintf("unsupported frequency %q", terms.Frequency)}
	}

	months := terms.TenureMonths()
	total := months * ppy
	if total%12 != 0 || total/12 <= 0 {
		return 0, decimal.Zero, &InvalidTermsError{
			Field:  "frequency",
			Reason: fmt.Sprintf("tenure of %d months does not divide into whole %s installments", months, terms.Frequency),
		}
	}
	n := total / 12

	r := money.RateFraction(terms.AnnualRatePercent).Div(decimal.NewFromInt(int64(ppy)))
	return n, r, nil
}

// tenureYears is the tenure expressed in years as an exact fraction.
func tenureYears(terms models.LoanTerms) decimal.Decimal {
	return decimal.NewFromInt(int64(terms.TenureMonths())).Div(decimal.NewFromInt(12))
}

// flatInterest is simple interest on the original principal over the whole
// tenure, used by the fixed method and by full-payment maturity rows.
func flatInterest(terms models.LoanTerms) decimal.Decimal {
	return money.Round(terms.Principal.Mul(money.RateFraction(terms.AnnualRatePercent)).Mul(tenureYears(terms)))
}

func buildEMI(terms models.LoanTerms, n int, r decimal.Decimal) ([]models.PaymentScheduleItem, decimal.Decimal) {
	if terms.InterestMethod == models.InterestFixed {
		return buildFixedEMI(terms, n)
	}
	return buildReducingEMI(terms, n, r)
}

// buildReducingEMI is the standard annuity: constant installment, interest on
// the outstanding balance, final row forced to clear the balance exactly.
func buildReducingEMI(terms models.LoanTerms, n int, r decimal.Decimal) ([]models.PaymentScheduleItem, decimal.Decimal) {
	p := terms.Principal
	count := decimal.NewFromInt(int64(n))

	var emi decimal.Decimal
	if r.IsZero() {
		emi = money.Round(p.Div(count))
	} else {
		factor := one.Add(r).Pow(count)
		emi = money.Round(p.Mul(r).Mul(factor).Div(factor.Sub(one)))
	}

	items := make([]models.PaymentScheduleItem, 0, n)
	balance := p
	for i := 1; i <= n; i++ {
		interest := money.Round(balance.Mul(r))
		var principal decimal.Decimal
		if i == n {
			// Last installment absorbs all rounding drift.
			principal = balance
		} else {
			principal = emi.Sub(interest)
			if principal.GreaterThan(balance) {
				principal = balance
			}
		}
		balance = balance.Sub(principal)
		items = append(items, models.PaymentScheduleItem{
			InstallmentNumber: i,
			DueDate:           dates.AddPeriod(terms.StartDate, terms.Frequency, i),
			PrincipalAmount:   principal,
			InterestAmount:    interest,
			TotalAmount:       principal.Add(interest),
			RemainingBalance:  balance,
		})
	}
	return items, emi
}

// buildFixedEMI spreads flat interest and principal evenly; the last row
// carries whatever the even split left over.
func buildFixedEMI(terms models.LoanTerms, n int) ([]models.PaymentScheduleItem, decimal.Decimal) {
	p := terms.Principal
	count := decimal.NewFromInt(int64(n))
	totalInterest := flatInterest(terms)
	interestPer := money.Round(totalInterest.Div(count))
	principalPer := money.Round(p.Div(count))
	emi := principalPer.Add(interestPer)

	items := make([]models.PaymentScheduleItem, 0, n)
	balance := p
	for i := 1; i <= n; i++ {
		principal, interest := principalPer, interestPer
		if i == n {
			principal = balance
			interest = totalInterest.Sub(interestPer.Mul(decimal.NewFromInt(int64(n - 1))))
		}
		balance = balance.Sub(principal)
		items = append(items, models.PaymentScheduleItem{
			InstallmentNumber: i,
			DueDate:           dates.AddPeriod(terms.StartDate, terms.Frequency, i),
			PrincipalAmount:   principal,
			InterestAmount:    interest,
			TotalAmount:       principal.Add(interest),
			RemainingBalance:  balance,
		})
	}
	return items, emi
}

// buildInterestOnly produces interest-only installments with the principal due
// as a single bullet in the final period. The outstanding balance is constant
// until maturity, so both interest methods price each period off the original
// principal.
func buildInterestOnly(terms models.LoanTerms, n int, r decimal.Decimal) []models.PaymentScheduleItem {
	p := terms.Principal
	var interestPer, lastInterest decimal.Decimal
	if terms.InterestMethod == models.InterestFixed {
		totalInterest := flatInterest(terms)
		interestPer = money.Round(totalInterest.Div(decimal.NewFromInt(int64(n))))
		lastInterest = totalInterest.Sub(interestPer.Mul(decimal.NewFromInt(int64(n - 1))))
	} else {
		interestPer = money.Round(p.Mul(r))
		lastInterest = interestPer
	}

	items := make([]models.PaymentScheduleItem, 0, n)
	for i := 1; i < n; i++ {
		items = append(items, models.PaymentScheduleItem{
			InstallmentNumber: i,
			DueDate:           dates.AddPeriod(terms.StartDate, terms.Frequency, i),
			PrincipalAmount:   decimal.Zero,
			InterestAmount:    interestPer,
			TotalAmount:       interestPer,
			RemainingBalance:  p,
		})
	}
	items = append(items, models.PaymentScheduleItem{
		InstallmentNumber: n,
		DueDate:           dates.AddPeriod(terms.StartDate, terms.Frequency, n),
		PrincipalAmount:   p,
		InterestAmount:    lastInterest,
		TotalAmount:       p.Add(lastInterest),
		RemainingBalance:  decimal.Zero,
	})
	return items
}

// buildFullPayment is a single lump sum at maturity. Frequency is ignored for
// this style; the tenure always resolves to one period.
func buildFullPayment(terms models.LoanTerms) []models.PaymentScheduleItem {
	p := terms.Principal
	interest := flatInterest(terms)
	return []models.PaymentScheduleItem{{
		InstallmentNumber: 1,
		DueDate:           dates.AddMonths(terms.StartDate, terms.TenureMonths()),
		PrincipalAmount:   p,
		InterestAmount:    interest,
		TotalAmount:       p.Add(interest),
		RemainingBalance:  decimal.Zero,
	}}
}
