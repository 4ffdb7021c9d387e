package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentScheduleItem is one installment in a repayment schedule. Installments
// are 1-indexed and ordered by due date.
type PaymentScheduleItem struct {
	InstallmentNumber int             `json:"installment_number"`
	DueDate           time.Time       `json:"due_date"`
	PrincipalAmount   decimal.Decimal `json:"principal_amount"`
	InterestAmount    decimal.Decimal `json:"interest_amount"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	RemainingBalance  decimal.Decimal `json:"remaining_balance"`
}

// RepaymentSchedule is the full installment sequence plus derived summary
// figures. It is computed fresh from LoanTerms whenever it is needed and is
// never stored as its own record.
type RepaymentSchedule struct {
	Schedule         []PaymentScheduleItem `json:"schedule"`
	NumberOfPayments int                   `json:"number_of_payments"`
	TotalInterest    decimal.Decimal       `json:"total_interest"`
	TotalAmount      decimal.Decimal       `json:"total_amount"`
	// EMIAmount is the nominal per-period installment for the EMI style,
	// before any final-row rounding adjustment. Nil for other styles.
	EMIAmount *decimal.Decimal `json:"emi_amount,omitempty"`
}

// ProgressionUpdate carries the progression fields written back to a loan
// record when the installment pointer moves. DueDate is only set on
// initialization (final maturity) and left untouched when nil.
type ProgressionUpdate struct {
	CurrentInstallment int
	NextPaymentDueDate *time.Time
	DueDate            *time.Time
	Status             LoanStatus
}
