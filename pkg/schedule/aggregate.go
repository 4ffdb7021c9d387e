package schedule

import (
	"github.com/shopspring/decimal"

	"github.com/jmdavis/peerlend/pkg/models"
)

// summarize reduces the installment sequence to the aggregate figures shown
// in summaries and rendered documents. nominalEMI is the pre-adjustment
// installment value for the EMI style, nil otherwise.
func summarize(items []models.PaymentScheduleItem, nominalEMI *decimal.Decimal) *models.RepaymentSchedule {
	totalInterest := decimal.Zero
	totalAmount := decimal.Zero
	for _, item := range items {
		totalInterest = totalInterest.Add(item.InterestAmount)
		totalAmount = totalAmount.Add(item.TotalAmount)
	}
	return &models.RepaymentSchedule{
		Schedule:         items,
		NumberOfPayments: len(items),
		TotalInterest:    totalInterest,
		TotalAmount:      totalAmount,
		EMIAmount:        nominalEMI,
	}
}
