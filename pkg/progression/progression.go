// Package progression tracks which installment a live loan is on and advances
// it as payments are confirmed. It is the only component that mutates the
// progression fields on a loan record; everything it writes goes through a
// compare-and-swap on the current installment so that two concurrent payment
// confirmations for the same loan can never both advance the pointer.
package progression

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jmdavis/peerlend/pkg/models"
	"github.com/jmdavis/peerlend/pkg/store"
)

// StaleProgressionError reports a duplicate or out-of-order payment
// confirmation. Callers treat it as a no-op, not a retryable failure.
type StaleProgressionError struct {
	Requested int
	Current   int
}

func (e *StaleProgressionError) Error() string {
	return fmt.Sprintf("stale progression: confirmed installment %d does not match current installment %d", e.Requested, e.Current)
}

// Store is the narrow persistence surface the tracker needs. The engine
// itself stays free of any storage dependency; only the tracker loads and
// saves progression fields.
type Store interface {
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateProgression(loanID uuid.UUID, expectedCurrent int, upd models.ProgressionUpdate) error
	SetLoanStatus(loanID uuid.UUID, status models.LoanStatus) error
	GetOverdueCandidates(asOf time.Time) ([]*models.Loan, error)
}

// Notifier receives fire-and-forget lifecycle notifications. Implementations
// must handle their own delivery failures; the tracker never depends on
// delivery succeeding.
type Notifier interface {
	LoanOverdue(loan *models.Loan)
	LoanCompleted(loan *models.Loan)
}

// Tracker is the installment progression state machine.
type Tracker struct {
	store    Store
	notifier Notifier
	log      *logrus.Logger
	now      func() time.Time
}

// NewTracker creates a tracker. notifier may be nil when no notification
// transport is configured.
func NewTracker(s Store, notifier Notifier, log *logrus.Logger) *Tracker {
	return &Tracker{store: s, notifier: notifier, log: log, now: time.Now}
}

// Initialize starts progression for an accepted offer: installment 1 becomes
// current, the loan's maturity is the last row's due date, and the loan goes
// active. It is called exactly once, guarded by the installment pointer still
// being zero.
func (t *Tracker) Initialize(loanID uuid.UUID, sched *models.RepaymentSchedule) error {
	if sched == nil || sched.NumberOfPayments == 0 {
		return fmt.Errorf("cannot initialize progression with an empty schedule")
	}

	firstDue := sched.Schedule[0].DueDate
	maturity := sched.Schedule[sched.NumberOfPayments-1].DueDate
	err := t.store.UpdateProgression(loanID, 0, models.ProgressionUpdate{
		CurrentInstallment: 1,
		NextPaymentDueDate: &firstDue,
		DueDate:            &maturity,
		Status:             models.LoanStatusActive,
	})
	if errors.Is(err, store.ErrProgressionConflict) {
		return fmt.Errorf("loan %s already has progression initialized", loanID)
	}
	if err != nil {
		return err
	}

	t.log.Infof("Progression initialized for loan %s: %d payments, first due %s", loanID, sched.NumberOfPayments, firstDue.Format("2006-01-02"))
	return nil
}

// Advance moves the installment pointer forward after a payment for
// confirmedInstallment is confirmed. A confirmation that does not match the
// stored current installment (retried webhook, out-of-order delivery) yields
// StaleProgressionError and leaves state unchanged.
func (t *Tracker) Advance(loanID uuid.UUID, sched *models.RepaymentSchedule, confirmedInstallment int) (*models.Loan, error) {
	loan, err := t.store.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.CurrentInstallment != confirmedInstallment {
		return nil, &StaleProgressionError{Requested: confirmedInstallment, Current: loan.CurrentInstallment}
	}

	next := confirmedInstallment + 1
	upd := models.ProgressionUpdate{CurrentInstallment: next}
	if next > sched.NumberOfPayments {
		upd.Status = models.LoanStatusCompleted
		upd.NextPaymentDueDate = nil
	} else {
		due := sched.Schedule[next-1].DueDate
		upd.Status = models.LoanStatusActive // a confirmed payment clears an overdue label
		upd.NextPaymentDueDate = &due
	}

	err = t.store.UpdateProgression(loanID, confirmedInstallment, upd)
	if errors.Is(err, store.ErrProgressionConflict) {
		// Lost the race to a concurrent confirmation.
		current, lerr := t.store.GetLoan(loanID)
		if lerr != nil {
			return nil, lerr
		}
		return nil, &StaleProgressionError{Requested: confirmedInstallment, Current: current.CurrentInstallment}
	}
	if err != nil {
		return nil, err
	}

	loan.CurrentInstallment = upd.CurrentInstallment
	loan.NextPaymentDueDate = upd.NextPaymentDueDate
	loan.Status = upd.Status

	if upd.Status == models.LoanStatusCompleted {
		t.log.Infof("Loan %s completed after installment %d", loanID, confirmedInstallment)
		if t.notifier != nil {
			t.notifier.LoanCompleted(loan)
		}
	} else {
		t.log.Infof("Loan %s advanced to installment %d, next due %s", loanID, next, upd.NextPaymentDueDate.Format("2006-01-02"))
	}
	return loan, nil
}

// RefreshOverdueFlags marks every active loan whose next due date has passed
// as overdue. It is idempotent, safe to re-run, and never moves the
// installment pointer; overdue is a label until a payment is confirmed.
func (t *Tracker) RefreshOverdueFlags() (int, error) {
	candidates, err := t.store.GetOverdueCandidates(t.now().UTC())
	if err != nil {
		return 0, err
	}

	flagged := 0
	for _, loan := range candidates {
		if err := t.store.SetLoanStatus(loan.ID, models.LoanStatusOverdue); err != nil {
			t.log.Errorf("Failed to flag loan %s overdue: %v", loan.ID, err)
			continue
		}
		loan.Status = models.LoanStatusOverdue
		t.log.Warnf("Loan %s is overdue: installment %d was due %s", loan.ID, loan.CurrentInstallment, loan.NextPaymentDueDate.Format("2006-01-02"))
		if t.notifier != nil {
			t.notifier.LoanOverdue(loan)
		}
		flagged++
	}
	return flagged, nil
}

// IsOverdue reports the read-time overdue overlay: an in-progress loan whose
// next due date has passed, whether or not the batch flag has run yet.
func (t *Tracker) IsOverdue(loan *models.Loan) bool {
	if loan.Status != models.LoanStatusActive && loan.Status != models.LoanStatusOverdue {
		return false
	}
	return loan.NextPaymentDueDate != nil && t.now().UTC().After(*loan.NextPaymentDueDate)
}
