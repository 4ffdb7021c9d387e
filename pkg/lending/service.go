// Package lending handles the business logic for loan offers: creation,
// compliance-gated acceptance, schedule previews and payment confirmation.
// Handlers stay thin; everything they forward lands here.
package lending

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jmdavis/peerlend/pkg/compliance"
	"github.com/jmdavis/peerlend/pkg/models"
	"github.com/jmdavis/peerlend/pkg/notify"
	"github.com/jmdavis/peerlend/pkg/progression"
	"github.com/jmdavis/peerlend/pkg/schedule"
	"github.com/jmdavis/peerlend/pkg/store"
)

// Service composes the engine, guard and tracker behind the loan workflows.
type Service struct {
	storage  store.Storage
	guard    *compliance.Guard
	tracker  *progression.Tracker
	notifier *notify.Sender
	log      *logrus.Logger
}

// NewService initializes a new lending service. notifier may be nil when no
// notification transport is configured.
func NewService(storage store.Storage, guard *compliance.Guard, tracker *progression.Tracker, notifier *notify.Sender, log *logrus.Logger) *Service {
	return &Service{storage: storage, guard: guard, tracker: tracker, notifier: notifier, log: log}
}

// CreateOfferInput carries the normalized fields for a new loan offer. API
// input is normalized into this shape at the HTTP boundary.
type CreateOfferInput struct {
	LenderKey        string
	BorrowerKey      string
	BorrowerName     string
	BorrowerIDNumber string
	BorrowerEmail    string
	Terms            models.LoanTerms
}

// CreateOffer validates the terms by scheduling them once, then stores the
// offer in the open state. Terms that cannot produce a schedule are rejected
// here, before anything is persisted.
func (s *Service) CreateOffer(in CreateOfferInput) (*models.Loan, error) {
	if _, err := schedule.Build(in.Terms); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	loan := &models.Loan{
		ID:               uuid.New(),
		LenderKey:        in.LenderKey,
		BorrowerKey:      in.BorrowerKey,
		BorrowerName:     in.BorrowerName,
		BorrowerIDNumber: in.BorrowerIDNumber,
		BorrowerEmail:    in.BorrowerEmail,
		Terms:            in.Terms,
		Status:           models.LoanStatusOpen,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan offer: %w", err)
	}

	s.log.Infof("Loan offer created: %s (%s %s, %d %s)", loan.ID, loan.Terms.Principal, loan.Terms.RepaymentStyle, loan.Terms.TenureValue, loan.Terms.TenureUnit)
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (s *Service) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return s.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (s *Service) GetAllLoans() ([]*models.Loan, error) {
	return s.storage.GetAllLoans()
}

// DeleteOffer removes an offer that has not been accepted yet. Live loans
// are never deleted.
func (s *Service) DeleteOffer(id uuid.UUID) error {
	loan, err := s.storage.GetLoan(id)
	if err != nil {
		return err
	}
	if loan.Status != models.LoanStatusOpen {
		return fmt.Errorf("only open offers can be deleted, loan is %s", loan.Status)
	}
	return s.storage.DeleteLoan(id)
}

// PreviewSchedule computes a repayment schedule for arbitrary terms without
// touching storage. The UI calculator and the document renderer both consume
// this payload; neither recomputes amortization on its own.
func (s *Service) PreviewSchedule(terms models.LoanTerms) (*models.RepaymentSchedule, error) {
	return schedule.Build(terms)
}

// ScheduleFor recomputes the schedule for a stored loan's terms.
func (s *Service) ScheduleFor(loan *models.Loan) (*models.RepaymentSchedule, error) {
	return schedule.Build(loan.Terms)
}

// AcceptOffer runs the compliance guard and, when clean, commits the offer:
// the schedule is built and progression starts at installment 1. Violations
// are returned as data and leave the offer untouched.
func (s *Service) AcceptOffer(id uuid.UUID) (*models.Loan, []string, error) {
	loan, err := s.storage.GetLoan(id)
	if err != nil {
		return nil, nil, err
	}
	if loan.Status != models.LoanStatusOpen {
		return nil, nil, fmt.Errorf("offer %s is not open for acceptance (status %s)", id, loan.Status)
	}

	violations, err := s.guard.Review(loan)
	if err != nil {
		return nil, nil, err
	}
	if len(violations) > 0 {
		return loan, violations, nil
	}

	sched, err := schedule.Build(loan.Terms)
	if err != nil {
		return nil, nil, err
	}
	if err := s.tracker.Initialize(loan.ID, sched); err != nil {
		return nil, nil, err
	}

	accepted, err := s.storage.GetLoan(id)
	if err != nil {
		return nil, nil, err
	}
	s.log.Infof("Loan offer accepted: %s, %d payments, matures %s", id, sched.NumberOfPayments, accepted.DueDate.Format("2006-01-02"))
	return accepted, nil, nil
}

// ConfirmPayment advances the installment pointer after a payment for the
// given installment is confirmed. Duplicate confirmations surface as
// progression.StaleProgressionError.
func (s *Service) ConfirmPayment(id uuid.UUID, installment int) (*models.Loan, error) {
	loan, err := s.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}
	if loan.Status == models.LoanStatusOpen {
		return nil, fmt.Errorf("offer %s has not been accepted", id)
	}

	sched, err := schedule.Build(loan.Terms)
	if err != nil {
		return nil, err
	}
	return s.tracker.Advance(id, sched, installment)
}

// RefreshOverdueFlags runs the overdue sweep.
func (s *Service) RefreshOverdueFlags() (int, error) {
	return s.tracker.RefreshOverdueFlags()
}

// SendPaymentReminders emails borrowers whose next payment falls within the
// given number of days. Returns how many reminders were attempted.
func (s *Service) SendPaymentReminders(withinDays int) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}

	now := time.Now().UTC()
	loans, err := s.storage.GetLoansDueBetween(now, now.AddDate(0, 0, withinDays))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, loan := range loans {
		sched, err := schedule.Build(loan.Terms)
		if err != nil {
			s.log.Errorf("Cannot schedule loan %s for reminder: %v", loan.ID, err)
			continue
		}
		if loan.CurrentInstallment < 1 || loan.CurrentInstallment > sched.NumberOfPayments || loan.NextPaymentDueDate == nil {
			continue
		}
		amount := sched.Schedule[loan.CurrentInstallment-1].TotalAmount
		s.notifier.PaymentReminder(loan, amount, *loan.NextPaymentDueDate)
		sent++
	}
	return sent, nil
}

// AuditTrail returns the compliance audit records for a loan.
func (s *Service) AuditTrail(id uuid.UUID) ([]*models.AuditRecord, error) {
	return s.storage.GetAuditRecordsForLoan(id)
}
