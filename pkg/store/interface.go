package store

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jmdavis/peerlend/pkg/models"
)

var (
	// ErrLoanNotFound is returned when a loan id has no record.
	ErrLoanNotFound = errors.New("loan not found")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrProgressionConflict is returned by UpdateProgression when the stored
	// installment pointer no longer matches the expected value.
	ErrProgressionConflict = errors.New("progression conflict")
)

// Storage defines the persistence operations for loans, users and the
// compliance audit log.
type Storage interface {
	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	GetAllLoans() ([]*models.Loan, error)
	DeleteLoan(id uuid.UUID) error

	// UpdateProgression conditionally writes the progression fields. The
	// write only succeeds when the stored current installment equals
	// expectedCurrent; otherwise ErrProgressionConflict is returned. This is
	// the compare-and-swap that makes Advance exactly-once.
	UpdateProgression(loanID uuid.UUID, expectedCurrent int, upd models.ProgressionUpdate) error
	SetLoanStatus(loanID uuid.UUID, status models.LoanStatus) error
	// GetOverdueCandidates returns active loans whose next payment due date
	// is strictly before asOf.
	GetOverdueCandidates(asOf time.Time) ([]*models.Loan, error)
	// GetLoansDueBetween returns in-progress loans whose next payment falls
	// inside [from, to), for reminder sweeps.
	GetLoansDueBetween(from, to time.Time) ([]*models.Loan, error)

	CreateUser(user *models.User) error
	FindUserByEmail(email string) (*models.User, error)

	AppendAuditRecord(rec *models.AuditRecord) error
	GetAuditRecordsForLoan(loanID uuid.UUID) ([]*models.AuditRecord, error)

	Close() error
}
