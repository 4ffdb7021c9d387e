package models

import (
	"time"

	"github.com/google/uuid"
)

// LoanStatus is the lifecycle state of a loan record.
type LoanStatus string

const (
	// LoanStatusOpen is a published offer whose terms are not yet accepted.
	LoanStatusOpen LoanStatus = "open"
	// LoanStatusActive is an accepted loan progressing through its schedule.
	LoanStatusActive LoanStatus = "active"
	// LoanStatusOverdue is an active loan whose next due date has passed.
	// It is a label only; the installment pointer never moves on overdue.
	LoanStatusOverdue LoanStatus = "overdue"
	// LoanStatusCompleted means every installment has been confirmed.
	LoanStatusCompleted LoanStatus = "completed"
)

// Loan is a loan offer and, once accepted, the live loan record. The
// progression fields (CurrentInstallment, NextPaymentDueDate, Status) are
// owned by the progression tracker and mutated only through it.
type Loan struct {
	ID               uuid.UUID `json:"id"`
	LenderKey        string    `json:"lender_key"`   // Link to external identity system
	BorrowerKey      string    `json:"borrower_key"` // Link to external identity system
	BorrowerName     string    `json:"borrower_name"`
	BorrowerIDNumber string    `json:"borrower_id_number"`
	BorrowerEmail    string    `json:"borrower_email"`
	Terms            LoanTerms `json:"terms"`
	Status           LoanStatus `json:"status"`
	// CurrentInstallment is the 1-indexed installment awaiting payment.
	// Zero until the offer is accepted.
	CurrentInstallment int        `json:"current_installment"`
	NextPaymentDueDate *time.Time `json:"next_payment_due_date,omitempty"`
	// DueDate is the final maturity date, set when the offer is accepted.
	DueDate   *time.Time `json:"due_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// User represents a registered user of the platform.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Not serialized
	CreatedAt    time.Time `json:"created_at"`
}

// AuditRecord is one immutable compliance check result. Records are appended
// for every check run, pass or fail, and are never updated or deleted.
type AuditRecord struct {
	ID        uuid.UUID `json:"id"`
	LoanID    uuid.UUID `json:"loan_id"`
	RuleID    string    `json:"rule_id"`
	Status    string    `json:"status"` // "passed" or "failed"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	AuditStatusPassed = "passed"
	AuditStatusFailed = "failed"
)
