package compliance

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jmdavis/peerlend/pkg/models"
)

// MockAuditStore records appended audit entries.
type MockAuditStore struct {
	records []*models.AuditRecord
	fail    bool
}

func (m *MockAuditStore) AppendAuditRecord(rec *models.AuditRecord) error {
	if m.fail {
		return fmt.Errorf("audit storage unavailable")
	}
	m.records = append(m.records, rec)
	return nil
}

// StubRateSource returns a fixed benchmark rate.
type StubRateSource struct {
	rate decimal.Decimal
	err  error
}

func (s *StubRateSource) KeyRate() (decimal.Decimal, error) { return s.rate, s.err }

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testLimits() Limits {
	return Limits{
		MaxPrincipal:         decimal.NewFromInt(1000000),
		MaxAnnualRatePercent: decimal.NewFromInt(36),
		MaxBenchmarkSpread:   decimal.NewFromInt(10),
	}
}

func compliantLoan() *models.Loan {
	return &models.Loan{
		ID:               uuid.New(),
		LenderKey:        "lender1",
		BorrowerKey:      "borrower1",
		BorrowerName:     "A Borrower",
		BorrowerIDNumber: "ID-42",
		Terms: models.LoanTerms{
			Principal:         decimal.NewFromInt(100000),
			AnnualRatePercent: decimal.NewFromInt(12),
			InterestMethod:    models.InterestReducing,
			TenureValue:       12,
			TenureUnit:        models.TenureMonths,
			RepaymentStyle:    models.StyleEMI,
			Frequency:         models.FrequencyMonthly,
			StartDate:         time.Now().UTC(),
		},
		Status: models.LoanStatusOpen,
	}
}

func TestGuard_CompliantLoanPasses(t *testing.T) {
	audit := &MockAuditStore{}
	guard := NewGuard(testLimits(), nil, audit, testLogger())

	violations, err := guard.Review(compliantLoan())
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("Expected no violations, got %v", violations)
	}

	// One audit record per check, all passed, even with nothing violated.
	if len(audit.records) != 3 {
		t.Fatalf("Expected 3 audit records, got %d", len(audit.records))
	}
	for _, rec := range audit.records {
		if rec.Status != models.AuditStatusPassed {
			t.Errorf("Expected passed audit for %s, got %s", rec.RuleID, rec.Status)
		}
	}
}

func TestGuard_CeilingViolations(t *testing.T) {
	audit := &MockAuditStore{}
	guard := NewGuard(testLimits(), nil, audit, testLogger())

	loan := compliantLoan()
	loan.Terms.Principal = decimal.NewFromInt(2000000)
	loan.Terms.AnnualRatePercent = decimal.NewFromInt(48)

	violations, err := guard.Review(loan)
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("Expected 2 violations, got %v", violations)
	}

	failed := map[string]bool{}
	for _, rec := range audit.records {
		if rec.Status == models.AuditStatusFailed {
			failed[rec.RuleID] = true
		}
	}
	if !failed[RulePrincipalCeiling] || !failed[RuleRateCeiling] {
		t.Errorf("Expected principal and rate ceiling failures, got %v", failed)
	}
}

func TestGuard_MissingIdentity(t *testing.T) {
	audit := &MockAuditStore{}
	guard := NewGuard(testLimits(), nil, audit, testLogger())

	loan := compliantLoan()
	loan.BorrowerName = ""
	loan.BorrowerIDNumber = ""

	violations, err := guard.Review(loan)
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("Expected 1 violation, got %v", violations)
	}
}

func TestGuard_BenchmarkSpread(t *testing.T) {
	audit := &MockAuditStore{}
	source := &StubRateSource{rate: decimal.NewFromInt(6)}
	guard := NewGuard(testLimits(), source, audit, testLogger())

	// 12% <= 6% benchmark + 10% spread: passes, and the extra check is audited.
	violations, err := guard.Review(compliantLoan())
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("Expected no violations, got %v", violations)
	}
	if len(audit.records) != 4 {
		t.Errorf("Expected 4 audit records with benchmark rule, got %d", len(audit.records))
	}

	// 20% > 6% + 10%: violation.
	loan := compliantLoan()
	loan.Terms.AnnualRatePercent = decimal.NewFromInt(20)
	violations, err = guard.Review(loan)
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if len(violations) != 1 {
		t.Errorf("Expected benchmark violation, got %v", violations)
	}
}

func TestGuard_BenchmarkFailureNeverBlocks(t *testing.T) {
	audit := &MockAuditStore{}
	source := &StubRateSource{err: fmt.Errorf("feed down")}
	guard := NewGuard(testLimits(), source, audit, testLogger())

	violations, err := guard.Review(compliantLoan())
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("Expected no violations when benchmark is unavailable, got %v", violations)
	}
	if len(audit.records) != 3 {
		t.Errorf("Expected 3 audit records with benchmark skipped, got %d", len(audit.records))
	}
}

func TestGuard_AuditFailurePropagates(t *testing.T) {
	audit := &MockAuditStore{fail: true}
	guard := NewGuard(testLimits(), nil, audit, testLogger())

	if _, err := guard.Review(compliantLoan()); err == nil {
		t.Error("Expected error when audit log cannot be written")
	}
}
