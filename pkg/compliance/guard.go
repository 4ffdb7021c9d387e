// Package compliance validates proposed loan terms before a schedule is
// committed and keeps an append-only audit trail of every check it runs.
package compliance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jmdavis/peerlend/pkg/models"
)

// Rule identifiers recorded on audit entries.
const (
	RulePrincipalCeiling = "principal_ceiling"
	RuleRateCeiling      = "rate_ceiling"
	RuleBenchmarkSpread  = "benchmark_spread"
	RulePartyIdentity    = "party_identity"
)

// RateSource supplies the current benchmark key rate. Optional; when absent
// the benchmark spread rule is not evaluated.
type RateSource interface {
	KeyRate() (decimal.Decimal, error)
}

// AuditStore is where check results are appended. Entries are immutable and
// written for every check, pass or fail.
type AuditStore interface {
	AppendAuditRecord(rec *models.AuditRecord) error
}

// Limits are the static ceilings enforced on proposed terms.
type Limits struct {
	MaxPrincipal         decimal.Decimal
	MaxAnnualRatePercent decimal.Decimal
	// MaxBenchmarkSpread caps the rate at benchmark + spread when a rate
	// source is configured.
	MaxBenchmarkSpread decimal.Decimal
}

// Guard runs the rule set against a loan before acceptance.
type Guard struct {
	limits Limits
	rates  RateSource
	audit  AuditStore
	log    *logrus.Logger
	now    func() time.Time
}

// NewGuard creates a guard. rates may be nil when no benchmark integration
// is configured.
func NewGuard(limits Limits, rates RateSource, audit AuditStore, log *logrus.Logger) *Guard {
	return &Guard{limits: limits, rates: rates, audit: audit, log: log, now: time.Now}
}

// Review runs every rule against the loan, appends one audit record per
// check regardless of outcome, and returns the human-readable violations.
// Violations are data, not errors; the caller decides whether to block.
func (g *Guard) Review(loan *models.Loan) ([]string, error) {
	var violations []string

	record := func(ruleID, message string, passed bool) error {
		status := models.AuditStatusPassed
		if !passed {
			status = models.AuditStatusFailed
			violations = append(violations, message)
		}
		rec := &models.AuditRecord{
			ID:        uuid.New(),
			LoanID:    loan.ID,
			RuleID:    ruleID,
			Status:    status,
			Message:   message,
			Timestamp: g.now().UTC(),
		}
		if err := g.audit.AppendAuditRecord(rec); err != nil {
			return fmt.Errorf("failed to record %s check: %w", ruleID, err)
		}
		return nil
	}

	terms := loan.Terms

	msg := fmt.Sprintf("principal %s within ceiling %s", terms.Principal, g.limits.MaxPrincipal)
	ok := terms.Principal.LessThanOrEqual(g.limits.MaxPrincipal)
	if !ok {
		msg = fmt.Sprintf("principal %s exceeds ceiling %s", terms.Principal, g.limits.MaxPrincipal)
	}
	if err := record(RulePrincipalCeiling, msg, ok); err != nil {
		return nil, err
	}

	msg = fmt.Sprintf("rate %s%% within ceiling %s%%", terms.AnnualRatePercent, g.limits.MaxAnnualRatePercent)
	ok = terms.AnnualRatePercent.LessThanOrEqual(g.limits.MaxAnnualRatePercent)
	if !ok {
		msg = fmt.Sprintf("rate %s%% exceeds ceiling %s%%", terms.AnnualRatePercent, g.limits.MaxAnnualRatePercent)
	}
	if err := record(RuleRateCeiling, msg, ok); err != nil {
		return nil, err
	}

	if g.rates != nil {
		if benchmark, err := g.rates.KeyRate(); err != nil {
			// The benchmark feed is advisory; a fetch failure never blocks.
			g.log.Errorf("Benchmark rate unavailable, skipping spread check: %v", err)
		} else {
			ceiling := benchmark.Add(g.limits.MaxBenchmarkSpread)
			msg = fmt.Sprintf("rate %s%% within benchmark %s%% + spread %s%%", terms.AnnualRatePercent, benchmark, g.limits.MaxBenchmarkSpread)
			ok = terms.AnnualRatePercent.LessThanOrEqual(ceiling)
			if !ok {
				msg = fmt.Sprintf("rate %s%% exceeds benchmark %s%% + spread %s%%", terms.AnnualRatePercent, benchmark, g.limits.MaxBenchmarkSpread)
			}
			if err := record(RuleBenchmarkSpread, msg, ok); err != nil {
				return nil, err
			}
		}
	}

	missing := missingIdentityFields(loan)
	msg = "party identity fields present"
	ok = len(missing) == 0
	if !ok {
		msg = fmt.Sprintf("missing required identity fields: %v", missing)
	}
	if err := record(RulePartyIdentity, msg, ok); err != nil {
		return nil, err
	}

	if len(violations) > 0 {
		g.log.Warnf("Loan %s failed compliance review: %d violation(s)", loan.ID, len(violations))
	}
	return violations, nil
}

func missingIdentityFields(loan *models.Loan) []string {
	var missing []string
	if loan.LenderKey == "" {
		missing = append(missing, "lender_key")
	}
	if loan.BorrowerKey == "" {
		missing = append(missing, "borrower_key")
	}
	if loan.BorrowerName == "" {
		missing = append(missing, "borrower_name")
	}
	if loan.BorrowerIDNumber == "" {
		missing = append(missing, "borrower_id_number")
	}
	return missing
}
