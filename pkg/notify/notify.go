// Package notify sends borrower-facing lifecycle emails. Delivery is
// fire-and-forget: failures are logged and never surfaced to the loan
// workflow that triggered them.
package notify

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jmdavis/peerlend/pkg/config"
	"github.com/jmdavis/peerlend/pkg/models"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{cfg: cfg, logger: logger}
}

func (s *Sender) configured(loan *models.Loan) bool {
	if s.cfg.SMTPHost == "" {
		s.logger.Debugf("SMTP not configured, skipping notification for loan %s", loan.ID)
		return false
	}
	if loan.BorrowerEmail == "" {
		s.logger.Debugf("No borrower email on loan %s, skipping notification", loan.ID)
		return false
	}
	return true
}

// LoanOverdue notifies the borrower that an installment has passed its due date.
func (s *Sender) LoanOverdue(loan *models.Loan) {
	if !s.configured(loan) {
		return
	}

	due := "recently"
	if loan.NextPaymentDueDate != nil {
		due = loan.NextPaymentDueDate.Format("2006-01-02")
	}
	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Your payment for installment %d was due on %s and is now overdue.\n"+
			"Please make the payment as soon as possible.\n"+
			"\nBest regards,\nPeerLend",
		loan.BorrowerName, loan.CurrentInstallment, due,
	)
	s.send(loan.BorrowerEmail, "Overdue Loan Payment Notification", body)
}

// LoanCompleted notifies the borrower that the final installment was confirmed.
func (s *Sender) LoanCompleted(loan *models.Loan) {
	if !s.configured(loan) {
		return
	}

	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Your loan has been fully repaid. No further payments are due.\n"+
			"\nBest regards,\nPeerLend",
		loan.BorrowerName,
	)
	s.send(loan.BorrowerEmail, "Loan Completed", body)
}

// PaymentReminder sends an upcoming payment reminder email.
func (s *Sender) PaymentReminder(loan *models.Loan, amount decimal.Decimal, dueDate time.Time) {
	if !s.configured(loan) {
		return
	}

	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"This is a reminder that your payment of %s for installment %d is due on %s.\n"+
			"Please ensure funds are available.\n"+
			"\nBest regards,\nPeerLend",
		loan.BorrowerName, amount.StringFixed(2), loan.CurrentInstallment, dueDate.Format("2006-01-02"),
	)
	s.send(loan.BorrowerEmail, "Upcoming Loan Payment Reminder", body)
}

func (s *Sender) send(to, subject, body string) {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return
	}
	s.logger.Infof("Email sent to %s: %s", to, subject)
}
