package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jmdavis/peerlend/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string, log *logrus.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Info("Database connection established and schema initialized")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		lender_key TEXT NOT NULL,
		borrower_key TEXT NOT NULL,
		borrower_name TEXT NOT NULL DEFAULT '',
		borrower_id_number TEXT NOT NULL DEFAULT '',
		borrower_email TEXT NOT NULL DEFAULT '',
		principal TEXT NOT NULL,
		annual_rate_percent TEXT NOT NULL,
		interest_method TEXT NOT NULL,
		tenure_value INTEGER NOT NULL,
		tenure_unit TEXT NOT NULL,
		repayment_style TEXT NOT NULL,
		frequency TEXT NOT NULL DEFAULT 'monthly',
		start_date DATETIME NOT NULL,
		status TEXT NOT NULL,
		current_installment INTEGER NOT NULL DEFAULT 0,
		next_payment_due_date DATETIME,
		due_date DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const loanColumns = `id, lender_key, borrower_key, borrower_name, borrower_id_number, borrower_email,
	principal, annual_rate_percent, interest_method, tenure_value, tenure_unit, repayment_style, frequency, start_date,
	status, current_installment, next_payment_due_date, due_date, created_at, updated_at`

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	_, err := s.db.Exec(
		`INSERT INTO loans (`+loanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.LenderKey, loan.BorrowerKey, loan.BorrowerName, loan.BorrowerIDNumber, loan.BorrowerEmail,
		loan.Terms.Principal, loan.Terms.AnnualRatePercent, string(loan.Terms.InterestMethod),
		loan.Terms.TenureValue, string(loan.Terms.TenureUnit), string(loan.Terms.RepaymentStyle),
		string(loan.Terms.Frequency), loan.Terms.StartDate,
		string(loan.Status), loan.CurrentInstallment, nullTime(loan.NextPaymentDueDate), nullTime(loan.DueDate),
		loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT ` + loanColumns + ` FROM loans ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()
	return scanLoans(rows)
}

// DeleteLoan removes a loan and its audit records within a transaction.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`DELETE FROM audit_log WHERE loan_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete audit records: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLoanNotFound
	}

	return tx.Commit()
}

// UpdateProgression conditionally writes the progression fields. The WHERE
// clause on current_installment is the compare-and-swap: a concurrent writer
// that advanced the pointer first leaves this update with zero affected rows.
func (s *SQLiteStore) UpdateProgression(loanID uuid.UUID, expectedCurrent int, upd models.ProgressionUpdate) error {
	result, err := s.db.Exec(
		`UPDATE loans
		SET current_installment = ?, next_payment_due_date = ?, due_date = COALESCE(?, due_date), status = ?, updated_at = ?
		WHERE id = ? AND current_installment = ?`,
		upd.CurrentInstallment, nullTime(upd.NextPaymentDueDate), nullTime(upd.DueDate), string(upd.Status), time.Now().UTC(),
		loanID.String(), expectedCurrent,
	)
	if err != nil {
		return fmt.Errorf("failed to update progression: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := s.GetLoan(loanID); err != nil {
			return err
		}
		return ErrProgressionConflict
	}
	return nil
}

// SetLoanStatus updates only the status label of a loan.
func (s *SQLiteStore) SetLoanStatus(loanID uuid.UUID, status models.LoanStatus) error {
	result, err := s.db.Exec(
		`UPDATE loans SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), loanID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to set loan status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLoanNotFound
	}
	return nil
}

// GetOverdueCandidates returns active loans whose next due date has passed.
func (s *SQLiteStore) GetOverdueCandidates(asOf time.Time) ([]*models.Loan, error) {
	rows, err := s.db.Query(
		`SELECT `+loanColumns+` FROM loans
		WHERE status = ? AND next_payment_due_date IS NOT NULL AND next_payment_due_date < ?`,
		string(models.LoanStatusActive), asOf,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get overdue candidates: %w", err)
	}
	defer rows.Close()
	return scanLoans(rows)
}

// GetLoansDueBetween returns in-progress loans whose next payment falls inside [from, to).
func (s *SQLiteStore) GetLoansDueBetween(from, to time.Time) ([]*models.Loan, error) {
	rows, err := s.db.Query(
		`SELECT `+loanColumns+` FROM loans
		WHERE status IN (?, ?) AND next_payment_due_date IS NOT NULL AND next_payment_due_date >= ? AND next_payment_due_date < ?`,
		string(models.LoanStatusActive), string(models.LoanStatusOverdue), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get loans due between: %w", err)
	}
	defer rows.Close()
	return scanLoans(rows)
}

// CreateUser inserts a new user.
func (s *SQLiteStore) CreateUser(user *models.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID.String(), user.Username, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by email.
func (s *SQLiteStore) FindUserByEmail(email string) (*models.User, error) {
	var user models.User
	var idStr string
	row := s.db.QueryRow(`SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?`, email)
	err := row.Scan(&idStr, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	user.ID = uuid.MustParse(idStr)
	return &user, nil
}

// AppendAuditRecord inserts a compliance audit record. The audit log is
// append-only: there are no update or delete operations for it.
func (s *SQLiteStore) AppendAuditRecord(rec *models.AuditRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (id, loan_id, rule_id, status, message, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.LoanID.String(), rec.RuleID, rec.Status, rec.Message, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// GetAuditRecordsForLoan retrieves all audit records for a loan in insertion order.
func (s *SQLiteStore) GetAuditRecordsForLoan(loanID uuid.UUID) ([]*models.AuditRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, rule_id, status, message, timestamp FROM audit_log WHERE loan_id = ? ORDER BY timestamp ASC`,
		loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit records for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var records []*models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var idStr, loanIDStr string
		if err := rows.Scan(&idStr, &loanIDStr, &rec.RuleID, &rec.Status, &rec.Message, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit record row: %w", err)
		}
		rec.ID = uuid.MustParse(idStr)
		rec.LoanID = uuid.MustParse(loanIDStr)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, method, unit, style, freq, status string
	var nextDue, dueDate sql.NullTime
	err := row.Scan(
		&idStr, &loan.LenderKey, &loan.BorrowerKey, &loan.BorrowerName, &loan.BorrowerIDNumber, &loan.BorrowerEmail,
		&loan.Terms.Principal, &loan.Terms.AnnualRatePercent, &method, &loan.Terms.TenureValue, &unit, &style, &freq, &loan.Terms.StartDate,
		&status, &loan.CurrentInstallment, &nextDue, &dueDate, &loan.CreatedAt, &loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.Terms.InterestMethod = models.InterestMethod(method)
	loan.Terms.TenureUnit = models.TenureUnit(unit)
	loan.Terms.RepaymentStyle = models.RepaymentStyle(style)
	loan.Terms.Frequency = models.Frequency(freq)
	loan.Status = models.LoanStatus(status)
	if nextDue.Valid {
		t := nextDue.Time
		loan.NextPaymentDueDate = &t
	}
	if dueDate.Valid {
		t := dueDate.Time
		loan.DueDate = &t
	}
	return &loan, nil
}

func scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
