package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/jmdavis/peerlend/pkg/auth"
	"github.com/jmdavis/peerlend/pkg/compliance"
	"github.com/jmdavis/peerlend/pkg/config"
	"github.com/jmdavis/peerlend/pkg/lending"
	"github.com/jmdavis/peerlend/pkg/models"
	"github.com/jmdavis/peerlend/pkg/notify"
	"github.com/jmdavis/peerlend/pkg/progression"
	"github.com/jmdavis/peerlend/pkg/rates"
	"github.com/jmdavis/peerlend/pkg/schedule"
	"github.com/jmdavis/peerlend/pkg/store"
)

// Server holds the lending service and auth service behind the HTTP handlers.
type Server struct {
	svc  *lending.Service
	auth *auth.Service
	log  *logrus.Logger
}

func NewServer(svc *lending.Service, authSvc *auth.Service, log *logrus.Logger) *Server {
	return &Server{svc: svc, auth: authSvc, log: log}
}

// routes builds the router. Endpoints under /loans require authentication;
// registration, login and the schedule calculator are public.
func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/register", s.registerHandler).Methods("POST")
	router.HandleFunc("/login", s.loginHandler).Methods("POST")
	router.HandleFunc("/schedule/preview", s.previewScheduleHandler).Methods("POST")

	protected := router.PathPrefix("/loans").Subrouter()
	protected.Use(s.auth.Middleware)
	protected.HandleFunc("", s.listLoansHandler).Methods("GET")
	protected.HandleFunc("", s.createOfferHandler).Methods("POST")
	protected.HandleFunc("/{id}", s.getLoanHandler).Methods("GET")
	protected.HandleFunc("/{id}", s.deleteOfferHandler).Methods("DELETE")
	protected.HandleFunc("/{id}/schedule", s.getScheduleHandler).Methods("GET")
	protected.HandleFunc("/{id}/accept", s.acceptOfferHandler).Methods("POST")
	protected.HandleFunc("/{id}/payments", s.confirmPaymentHandler).Methods("POST")
	protected.HandleFunc("/{id}/audit", s.auditTrailHandler).Methods("GET")

	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps domain errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var invalidTerms *schedule.InvalidTermsError
	var stale *progression.StaleProgressionError
	switch {
	case errors.As(err, &invalidTerms):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &stale):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":               err.Error(),
			"requested":           stale.Requested,
			"current_installment": stale.Current,
		})
	case errors.Is(err, store.ErrLoanNotFound):
		http.Error(w, "Loan not found", http.StatusNotFound)
	default:
		s.log.Errorf("Request failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseLoanID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := s.auth.Register(req.Username, req.Email, req.Password)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to register: %v", err), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	token, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) previewScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var terms models.LoanTerms
	if err := json.NewDecoder(r.Body).Decode(&terms); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sched, err := s.svc.PreviewSchedule(terms)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) createOfferHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LenderKey        string           `json:"lender_key"`
		BorrowerKey      string           `json:"borrower_key"`
		BorrowerName     string           `json:"borrower_name"`
		BorrowerIDNumber string           `json:"borrower_id_number"`
		BorrowerEmail    string           `json:"borrower_email"`
		Terms            models.LoanTerms `json:"terms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := s.svc.CreateOffer(lending.CreateOfferInput{
		LenderKey:        req.LenderKey,
		BorrowerKey:      req.BorrowerKey,
		BorrowerName:     req.BorrowerName,
		BorrowerIDNumber: req.BorrowerIDNumber,
		BorrowerEmail:    req.BorrowerEmail,
		Terms:            req.Terms,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.svc.GetAllLoans()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	loan, err := s.svc.GetLoan(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) deleteOfferHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	if err := s.svc.DeleteOffer(id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	loan, err := s.svc.GetLoan(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	sched, err := s.svc.ScheduleFor(loan)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) acceptOfferHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	loan, violations, err := s.svc.AcceptOffer(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if len(violations) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":      "compliance review failed",
			"violations": violations,
		})
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) confirmPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Installment int `json:"installment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Installment < 1 {
		http.Error(w, "Installment must be positive", http.StatusBadRequest)
		return
	}

	loan, err := s.svc.ConfirmPayment(id, req.Installment)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) auditTrailHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	records, err := s.svc.AuditTrail(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := newLogger(cfg.LogLevel)

	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath, log)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	var rateSource compliance.RateSource
	if cfg.BenchmarkRateURL != "" {
		rateSource = rates.NewClient(cfg.BenchmarkRateURL, log)
	} else {
		log.Warn("BENCHMARK_RATE_URL not set. Benchmark spread rule disabled")
	}

	notifier := notify.NewSender(cfg, log)
	guard := compliance.NewGuard(compliance.Limits{
		MaxPrincipal:         cfg.MaxPrincipal,
		MaxAnnualRatePercent: cfg.MaxAnnualRatePercent,
		MaxBenchmarkSpread:   cfg.MaxBenchmarkSpread,
	}, rateSource, sqliteStore, log)
	tracker := progression.NewTracker(sqliteStore, notifier, log)
	svc := lending.NewService(sqliteStore, guard, tracker, notifier, log)
	authSvc := auth.NewService(sqliteStore, cfg.JWTSecret, log)

	server := NewServer(svc, authSvc, log)

	// Daily sweeps: flag overdue loans, then remind upcoming payers.
	c := cron.New()
	c.AddFunc("@daily", func() {
		flagged, err := svc.RefreshOverdueFlags()
		if err != nil {
			log.Errorf("Overdue sweep failed: %v", err)
			return
		}
		log.Infof("Overdue sweep complete, %d loans flagged", flagged)
	})
	c.AddFunc("@daily", func() {
		sent, err := svc.SendPaymentReminders(cfg.ReminderDays)
		if err != nil {
			log.Errorf("Reminder sweep failed: %v", err)
			return
		}
		log.Infof("Reminder sweep complete, %d reminders sent", sent)
	})
	c.Start()
	defer c.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Infof("Server starting on :%s", cfg.Port)
	log.Fatal(srv.ListenAndServe())
}
