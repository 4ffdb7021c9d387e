package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jmdavis/peerlend/pkg/auth"
	"github.com/jmdavis/peerlend/pkg/compliance"
	"github.com/jmdavis/peerlend/pkg/lending"
	"github.com/jmdavis/peerlend/pkg/models"
	"github.com/jmdavis/peerlend/pkg/progression"
	"github.com/jmdavis/peerlend/pkg/store"
)

func setupTestServer(t *testing.T) *Server {
	dbFile := "test_api.db"
	os.Remove(dbFile)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	s, err := store.NewSQLiteStore(dbFile, log)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.Remove(dbFile)
	})

	guard := compliance.NewGuard(compliance.Limits{
		MaxPrincipal:         decimal.NewFromInt(1000000),
		MaxAnnualRatePercent: decimal.NewFromInt(36),
		MaxBenchmarkSpread:   decimal.NewFromInt(12),
	}, nil, s, log)
	tracker := progression.NewTracker(s, nil, log)
	svc := lending.NewService(s, guard, tracker, nil, log)
	authSvc := auth.NewService(s, "test-secret", log)

	return NewServer(svc, authSvc, log)
}

// testRouter registers the loan handlers without the auth middleware so
// workflow tests do not need to mint tokens first.
func testRouter(server *Server) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/schedule/preview", server.previewScheduleHandler).Methods("POST")
	router.HandleFunc("/loans", server.createOfferHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", server.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", server.deleteOfferHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/accept", server.acceptOfferHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/payments", server.confirmPaymentHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/audit", server.auditTrailHandler).Methods("GET")
	return router
}

func offerRequest() map[string]interface{} {
	return map[string]interface{}{
		"lender_key":         "lender1",
		"borrower_key":       "borrower1",
		"borrower_name":      "A Borrower",
		"borrower_id_number": "ID-42",
		"borrower_email":     "borrower@example.com",
		"terms": map[string]interface{}{
			"principal":           "120000",
			"annual_rate_percent": "12",
			"interest_method":     "reducing",
			"tenure_value":        12,
			"tenure_unit":         "months",
			"repayment_style":     "emi",
			"frequency":           "monthly",
			"start_date":          "2025-01-15T00:00:00Z",
		},
	}
}

func postJSON(t *testing.T, router *mux.Router, path string, payload interface{}) *httptest.ResponseRecorder {
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestAPI_OfferLifecycle(t *testing.T) {
	server := setupTestServer(t)
	router := testRouter(server)

	// Create offer
	rr := postJSON(t, router, "/loans", offerRequest())
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var created models.Loan
	json.Unmarshal(rr.Body.Bytes(), &created)
	if created.Status != models.LoanStatusOpen {
		t.Errorf("Expected open status, got %s", created.Status)
	}

	// Accept
	rr = postJSON(t, router, "/loans/"+created.ID.String()+"/accept", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on accept, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var accepted models.Loan
	json.Unmarshal(rr.Body.Bytes(), &accepted)
	if accepted.Status != models.LoanStatusActive {
		t.Errorf("Expected active status, got %s", accepted.Status)
	}
	if accepted.CurrentInstallment != 1 {
		t.Errorf("Expected installment 1, got %d", accepted.CurrentInstallment)
	}
	wantDue := time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC)
	if accepted.NextPaymentDueDate == nil || !accepted.NextPaymentDueDate.Equal(wantDue) {
		t.Errorf("Expected first due date %v, got %v", wantDue, accepted.NextPaymentDueDate)
	}

	// Confirm installment 1
	rr = postJSON(t, router, "/loans/"+created.ID.String()+"/payments", map[string]int{"installment": 1})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on payment, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var after models.Loan
	json.Unmarshal(rr.Body.Bytes(), &after)
	if after.CurrentInstallment != 2 {
		t.Errorf("Expected installment 2 after payment, got %d", after.CurrentInstallment)
	}

	// A duplicate confirmation conflicts.
	rr = postJSON(t, router, "/loans/"+created.ID.String()+"/payments", map[string]int{"installment": 1})
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status 409 on duplicate payment, got %d", rr.Code)
	}

	// Audit trail was written during acceptance.
	req := httptest.NewRequest("GET", "/loans/"+created.ID.String()+"/audit", nil)
	getRR := httptest.NewRecorder()
	router.ServeHTTP(getRR, req)
	if getRR.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for audit trail, got %d", getRR.Code)
	}
	var records []models.AuditRecord
	json.Unmarshal(getRR.Body.Bytes(), &records)
	if len(records) == 0 {
		t.Error("Expected audit records after acceptance")
	}
}

func TestAPI_AcceptBlockedByCompliance(t *testing.T) {
	server := setupTestServer(t)
	router := testRouter(server)

	offer := offerRequest()
	offer["terms"].(map[string]interface{})["principal"] = "5000000"
	rr := postJSON(t, router, "/loans", offer)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rr.Code)
	}
	var created models.Loan
	json.Unmarshal(rr.Body.Bytes(), &created)

	rr = postJSON(t, router, "/loans/"+created.ID.String()+"/accept", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Violations []string `json:"violations"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Violations) == 0 {
		t.Error("Expected violations in response body")
	}
}

func TestAPI_CreateOfferRejectsBadTerms(t *testing.T) {
	server := setupTestServer(t)
	router := testRouter(server)

	offer := offerRequest()
	offer["terms"].(map[string]interface{})["tenure_value"] = 4
	offer["terms"].(map[string]interface{})["frequency"] = "quarterly"
	rr := postJSON(t, router, "/loans", offer)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d. Body: %s", rr.Code, rr.Body.String())
	}
}

func TestAPI_PreviewSchedule(t *testing.T) {
	server := setupTestServer(t)
	router := testRouter(server)

	rr := postJSON(t, router, "/schedule/preview", offerRequest()["terms"])
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var sched models.RepaymentSchedule
	json.Unmarshal(rr.Body.Bytes(), &sched)
	if sched.NumberOfPayments != 12 {
		t.Errorf("Expected 12 payments, got %d", sched.NumberOfPayments)
	}
	if sched.EMIAmount == nil || !sched.EMIAmount.Equal(decimal.RequireFromString("10661.85")) {
		t.Errorf("Unexpected EMI: %v", sched.EMIAmount)
	}
}

func TestAPI_AuthGuardsLoanRoutes(t *testing.T) {
	server := setupTestServer(t)
	router := server.routes()

	req := httptest.NewRequest("GET", "/loans", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without token, got %d", rr.Code)
	}

	// Register, log in, retry with the token.
	rr = postJSON(t, router, "/register", map[string]string{
		"username": "lender", "email": "lender@example.com", "password": "hunter22",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 on register, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	rr = postJSON(t, router, "/login", map[string]string{
		"email": "lender@example.com", "password": "hunter22",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on login, got %d", rr.Code)
	}
	var login struct {
		Token string `json:"token"`
	}
	json.Unmarshal(rr.Body.Bytes(), &login)

	req = httptest.NewRequest("GET", "/loans", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, req)
	if rr2.Code != http.StatusOK {
		t.Errorf("Expected status 200 with token, got %d", rr2.Code)
	}
}
