package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"domainproof/internal/challenge"
	"domainproof/internal/config"
	"domainproof/internal/domains"
	"domainproof/internal/queue"
)

type stubService struct {
	issueResult   challenge.IssueResult
	issueErr      error
	verifyOutcome challenge.Outcome
	verifyErr     error
	status        challenge.Status
	statusErr     error

	lastUserID string
	lastDomain string
}

func (s *stubService) Issue(_ context.Context, userID, domain string) (challenge.IssueResult, error) {
	s.lastUserID, s.lastDomain = userID, domain
	return s.issueResult, s.issueErr
}

func (s *stubService) Verify(_ context.Context, userID, domain string) (challenge.Outcome, error) {
	s.lastUserID, s.lastDomain = userID, domain
	return s.verifyOutcome, s.verifyErr
}

func (s *stubService) Status(_ context.Context, userID, domain string) (challenge.Status, error) {
	s.lastUserID, s.lastDomain = userID, domain
	return s.status, s.statusErr
}

type stubPublisher struct {
	events []queue.Event
	err    error
}

func (p *stubPublisher) PushVerified(_ context.Context, ev queue.Event) error {
	p.events = append(p.events, ev)
	return p.err
}

func newTestMux(svc ChallengeService, events VerifiedPublisher, cfg config.Config) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(cfg, svc, events).RegisterRoutes(mux)
	return mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestGenerateTXTRecordResponseShape(t *testing.T) {
	svc := &stubService{
		issueResult: challenge.IssueResult{
			UserID: "u1",
			Domain: "example.com",
			Record: domains.NewRecordInstruction("example.com", "example_com_verification=T1"),
		},
	}
	mux := newTestMux(svc, nil, config.Default())

	rec := postJSON(t, mux, "/generate_txt_record", `{"user_id":"u1","domain":"example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		UserID    string `json:"user_id"`
		DNSRecord struct {
			Domain string `json:"domain"`
			Record string `json:"record"`
			Action string `json:"action"`
		} `json:"dns_record"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UserID != "u1" {
		t.Fatalf("user_id = %q", resp.UserID)
	}
	if resp.DNSRecord.Domain != "example.com" || resp.DNSRecord.Record != "example_com_verification=T1" {
		t.Fatalf("dns_record = %+v", resp.DNSRecord)
	}
	if resp.DNSRecord.Action == "" {
		t.Fatal("action must be populated")
	}
	if svc.lastUserID != "u1" || svc.lastDomain != "example.com" {
		t.Fatalf("service saw %q/%q", svc.lastUserID, svc.lastDomain)
	}
}

func TestGenerateTXTRecordAlreadyVerified(t *testing.T) {
	svc := &stubService{issueResult: challenge.IssueResult{UserID: "u1", Domain: "example.com", AlreadyVerified: true}}
	mux := newTestMux(svc, nil, config.Default())

	rec := postJSON(t, mux, "/generate_txt_record", `{"user_id":"u1","domain":"example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["message"] != "already verified" {
		t.Fatalf("message = %q", resp["message"])
	}
}

func TestGenerateTXTRecordRejectsBadPayloads(t *testing.T) {
	svc := &stubService{}
	mux := newTestMux(svc, nil, config.Default())

	for _, body := range []string{
		`not json`,
		`{}`,
		`{"user_id":"u1"}`,
		`{"domain":"example.com"}`,
		`{"user_id":"","domain":"example.com"}`,
		`{"user_id":"u1","domain":""}`,
		`{"user_id":42,"domain":"example.com"}`,
	} {
		rec := postJSON(t, mux, "/generate_txt_record", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d", body, rec.Code)
		}
	}
	if svc.lastUserID != "" {
		t.Fatal("service must not be reached for invalid payloads")
	}
}

func TestGenerateTXTRecordInvalidInputFromService(t *testing.T) {
	svc := &stubService{issueErr: challenge.ErrInvalidInput}
	mux := newTestMux(svc, nil, config.Default())

	rec := postJSON(t, mux, "/generate_txt_record", `{"user_id":"u1","domain":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGenerateTXTRecordStorageFailure(t *testing.T) {
	svc := &stubService{issueErr: challenge.ErrStorage}
	mux := newTestMux(svc, nil, config.Default())

	rec := postJSON(t, mux, "/generate_txt_record", `{"user_id":"u1","domain":"example.com"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection") {
		t.Fatal("internal error detail must not leak to clients")
	}
}

func TestVerifyTXTRecordOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		outcome  challenge.Outcome
		err      error
		wantCode int
		wantBody string
	}{
		{name: "verified", outcome: challenge.OutcomeVerified, wantCode: http.StatusOK, wantBody: `"verified successfully"`},
		{name: "mismatch", outcome: challenge.OutcomeMismatch, wantCode: http.StatusBadRequest, wantBody: `"record not found"`},
		{name: "not found", outcome: challenge.OutcomeNotFound, wantCode: http.StatusNotFound, wantBody: `"not found or already verified"`},
		{name: "resolution failure", err: challenge.ErrResolution, wantCode: http.StatusBadGateway},
		{name: "storage failure", err: challenge.ErrStorage, wantCode: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{verifyOutcome: tc.outcome, verifyErr: tc.err}
			mux := newTestMux(svc, nil, config.Default())

			rec := postJSON(t, mux, "/verify_txt_record", `{"user_id":"u1","domain":"example.com"}`)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if tc.wantBody != "" && strings.TrimSpace(rec.Body.String()) != tc.wantBody {
				t.Fatalf("body = %q, want %q", strings.TrimSpace(rec.Body.String()), tc.wantBody)
			}
		})
	}
}

func TestVerifyPublishesEventOnSuccess(t *testing.T) {
	svc := &stubService{verifyOutcome: challenge.OutcomeVerified}
	events := &stubPublisher{}
	mux := newTestMux(svc, events, config.Default())

	rec := postJSON(t, mux, "/verify_txt_record", `{"user_id":"u1","domain":"example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(events.events) != 1 || events.events[0] != (queue.Event{UserID: "u1", Domain: "example.com"}) {
		t.Fatalf("events = %+v", events.events)
	}
}

func TestVerifyMismatchDoesNotPublish(t *testing.T) {
	svc := &stubService{verifyOutcome: challenge.OutcomeMismatch}
	events := &stubPublisher{}
	mux := newTestMux(svc, events, config.Default())

	postJSON(t, mux, "/verify_txt_record", `{"user_id":"u1","domain":"example.com"}`)
	if len(events.events) != 0 {
		t.Fatalf("unexpected events: %+v", events.events)
	}
}

func TestDomainStatus(t *testing.T) {
	tests := []struct {
		status   challenge.Status
		wantCode int
		want     string
	}{
		{status: challenge.StatusVerified, wantCode: http.StatusOK, want: "verified"},
		{status: challenge.StatusPending, wantCode: http.StatusOK, want: "pending"},
		{status: challenge.StatusNotFound, wantCode: http.StatusNotFound, want: "not found"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			svc := &stubService{status: tc.status}
			mux := newTestMux(svc, nil, config.Default())

			req := httptest.NewRequest(http.MethodGet, "/domain_status?user_id=u1&domain=example.com", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp["status"] != tc.want {
				t.Fatalf("status field = %q, want %q", resp["status"], tc.want)
			}
			if svc.lastUserID != "u1" || svc.lastDomain != "example.com" {
				t.Fatalf("service saw %q/%q", svc.lastUserID, svc.lastDomain)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux := newTestMux(&stubService{}, nil, config.Default())

	req := httptest.NewRequest(http.MethodGet, "/generate_txt_record", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET generate: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/domain_status", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status: status = %d", rec.Code)
	}
}

func TestAPIKeyGate(t *testing.T) {
	cfg := config.Default()
	cfg.Security.APIKey = "sekrit"
	svc := &stubService{status: challenge.StatusPending}
	mux := newTestMux(svc, nil, cfg)

	req := httptest.NewRequest(http.MethodGet, "/domain_status?user_id=u1&domain=example.com", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/domain_status?user_id=u1&domain=example.com", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with key: status = %d", rec.Code)
	}
}
