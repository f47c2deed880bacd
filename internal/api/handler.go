package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"domainproof/internal/challenge"
	"domainproof/internal/config"
	"domainproof/internal/domains"
	"domainproof/internal/queue"
)

// ChallengeService is the verification workflow the handler fronts.
type ChallengeService interface {
	Issue(ctx context.Context, userID, domain string) (challenge.IssueResult, error)
	Verify(ctx context.Context, userID, domain string) (challenge.Outcome, error)
	Status(ctx context.Context, userID, domain string) (challenge.Status, error)
}

// VerifiedPublisher receives an event after a successful verification.
type VerifiedPublisher interface {
	PushVerified(ctx context.Context, ev queue.Event) error
}

type Handler struct {
	Config     config.Config
	Challenges ChallengeService
	Events     VerifiedPublisher
}

func NewHandler(cfg config.Config, svc ChallengeService, events VerifiedPublisher) *Handler {
	return &Handler{Config: cfg, Challenges: svc, Events: events}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/generate_txt_record", h.handleGenerateTXTRecord)
	mux.HandleFunc("/verify_txt_record", h.handleVerifyTXTRecord)
	mux.HandleFunc("/domain_status", h.handleDomainStatus)
}

type challengeRequest struct {
	UserID string `json:"user_id"`
	Domain string `json:"domain"`
}

type txtRecordResponse struct {
	UserID    string                    `json:"user_id"`
	DNSRecord domains.RecordInstruction `json:"dns_record"`
}

func (h *Handler) handleGenerateTXTRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req challengeRequest
	if err := decodeAndValidate(r, challengeRequestSchema, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	res, err := h.Challenges.Issue(r.Context(), req.UserID, req.Domain)
	if err != nil {
		if errors.Is(err, challenge.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("issue challenge for user=%s: %v", req.UserID, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if res.AlreadyVerified {
		writeJSON(w, http.StatusOK, map[string]string{"message": "already verified"})
		return
	}
	writeJSON(w, http.StatusOK, txtRecordResponse{
		UserID:    res.UserID,
		DNSRecord: res.Record,
	})
}

func (h *Handler) handleVerifyTXTRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req challengeRequest
	if err := decodeAndValidate(r, challengeRequestSchema, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	outcome, err := h.Challenges.Verify(r.Context(), req.UserID, req.Domain)
	if err != nil {
		if errors.Is(err, challenge.ErrResolution) {
			log.Printf("verify %s: %v", req.Domain, err)
			http.Error(w, "dns resolution failed", http.StatusBadGateway)
			return
		}
		log.Printf("verify %s: %v", req.Domain, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	switch outcome {
	case challenge.OutcomeVerified:
		h.publishVerified(r.Context(), req.UserID, req.Domain)
		writeJSON(w, http.StatusOK, "verified successfully")
	case challenge.OutcomeMismatch:
		writeJSON(w, http.StatusBadRequest, "record not found")
	default:
		writeJSON(w, http.StatusNotFound, "not found or already verified")
	}
}

func (h *Handler) handleDomainStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	userID := r.URL.Query().Get("user_id")
	domain := r.URL.Query().Get("domain")

	status, err := h.Challenges.Status(r.Context(), userID, domain)
	if err != nil {
		log.Printf("status %s: %v", domain, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	code := http.StatusOK
	if status == challenge.StatusNotFound {
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]string{"status": status.String()})
}

// publishVerified is best effort: downstream consumers can always rebuild
// from the store, so a queue hiccup never fails a verification.
func (h *Handler) publishVerified(ctx context.Context, userID, domain string) {
	if h.Events == nil {
		return
	}
	// Events carry the canonical domain, matching what the store holds.
	if d, err := domains.CanonicalizeDomain(domain); err == nil {
		domain = d
	}
	if err := h.Events.PushVerified(ctx, queue.Event{UserID: userID, Domain: domain}); err != nil {
		log.Printf("publish verified event for %s: %v", domain, err)
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	key := h.Config.Security.APIKey
	return key == "" || r.Header.Get("X-API-Key") == key
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
