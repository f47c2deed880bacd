// Package challenge implements the domain ownership verification state
// machine: issue a TXT challenge per (user, domain), confirm it over live
// DNS, and report the pair's verification status.
package challenge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"domainproof/internal/domains"
	"domainproof/internal/store"
)

// ChallengeStore is the persistence surface the service needs. Implemented
// by *store.Store; all cross-request coordination lives in the store's
// conditional-write primitive, never in process-local locks.
type ChallengeStore interface {
	GetChallenge(ctx context.Context, userID, domain string) (store.Challenge, error)
	GetUnverifiedChallenge(ctx context.Context, userID, domain string) (store.Challenge, error)
	CreateChallenge(ctx context.Context, userID, domain, record, token string) (string, error)
	MarkVerified(ctx context.Context, userID, domain string) (bool, error)
}

type Service struct {
	Store    ChallengeStore
	Resolver domains.TXTResolver
}

func NewService(st ChallengeStore, resolver domains.TXTResolver) *Service {
	if resolver == nil {
		resolver = domains.NewResolver()
	}
	return &Service{Store: st, Resolver: resolver}
}

// IssueResult is the issuer's view of a challenge. AlreadyVerified carries
// no record: a verified pair never exposes its token again.
type IssueResult struct {
	UserID          string
	Domain          string
	AlreadyVerified bool
	Record          domains.RecordInstruction
}

// Issue returns the challenge for (userID, domain), creating it on first
// request. Re-issuing an unverified pair returns the stored record
// unchanged; re-rolling the token would invalidate a TXT record the user
// may already have published. At most one insert ever happens per pair.
func (s *Service) Issue(ctx context.Context, userID, domain string) (IssueResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return IssueResult{}, fmt.Errorf("%w: user_id is empty", ErrInvalidInput)
	}
	d, err := domains.CanonicalizeDomain(domain)
	if err != nil {
		return IssueResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	existing, err := s.Store.GetChallenge(ctx, userID, d)
	switch {
	case err == nil:
		if existing.Verified {
			return IssueResult{UserID: userID, Domain: d, AlreadyVerified: true}, nil
		}
		return IssueResult{
			UserID: userID,
			Domain: d,
			Record: domains.ExistingRecordInstruction(d, existing.Record),
		}, nil
	case errors.Is(err, sql.ErrNoRows):
		// First issuance for this pair.
	default:
		return IssueResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	token := domains.NewVerificationToken()
	record := domains.RenderRecord(domains.AttributeName(d), token)
	if _, err := s.Store.CreateChallenge(ctx, userID, d, record, token); err != nil {
		return IssueResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return IssueResult{
		UserID: userID,
		Domain: d,
		Record: domains.NewRecordInstruction(d, record),
	}, nil
}

// Outcome of a verification attempt.
type Outcome int

const (
	OutcomeNotFound Outcome = iota // no unverified challenge for the pair
	OutcomeMismatch                // DNS answered but the record is absent
	OutcomeVerified
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeMismatch:
		return "mismatch"
	default:
		return "not found"
	}
}

// Verify resolves the domain's TXT records and flips the challenge to
// verified when the stored record appears among them, exactly once.
//
// The store read, the DNS lookup, and the store write are three independent
// operations; no transaction spans the network call. Two concurrent calls
// may both observe a matching record, but the update predicate lets only
// one of them transition the row. The loser sees zero rows affected and
// still reports Verified, since the transition it wanted has happened.
//
// OutcomeNotFound covers both "never issued" and "already verified"; the
// lookup is filtered to unverified rows and callers cannot tell the two
// apart from this signal alone.
func (s *Service) Verify(ctx context.Context, userID, domain string) (Outcome, error) {
	userID = strings.TrimSpace(userID)
	d, err := domains.CanonicalizeDomain(domain)
	if userID == "" || err != nil {
		// No challenge row can exist for input issuance would have rejected.
		return OutcomeNotFound, nil
	}

	c, err := s.Store.GetUnverifiedChallenge(ctx, userID, d)
	if errors.Is(err, sql.ErrNoRows) {
		return OutcomeNotFound, nil
	}
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	records, err := s.Resolver.LookupTXT(ctx, d)
	if err != nil {
		// Not-found and infrastructure failures alike: the record cannot be
		// confirmed, the row stays unverified, the caller may retry. No
		// internal backoff.
		return OutcomeNotFound, fmt.Errorf("%w: %v", ErrResolution, err)
	}

	if !containsRecord(records, c.Record) {
		return OutcomeMismatch, nil
	}

	if _, err := s.Store.MarkVerified(ctx, userID, d); err != nil {
		return OutcomeNotFound, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return OutcomeVerified, nil
}

// containsRecord is an exact membership test. Substring matches do not
// count: "attr=token2" must never satisfy "attr=token".
func containsRecord(records []string, expected string) bool {
	for _, rec := range records {
		if rec == expected {
			return true
		}
	}
	return false
}

// Status of a (user, domain) pair.
type Status int

const (
	StatusNotFound Status = iota
	StatusPending
	StatusVerified
)

func (s Status) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusPending:
		return "pending"
	default:
		return "not found"
	}
}

// Status reports the pair's current verification state. Pure read: no DNS
// call, no side effects.
func (s *Service) Status(ctx context.Context, userID, domain string) (Status, error) {
	userID = strings.TrimSpace(userID)
	d, err := domains.CanonicalizeDomain(domain)
	if userID == "" || err != nil {
		return StatusNotFound, nil
	}

	c, err := s.Store.GetChallenge(ctx, userID, d)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusNotFound, nil
	}
	if err != nil {
		return StatusNotFound, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if c.Verified {
		return StatusVerified, nil
	}
	return StatusPending, nil
}
