package domains

import (
	"fmt"
	"strings"

	"github.com/segmentio/ksuid"
)

// Suffix appended to the per-domain attribute name. Scoping the attribute to
// the domain keeps the record from colliding with other TXT usages on the
// same zone and avoids typosquatting against a shared well-known name.
const attributeSuffix = "_verification"

// RecordInstruction tells the user which DNS record to create.
type RecordInstruction struct {
	Domain string `json:"domain"`
	Record string `json:"record"`
	Action string `json:"action"`
}

// NewVerificationToken returns a fresh challenge token. KSUIDs are unique
// with overwhelming probability and lexicographically ordered by creation
// time, so no collision handling is needed.
func NewVerificationToken() string {
	return ksuid.New().String()
}

// AttributeName derives the TXT attribute for a canonical domain:
// label separators become underscores and the verification suffix is
// appended ("example.com" -> "example_com_verification").
func AttributeName(domain string) string {
	return strings.ReplaceAll(domain, ".", "_") + attributeSuffix
}

// RenderRecord produces the exact TXT string the user must publish and the
// verifier must find: "attribute=token".
func RenderRecord(attribute, token string) string {
	return attribute + "=" + token
}

// NewRecordInstruction builds the creation instruction for a fresh challenge.
func NewRecordInstruction(domain, record string) RecordInstruction {
	return RecordInstruction{
		Domain: domain,
		Record: record,
		Action: fmt.Sprintf("Create a TXT record for the domain %s with the content %s", domain, record),
	}
}

// ExistingRecordInstruction reminds the user of a previously issued,
// still-unverified challenge.
func ExistingRecordInstruction(domain, record string) RecordInstruction {
	return RecordInstruction{
		Domain: domain,
		Record: record,
		Action: fmt.Sprintf("Use existing TXT record for the domain %s with the content %s", domain, record),
	}
}
