// Package domains holds the DNS side of domain ownership verification:
// canonical domain handling, challenge record generation, and TXT
// resolution.
package domains

import (
	"fmt"
	"regexp"
	"strings"
)

// Hostname shape only: lowercase labels separated by dots, at least one
// label plus a TLD of two or more letters.
var hostnameRE = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}$`)

// CanonicalizeDomain normalizes a caller-supplied domain into the form the
// store keys on: trimmed, lowercased, without a trailing dot. The result is
// validated as a bare hostname so that URLs, paths, and junk never become
// challenge rows.
func CanonicalizeDomain(raw string) (string, error) {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), ".")
	if d == "" {
		return "", fmt.Errorf("domain is empty")
	}
	if !hostnameRE.MatchString(d) {
		return "", fmt.Errorf("invalid domain: %q", raw)
	}
	return d, nil
}
