package shared

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// EmailRef returns a short stable digest of an email address so log lines for
// the same subscriber can be correlated without storing the address.
func EmailRef(email string) string {
	sum := blake2b.Sum256([]byte(strings.ToLower(email)))
	return hex.EncodeToString(sum[:6])
}

// RedactEmail masks the local part of an address: "john@example.com" becomes
// "jo***@example.com". Local parts of two runes or fewer are fully masked.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return "***@***"
	}
	runes := []rune(local)
	if len(runes) > 2 {
		return string(runes[:2]) + "***@" + domain
	}
	return "***@" + domain
}
