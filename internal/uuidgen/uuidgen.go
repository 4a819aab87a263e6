// Package uuidgen derives the deterministic UUID of an identity from
// its (source, email, name, username) tuple.
package uuidgen

import (
	"crypto/sha1"
	"encoding/hex"
	"unicode"

	"github.com/openmeld/meld/internal/meld"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// delimiter separates the tuple fields inside the hashed payload. NUL
// cannot appear in harvested identity fields, so concatenation is
// unambiguous.
const delimiter = "\x00"

var unaccenter = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Unaccent strips combining marks from s after NFD decomposition, so
// accent-only variants of the same string become equal. Case is
// preserved. Invalid input is returned unchanged.
func Unaccent(s string) string {
	out, _, err := transform.String(unaccenter, s)
	if err != nil {
		return s
	}
	return out
}

// UUID computes the identity UUID for the given tuple: the hex SHA-1 of
// the unaccented fields joined by a delimiter. Source must be non-empty
// and at least one of name, email or username must be non-empty.
func UUID(source, email, name, username string) (string, error) {
	if source == "" {
		return "", meld.InvalidValuef("source cannot be an empty string")
	}
	if email == "" && name == "" && username == "" {
		return "", meld.InvalidValuef("identity data cannot be empty: set at least one of email, name or username")
	}

	payload := Unaccent(source) + delimiter +
		Unaccent(email) + delimiter +
		Unaccent(name) + delimiter +
		Unaccent(username)

	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:]), nil
}
