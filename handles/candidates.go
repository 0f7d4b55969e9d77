package handles

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var platformAliases = map[string]string{
	"x": "twitter",
}

// NormalizePlatform lowercases the platform and maps aliases to their registry name.
func NormalizePlatform(platform string) string {
	p := strings.ToLower(strings.TrimSpace(platform))
	if alias, ok := platformAliases[p]; ok {
		return alias
	}
	return p
}

// Candidates returns the spellings a handle may have been registered under:
// as typed, lower, upper and title case, without a leading @ and without duplicates.
func Candidates(username string) []string {
	base := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if base == "" {
		return nil
	}

	seen := make(map[string]struct{}, 4)
	out := make([]string, 0, 4)
	for _, c := range []string{base, strings.ToLower(base), strings.ToUpper(base), title(base)} {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func title(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// HandleKey is the registry mapping key keccak256(platform ":" username).
func HandleKey(platform, username string) common.Hash {
	return crypto.Keccak256Hash([]byte(platform), []byte(":"), []byte(username))
}
