package utils

import (
	"strings"
	"unicode"
)

// DisplayName is the username given to a wallet on first sign-in,
// e.g. "User 0x1234...".
func DisplayName(wallet string) string {
	wallet = strings.TrimSpace(wallet)
	if len(wallet) <= 6 {
		return "User " + wallet
	}
	return "User " + wallet[:6] + "..."
}

// Initials returns up to two uppercase initials of a candidate name.
func Initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r := []rune(word)[0]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if b.Len() >= 2 {
			break
		}
	}
	return b.String()
}

// ShortHash shortens a transaction hash or address to 0x1234...abcd.
func ShortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:6] + "..." + hash[len(hash)-4:]
}
