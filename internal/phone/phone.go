// Package phone canonicalizes Iranian mobile numbers.
//
// The canonical form is the bare 10-digit subscriber number with a leading
// "9" and no country code or trunk "0": 9123456789.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CountryCode     = "98"
	canonicalLength = 10
)

var (
	ErrEmpty   = errors.New("phone number is empty")
	ErrInvalid = errors.New("phone number is not a valid mobile number")
)

// Digits strips everything but ASCII and Persian/Arabic-Indic digits, mapping
// the latter to ASCII.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= '۰' && r <= '۹':
			b.WriteRune('0' + (r - '۰'))
		case r >= '٠' && r <= '٩':
			b.WriteRune('0' + (r - '٠'))
		}
	}
	return b.String()
}

// Canonical normalizes raw into the canonical 10-digit form.
//
//	09123456789    -> 9123456789
//	989123456789   -> 9123456789
//	+98 912 345 6789 -> 9123456789
//	00989123456789 -> 9123456789
//	912345678      -> 0912345678 -> rejected (does not start with 9)
func Canonical(raw string) (string, error) {
	d := Digits(raw)
	if d == "" {
		return "", ErrEmpty
	}

	switch {
	case len(d) == 14 && strings.HasPrefix(d, "00"+CountryCode):
		d = d[4:]
	case len(d) == 12 && strings.HasPrefix(d, CountryCode):
		d = d[2:]
	case len(d) == 11 && strings.HasPrefix(d, "0"):
		d = d[1:]
	}

	if len(d) < canonicalLength {
		d = strings.Repeat("0", canonicalLength-len(d)) + d
	}
	if len(d) != canonicalLength || d[0] != '9' {
		return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	return d, nil
}

// International renders a canonical number as +98XXXXXXXXXX for the login form.
func International(canonical string) string {
	return "+" + CountryCode + canonical
}

// Grouped renders a canonical number the way the add-contact form expects it
// to be typed: "+98 912 345 6789".
func Grouped(canonical string) string {
	if len(canonical) != canonicalLength {
		return "+" + CountryCode + " " + canonical
	}
	return fmt.Sprintf("+%s %s %s %s", CountryCode, canonical[:3], canonical[3:6], canonical[6:])
}

// ForLogin converts operator input into the +98 form. Inputs that are not
// canonicalizable fall back to the lenient rule of prefixing +98 after
// dropping a trunk 0, so numbers of other shapes still reach the login form.
func ForLogin(raw string) string {
	raw = strings.TrimSpace(raw)
	if c, err := Canonical(raw); err == nil {
		return International(c)
	}
	switch {
	case strings.HasPrefix(raw, "+"):
		return raw
	case strings.HasPrefix(raw, "0"):
		return "+" + CountryCode + raw[1:]
	default:
		return "+" + CountryCode + raw
	}
}
