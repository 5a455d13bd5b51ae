// Package phone renders a destination MSISDN in the formats each upstream
// provider expects, and fails loudly on anything it cannot coerce to exactly
// ten national digits.
package phone

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidNumber is returned when the input cannot be normalized to exactly
// ten national digits.
var ErrInvalidNumber = errors.New("phone: cannot normalize to ten national digits")

const countryCode = "254"

var nonDigit = regexp.MustCompile(`\D`)

// National strips a leading international prefix (plain or "+"-prefixed) and
// returns the number in national form: a leading "0" followed by nine more
// digits, ten digits total.
func National(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "+"+countryCode):
		s = "0" + nonDigit.ReplaceAllString(s[len("+"+countryCode):], "")
	case strings.HasPrefix(s, countryCode):
		s = "0" + nonDigit.ReplaceAllString(s[len(countryCode):], "")
	case strings.HasPrefix(s, "0"):
		s = "0" + nonDigit.ReplaceAllString(s[1:], "")
	default:
		s = nonDigit.ReplaceAllString(s, "")
		if len(s) == 9 {
			// bare subscriber number with no leading 0 and no country code
			s = "0" + s
		}
	}

	if len(s) != 10 || s[0] != '0' {
		return "", ErrInvalidNumber
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", ErrInvalidNumber
		}
	}
	return s, nil
}

// DealerDirect renders destination as the nine-digit subscriber number the
// dealer-direct API expects: no leading zero, no country code
// (e.g. "712345678").
func DealerDirect(raw string) (string, error) {
	national, err := National(raw)
	if err != nil {
		return "", err
	}
	return national[1:], nil
}

// Aggregator renders destination in E.164 form with a leading "+" and country
// code, as the aggregator API expects (e.g. "+254712345678").
func Aggregator(raw string) (string, error) {
	national, err := National(raw)
	if err != nil {
		return "", err
	}
	return "+" + countryCode + national[1:], nil
}
