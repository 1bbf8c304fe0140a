package analysis

import (
	"regexp"
	"strings"

	"relationship-metrics/internal/models"
)

var (
	nonDigits     = regexp.MustCompile(`\D+`)
	floatZeroTail = regexp.MustCompile(`^\s*(\d+)\.0+\s*$`)
	identitySep   = "-"
)

// DigitsOnly keeps the digits of a phone or country-code cell. Spreadsheet
// exports sometimes render integers as "886.0"; the zero fraction is dropped
// before stripping so it does not leak into the number.
func DigitsOnly(s string) string {
	if m := floatZeroTail.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return nonDigits.ReplaceAllString(s, "")
}

// NormalizeIdentity builds "{country}-{number}". The key is valid only when
// both parts keep at least one digit.
func NormalizeIdentity(countryCode, phone string) (models.CustomerKey, bool) {
	cc := DigitsOnly(countryCode)
	num := DigitsOnly(phone)
	if cc == "" || num == "" {
		return "", false
	}
	return models.CustomerKey(strings.Join([]string{cc, num}, identitySep)), true
}
