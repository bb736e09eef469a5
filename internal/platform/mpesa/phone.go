package mpesa

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidPhone = errors.New("invalid phone number")

	msisdnRe   = regexp.MustCompile(`^254(7|1)\d{8}$`)
	phoneStrip = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// NormalizePhone converts local and international Kenyan formats
// (07.., 01.., 7.., +254.., 254..) to 254XXXXXXXXX.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimPrefix(phoneStrip.Replace(strings.TrimSpace(raw)), "+")
	switch {
	case strings.HasPrefix(s, "254"):
	case strings.HasPrefix(s, "0") && len(s) == 10:
		s = "254" + s[1:]
	case len(s) == 9 && (s[0] == '7' || s[0] == '1'):
		s = "254" + s
	}
	if !msisdnRe.MatchString(s) {
		return "", ErrInvalidPhone
	}
	return s, nil
}
