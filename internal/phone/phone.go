// Package phone validates subscriber numbers against the national numbering plan.
package phone

import (
	"errors"
	"regexp"

	"telephone-billing/internal/apperr"
)

// Area code (2 digits) followed by an 8-digit landline number starting with 2-8,
// or a 9-digit mobile number starting with 9 and a non-zero digit.
var numberPattern = regexp.MustCompile(`^[1-9]{2}(?:[2-8]|9[1-9])[0-9]{7}$`)

const InvalidFormatMessage = "Invalid phone number. Valid format is composed of 10 or 11 " +
	"digits. ie: AAXXXXXXXXX, where AA is the area code and XXXXXXXXX is the phone number"

var ErrInvalidFormat = errors.New("phone: invalid format")

// Validate reports whether number follows the numbering plan.
func Validate(number string) error {
	return ValidateField("", number)
}

// ValidateField is Validate with the failure keyed by field (e.g. "source").
func ValidateField(field, number string) error {
	if numberPattern.MatchString(number) {
		return nil
	}
	return apperr.New(ErrInvalidFormat, field, InvalidFormatMessage)
}
