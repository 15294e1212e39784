package phone

import (
	"errors"
	"testing"

	"telephone-billing/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Accepts(t *testing.T) {
	for _, n := range []string{
		"99988526423", // mobile, 11 digits
		"9933468278",  // landline, 10 digits
		"11987665433",
		"1133468279",
		"2128736537",
	} {
		assert.NoError(t, Validate(n), n)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]string{
		"too short":                 "99988526",
		"too long":                  "9998852600000",
		"letters":                   "darth vader",
		"mobile without nine":       "1199526423",
		"area code starting with 0": "0133468278",
		"mobile nine then zero":     "11908765432",
		"landline starting with 1":  "1113468278",
		"empty":                     "",
		"trailing space":            "9933468278 ",
	}
	for name, n := range cases {
		t.Run(name, func(t *testing.T) {
			err := Validate(n)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFormat))
		})
	}
}

func TestValidateField_KeysError(t *testing.T) {
	err := ValidateField("destination", "99988")
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "destination", ae.Field)
	assert.Contains(t, ae.Message, "Invalid phone number.")
}
