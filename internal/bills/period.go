package bills

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"telephone-billing/internal/apperr"
)

var (
	ErrPeriodFormat    = errors.New("bills: invalid reference period format")
	ErrPeriodNotClosed = errors.New("bills: reference period not closed")
)

const (
	PeriodFormatMessage = "Invalid reference period format. Try one of the following: " +
		"MM/YYYY, MM-YYYY, MM:YYYY, MM.YYYY where MM is the month and YYYY is the year."
	PeriodNotClosedMessage = "Invalid reference period. It's only possible to get a " +
		"telephone bill after the reference period has ended."
)

var periodPattern = regexp.MustCompile(`^(\d{1,2})[/\-:.](\d{4})$`)

// ParsePeriod parses MM/YYYY, MM-YYYY, MM:YYYY or MM.YYYY.
func ParsePeriod(raw string) (Period, error) {
	m := periodPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Period{}, periodFormatError()
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || year < 1 {
		return Period{}, periodFormatError()
	}
	return Period{Month: time.Month(month), Year: year}, nil
}

// ResolvePeriod turns the optional reference query value into a closed period.
// An empty value means the last month that has fully ended at now.
func ResolvePeriod(raw string, now time.Time, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	if strings.TrimSpace(raw) == "" {
		prev := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0)
		return Period{Month: prev.Month(), Year: prev.Year()}, nil
	}

	p, err := ParsePeriod(raw)
	if err != nil {
		return Period{}, err
	}
	if _, to := p.Bounds(loc); to.After(local) {
		return Period{}, apperr.New(ErrPeriodNotClosed, "", PeriodNotClosedMessage)
	}
	return p, nil
}

func periodFormatError() error {
	return apperr.New(ErrPeriodFormat, "", PeriodFormatMessage)
}
