package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "holdings/internal/errors"
)

// DateLayout is the accepted form of date query parameters.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD query parameter.
func ParseDate(r *http.Request, name string) (time.Time, error) {
	value := strings.TrimSpace(r.URL.Query().Get(name))
	if value == "" {
		return time.Time{}, apperrors.Validation(name + " is required")
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, apperrors.Validation(name + " must be a date (YYYY-MM-DD)")
	}
	return t, nil
}

// ParseDateRange parses start and end and requires start <= end.
func ParseDateRange(r *http.Request) (start, end time.Time, err error) {
	if start, err = ParseDate(r, "start"); err != nil {
		return
	}
	if end, err = ParseDate(r, "end"); err != nil {
		return
	}
	if end.Before(start) {
		err = apperrors.Validation("end must not be before start")
	}
	return
}

// AccountID parses the {id} URL parameter.
func AccountID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("invalid account id")
	}
	return id, nil
}

// SplitTickers splits a comma-separated names parameter into trimmed,
// non-empty, sanitized tickers.
func SplitTickers(names string) []string {
	var out []string
	for _, t := range strings.Split(names, ",") {
		if t = SanitizeString(t); t != "" {
			out = append(out, strings.ToUpper(t))
		}
	}
	return out
}

// SanitizeString trims whitespace and removes control characters.
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
	return s
}
