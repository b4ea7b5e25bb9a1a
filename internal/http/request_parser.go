// Package http provides the versioned JSON API.
//
// This file implements utilities for parsing and validating request data:
// JSON bodies, path IDs, dates and month parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"ikpa/internal/apperr"
	"ikpa/internal/auth"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

const dateLayout = "2006-01-02"

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// Bounds returns the first instant of the month and of the next one, in UTC.
func (p MonthParams) Bounds() (time.Time, time.Time) {
	from := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

// ParseMonthParams extracts year and month from query parameters, using now
// as the default. Present but malformed values are rejected.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 2000 || y > 2100 {
			return MonthParams{}, apperr.Validation("year must be between 2000 and 2100")
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return MonthParams{}, apperr.Validation("month must be between 1 and 12")
		}
		params.Month = m
	}

	return params, nil
}

// decodeJSON reads a single JSON object into v. Unknown fields and trailing
// data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is empty")
		case errors.As(err, &maxErr):
			return apperr.Validation("request body is too large")
		default:
			return apperr.Validation("invalid JSON body").WithDetail("reason", err.Error())
		}
	}
	if dec.More() {
		return apperr.Validation("request body must contain a single JSON object")
	}
	return nil
}

// pathID reads a positive integer route variable.
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(fmt.Sprintf("%s must be a positive integer", name)).WithDetail(name, raw)
	}
	return id, nil
}

// currentUser returns the authenticated user. Routes behind the auth
// middleware always have one.
func currentUser(r *http.Request) (int64, error) {
	id, ok := auth.UserIDFrom(r.Context())
	if !ok {
		return 0, apperr.Unauthorized("missing or invalid access token")
	}
	return id, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339. An empty string yields the zero
// time.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apperr.Validation(field + " must be a date (YYYY-MM-DD)").WithDetail(field, s)
}

// queryBool reads a boolean flag; anything unparsable is false.
func queryBool(query url.Values, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(query.Get(key)))
	return b
}
