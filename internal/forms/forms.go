// Package forms validates submitted HTML forms. Every parser returns the
// typed values it could read plus field-level Errors; the caller re-renders
// the form when Errors is not empty.
package forms

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

const (
	msgRequired     = "This field is required."
	msgNoData       = "No data entered"
	msgInvalidChars = "Invalid characters entered"
	msgBadDate      = "Enter a valid date."
	msgBadTime      = "Enter a valid time."
	msgBadNumber    = "Enter a whole number."
	msgBadEmail     = "Enter a valid email address."
	msgNoService    = "No service entered"
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
	idPattern   = regexp.MustCompile(`^\d+$`)
	namePattern = regexp.MustCompile(`^[a-zA-Z\s]+$`)

	validate = validator.New()
)

// Errors maps a field name to its error message. The first error recorded for a field wins.
type Errors map[string]string

func (e Errors) Add(field, message string) {
	if _, exists := e[field]; !exists {
		e[field] = message
	}
}

// Set replaces any earlier error on the field.
func (e Errors) Set(field, message string) {
	e[field] = message
}

func (e Errors) Get(field string) string {
	return e[field]
}

func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

func (e Errors) Valid() bool {
	return len(e) == 0
}

// IsEmail reports whether s is a single valid email address.
func IsEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

// ParseID parses a decimal id, rejecting signs, spaces and empty input.
func ParseID(s string) (int64, bool) {
	if !idPattern.MatchString(s) {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil
}

type reader struct {
	values url.Values
	errs   Errors
}

func newReader(values url.Values) *reader {
	return &reader{values: values, errs: Errors{}}
}

func (r *reader) raw(field string) string {
	return strings.TrimSpace(r.values.Get(field))
}

// text reads a trimmed string. A limit <= 0 means unlimited.
func (r *reader) text(field string, required bool, limit int) string {
	v := r.raw(field)
	if required && v == "" {
		r.errs.Add(field, msgRequired)
		return v
	}
	if limit > 0 && len(v) > limit {
		r.errs.Add(field, "Data entered is greater than "+strconv.Itoa(limit)+" characters")
	}
	return v
}

// name reads a person's name: letters and whitespace only.
func (r *reader) name(field string) string {
	v := r.raw(field)
	switch {
	case v == "":
		r.errs.Add(field, msgNoData)
	case !namePattern.MatchString(v):
		r.errs.Add(field, msgInvalidChars)
	}
	return v
}

func (r *reader) email(field string, required bool) string {
	v := r.raw(field)
	if v == "" {
		if required {
			r.errs.Add(field, msgRequired)
		}
		return v
	}
	if !IsEmail(v) {
		r.errs.Add(field, msgBadEmail)
	}
	return v
}

func (r *reader) date(field string) (time.Time, bool) {
	v := r.raw(field)
	if v == "" {
		r.errs.Add(field, msgRequired)
		return time.Time{}, false
	}
	if !datePattern.MatchString(v) {
		r.errs.Add(field, msgBadDate)
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, v)
	if err != nil {
		r.errs.Add(field, msgBadDate)
		return time.Time{}, false
	}
	return d, true
}

func (r *reader) clock(field string) (time.Time, bool) {
	v := r.raw(field)
	if v == "" {
		r.errs.Add(field, msgRequired)
		return time.Time{}, false
	}
	if !timePattern.MatchString(v) {
		r.errs.Add(field, msgBadTime)
		return time.Time{}, false
	}
	t, err := time.Parse(TimeLayout, v)
	if err != nil {
		r.errs.Add(field, msgBadTime)
		return time.Time{}, false
	}
	return t, true
}

// dateTime combines a date field and a time field into one instant in loc.
func (r *reader) dateTime(dateField, timeField string, loc *time.Location) (time.Time, bool) {
	d, okDate := r.date(dateField)
	c, okTime := r.clock(timeField)
	if !okDate || !okTime {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, loc), true
}

func (r *reader) id(field string) int64 {
	v := r.raw(field)
	if v == "" {
		r.errs.Add(field, msgRequired)
		return 0
	}
	id, ok := ParseID(v)
	if !ok {
		r.errs.Add(field, msgBadNumber)
	}
	return id
}

// optionalID returns nil for an empty field.
func (r *reader) optionalID(field string) *int64 {
	v := r.raw(field)
	if v == "" {
		return nil
	}
	id, ok := ParseID(v)
	if !ok {
		r.errs.Add(field, msgBadNumber)
		return nil
	}
	return &id
}

// flag reads a checkbox. Absent, empty, "0", "off" and "false" are false.
func (r *reader) flag(field string) bool {
	switch strings.ToLower(r.raw(field)) {
	case "", "0", "off", "false":
		return false
	}
	return true
}

// ids reads every numeric value of a multi-valued field. Non-numeric values are dropped.
func (r *reader) ids(field string) []int64 {
	var ids []int64
	for _, v := range r.values[field] {
		if id, ok := ParseID(strings.TrimSpace(v)); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		r.errs.Add(field, msgNoService)
	}
	return ids
}

// notPlaceholder rejects a value that still equals the configured instructional text.
func (r *reader) notPlaceholder(field, value, placeholder, message string) {
	if placeholder != "" && value == placeholder {
		r.errs.Set(field, message)
	}
}
