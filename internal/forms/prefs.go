package forms

import (
	"net/url"
	"time"

	"github.com/stanstork/ssd/internal/models"
)

// ParseTimezone accepts any zone name the runtime can load.
func ParseTimezone(values url.Values) (*time.Location, Errors) {
	r := newReader(values)
	name := r.text("timezone", true, 0)
	if !r.errs.Valid() {
		return nil, r.errs
	}
	loc, err := time.LoadLocation(name)
	if err != nil || name == "Local" {
		r.errs.Add("timezone", "Invalid timezone")
		return nil, r.errs
	}
	return loc, r.errs
}

// ParseJump returns the jump_to date as YYYY-MM-DD.
func ParseJump(values url.Values) (string, Errors) {
	r := newReader(values)
	d, ok := r.date("jump_to")
	if !ok {
		return "", r.errs
	}
	return d.Format(DateLayout), r.errs
}

// searchWindow reads date_from and date_to as whole local days.
func (r *reader) searchWindow(loc *time.Location) (time.Time, time.Time) {
	from, okFrom := r.date("date_from")
	to, okTo := r.date("date_to")
	if !okFrom || !okTo {
		return time.Time{}, time.Time{}
	}
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, loc)
	if start.After(end) {
		r.errs.Set("date_from", "Start date must not be after end date")
	}
	return start, end
}

// ParseEventSearch validates the public event search form.
func ParseEventSearch(values url.Values, loc *time.Location) (models.EventSearch, Errors) {
	r := newReader(values)
	var search models.EventSearch
	search.From, search.To = r.searchWindow(loc)
	search.Text = r.text("text", false, maxSearch)

	if t := models.EventType(r.raw("type")); t != "" {
		if t != models.EventTypeIncident && t != models.EventTypeMaintenance {
			r.errs.Add("type", "Invalid event type")
		}
		search.Type = t
	}
	if s := models.EventStatus(r.raw("status")); s != "" {
		if !models.IsValidStatus(models.EventTypeIncident, s) && !models.IsValidStatus(models.EventTypeMaintenance, s) {
			r.errs.Add("status", "Invalid status")
		}
		search.Status = s
	}
	return search, r.errs
}

// ParseReportSearch validates the admin report search form.
func ParseReportSearch(values url.Values, loc *time.Location) (models.ReportSearch, Errors) {
	r := newReader(values)
	var search models.ReportSearch
	search.From, search.To = r.searchWindow(loc)
	search.Text = r.text("text", false, maxSearch)
	return search, r.errs
}
