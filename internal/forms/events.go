package forms

import (
	"net/url"
	"time"

	"github.com/stanstork/ssd/internal/settings"
)

const (
	maxDescription = 160
	maxExtra       = 1000
	maxUpdate      = 1000
	maxSearch      = 100

	msgBroadcastNoRecipient = "Cannot broadcast if no address selected"
	msgCompletedNotStarted  = "Maintenance cannot be completed if not started"
	msgStartAfterEnd        = "Maintenance start must not be after maintenance end"
)

// Notification is the broadcast part shared by every event form.
type Notification struct {
	Broadcast   bool
	RecipientID *int64
}

func (r *reader) notification() Notification {
	n := Notification{
		Broadcast:   r.flag("broadcast"),
		RecipientID: r.optionalID("recipient_id"),
	}
	if n.Broadcast && n.RecipientID == nil {
		r.errs.Set("broadcast", msgBroadcastNoRecipient)
	}
	return n
}

// window reads s_date/s_time and e_date/e_time and checks their order.
func (r *reader) window(loc *time.Location) (time.Time, time.Time) {
	start, okStart := r.dateTime("s_date", "s_time", loc)
	end, okEnd := r.dateTime("e_date", "e_time", loc)
	if okStart && okEnd && start.After(end) {
		r.errs.Set("s_date", msgStartAfterEnd)
		r.errs.Set("e_date", msgStartAfterEnd)
	}
	return start, end
}

type IncidentForm struct {
	Start       time.Time
	Description string
	ServiceIDs  []int64
	Notification
}

func ParseIncident(values url.Values, current settings.Settings, loc *time.Location) (IncidentForm, Errors) {
	r := newReader(values)
	f := IncidentForm{
		Start:       r.at("date", "time", loc),
		Description: r.text("description", true, maxDescription),
		ServiceIDs:  r.ids("service"),
	}
	f.Notification = r.notification()
	r.notPlaceholder("description", f.Description, current.InstrIncidentDescription, "Please provide a description")
	return f, r.errs
}

type IncidentUpdateForm struct {
	ID         int64
	UpdatedAt  time.Time
	Update     string
	ServiceIDs []int64
	Closed     bool
	Notification
}

func ParseIncidentUpdate(values url.Values, current settings.Settings, loc *time.Location) (IncidentUpdateForm, Errors) {
	r := newReader(values)
	f := IncidentUpdateForm{
		ID:         r.id("id"),
		UpdatedAt:  r.at("date", "time", loc),
		Update:     r.text("update", true, maxUpdate),
		ServiceIDs: r.ids("service"),
		Closed:     r.flag("closed"),
	}
	f.Notification = r.notification()
	r.notPlaceholder("update", f.Update, current.InstrIncidentUpdate, "Please provide an update")
	return f, r.errs
}

type MaintenanceForm struct {
	Start       time.Time
	End         time.Time
	Description string
	Impact      string
	Coordinator string
	ServiceIDs  []int64
	Notification
}

func ParseMaintenance(values url.Values, current settings.Settings, loc *time.Location) (MaintenanceForm, Errors) {
	r := newReader(values)
	var f MaintenanceForm
	f.Start, f.End = r.window(loc)
	f.Description = r.text("description", true, maxDescription)
	f.Impact = r.text("impact", true, maxExtra)
	f.Coordinator = r.text("coordinator", true, maxDescription)
	f.ServiceIDs = r.ids("service")
	f.Notification = r.notification()

	r.notPlaceholder("description", f.Description, current.InstrMaintenanceDescription, "Please provide a maintenance description")
	r.notPlaceholder("impact", f.Impact, current.InstrMaintenanceImpact, "Please provide an impact analysis")
	r.notPlaceholder("coordinator", f.Coordinator, current.InstrMaintenanceCoordinator, "Please provide a maintenance coordinator")
	return f, r.errs
}

type MaintenanceUpdateForm struct {
	ID        int64
	UpdatedAt time.Time
	Update    string
	Started   bool
	Completed bool
	MaintenanceForm
}

// ParseMaintenanceUpdate validates the maintenance update form. now stamps the update entry.
func ParseMaintenanceUpdate(values url.Values, current settings.Settings, loc *time.Location, now time.Time) (MaintenanceUpdateForm, Errors) {
	r := newReader(values)
	f := MaintenanceUpdateForm{ID: r.id("id"), UpdatedAt: now}
	f.Start, f.End = r.window(loc)
	f.Description = r.text("description", true, maxDescription)
	f.Impact = r.text("impact", true, maxExtra)
	f.Coordinator = r.text("coordinator", true, maxDescription)
	f.Update = r.text("update", true, maxUpdate)
	f.ServiceIDs = r.ids("service")
	f.Started = r.flag("started")
	f.Completed = r.flag("completed")
	f.Notification = r.notification()

	if f.Completed && !f.Started {
		r.errs.Set("started", msgCompletedNotStarted)
		r.errs.Set("completed", msgCompletedNotStarted)
	}
	r.notPlaceholder("description", f.Description, current.InstrMaintenanceDescription, "You must enter a description (reset to previous value)")
	r.notPlaceholder("impact", f.Impact, current.InstrMaintenanceImpact, "You must enter an impact analysis (reset to previous value)")
	r.notPlaceholder("coordinator", f.Coordinator, current.InstrMaintenanceCoordinator, "You must enter a maintenance coordinator (reset to previous value)")
	r.notPlaceholder("update", f.Update, current.InstrMaintenanceUpdate, "You must enter an update")
	return f, r.errs
}

// at is dateTime without the ok flag; failures are already recorded in r.errs.
func (r *reader) at(dateField, timeField string, loc *time.Location) time.Time {
	t, _ := r.dateTime(dateField, timeField, loc)
	return t
}
