package forms

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/stanstork/ssd/internal/escalation"
	"github.com/stanstork/ssd/internal/models"
)

const (
	maxServiceName    = 50
	maxContactName    = 50
	maxContactDetails = 160
)

type LoginForm struct {
	Username string
	Password string
	Next     string
}

func ParseLogin(values url.Values) (LoginForm, Errors) {
	r := newReader(values)
	f := LoginForm{
		Username: r.text("username", true, 0),
		Password: r.values.Get("password"),
		Next:     r.raw("next"),
	}
	if f.Password == "" {
		r.errs.Add("password", msgRequired)
	}
	// only local redirects
	if !strings.HasPrefix(f.Next, "/") || strings.HasPrefix(f.Next, "//") {
		f.Next = ""
	}
	return f, r.errs
}

func ParseRecipient(values url.Values) (string, Errors) {
	r := newReader(values)
	return r.email("recipient", true), r.errs
}

func ParseService(values url.Values) (string, Errors) {
	r := newReader(values)
	return r.text("service", true, maxServiceName), r.errs
}

// ParseIDList reads the repeated id field of the bulk delete forms.
func ParseIDList(values url.Values) ([]int64, Errors) {
	r := newReader(values)
	return r.ids("id"), r.errs
}

// ParseDelete reads the id of an event or report delete request.
func ParseDelete(values url.Values) (int64, Errors) {
	r := newReader(values)
	return r.id("id"), r.errs
}

type ContactForm struct {
	Name    string
	Details string
}

func ParseContact(values url.Values) (ContactForm, Errors) {
	r := newReader(values)
	f := ContactForm{
		Name:    r.text("name", true, maxContactName),
		Details: r.text("contact_details", true, maxContactDetails),
	}
	return f, r.errs
}

type ContactModifyForm struct {
	ID     int64
	Action string
}

func ParseContactModify(values url.Values) (ContactModifyForm, Errors) {
	r := newReader(values)
	f := ContactModifyForm{ID: r.id("id"), Action: r.raw("action")}
	switch f.Action {
	case escalation.ActionUp, escalation.ActionDown, escalation.ActionHide, escalation.ActionShow, escalation.ActionDelete:
	default:
		r.errs.Add("action", "Invalid action")
	}
	return f, r.errs
}

// emailSettings are the settings that must hold an email address when set.
var emailSettings = map[string]bool{
	"email_from":      true,
	"recipient_pager": true,
}

// ParseConfig validates submitted values for the known settings in rows. Only
// fields present in values are returned; unknown names are ignored.
func ParseConfig(values url.Values, rows []models.Setting) (map[string]string, Errors) {
	errs := Errors{}
	updates := make(map[string]string)
	current := make(map[string]string, len(rows))

	for _, row := range rows {
		current[row.Name] = row.Value
		if _, submitted := values[row.Name]; !submitted {
			continue
		}
		v := strings.TrimSpace(values.Get(row.Name))

		switch row.Display {
		case "boolean":
			if v != "0" && v != "1" {
				errs.Add(row.Name, "Value must be 0 or 1")
				continue
			}
		case "integer":
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				errs.Add(row.Name, msgBadNumber)
				continue
			}
		}
		if emailSettings[row.Name] && v != "" && !IsEmail(v) {
			errs.Add(row.Name, msgBadEmail)
			continue
		}
		updates[row.Name] = v
	}

	effective := func(name string) string {
		if v, ok := updates[name]; ok {
			return v
		}
		return current[name]
	}
	if size, err := strconv.ParseInt(effective("file_upload_size"), 10, 64); err == nil && size < 100 {
		errs.Add("file_upload_size", "Size must be at least 100")
	}
	if effective("enable_uploads") == "1" && effective("upload_path") == "" {
		errs.Add("upload_path", "You must set a file upload path")
	}
	return updates, errs
}
