package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/authz"
	"github.com/stanstork/ssd/internal/forms"
	"github.com/stanstork/ssd/internal/settings"
)

//go:embed templates
var templateFS embed.FS

const (
	timezoneCookie = "timezone"
	timezoneMaxAge = 5 * 365 * 24 * 60 * 60

	displayTime = "2006-01-02 15:04 MST"
)

type SettingsSource interface {
	Current() settings.Settings
}

// page is what a handler hands to the renderer; layout fields are filled in by Render.
type page struct {
	Title  string
	Values url.Values
	Errors forms.Errors
	Data   interface{}
}

type layout struct {
	page
	Settings settings.Settings
	Identity authz.Identity
	SignedIn bool
	Location *time.Location
	Path     string
}

// Renderer executes the embedded page templates inside the shared layout.
type Renderer struct {
	pages    map[string]*template.Template
	settings SettingsSource
	fallback *time.Location
	logger   zerolog.Logger
}

func NewRenderer(source SettingsSource, fallback *time.Location, logger zerolog.Logger) (*Renderer, error) {
	base, err := template.New("layout").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	files, err := fs.Glob(templateFS, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	pages := make(map[string]*template.Template, len(files))
	for _, file := range files {
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := clone.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		pages[strings.TrimSuffix(path.Base(file), ".html")] = clone
	}

	if fallback == nil {
		fallback = time.UTC
	}
	return &Renderer{
		pages:    pages,
		settings: source,
		fallback: fallback,
		logger:   logger.With().Str("component", "renderer").Logger(),
	}, nil
}

// Location returns the viewer's zone from the timezone cookie, or the server default.
func (rd *Renderer) Location(r *http.Request) *time.Location {
	c, err := r.Cookie(timezoneCookie)
	if err != nil || c.Value == "" {
		return rd.fallback
	}
	name, err := url.QueryUnescape(c.Value)
	if err != nil {
		return rd.fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil || name == "Local" {
		return rd.fallback
	}
	return loc
}

// Render writes the named page. Rendering happens into a buffer so a template
// failure still produces a clean 500.
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	tmpl, ok := rd.pages[name]
	if !ok {
		rd.logger.Error().Str("page", name).Msg("Unknown page template")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data := layout{
		page:     p,
		Settings: rd.settings.Current(),
		Location: rd.Location(r),
		Path:     r.URL.Path,
	}
	data.Identity, data.SignedIn = authz.IdentityFromRequest(r)
	if data.Values == nil {
		data.Values = url.Values{}
	}
	if data.Title == "" {
		data.Title = "System Status Dashboard"
	} else {
		data.Title = "System Status Dashboard | " + data.Title
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		rd.logger.Error().Err(err).Str("page", name).Msg("Failed to render page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

type systemMessage struct {
	Error   bool
	Message string
}

// Message renders the system message page used for every non-form failure and confirmation.
func (rd *Renderer) Message(w http.ResponseWriter, r *http.Request, status int, isError bool, message string) {
	rd.Render(w, r, status, "message", page{
		Title: "System Message",
		Data:  systemMessage{Error: isError, Message: message},
	})
}

func (rd *Renderer) Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	rd.Message(w, r, status, true, message)
}

var templateFuncs = template.FuncMap{
	"when": func(v interface{}, loc *time.Location) string {
		switch t := v.(type) {
		case time.Time:
			if t.IsZero() {
				return ""
			}
			return t.In(loc).Format(displayTime)
		case *time.Time:
			if t == nil {
				return ""
			}
			return t.In(loc).Format(displayTime)
		}
		return ""
	},
	"date": func(t time.Time) string {
		return t.Format(forms.DateLayout)
	},
	"dateIn": func(t time.Time, loc *time.Location) string {
		return t.In(loc).Format(forms.DateLayout)
	},
	"clockIn": func(t time.Time, loc *time.Location) string {
		return t.In(loc).Format(forms.TimeLayout)
	},
	// selected reports whether id is among the submitted values of field.
	"selected": func(values url.Values, field string, id int64) bool {
		want := strconv.FormatInt(id, 10)
		for _, v := range values[field] {
			if v == want {
				return true
			}
		}
		return false
	},
	"lines": func(s string) []string {
		return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	},
}

// formValues seeds a form's values from stored data on a GET.
func formValues(pairs ...string) url.Values {
	values := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		values.Set(pairs[i], pairs[i+1])
	}
	return values
}

func idValues(values url.Values, field string, ids []int64) {
	for _, id := range ids {
		values.Add(field, strconv.FormatInt(id, 10))
	}
}

func flagValue(b bool) string {
	if b {
		return "1"
	}
	return ""
}
