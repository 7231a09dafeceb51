// Package settings loads the runtime key/value configuration table into a
// typed struct that handlers read without touching the database.
package settings

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/repository"
)

// Settings is a snapshot of the config table.
type Settings struct {
	Notify bool

	EmailFrom                 string
	RecipientName             string
	RecipientPager            string
	EmailSubjectIncident      string
	EmailSubjectMaintenance   string
	EmailHTMLIncident         bool
	EmailHTMLMaintenance      bool
	GreetingIncidentNew       string
	GreetingIncidentUpdate    string
	GreetingMaintenanceNew    string
	GreetingMaintenanceUpdate string
	SSDURL                    string

	ReportEnabled  bool
	MessageSuccess string
	MessageError   string
	EnableUploads  bool
	UploadPath     string
	FileUploadSize int64

	LogoDisplay  bool
	LogoURL      string
	NavDisplay   bool
	LoginDisplay bool

	EscalationDisplay bool
	Escalation        string

	AlertEnabled       bool
	Alert              string
	InformationEnabled bool
	InformationMain    string

	InstrIncidentDescription    string
	InstrIncidentUpdate         string
	InstrMaintenanceDescription string
	InstrMaintenanceImpact      string
	InstrMaintenanceCoordinator string
	InstrMaintenanceUpdate      string
	InstrReportName             string
	InstrReportEmail            string
	InstrReportDetail           string
	InstrReportExtra            string
	InstrEscalationName         string
	InstrEscalationDetails      string

	HelpSchedMaint     string
	HelpReportIncident string
	HelpCreateIncident string
	HelpEscalation     string
}

type field struct {
	str  func(s *Settings) *string
	flag func(s *Settings) *bool
	num  func(s *Settings) *int64
}

func text(f func(s *Settings) *string) field { return field{str: f} }
func boolean(f func(s *Settings) *bool) field { return field{flag: f} }
func integer(f func(s *Settings) *int64) field { return field{num: f} }

var fields = map[string]field{
	"notify": boolean(func(s *Settings) *bool { return &s.Notify }),

	"email_from":                  text(func(s *Settings) *string { return &s.EmailFrom }),
	"recipient_name":              text(func(s *Settings) *string { return &s.RecipientName }),
	"recipient_pager":             text(func(s *Settings) *string { return &s.RecipientPager }),
	"email_subject_incident":      text(func(s *Settings) *string { return &s.EmailSubjectIncident }),
	"email_subject_maintenance":   text(func(s *Settings) *string { return &s.EmailSubjectMaintenance }),
	"email_format_incident":       boolean(func(s *Settings) *bool { return &s.EmailHTMLIncident }),
	"email_format_maintenance":    boolean(func(s *Settings) *bool { return &s.EmailHTMLMaintenance }),
	"greeting_incident_new":       text(func(s *Settings) *string { return &s.GreetingIncidentNew }),
	"greeting_incident_update":    text(func(s *Settings) *string { return &s.GreetingIncidentUpdate }),
	"greeting_maintenance_new":    text(func(s *Settings) *string { return &s.GreetingMaintenanceNew }),
	"greeting_maintenance_update": text(func(s *Settings) *string { return &s.GreetingMaintenanceUpdate }),
	"ssd_url":                     text(func(s *Settings) *string { return &s.SSDURL }),

	"report_incident_display": boolean(func(s *Settings) *bool { return &s.ReportEnabled }),
	"message_success":         text(func(s *Settings) *string { return &s.MessageSuccess }),
	"message_error":           text(func(s *Settings) *string { return &s.MessageError }),
	"enable_uploads":          boolean(func(s *Settings) *bool { return &s.EnableUploads }),
	"upload_path":             text(func(s *Settings) *string { return &s.UploadPath }),
	"file_upload_size":        integer(func(s *Settings) *int64 { return &s.FileUploadSize }),

	"logo_display":  boolean(func(s *Settings) *bool { return &s.LogoDisplay }),
	"logo_url":      text(func(s *Settings) *string { return &s.LogoURL }),
	"nav_display":   boolean(func(s *Settings) *bool { return &s.NavDisplay }),
	"login_display": boolean(func(s *Settings) *bool { return &s.LoginDisplay }),

	"escalation_display": boolean(func(s *Settings) *bool { return &s.EscalationDisplay }),
	"escalation":         text(func(s *Settings) *string { return &s.Escalation }),

	"alert_enabled":       boolean(func(s *Settings) *bool { return &s.AlertEnabled }),
	"alert":               text(func(s *Settings) *string { return &s.Alert }),
	"information_enabled": boolean(func(s *Settings) *bool { return &s.InformationEnabled }),
	"information_main":    text(func(s *Settings) *string { return &s.InformationMain }),

	"instr_incident_description":    text(func(s *Settings) *string { return &s.InstrIncidentDescription }),
	"instr_incident_update":         text(func(s *Settings) *string { return &s.InstrIncidentUpdate }),
	"instr_maintenance_description": text(func(s *Settings) *string { return &s.InstrMaintenanceDescription }),
	"instr_maintenance_impact":      text(func(s *Settings) *string { return &s.InstrMaintenanceImpact }),
	"instr_maintenance_coordinator": text(func(s *Settings) *string { return &s.InstrMaintenanceCoordinator }),
	"instr_maintenance_update":      text(func(s *Settings) *string { return &s.InstrMaintenanceUpdate }),
	"instr_report_name":             text(func(s *Settings) *string { return &s.InstrReportName }),
	"instr_report_email":            text(func(s *Settings) *string { return &s.InstrReportEmail }),
	"instr_report_detail":           text(func(s *Settings) *string { return &s.InstrReportDetail }),
	"instr_report_extra":            text(func(s *Settings) *string { return &s.InstrReportExtra }),
	"instr_escalation_name":         text(func(s *Settings) *string { return &s.InstrEscalationName }),
	"instr_escalation_details":      text(func(s *Settings) *string { return &s.InstrEscalationDetails }),

	"help_sched_maint":     text(func(s *Settings) *string { return &s.HelpSchedMaint }),
	"help_report_incident": text(func(s *Settings) *string { return &s.HelpReportIncident }),
	"help_create_incident": text(func(s *Settings) *string { return &s.HelpCreateIncident }),
	"help_escalation":      text(func(s *Settings) *string { return &s.HelpEscalation }),
}

// FromRows builds a Settings value from config rows. Unknown names are ignored.
func FromRows(rows []models.Setting) (Settings, error) {
	var s Settings
	for _, row := range rows {
		f, ok := fields[row.Name]
		if !ok {
			continue
		}
		switch {
		case f.str != nil:
			*f.str(&s) = row.Value
		case f.flag != nil:
			*f.flag(&s) = row.Value == "1"
		case f.num != nil:
			n, err := strconv.ParseInt(row.Value, 10, 64)
			if err != nil {
				return Settings{}, errors.Wrapf(err, "setting %s", row.Name)
			}
			*f.num(&s) = n
		}
	}
	return s, nil
}

// Store holds the current Settings snapshot and reloads it from the database on demand.
type Store struct {
	repo   repository.SettingRepository
	logger zerolog.Logger

	mu      sync.RWMutex
	current Settings
}

func NewStore(repo repository.SettingRepository, logger zerolog.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger.With().Str("component", "settings").Logger(),
	}
}

// Current returns the last loaded snapshot.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload reads the whole config table and swaps the snapshot.
func (s *Store) Reload(ctx context.Context) error {
	rows, err := s.repo.List(ctx, "")
	if err != nil {
		return err
	}
	next, err := FromRows(rows)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	s.logger.Debug().Int("settings", len(rows)).Msg("Runtime settings reloaded")
	return nil
}

// List returns the raw rows of one category for the admin config page.
func (s *Store) List(ctx context.Context, category string) ([]models.Setting, error) {
	return s.repo.List(ctx, category)
}

// Update persists the submitted values and reloads the snapshot.
func (s *Store) Update(ctx context.Context, values map[string]string) error {
	if err := s.repo.Update(ctx, values); err != nil {
		return err
	}
	return s.Reload(ctx)
}
