package handlers

import (
	"context"
	"database/sql"
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/forms"
	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/repository"
	"github.com/stanstork/ssd/internal/uploads"
)

const (
	msgReportDisabled = "Your system administrator has disabled this functionality"
	recentReports     = 5
	multipartMemory   = 8 << 20

	// maxReportBody caps a report request; oversized screenshots below it are
	// rejected by form validation instead.
	maxReportBody = 64 << 20
)

// Pager sends a short alert to the configured pager address.
type Pager interface {
	Page(ctx context.Context, message string) error
}

// Invalidator drops cached dashboard views after a write.
type Invalidator interface {
	Invalidate()
}

type ReportHandler struct {
	reports  repository.ReportRepository
	uploads  *uploads.Store
	pager    Pager
	cache    Invalidator
	settings SettingsSource
	render   *Renderer
	logger   zerolog.Logger
	now      func() time.Time
}

func NewReportHandler(
	reports repository.ReportRepository,
	store *uploads.Store,
	pager Pager,
	cache Invalidator,
	source SettingsSource,
	render *Renderer,
	logger zerolog.Logger,
) *ReportHandler {
	return &ReportHandler{
		reports:  reports,
		uploads:  store,
		pager:    pager,
		cache:    cache,
		settings: source,
		render:   render,
		logger:   logger.With().Str("handler", "report").Logger(),
		now:      time.Now,
	}
}

func (h *ReportHandler) Form(w http.ResponseWriter, r *http.Request) {
	if !h.settings.Current().ReportEnabled {
		h.render.Error(w, r, http.StatusOK, msgReportDisabled)
		return
	}
	h.render.Render(w, r, http.StatusOK, "report", page{Title: "Report Incident"})
}

func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	current := h.settings.Current()
	if !current.ReportEnabled {
		h.render.Error(w, r, http.StatusOK, msgReportDisabled)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, reportBodyLimit(current.FileUploadSize))
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.render.Error(w, r, http.StatusRequestEntityTooLarge, forms.FileTooLarge(current.FileUploadSize))
			return
		}
		h.render.Error(w, r, http.StatusBadRequest, "Invalid request")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	var files map[string][]*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File
	}
	form, errs := forms.ParseReport(r.PostForm, files, current)
	if !errs.Valid() {
		h.render.Render(w, r, http.StatusOK, "report", page{Title: "Report Incident", Values: r.PostForm, Errors: errs})
		return
	}

	report := models.Report{
		CreatedAt: h.now(),
		Name:      form.Name,
		Email:     form.Email,
		Detail:    form.Detail,
		Extra:     form.Extra,
	}
	var stored []string
	for i, field := range forms.ScreenshotFields {
		header := form.Screenshots[field]
		if header == nil {
			continue
		}
		rel, err := h.saveUpload(current.UploadPath, header)
		if err != nil {
			h.logger.Error().Err(err).Str("field", field).Msg("Failed to store screenshot")
			h.discardUploads(current.UploadPath, stored)
			h.render.Error(w, r, http.StatusInternalServerError, err.Error())
			return
		}
		stored = append(stored, rel)
		if i == 0 {
			report.Screenshot1 = rel
		} else {
			report.Screenshot2 = rel
		}
	}

	saved, err := h.reports.Create(r.Context(), report)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to save report")
		h.discardUploads(current.UploadPath, stored)
		h.render.Error(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.cache.Invalidate()
	h.logger.Info().Int64("report_id", saved.ID).Msg("Report received")

	if current.Notify {
		if err := h.pager.Page(r.Context(), form.Detail); err != nil {
			h.logger.Warn().Err(err).Int64("report_id", saved.ID).Msg("Pager notification failed")
			h.render.Error(w, r, http.StatusOK, current.MessageError+": "+err.Error())
			return
		}
	}
	h.render.Message(w, r, http.StatusOK, false, current.MessageSuccess)
}

// reportBodyLimit is maxReportBody, raised when two screenshots at the configured size would not fit.
func reportBodyLimit(uploadSize int64) int64 {
	if need := 2*uploadSize + 1<<20; need > maxReportBody {
		return need
	}
	return maxReportBody
}

// discardUploads removes screenshots stored for a report that was not saved.
func (h *ReportHandler) discardUploads(root string, rels []string) {
	for _, rel := range rels {
		if err := h.uploads.Remove(root, rel); err != nil {
			h.logger.Warn().Err(err).Str("path", rel).Msg("Failed to remove orphaned screenshot")
		}
	}
}

func (h *ReportHandler) saveUpload(root string, header *multipart.FileHeader) (string, error) {
	f, err := header.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return h.uploads.Save(root, header.Filename, f)
}

type reportList struct {
	Searched bool
	Reports  []models.Report
}

// Search lists reports whose detail matches within the submitted date window.
func (h *ReportHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	p := page{Title: "Search Reports", Values: query, Data: reportList{}}
	if query.Get("date_from") == "" && query.Get("date_to") == "" {
		h.render.Render(w, r, http.StatusOK, "reports", p)
		return
	}

	search, errs := forms.ParseReportSearch(query, h.render.Location(r))
	if !errs.Valid() {
		p.Errors = errs
		h.render.Render(w, r, http.StatusOK, "reports", p)
		return
	}
	found, err := h.reports.Search(r.Context(), search)
	if err != nil {
		h.logger.Error().Err(err).Msg("Report search failed")
		h.render.Error(w, r, http.StatusInternalServerError, "Search failed")
		return
	}
	p.Data = reportList{Searched: true, Reports: found}
	h.render.Render(w, r, http.StatusOK, "reports", p)
}

func (h *ReportHandler) Recent(w http.ResponseWriter, r *http.Request) {
	recent, err := h.reports.ListRecent(r.Context(), recentReports)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list recent reports")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to load reports")
		return
	}
	h.render.Render(w, r, http.StatusOK, "reports", page{
		Title: "Recent Reports",
		Data:  reportList{Searched: true, Reports: recent},
	})
}

func (h *ReportHandler) Detail(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r, r.URL.Query().Get("id"))
	if !ok {
		return
	}
	h.render.Render(w, r, http.StatusOK, "r_detail", page{Title: "Report Detail", Data: report})
}

// Delete asks for confirmation on GET and removes the report on POST.
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		report, ok := h.load(w, r, r.URL.Query().Get("id"))
		if !ok {
			return
		}
		h.render.Render(w, r, http.StatusOK, "confirm", page{
			Title: "Delete Report",
			Data:  confirmation{Action: "/admin/r_delete", ID: report.ID, Kind: "report", Summary: report.Detail},
		})
		return
	}

	if err := r.ParseForm(); err != nil {
		h.render.Error(w, r, http.StatusBadRequest, msgBadDelete)
		return
	}
	id, errs := forms.ParseDelete(r.PostForm)
	if !errs.Valid() {
		h.render.Error(w, r, http.StatusBadRequest, msgBadDelete)
		return
	}
	if err := h.reports.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.render.Error(w, r, http.StatusNotFound, msgBadDelete)
			return
		}
		h.logger.Error().Err(err).Int64("report_id", id).Msg("Failed to delete report")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to delete the report")
		return
	}
	h.cache.Invalidate()
	h.logger.Info().Int64("report_id", id).Msg("Report deleted")
	http.Redirect(w, r, "/admin/reports/recent", http.StatusSeeOther)
}

// Screenshot serves a stored upload to staff.
func (h *ReportHandler) Screenshot(w http.ResponseWriter, r *http.Request) {
	file, err := h.uploads.Resolve(h.settings.Current().UploadPath, mux.Vars(r)["path"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if _, err := os.Stat(file); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, file)
}

func (h *ReportHandler) load(w http.ResponseWriter, r *http.Request, raw string) (models.Report, bool) {
	if raw == "" {
		h.render.Error(w, r, http.StatusBadRequest, "No report ID given")
		return models.Report{}, false
	}
	id, ok := forms.ParseID(raw)
	if !ok {
		h.render.Error(w, r, http.StatusBadRequest, msgBadID)
		return models.Report{}, false
	}
	report, err := h.reports.Get(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		h.render.Error(w, r, http.StatusNotFound, "The requested report does not exist")
		return models.Report{}, false
	}
	if err != nil {
		h.logger.Error().Err(err).Int64("report_id", id).Msg("Failed to load report")
		h.render.Error(w, r, http.StatusInternalServerError, "Unable to load the report")
		return models.Report{}, false
	}
	return report, true
}
