package forms

import (
	"mime/multipart"
	"net/url"
	"strconv"

	"github.com/stanstork/ssd/internal/settings"
)

// ScreenshotFields are the multipart file fields accepted with a report.
var ScreenshotFields = []string{"screenshot1", "screenshot2"}

type ReportForm struct {
	Name   string
	Email  string
	Detail string
	Extra  string
	// Screenshots holds the accepted uploads keyed by field name.
	Screenshots map[string]*multipart.FileHeader
}

// ParseReport validates the public report form. Files are only looked at when uploads are enabled.
func ParseReport(values url.Values, files map[string][]*multipart.FileHeader, current settings.Settings) (ReportForm, Errors) {
	r := newReader(values)
	f := ReportForm{
		Name:        r.name("name"),
		Email:       r.email("email", true),
		Detail:      r.text("detail", true, maxDescription),
		Extra:       r.text("extra", false, maxExtra),
		Screenshots: map[string]*multipart.FileHeader{},
	}

	if !current.EnableUploads {
		return f, r.errs
	}
	for _, field := range ScreenshotFields {
		headers := files[field]
		if len(headers) == 0 || headers[0].Size == 0 {
			continue
		}
		if msg := CheckFileSize(headers[0].Size, current.FileUploadSize); msg != "" {
			r.errs.Add(field, msg)
			continue
		}
		f.Screenshots[field] = headers[0]
	}
	return f, r.errs
}

// CheckFileSize returns the error message for an upload over limit bytes, or "".
func CheckFileSize(size, limit int64) string {
	if size > limit {
		return FileTooLarge(limit)
	}
	return ""
}

func FileTooLarge(limit int64) string {
	return "File too large - please reduce the size of the upload to below " + strconv.FormatInt(limit, 10) + " bytes"
}
