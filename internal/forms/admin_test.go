package forms

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/ssd/internal/escalation"
	"github.com/stanstork/ssd/internal/models"
)

func configRows() []models.Setting {
	return []models.Setting{
		{Name: "notify", Value: "1", Display: "boolean"},
		{Name: "email_from", Value: "ssd@localhost", Display: "text"},
		{Name: "enable_uploads", Value: "0", Display: "boolean"},
		{Name: "upload_path", Value: "", Display: "text"},
		{Name: "file_upload_size", Value: "1048576", Display: "integer"},
		{Name: "alert", Value: "", Display: "textarea"},
	}
}

func TestParseConfig(t *testing.T) {
	updates, errs := ParseConfig(url.Values{
		"notify":    {"0"},
		"alert":     {"  Heads up  "},
		"not_known": {"x"},
	}, configRows())
	require.True(t, errs.Valid(), "%v", errs)
	assert.Equal(t, map[string]string{"notify": "0", "alert": "Heads up"}, updates)
}

func TestParseConfigRules(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		field  string
		want   string
	}{
		{"upload size floor", url.Values{"file_upload_size": {"99"}}, "file_upload_size", "Size must be at least 100"},
		{"upload size number", url.Values{"file_upload_size": {"lots"}}, "file_upload_size", msgBadNumber},
		{"uploads need a path", url.Values{"enable_uploads": {"1"}}, "upload_path", "You must set a file upload path"},
		{"flag domain", url.Values{"notify": {"yes"}}, "notify", "Value must be 0 or 1"},
		{"sender address", url.Values{"email_from": {"nobody"}}, "email_from", msgBadEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := ParseConfig(tt.values, configRows())
			assert.Equal(t, tt.want, errs.Get(tt.field))
		})
	}

	_, errs := ParseConfig(url.Values{"enable_uploads": {"1"}, "upload_path": {"/var/ssd"}}, configRows())
	assert.True(t, errs.Valid(), "%v", errs)
}

func TestParseContactModify(t *testing.T) {
	f, errs := ParseContactModify(url.Values{"id": {"3"}, "action": {"up"}})
	require.True(t, errs.Valid())
	assert.Equal(t, int64(3), f.ID)
	assert.Equal(t, escalation.ActionUp, f.Action)

	_, errs = ParseContactModify(url.Values{"id": {"-1"}, "action": {"sideways"}})
	assert.True(t, errs.Has("id"))
	assert.True(t, errs.Has("action"))
}

func TestParseIDList(t *testing.T) {
	ids, errs := ParseIDList(url.Values{"id": {"1", "x", "3"}})
	require.True(t, errs.Valid())
	assert.Equal(t, []int64{1, 3}, ids)

	_, errs = ParseIDList(url.Values{})
	assert.Equal(t, "No service entered", errs.Get("id"))
}

func TestParseLoginKeepsOnlyLocalRedirects(t *testing.T) {
	f, errs := ParseLogin(url.Values{"username": {"admin"}, "password": {"pw"}, "next": {"/admin/config"}})
	require.True(t, errs.Valid())
	assert.Equal(t, "/admin/config", f.Next)

	f, _ = ParseLogin(url.Values{"username": {"admin"}, "password": {"pw"}, "next": {"//evil.example"}})
	assert.Empty(t, f.Next)

	_, errs = ParseLogin(url.Values{"username": {"admin"}})
	assert.True(t, errs.Has("password"))
}

func TestParsePrefs(t *testing.T) {
	loc, errs := ParseTimezone(url.Values{"timezone": {"Europe/Paris"}})
	require.True(t, errs.Valid())
	assert.Equal(t, "Europe/Paris", loc.String())

	_, errs = ParseTimezone(url.Values{"timezone": {"Mars/Olympus"}})
	assert.True(t, errs.Has("timezone"))

	ref, errs := ParseJump(url.Values{"jump_to": {"2024-01-10"}})
	require.True(t, errs.Valid())
	assert.Equal(t, "2024-01-10", ref)

	_, errs = ParseJump(url.Values{"jump_to": {"2024-02-30"}})
	assert.True(t, errs.Has("jump_to"))
}

func TestParseEventSearch(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	search, errs := ParseEventSearch(url.Values{
		"date_from": {"2024-01-01"},
		"date_to":   {"2024-01-31"},
		"status":    {"open"},
		"text":      {"VPN"},
	}, ny)
	require.True(t, errs.Valid(), "%v", errs)
	assert.Equal(t, time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC), search.From.UTC())
	assert.Equal(t, time.Date(2024, 2, 1, 4, 59, 59, 0, time.UTC), search.To.UTC())
	assert.Equal(t, models.StatusOpen, search.Status)

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	_, errs = ParseEventSearch(url.Values{
		"date_from": {"2024-01-01"},
		"date_to":   {"2024-01-31"},
		"status":    {"sideways"},
		"text":      {string(long)},
	}, ny)
	assert.True(t, errs.Has("status"))
	assert.Equal(t, "Data entered is greater than 100 characters", errs.Get("text"))
}
