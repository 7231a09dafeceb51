package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/stanstork/ssd/internal/models"
)

type ReportRepository interface {
	Create(ctx context.Context, report models.Report) (models.Report, error)
	Get(ctx context.Context, id int64) (models.Report, error)
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, search models.ReportSearch) ([]models.Report, error)
	ListRecent(ctx context.Context, limit int) ([]models.Report, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]time.Time, error)
}

type reportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) ReportRepository {
	return &reportRepository{db: db}
}

const reportColumns = `id, created_at, name, email, detail, extra, screenshot1, screenshot2`

func (r *reportRepository) Create(ctx context.Context, report models.Report) (models.Report, error) {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	report.CreatedAt = dbTime(report.CreatedAt)

	const query = `
		INSERT INTO reports (created_at, name, email, detail, extra, screenshot1, screenshot2)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		report.CreatedAt,
		report.Name,
		report.Email,
		report.Detail,
		report.Extra,
		report.Screenshot1,
		report.Screenshot2,
	).Scan(&report.ID)
	if err != nil {
		return models.Report{}, errors.Wrap(err, "insert report")
	}
	return report, nil
}

func (r *reportRepository) Get(ctx context.Context, id int64) (models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	return scanReport(r.db.QueryRowContext(ctx, query, id))
}

func (r *reportRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete report")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *reportRepository) Search(ctx context.Context, search models.ReportSearch) ([]models.Report, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + reportColumns + ` FROM reports WHERE created_at >= $1 AND created_at <= $2 AND LOWER(detail) LIKE $3 ESCAPE '\' ORDER BY id DESC`)
	args := []interface{}{dbTime(search.From), dbTime(search.To), containsPattern(search.Text)}
	if search.Limit > 0 {
		args = append(args, search.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return r.queryReports(ctx, b.String(), args...)
}

func (r *reportRepository) ListRecent(ctx context.Context, limit int) ([]models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY id DESC LIMIT $1`
	return r.queryReports(ctx, query, limit)
}

// ListCreatedBetween returns the submission times of reports inside [from, to].
func (r *reportRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	const query = `SELECT created_at FROM reports WHERE created_at >= $1 AND created_at <= $2 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, dbTime(from), dbTime(to))
	if err != nil {
		return nil, errors.Wrap(err, "list report times")
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t.UTC())
	}
	return times, rows.Err()
}

func (r *reportRepository) queryReports(ctx context.Context, query string, args ...interface{}) ([]models.Report, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query reports")
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func scanReport(s scanner) (models.Report, error) {
	var report models.Report
	err := s.Scan(
		&report.ID,
		&report.CreatedAt,
		&report.Name,
		&report.Email,
		&report.Detail,
		&report.Extra,
		&report.Screenshot1,
		&report.Screenshot2,
	)
	if err != nil {
		return models.Report{}, err
	}
	report.CreatedAt = report.CreatedAt.UTC()
	return report, nil
}
