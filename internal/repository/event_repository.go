package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/stanstork/ssd/internal/models"
)

// ErrNoServices is returned when an event would be stored without any affected service.
var ErrNoServices = stderrors.New("at least one service is required")

type EventRepository interface {
	Create(ctx context.Context, params CreateEventParams) (int64, error)
	Update(ctx context.Context, params UpdateEventParams) error
	Delete(ctx context.Context, id int64, eventType models.EventType) error
	Get(ctx context.Context, id int64) (models.EventDetail, error)
	ListStartedBetween(ctx context.Context, from, to time.Time) ([]models.EventSummary, error)
	ListServiceEventsBetween(ctx context.Context, from, to time.Time) ([]models.ServiceEvent, error)
	ListActive(ctx context.Context) ([]models.EventSummary, error)
	ListActiveServiceEvents(ctx context.Context) ([]models.ServiceEvent, error)
	Search(ctx context.Context, search models.EventSearch) ([]models.EventSummary, error)
}

type CreateEventParams struct {
	Type        models.EventType
	Start       time.Time
	End         *time.Time
	Description string
	Impact      string
	Coordinator string
	RecipientID *int64
	Username    string
	ServiceIDs  []int64
	CreatedAt   time.Time
}

// UpdateEventParams carries one update form submission. Incident updates use
// Closed; maintenance updates use the schedule, text and Started/Completed fields.
type UpdateEventParams struct {
	ID          int64
	Type        models.EventType
	UpdatedAt   time.Time
	UpdateText  string
	Author      string
	RecipientID *int64
	ServiceIDs  []int64

	Closed bool

	Start       time.Time
	End         time.Time
	Description string
	Impact      string
	Coordinator string
	Started     bool
	Completed   bool
}

type execStmt struct {
	name  string
	query string
	args  []interface{}
}

func execAll(ctx context.Context, tx *sql.Tx, verb string, stmts []execStmt) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return errors.Wrapf(err, "%s %s", verb, stmt.name)
		}
	}
	return nil
}

type eventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) EventRepository {
	return &eventRepository{db: db}
}

const summarySelect = `
		SELECT e.id, e.event_type, t.start_at, t.end_at, d.description, s.status
		FROM events e
		JOIN event_times t ON t.event_id = e.id
		JOIN event_descriptions d ON d.event_id = e.id
		JOIN event_statuses s ON s.event_id = e.id`

const serviceEventSelect = `
		SELECT es.service_id, e.id, e.event_type, t.start_at, t.end_at, d.description, s.status
		FROM events e
		JOIN event_times t ON t.event_id = e.id
		JOIN event_descriptions d ON d.event_id = e.id
		JOIN event_statuses s ON s.event_id = e.id
		JOIN event_services es ON es.event_id = e.id`

const activeFilter = `
		WHERE (e.event_type = 'incident' AND s.status = 'open')
		   OR (e.event_type = 'maintenance' AND s.status = 'started')`

// Create writes the event and all of its satellite rows in one transaction.
func (r *eventRepository) Create(ctx context.Context, params CreateEventParams) (int64, error) {
	if len(params.ServiceIDs) == 0 {
		return 0, ErrNoServices
	}

	status := models.StatusOpen
	if params.Type == models.EventTypeMaintenance {
		status = models.StatusPlanning
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var id int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		const insertEvent = `
			INSERT INTO events (event_type, created_at)
			VALUES ($1, $2)
			RETURNING id`
		if err := tx.QueryRowContext(ctx, insertEvent, params.Type, dbTime(createdAt)).Scan(&id); err != nil {
			return errors.Wrap(err, "insert event")
		}

		stmts := []execStmt{
			{"event time", `INSERT INTO event_times (event_id, start_at, end_at) VALUES ($1, $2, $3)`,
				[]interface{}{id, dbTime(params.Start), nullTime(params.End)}},
			{"event description", `INSERT INTO event_descriptions (event_id, description) VALUES ($1, $2)`,
				[]interface{}{id, params.Description}},
			{"event status", `INSERT INTO event_statuses (event_id, status) VALUES ($1, $2)`,
				[]interface{}{id, status}},
			{"event user", `INSERT INTO event_users (event_id, username) VALUES ($1, $2)`,
				[]interface{}{id, params.Username}},
		}
		if params.Type == models.EventTypeMaintenance {
			stmts = append(stmts,
				execStmt{"event impact", `INSERT INTO event_impacts (event_id, impact) VALUES ($1, $2)`,
					[]interface{}{id, params.Impact}},
				execStmt{"event coordinator", `INSERT INTO event_coordinators (event_id, coordinator) VALUES ($1, $2)`,
					[]interface{}{id, params.Coordinator}},
			)
		}
		if err := execAll(ctx, tx, "insert", stmts); err != nil {
			return err
		}

		if err := replaceRecipient(ctx, tx, id, params.RecipientID); err != nil {
			return err
		}
		return replaceServices(ctx, tx, id, params.ServiceIDs)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Update applies an update form to an existing event in one transaction.
func (r *eventRepository) Update(ctx context.Context, params UpdateEventParams) error {
	if len(params.ServiceIDs) == 0 {
		return ErrNoServices
	}
	if params.Type == models.EventTypeMaintenance && params.Completed && !params.Started {
		return ErrCompletedNotStarted
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		const currentQuery = `
			SELECT s.status
			FROM events e
			JOIN event_statuses s ON s.event_id = e.id
			WHERE e.id = $1 AND e.event_type = $2`
		var current models.EventStatus
		if err := tx.QueryRowContext(ctx, currentQuery, params.ID, params.Type).Scan(&current); err != nil {
			return err
		}

		if text := strings.TrimSpace(params.UpdateText); text != "" {
			const insertUpdate = `
				INSERT INTO event_updates (event_id, created_at, update_text, author)
				VALUES ($1, $2, $3, $4)`
			if _, err := tx.ExecContext(ctx, insertUpdate, params.ID, dbTime(params.UpdatedAt), text, params.Author); err != nil {
				return errors.Wrap(err, "insert event update")
			}
		}

		if err := replaceRecipient(ctx, tx, params.ID, params.RecipientID); err != nil {
			return err
		}
		if err := replaceServices(ctx, tx, params.ID, params.ServiceIDs); err != nil {
			return err
		}

		switch params.Type {
		case models.EventTypeIncident:
			return updateIncidentStatus(ctx, tx, params, current)
		case models.EventTypeMaintenance:
			return updateMaintenance(ctx, tx, params)
		}
		return fmt.Errorf("unknown event type %q", params.Type)
	})
}

// updateIncidentStatus closes or reopens an incident. Closing an incident that
// is already closed leaves its recorded close time untouched.
func updateIncidentStatus(ctx context.Context, tx *sql.Tx, params UpdateEventParams, current models.EventStatus) error {
	const setStatus = `UPDATE event_statuses SET status = $1 WHERE event_id = $2`
	const setEnd = `UPDATE event_times SET end_at = $1 WHERE event_id = $2`

	switch {
	case params.Closed && current == models.StatusClosed:
		return nil
	case params.Closed:
		if _, err := tx.ExecContext(ctx, setStatus, models.StatusClosed, params.ID); err != nil {
			return errors.Wrap(err, "close incident")
		}
		_, err := tx.ExecContext(ctx, setEnd, dbTime(params.UpdatedAt), params.ID)
		return errors.Wrap(err, "set incident close time")
	default:
		if _, err := tx.ExecContext(ctx, setStatus, models.StatusOpen, params.ID); err != nil {
			return errors.Wrap(err, "reopen incident")
		}
		_, err := tx.ExecContext(ctx, setEnd, nil, params.ID)
		return errors.Wrap(err, "clear incident close time")
	}
}

func updateMaintenance(ctx context.Context, tx *sql.Tx, params UpdateEventParams) error {
	status := models.StatusPlanning
	switch {
	case params.Completed:
		status = models.StatusCompleted
	case params.Started:
		status = models.StatusStarted
	}

	stmts := []execStmt{
		{"maintenance times", `UPDATE event_times SET start_at = $1, end_at = $2 WHERE event_id = $3`,
			[]interface{}{dbTime(params.Start), dbTime(params.End), params.ID}},
		{"maintenance description", `UPDATE event_descriptions SET description = $1 WHERE event_id = $2`,
			[]interface{}{params.Description, params.ID}},
		{"maintenance impact", `UPDATE event_impacts SET impact = $1 WHERE event_id = $2`,
			[]interface{}{params.Impact, params.ID}},
		{"maintenance coordinator", `UPDATE event_coordinators SET coordinator = $1 WHERE event_id = $2`,
			[]interface{}{params.Coordinator, params.ID}},
		{"maintenance status", `UPDATE event_statuses SET status = $1 WHERE event_id = $2`,
			[]interface{}{status, params.ID}},
	}
	return execAll(ctx, tx, "update", stmts)
}

func replaceRecipient(ctx context.Context, tx *sql.Tx, eventID int64, recipientID *int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_emails WHERE event_id = $1`, eventID); err != nil {
		return errors.Wrap(err, "clear event recipient")
	}
	if recipientID == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO event_emails (event_id, email_id) VALUES ($1, $2)`, eventID, *recipientID)
	return errors.Wrap(err, "insert event recipient")
}

// replaceServices swaps the whole service set rather than diffing it.
func replaceServices(ctx context.Context, tx *sql.Tx, eventID int64, serviceIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_services WHERE event_id = $1`, eventID); err != nil {
		return errors.Wrap(err, "clear event services")
	}
	seen := make(map[int64]struct{}, len(serviceIDs))
	for _, serviceID := range serviceIDs {
		if _, dup := seen[serviceID]; dup {
			continue
		}
		seen[serviceID] = struct{}{}
		if _, err := tx.ExecContext(ctx, `INSERT INTO event_services (event_id, service_id) VALUES ($1, $2)`, eventID, serviceID); err != nil {
			return errors.Wrap(err, "insert event service")
		}
	}
	return nil
}

// Delete removes the event and its satellite rows. The event must be of the given type.
func (r *eventRepository) Delete(ctx context.Context, id int64, eventType models.EventType) error {
	children := []string{
		`DELETE FROM event_times WHERE event_id = $1`,
		`DELETE FROM event_descriptions WHERE event_id = $1`,
		`DELETE FROM event_statuses WHERE event_id = $1`,
		`DELETE FROM event_impacts WHERE event_id = $1`,
		`DELETE FROM event_coordinators WHERE event_id = $1`,
		`DELETE FROM event_emails WHERE event_id = $1`,
		`DELETE FROM event_services WHERE event_id = $1`,
		`DELETE FROM event_updates WHERE event_id = $1`,
		`DELETE FROM event_users WHERE event_id = $1`,
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM events WHERE id = $1 AND event_type = $2`, id, eventType).Scan(&exists)
		if err != nil {
			return err
		}
		for _, query := range children {
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return errors.Wrap(err, "delete event child rows")
			}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
		return errors.Wrap(err, "delete event")
	})
}

func (r *eventRepository) Get(ctx context.Context, id int64) (models.EventDetail, error) {
	const query = `
		SELECT e.id, e.event_type, e.created_at, t.start_at, t.end_at, d.description, s.status,
		       COALESCE(i.impact, ''), COALESCE(c.coordinator, ''), COALESCE(u.username, ''),
		       r.id, r.email_address
		FROM events e
		JOIN event_times t ON t.event_id = e.id
		JOIN event_descriptions d ON d.event_id = e.id
		JOIN event_statuses s ON s.event_id = e.id
		LEFT JOIN event_impacts i ON i.event_id = e.id
		LEFT JOIN event_coordinators c ON c.event_id = e.id
		LEFT JOIN event_users u ON u.event_id = e.id
		LEFT JOIN event_emails em ON em.event_id = e.id
		LEFT JOIN recipients r ON r.id = em.email_id
		WHERE e.id = $1`

	var (
		detail      models.EventDetail
		end         sql.NullTime
		recipientID sql.NullInt64
		address     sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&detail.ID,
		&detail.Type,
		&detail.CreatedAt,
		&detail.Start,
		&end,
		&detail.Description,
		&detail.Status,
		&detail.Impact,
		&detail.Coordinator,
		&detail.User,
		&recipientID,
		&address,
	)
	if err != nil {
		return models.EventDetail{}, err
	}
	detail.Start = detail.Start.UTC()
	detail.End = timePtr(end)
	if recipientID.Valid {
		detail.Recipient = &models.Recipient{ID: recipientID.Int64, Address: address.String}
	}

	if detail.Services, err = r.listEventServices(ctx, id); err != nil {
		return models.EventDetail{}, err
	}
	if detail.Updates, err = r.listUpdates(ctx, id); err != nil {
		return models.EventDetail{}, err
	}
	return detail, nil
}

func (r *eventRepository) listEventServices(ctx context.Context, eventID int64) ([]models.Service, error) {
	const query = `
		SELECT s.id, s.service_name
		FROM event_services es
		JOIN services s ON s.id = es.service_id
		WHERE es.event_id = $1
		ORDER BY s.service_name`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "list event services")
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ID, &svc.Name); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (r *eventRepository) listUpdates(ctx context.Context, eventID int64) ([]models.EventUpdate, error) {
	const query = `
		SELECT id, event_id, created_at, update_text, author
		FROM event_updates
		WHERE event_id = $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "list event updates")
	}
	defer rows.Close()

	var updates []models.EventUpdate
	for rows.Next() {
		var u models.EventUpdate
		if err := rows.Scan(&u.ID, &u.EventID, &u.CreatedAt, &u.Text, &u.Author); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// ListStartedBetween returns every event whose start falls inside [from, to], ordered by id.
func (r *eventRepository) ListStartedBetween(ctx context.Context, from, to time.Time) ([]models.EventSummary, error) {
	query := summarySelect + `
		WHERE t.start_at >= $1 AND t.start_at <= $2
		ORDER BY e.id`
	return r.querySummaries(ctx, query, dbTime(from), dbTime(to))
}

func (r *eventRepository) ListServiceEventsBetween(ctx context.Context, from, to time.Time) ([]models.ServiceEvent, error) {
	query := serviceEventSelect + `
		WHERE t.start_at >= $1 AND t.start_at <= $2
		ORDER BY e.id`
	return r.queryServiceEvents(ctx, query, dbTime(from), dbTime(to))
}

// ListActive returns open incidents and started maintenances, newest first.
func (r *eventRepository) ListActive(ctx context.Context) ([]models.EventSummary, error) {
	return r.querySummaries(ctx, summarySelect+activeFilter+`
		ORDER BY e.id DESC`)
}

func (r *eventRepository) ListActiveServiceEvents(ctx context.Context) ([]models.ServiceEvent, error) {
	return r.queryServiceEvents(ctx, serviceEventSelect+activeFilter+`
		ORDER BY e.id DESC`)
}

func (r *eventRepository) Search(ctx context.Context, search models.EventSearch) ([]models.EventSummary, error) {
	var b strings.Builder
	b.WriteString(summarySelect)
	b.WriteString(`
		WHERE t.start_at >= $1 AND t.start_at <= $2 AND LOWER(d.description) LIKE $3 ESCAPE '\'`)
	args := []interface{}{dbTime(search.From), dbTime(search.To), containsPattern(search.Text)}

	if search.Type != "" {
		args = append(args, search.Type)
		fmt.Fprintf(&b, " AND e.event_type = $%d", len(args))
	}
	if search.Status != "" {
		args = append(args, search.Status)
		fmt.Fprintf(&b, " AND s.status = $%d", len(args))
	}
	b.WriteString(" ORDER BY t.start_at DESC, e.id DESC")
	if search.Limit > 0 {
		args = append(args, search.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	return r.querySummaries(ctx, b.String(), args...)
}

func (r *eventRepository) querySummaries(ctx context.Context, query string, args ...interface{}) ([]models.EventSummary, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()

	var events []models.EventSummary
	for rows.Next() {
		evt, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

func (r *eventRepository) queryServiceEvents(ctx context.Context, query string, args ...interface{}) ([]models.ServiceEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query service events")
	}
	defer rows.Close()

	var events []models.ServiceEvent
	for rows.Next() {
		var (
			se  models.ServiceEvent
			end sql.NullTime
		)
		if err := rows.Scan(&se.ServiceID, &se.ID, &se.Type, &se.Start, &end, &se.Description, &se.Status); err != nil {
			return nil, err
		}
		se.Start = se.Start.UTC()
		se.End = timePtr(end)
		events = append(events, se)
	}
	return events, rows.Err()
}

func scanSummary(s scanner) (models.EventSummary, error) {
	var (
		evt models.EventSummary
		end sql.NullTime
	)
	if err := s.Scan(&evt.ID, &evt.Type, &evt.Start, &end, &evt.Description, &evt.Status); err != nil {
		return models.EventSummary{}, err
	}
	evt.Start = evt.Start.UTC()
	evt.End = timePtr(end)
	return evt, nil
}
