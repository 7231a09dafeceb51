package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/stanstork/ssd/internal/models"
)

type MoveDirection int

const (
	MoveUp MoveDirection = iota
	MoveDown
)

type EscalationRepository interface {
	Create(ctx context.Context, name, details string) (models.Contact, error)
	List(ctx context.Context, includeHidden bool) ([]models.Contact, error)
	Move(ctx context.Context, id int64, dir MoveDirection) error
	SetHidden(ctx context.Context, id int64, hidden bool) error
	Delete(ctx context.Context, id int64) error
}

// contactInsertAttempts bounds retries when a concurrent add takes the same sort order.
const contactInsertAttempts = 3

// ErrOrderConflict is returned when every attempt to append a contact lost the race for the next order.
var ErrOrderConflict = stderrors.New("escalation order changed concurrently")

type escalationRepository struct {
	db        *sql.DB
	nextOrder func(ctx context.Context, tx *sql.Tx) (int, error)
}

func NewEscalationRepository(db *sql.DB) EscalationRepository {
	return &escalationRepository{db: db, nextOrder: nextContactOrder}
}

func nextContactOrder(ctx context.Context, tx *sql.Tx) (int, error) {
	var order int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sort_order), 0) + 1 FROM escalation_contacts`).Scan(&order)
	return order, errors.Wrap(err, "next contact order")
}

// Create appends a hidden contact at the end of the list. A unique violation is
// ErrDuplicate only when the name and details already exist; a lost race for the
// sort order is retried.
func (r *escalationRepository) Create(ctx context.Context, name, details string) (models.Contact, error) {
	for attempt := 1; ; attempt++ {
		contact, err := r.insert(ctx, name, details)
		if err == nil {
			return contact, nil
		}
		if !isUniqueViolation(err) {
			return models.Contact{}, errors.Wrap(err, "insert contact")
		}

		exists, lookupErr := r.exists(ctx, name, details)
		if lookupErr != nil {
			return models.Contact{}, lookupErr
		}
		if exists {
			return models.Contact{}, ErrDuplicate
		}
		if attempt == contactInsertAttempts {
			return models.Contact{}, errors.Wrapf(ErrOrderConflict, "insert contact after %d attempts", attempt)
		}
	}
}

func (r *escalationRepository) insert(ctx context.Context, name, details string) (models.Contact, error) {
	contact := models.Contact{Name: name, ContactDetails: details, Hidden: true}
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		order, err := r.nextOrder(ctx, tx)
		if err != nil {
			return err
		}
		contact.Order = order
		const query = `
			INSERT INTO escalation_contacts (sort_order, name, contact_details, hidden)
			VALUES ($1, $2, $3, $4)
			RETURNING id`
		return tx.QueryRowContext(ctx, query, contact.Order, contact.Name, contact.ContactDetails, contact.Hidden).Scan(&contact.ID)
	})
	return contact, err
}

func (r *escalationRepository) exists(ctx context.Context, name, details string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escalation_contacts WHERE name = $1 AND contact_details = $2`,
		name, details,
	).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "check contact")
	}
	return n > 0, nil
}

func (r *escalationRepository) List(ctx context.Context, includeHidden bool) ([]models.Contact, error) {
	query := `SELECT id, sort_order, name, contact_details, hidden FROM escalation_contacts`
	if !includeHidden {
		query += ` WHERE hidden = $1`
	}
	query += ` ORDER BY sort_order`

	var args []interface{}
	if !includeHidden {
		args = append(args, false)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list contacts")
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Move swaps the contact with its neighbour. Moving past either end is a no-op.
func (r *escalationRepository) Move(ctx context.Context, id int64, dir MoveDirection) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		ids, err := orderedContactIDs(ctx, tx)
		if err != nil {
			return err
		}
		pos := indexOf(ids, id)
		if pos < 0 {
			return sql.ErrNoRows
		}
		target := pos - 1
		if dir == MoveDown {
			target = pos + 1
		}
		if target < 0 || target >= len(ids) {
			return nil
		}
		ids[pos], ids[target] = ids[target], ids[pos]
		return renumber(ctx, tx, ids)
	})
}

func (r *escalationRepository) SetHidden(ctx context.Context, id int64, hidden bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE escalation_contacts SET hidden = $1 WHERE id = $2`, hidden, id)
	if err != nil {
		return errors.Wrap(err, "update contact visibility")
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

// Delete removes the contact and closes the gap so orders stay 1..N.
func (r *escalationRepository) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM escalation_contacts WHERE id = $1`, id)
		if err != nil {
			return errors.Wrap(err, "delete contact")
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return sql.ErrNoRows
		}
		ids, err := orderedContactIDs(ctx, tx)
		if err != nil {
			return err
		}
		return renumber(ctx, tx, ids)
	})
}

func orderedContactIDs(ctx context.Context, tx *sql.Tx) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM escalation_contacts ORDER BY sort_order, id`)
	if err != nil {
		return nil, errors.Wrap(err, "list contact order")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// renumber assigns orders 1..N following ids. sort_order is unique, so rows
// are first parked on negative values to avoid transient collisions.
func renumber(ctx context.Context, tx *sql.Tx, ids []int64) error {
	const query = `UPDATE escalation_contacts SET sort_order = $1 WHERE id = $2`
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, query, -(i + 1), id); err != nil {
			return errors.Wrap(err, "park contact order")
		}
	}
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, query, i+1, id); err != nil {
			return errors.Wrap(err, "set contact order")
		}
	}
	return nil
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func scanContact(s scanner) (models.Contact, error) {
	var c models.Contact
	err := s.Scan(&c.ID, &c.Order, &c.Name, &c.ContactDetails, &c.Hidden)
	return c, err
}
