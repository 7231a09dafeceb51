package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/stanstork/ssd/internal/models"
)

type RecipientRepository interface {
	Create(ctx context.Context, address string) (models.Recipient, error)
	List(ctx context.Context) ([]models.Recipient, error)
	Get(ctx context.Context, id int64) (models.Recipient, error)
	Delete(ctx context.Context, ids []int64) error
}

type recipientRepository struct {
	db *sql.DB
}

func NewRecipientRepository(db *sql.DB) RecipientRepository {
	return &recipientRepository{db: db}
}

func (r *recipientRepository) Create(ctx context.Context, address string) (models.Recipient, error) {
	const query = `
		INSERT INTO recipients (email_address)
		VALUES ($1)
		RETURNING id, email_address`

	var rcpt models.Recipient
	err := r.db.QueryRowContext(ctx, query, address).Scan(&rcpt.ID, &rcpt.Address)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Recipient{}, ErrDuplicate
		}
		return models.Recipient{}, errors.Wrap(err, "insert recipient")
	}
	return rcpt, nil
}

func (r *recipientRepository) List(ctx context.Context) ([]models.Recipient, error) {
	const query = `SELECT id, email_address FROM recipients ORDER BY email_address`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list recipients")
	}
	defer rows.Close()

	var recipients []models.Recipient
	for rows.Next() {
		var rcpt models.Recipient
		if err := rows.Scan(&rcpt.ID, &rcpt.Address); err != nil {
			return nil, err
		}
		recipients = append(recipients, rcpt)
	}
	return recipients, rows.Err()
}

func (r *recipientRepository) Get(ctx context.Context, id int64) (models.Recipient, error) {
	const query = `SELECT id, email_address FROM recipients WHERE id = $1`

	var rcpt models.Recipient
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&rcpt.ID, &rcpt.Address); err != nil {
		return models.Recipient{}, err
	}
	return rcpt, nil
}

// Delete removes the recipients as one unit; a recipient attached to any
// event aborts the batch with ErrInUse.
func (r *recipientRepository) Delete(ctx context.Context, ids []int64) error {
	const inUseQuery = `SELECT COUNT(*) FROM event_emails WHERE email_id = $1`
	const deleteQuery = `DELETE FROM recipients WHERE id = $1`

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, id := range ids {
			var refs int
			if err := tx.QueryRowContext(ctx, inUseQuery, id).Scan(&refs); err != nil {
				return errors.Wrap(err, "count recipient references")
			}
			if refs > 0 {
				return ErrInUse
			}
			if _, err := tx.ExecContext(ctx, deleteQuery, id); err != nil {
				return errors.Wrap(err, "delete recipient")
			}
		}
		return nil
	})
}
