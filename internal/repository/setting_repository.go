package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/stanstork/ssd/internal/models"
)

type SettingRepository interface {
	List(ctx context.Context, category string) ([]models.Setting, error)
	Update(ctx context.Context, values map[string]string) error
}

type settingRepository struct {
	db *sql.DB
}

func NewSettingRepository(db *sql.DB) SettingRepository {
	return &settingRepository{db: db}
}

// List returns the settings of one category, or all of them when category is empty.
func (r *settingRepository) List(ctx context.Context, category string) ([]models.Setting, error) {
	query := `SELECT config_name, friendly_name, config_value, description, category, display FROM config`
	var args []interface{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY category, config_name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list settings")
	}
	defer rows.Close()

	var settings []models.Setting
	for rows.Next() {
		var s models.Setting
		if err := rows.Scan(&s.Name, &s.FriendlyName, &s.Value, &s.Description, &s.Category, &s.Display); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// Update writes every value in one transaction. Unknown names fail the whole update.
func (r *settingRepository) Update(ctx context.Context, values map[string]string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for name, value := range values {
			result, err := tx.ExecContext(ctx, `UPDATE config SET config_value = $1 WHERE config_name = $2`, value, name)
			if err != nil {
				return errors.Wrapf(err, "update setting %s", name)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return errors.Wrapf(sql.ErrNoRows, "setting %s", name)
			}
		}
		return nil
	})
}
