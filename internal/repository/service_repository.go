package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/stanstork/ssd/internal/models"
)

type ServiceRepository interface {
	Create(ctx context.Context, name string) (models.Service, error)
	List(ctx context.Context) ([]models.Service, error)
	Get(ctx context.Context, id int64) (models.Service, error)
	Delete(ctx context.Context, ids []int64) error
}

type serviceRepository struct {
	db *sql.DB
}

func NewServiceRepository(db *sql.DB) ServiceRepository {
	return &serviceRepository{db: db}
}

func (r *serviceRepository) Create(ctx context.Context, name string) (models.Service, error) {
	const query = `
		INSERT INTO services (service_name)
		VALUES ($1)
		RETURNING id, service_name`

	var svc models.Service
	err := r.db.QueryRowContext(ctx, query, name).Scan(&svc.ID, &svc.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Service{}, ErrDuplicate
		}
		return models.Service{}, errors.Wrap(err, "insert service")
	}
	return svc, nil
}

func (r *serviceRepository) List(ctx context.Context) ([]models.Service, error) {
	const query = `SELECT id, service_name FROM services ORDER BY service_name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list services")
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

func (r *serviceRepository) Get(ctx context.Context, id int64) (models.Service, error) {
	const query = `SELECT id, service_name FROM services WHERE id = $1`

	var svc models.Service
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&svc.ID, &svc.Name); err != nil {
		return models.Service{}, err
	}
	return svc, nil
}

// Delete removes the services as one unit. If any of them is still attached
// to an event nothing is removed and ErrInUse is returned.
func (r *serviceRepository) Delete(ctx context.Context, ids []int64) error {
	const inUseQuery = `SELECT COUNT(*) FROM event_services WHERE service_id = $1`
	const deleteQuery = `DELETE FROM services WHERE id = $1`

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, id := range ids {
			var refs int
			if err := tx.QueryRowContext(ctx, inUseQuery, id).Scan(&refs); err != nil {
				return errors.Wrap(err, "count service references")
			}
			if refs > 0 {
				return ErrInUse
			}
			if _, err := tx.ExecContext(ctx, deleteQuery, id); err != nil {
				return errors.Wrap(err, "delete service")
			}
		}
		return nil
	})
}
