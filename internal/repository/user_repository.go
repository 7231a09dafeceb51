package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/stanstork/ssd/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials hides whether the username or the password was wrong.
var ErrInvalidCredentials = stderrors.New("invalid credentials")

type UserRepository interface {
	CreateUser(ctx context.Context, username, password, firstName, lastName string, role models.UserRole) (models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	SetPassword(ctx context.Context, username, password string) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

func (u *userRepository) CreateUser(ctx context.Context, username, password, firstName, lastName string, role models.UserRole) (models.User, error) {
	if !models.IsValidRole(role) {
		return models.User{}, stderrors.New("invalid role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Username:     strings.TrimSpace(username),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
		CreatedAt:    dbTime(time.Now()),
	}

	const query = `
		INSERT INTO users (username, first_name, last_name, password_hash, role, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err = u.db.QueryRowContext(ctx, query,
		user.Username,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.Role,
		user.IsActive,
		user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrDuplicate
		}
		return models.User{}, errors.Wrap(err, "insert user")
	}

	return user, nil
}

func (u *userRepository) AuthenticateUser(ctx context.Context, username, password string) (models.User, error) {
	user, err := u.GetUserByUsername(ctx, username)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}

	if !user.IsActive {
		return models.User{}, stderrors.New("user is inactive")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	return user, nil
}

func (u *userRepository) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `
		SELECT id, username, first_name, last_name, password_hash, role, is_active, created_at
		FROM users
		WHERE username = $1`

	var user models.User
	err := u.db.QueryRowContext(ctx, query, strings.TrimSpace(username)).Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (u *userRepository) SetPassword(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	result, err := u.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE username = $2`, string(hash), username)
	if err != nil {
		return errors.Wrap(err, "update password")
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
