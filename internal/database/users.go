package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/rs/zerolog/log"
)

const userColumns = `id, email, name, code_name, password_hash, is_active, is_staff, is_superuser, created_at, updated_at`

// CreateUser inserts a user. Unique violations on email or code name come
// back as validation errors carrying the same messages as the up-front
// checks in the user service.
//
// Example:
//
//	user, err := db.CreateUser(ctx, models.NewUser{
//	    Email:        "bond@mi6.gov",
//	    CodeName:     "007",
//	    PasswordHash: hash,
//	})
func (p *PostgresDB) CreateUser(ctx context.Context, nu models.NewUser) (*models.User, error) {
	query := `
		INSERT INTO users (email, name, code_name, password_hash, is_staff, is_superuser)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns

	start := time.Now()
	user, err := scanUser(p.db.QueryRowContext(ctx, query,
		nu.Email,
		nu.Name,
		nullString(nu.CodeName),
		nu.PasswordHash,
		nu.IsStaff,
		nu.IsSuperuser,
	))
	p.observe("create_user", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", mapPQError(err))
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Bool("is_staff", user.IsStaff).
		Msg("User created")

	return user, nil
}

// GetUserByID retrieves a user by id. Returns utils.ErrNotFound when absent.
func (p *PostgresDB) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return p.getUser(ctx, "get_user_by_id", "id = $1", userID)
}

// GetUserByEmail retrieves a user by exact email.
func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return p.getUser(ctx, "get_user_by_email", "email = $1", email)
}

// GetUserByCodeName retrieves a user by code name.
func (p *PostgresDB) GetUserByCodeName(ctx context.Context, codeName string) (*models.User, error) {
	return p.getUser(ctx, "get_user_by_code_name", "code_name = $1", codeName)
}

func (p *PostgresDB) getUser(ctx context.Context, operation, where string, arg interface{}) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	start := time.Now()
	user, err := scanUser(p.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		p.observe(operation, start, nil)
		return nil, utils.ErrNotFound
	}
	p.observe(operation, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var codeName sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&codeName,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.CodeName = codeName.String
	return &user, nil
}

// nullString stores "" as NULL so optional unique columns do not collide.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
