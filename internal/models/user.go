// Package models defines the domain types shared by the stores, services and
// handlers. Sensitive fields carry `json:"-"` so they never leave the
// process in a response body.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. CodeName is the login handle and may be
// empty; an empty code name is stored as NULL so that any number of users
// can omit it without tripping the unique constraint.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	CodeName     string    `json:"code_name"`
	PasswordHash string    `json:"-"` // bcrypt, never serialized
	IsActive     bool      `json:"is_active"`
	IsStaff      bool      `json:"is_staff"`
	IsSuperuser  bool      `json:"is_superuser"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicUser is the projection of a User that is safe to return to clients.
// It omits the password hash and the privilege flags.
//
// JSON example:
//
//	{
//	  "id": "550e8400-e29b-41d4-a716-446655440000",
//	  "email": "bond@mi6.gov",
//	  "name": "James Bond",
//	  "code_name": "007"
//	}
type PublicUser struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	CodeName string    `json:"code_name"`
}

// Public returns the client-safe projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		CodeName: u.CodeName,
	}
}

// NewUser carries the fields needed to insert a user row. PasswordHash must
// already be hashed.
type NewUser struct {
	Email        string
	Name         string
	CodeName     string
	PasswordHash string
	IsStaff      bool
	IsSuperuser  bool
}

// Session is a device login backed by Redis. Every refresh token minted for
// the device carries the session ID, so deleting the session ends the whole
// rotation chain.
type Session struct {
	ID         string    `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	DeviceInfo string    `json:"device_info"` // Parsed from User-Agent
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// SessionInfo is the session listing entry returned to its owner.
type SessionInfo struct {
	ID         string    `json:"id"`
	DeviceInfo string    `json:"device_info"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsCurrent  bool      `json:"is_current"`
}
