// Package testutil provides common testing utilities, fixtures, and helpers
// for use across all test files in the PingService project.
package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/models"
)

// TestPassword is a password that passes the default policy.
const TestPassword = "shakenNotStirred"

// TestUser creates a test user with default values. PasswordHash is empty;
// use a Store to get users that can log in.
func TestUser() *models.User {
	return &models.User{
		ID:        uuid.New(),
		Email:     "bond@mi6.gov",
		Name:      "James Bond",
		CodeName:  "007",
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// TestUserWithEmail creates a test user with a specific email
func TestUserWithEmail(email string) *models.User {
	user := TestUser()
	user.Email = email
	return user
}

// TestSessionInfo creates a test session info
func TestSessionInfo(userID uuid.UUID) *models.SessionInfo {
	return &models.SessionInfo{
		ID:         uuid.New().String(),
		DeviceInfo: "Chrome 120 · Windows 11 · Desktop",
		IPAddress:  "203.0.113.42",
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(7 * 24 * time.Hour),
	}
}

// Float64Ptr returns a pointer to the given float64
func Float64Ptr(f float64) *float64 {
	return &f
}

// Int64Ptr returns a pointer to the given int64
func Int64Ptr(i int64) *int64 {
	return &i
}

// UserAgents provides common user agent strings for testing
var UserAgents = struct {
	Chrome       string
	Safari       string
	Firefox      string
	MobileSafari string
	Unknown      string
}{
	Chrome:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Safari:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	Firefox:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	MobileSafari: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	Unknown:      "",
}

// IPAddresses provides test IP addresses
var IPAddresses = struct {
	Public    string
	Private   string
	Localhost string
}{
	Public:    "203.0.113.42",
	Private:   "192.168.1.100",
	Localhost: "127.0.0.1",
}
