package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// Key prefixes. All keys follow "prefix:identifier".
const (
	UserPrefix        = "user:"
	LatestPingsPrefix = "pings:latest:"

	// LatestPingsGeneration counts writes that change the latest pings.
	// Cached results are keyed by the generation they were loaded under.
	LatestPingsGeneration = "pings:latest-gen"
)

// UserKey is the cached public profile of a user.
//
// Example: "user:123e4567-e89b-12d3-a456-426614174000"
func UserKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s%s", UserPrefix, userID.String())
}

// LatestPingsKey is the cached result of a latest-pings query of size n
// loaded under generation gen.
//
// Example: "pings:latest:12:3"
func LatestPingsKey(gen int64, n int) string {
	return fmt.Sprintf("%s%d:%d", LatestPingsPrefix, gen, n)
}

// LatestPingsPattern matches every cached latest-pings result of gen.
func LatestPingsPattern(gen int64) string {
	return fmt.Sprintf("%s%d:*", LatestPingsPrefix, gen)
}
