package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ieraasyl/PingService/pkg/utils"
	"golang.org/x/crypto/bcrypt"
)

const (
	// maxSimilarity is the ratio above which a password counts as too close
	// to one of the user's own attributes.
	maxSimilarity = 0.7

	// MaxPasswordBytes is the longest password bcrypt accepts.
	MaxPasswordBytes = 72

	// maxAttributeLength bounds the attribute values the similarity check
	// looks at. Longer values have already failed field validation.
	maxAttributeLength = 254
)

var msgPasswordTooLong = fmt.Sprintf(
	"This password is too long. It must contain at most %d bytes.", MaxPasswordBytes)

var nonWord = regexp.MustCompile(`\W+`)

// PasswordPolicy validates and hashes passwords.
type PasswordPolicy struct {
	minLength  int
	bcryptCost int
	common     map[string]struct{}
}

// UserAttribute is a value the password must not resemble, with the label
// used in the error message.
type UserAttribute struct {
	Label string
	Value string
}

// NewPasswordPolicy creates a policy with the given minimum length and
// bcrypt cost.
func NewPasswordPolicy(minLength, bcryptCost int) *PasswordPolicy {
	common := make(map[string]struct{}, len(commonPasswords))
	for _, p := range commonPasswords {
		common[p] = struct{}{}
	}
	return &PasswordPolicy{
		minLength:  minLength,
		bcryptCost: bcryptCost,
		common:     common,
	}
}

// Validate returns every rule the password breaks, in a fixed order. An
// empty result means the password is acceptable.
//
// A password longer than MaxPasswordBytes is reported as such and skips the
// similarity check, which is quadratic in the input lengths.
func (p *PasswordPolicy) Validate(password string, attrs ...UserAttribute) []string {
	var problems []string

	if len(password) > MaxPasswordBytes {
		problems = append(problems, msgPasswordTooLong)
	} else {
		for _, attr := range attrs {
			if isTooSimilar(password, attr.Value) {
				problems = append(problems, fmt.Sprintf("The password is too similar to the %s.", attr.Label))
				break
			}
		}
	}

	if len([]rune(password)) < p.minLength {
		problems = append(problems, fmt.Sprintf(
			"This password is too short. It must contain at least %d characters.", p.minLength))
	}

	if _, ok := p.common[strings.ToLower(strings.TrimSpace(password))]; ok {
		problems = append(problems, "This password is too common.")
	}

	if password != "" && isAllDigits(password) {
		problems = append(problems, "This password is entirely numeric.")
	}

	return problems
}

// Hash returns the bcrypt hash of password. A password over
// MaxPasswordBytes is a validation error on the password field.
func (p *PasswordPolicy) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", utils.FieldError("password", msgPasswordTooLong)
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare reports whether password matches hash. bcrypt compares in
// constant time.
func (p *PasswordPolicy) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isTooSimilar compares the password with the attribute value and with each
// word of it.
func isTooSimilar(password, value string) bool {
	if password == "" || value == "" || len(value) > maxAttributeLength {
		return false
	}
	pw := strings.ToLower(password)
	candidates := append([]string{value}, nonWord.Split(value, -1)...)
	for _, c := range candidates {
		c = strings.ToLower(c)
		if c == "" {
			continue
		}
		if similarity(pw, c) >= maxSimilarity {
			return true
		}
	}
	return false
}

// similarity is 2*LCS/(len(a)+len(b)), where LCS is the longest common
// subsequence of runes.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra)+len(rb) == 0 {
		return 0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	return 2 * float64(prev[len(rb)]) / float64(len(ra)+len(rb))
}
