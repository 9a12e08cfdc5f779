package utils

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// idLength is the number of random hex characters after the prefix.
const idLength = 12

// GenerateID returns prefix-<12 hex chars>, e.g. usr-3f9c0a1b2d4e.
func GenerateID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
}

// ValidateUserID reports whether userID was generated with the usr prefix.
func ValidateUserID(userID string) bool {
	rest, ok := strings.CutPrefix(userID, "usr-")
	return ok && rest != ""
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NormalizeEmail lowercases and trims an email address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
