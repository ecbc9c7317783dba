package auth

import (
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is deliberately above the library default; login is rare
// enough on an admin console that the extra work factor is affordable.
const bcryptCost = 12

var (
	lowerRe  = regexp.MustCompile(`[a-z]`)
	upperRe  = regexp.MustCompile(`[A-Z]`)
	digitRe  = regexp.MustCompile(`[0-9]`)
	symbolRe = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>\/?]`)
)

// HashPassword returns the bcrypt hash of password. The hash embeds its own
// salt and cost; the plaintext is never stored.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IsStrongPassword enforces the signup password policy: at least 8
// characters with one lowercase letter, one uppercase letter, one digit and
// one symbol from the allowed set.
func IsStrongPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	return lowerRe.MatchString(password) &&
		upperRe.MatchString(password) &&
		digitRe.MatchString(password) &&
		symbolRe.MatchString(password)
}
