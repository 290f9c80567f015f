package auth

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"inkwell/apperror"
	"inkwell/models"
)

// maxPasswordBytes is bcrypt's input limit. The validator's max counts runes,
// so multibyte passwords need this second check.
const maxPasswordBytes = 72

func checkPasswordBytes(fields *apperror.Fields, password string) {
	if len(password) > maxPasswordBytes && utf8.RuneCountInString(password) <= maxPasswordBytes {
		fields.Add("password", fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
}

func hashPassword(password string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// VerifyPassword compares candidate against the stored hash in constant time.
// A wrong password is a false result, never an error.
func VerifyPassword(u *models.User, candidate string) bool {
	if u == nil || u.PasswordHash == "" {
		return false
	}
	return checkPasswordHash(candidate, u.PasswordHash)
}
