// Package auth holds the authentication boundary: password hashing, bearer token
// issuance and verification, and the guard that turns a token into a user.
package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// ErrPasswordTooLong is returned when a password exceeds what bcrypt can hash.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// HashPassword hashes a password with the default bcrypt cost.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, bcrypt.DefaultCost)
}

// HashPasswordWithCost hashes a password with an explicit bcrypt cost.
// Each call uses a fresh salt.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. A malformed hash never matches.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// BurnCompare runs one bcrypt comparison against a throwaway hash. Login calls it when
// the account does not exist so both failure paths cost about the same.
func BurnCompare(password string) {
	dummyOnce.Do(func() {
		h, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
		dummyHash = string(h)
	})
	_ = CheckPassword(password, dummyHash)
}
