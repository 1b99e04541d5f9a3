// Package token provides password hashing and bearer-token issuance for
// Workroom. Passwords are hashed with bcrypt; tokens are stateless HMAC-signed
// JWTs binding a username until an encoded expiry.
package token

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with bcrypt at the default cost.
// The salt is generated per hash by bcrypt itself.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// VerifyPassword reports whether the plaintext password matches the stored
// bcrypt digest. It never returns an error on mismatch, only false.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
