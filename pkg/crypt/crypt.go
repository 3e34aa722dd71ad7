// Package crypt verifies roster passwords. New hashes are bcrypt; 13-character
// DES crypt(3) hashes from older account exports are still accepted.
package crypt

import (
	"strings"

	descrypt "github.com/digitive/crypt"
	"golang.org/x/crypto/bcrypt"
)

// DESCrypt performs traditional Unix DES crypt(3).
func DESCrypt(password, salt string) string {
	result, err := descrypt.Crypt(password, salt)
	if err != nil {
		return ""
	}
	return result
}

// Hash returns a bcrypt hash for password.
func Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// IsBcrypt reports whether stored looks like a bcrypt hash.
func IsBcrypt(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
}

// Check verifies password against a bcrypt or DES hash. Empty passwords and
// empty hashes never match.
func Check(password, stored string) bool {
	if password == "" || stored == "" {
		return false
	}
	if IsBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	if len(stored) != 13 {
		return false
	}
	computed := DESCrypt(password, stored[:2])
	return computed != "" && computed == stored
}
