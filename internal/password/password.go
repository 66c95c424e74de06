// Package password issues and checks the shared secret that protects a
// project. Secrets are 12 characters drawn uniformly from [A-Za-z0-9] and
// are only ever persisted as bcrypt hashes.
package password

import (
	"crypto/rand"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	// Length is the exact length of every issued password.
	Length = 12

	// Alphabet is the exact character set of every issued password.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// DefaultCost is the bcrypt cost used when none is configured.
	DefaultCost = 12
)

// ErrInvalidFormat is returned when a candidate does not have the shape of
// an issued password.
var ErrInvalidFormat = errors.New("password has invalid format")

// Generate returns a fresh random password.
func Generate() (string, error) {
	return randomString(Length, Alphabet)
}

// GenerateCode returns an n-character lowercase code, used for short
// human-typable identifiers such as text-room codes.
func GenerateCode(n int) (string, error) {
	return randomString(n, "abcdefghijklmnopqrstuvwxyz")
}

func randomString(n int, alphabet string) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}

// Valid reports whether s has exactly the length and character set of an
// issued password.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !inAlphabet(s[i]) {
			return false
		}
	}
	return true
}

func inAlphabet(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// Hash returns the bcrypt hash of a well-formed password. A cost of 0
// selects DefaultCost.
func Hash(pw string, cost int) (string, error) {
	if !Valid(pw) {
		return "", ErrInvalidFormat
	}
	if cost == 0 {
		cost = DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Compare reports whether pw matches the stored hash.
func Compare(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
