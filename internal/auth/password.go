package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordHasher produces salted one-way hashes and verifies plaintexts against them.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	// Verify returns false for a mismatch, for a malformed hash and for a
	// plaintext longer than MaxPasswordBytes.
	Verify(plain, hash string) bool
}

// BcryptHasher embeds a random salt and the cost factor in every hash it returns.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// bcrypt ignores bytes past MaxPasswordBytes, so longer input never matches.
// The comparison still runs for it.
func (h *BcryptHasher) Verify(plain, hash string) bool {
	matched := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
	return matched && len(plain) <= MaxPasswordBytes
}
