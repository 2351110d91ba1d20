package fakeapi

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters, lighter than production so that tests stay fast.
const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 19 * 1024 // 19 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

const saltLen = 16

// passwordHash is a salted Argon2id digest.
type passwordHash struct {
	salt []byte
	sum  []byte
}

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

func derive(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// hashPassword salts and hashes password.
func hashPassword(password string) (passwordHash, error) {
	salt, err := randBytes(saltLen)
	if err != nil {
		return passwordHash{}, err
	}
	return passwordHash{salt: salt, sum: derive([]byte(password), salt)}, nil
}

// matches compares in constant time.
func (h passwordHash) matches(password string) bool {
	if len(h.sum) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(derive([]byte(password), h.salt), h.sum) == 1
}
