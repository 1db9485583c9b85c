package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Scheme = "pbkdf2-sha256"
	saltBytes    = 16
	keyBytes     = 32
)

// ErrMalformedHash is returned for a stored hash in neither supported format.
var ErrMalformedHash = errors.New("malformed password hash")

// Hasher derives and checks password hashes.
//
// New hashes are PBKDF2-SHA256 encoded as
// pbkdf2-sha256$<iterations>$<salt>$<key> with raw base64 segments.
// bcrypt hashes written by earlier deployments still verify and report
// NeedsRehash so callers can upgrade them after a successful login.
type Hasher struct {
	iterations int
	dummy      string
}

func NewHasher(iterations int) (*Hasher, error) {
	h := &Hasher{iterations: iterations}
	dummy, err := h.Hash("pledgr-dummy-password")
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, h.iterations, keyBytes, sha256.New)

	return strings.Join([]string{
		pbkdf2Scheme,
		strconv.Itoa(h.iterations),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	}, "$"), nil
}

// Verify reports whether password matches encoded.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	if isBcrypt(encoded) {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
		}
		return true, nil
	}

	iterations, salt, want, err := decodePBKDF2(encoded)
	if err != nil {
		return false, err
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// VerifyDummy burns the same work as a real verification. Login calls it for
// unknown emails so response timing does not reveal which accounts exist.
func (h *Hasher) VerifyDummy(password string) {
	_, _ = h.Verify(password, h.dummy)
}

// NeedsRehash is true for bcrypt hashes and for PBKDF2 hashes weaker than
// the configured iteration count.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	iterations, _, _, err := decodePBKDF2(encoded)
	if err != nil {
		return true
	}
	return iterations < h.iterations
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func decodePBKDF2(encoded string) (int, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != pbkdf2Scheme {
		return 0, nil, nil, ErrMalformedHash
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations < 1 {
		return 0, nil, nil, ErrMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return 0, nil, nil, ErrMalformedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(key) == 0 {
		return 0, nil, nil, ErrMalformedHash
	}
	return iterations, salt, key, nil
}
