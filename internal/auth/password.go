// internal/auth/password.go
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash indicates that the stored password hash is in an invalid format.
var ErrInvalidHash = errors.New("the encoded hash is not in the correct format")

// ErrIncompatibleVersion indicates that the Argon2 version is incompatible.
var ErrIncompatibleVersion = errors.New("incompatible version of argon2")

// Params holds Argon2id hashing parameters.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams is the production cost profile.
func DefaultParams() *Params {
	return &Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: uint8(max(1, min(runtime.NumCPU()/2, 8))),
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher derives and verifies password credentials with Argon2id.
type Hasher struct {
	params *Params

	dummyOnce sync.Once
	dummy     string
}

// NewHasher returns a Hasher using p, or DefaultParams when p is nil.
func NewHasher(p *Params) *Hasher {
	if p == nil {
		p = DefaultParams()
	}
	if p.SaltLength < 16 {
		p.SaltLength = 16
	}
	if p.Parallelism == 0 {
		p.Parallelism = 1
	}
	if p.KeyLength == 0 {
		p.KeyLength = 32
	}
	return &Hasher{params: p}
}

var randRead = rand.Read

func generateRandomBytes(n uint32) ([]byte, error) {
	b := make([]byte, n)
	_, err := randRead(b)
	return b, err
}

// Hash returns the encoded credential for password with a fresh salt:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<digest>
func (h *Hasher) Hash(password string) (string, error) {
	p := h.params
	salt, err := generateRandomBytes(p.SaltLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return encodeHash(p, salt, key), nil
}

func encodeHash(p *Params, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// Verify reports whether password matches encoded. Anything that cannot be
// decoded verifies as false.
func (h *Hasher) Verify(password, encoded string) bool {
	p, salt, key, err := DecodeHash(encoded)
	if err != nil {
		return false
	}
	candidate := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(key, candidate) == 1
}

// VerifyAbsent spends one derivation against a throwaway credential so that
// a lookup miss costs the same as a wrong password. It always returns false.
func (h *Hasher) VerifyAbsent(password string) bool {
	h.dummyOnce.Do(func() {
		dummy, err := h.Hash("cordless-absent-user")
		if err != nil {
			// a fixed salt still costs a full derivation at these params
			dummy = encodeHash(h.params, make([]byte, h.params.SaltLength), make([]byte, h.params.KeyLength))
		}
		h.dummy = dummy
	})
	h.Verify(password, h.dummy)
	return false
}

// DecodeHash parses an Argon2id encoded hash and returns its parameters, salt, and key.
func DecodeHash(encoded string) (*Params, []byte, []byte, error) {
	vals := strings.Split(encoded, "$")
	if len(vals) != 6 || vals[0] != "" || vals[1] != "argon2id" {
		return nil, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(vals[2], "v=%d", &version); err != nil {
		return nil, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return nil, nil, nil, ErrIncompatibleVersion
	}

	p := &Params{}
	if _, err := fmt.Sscanf(vals[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return nil, nil, nil, ErrInvalidHash
	}
	// argon2 panics on zero cost parameters
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return nil, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.Strict().DecodeString(vals[4])
	if err != nil || len(salt) == 0 {
		return nil, nil, nil, ErrInvalidHash
	}
	p.SaltLength = uint32(len(salt))

	key, err := base64.RawStdEncoding.Strict().DecodeString(vals[5])
	if err != nil || len(key) == 0 {
		return nil, nil, nil, ErrInvalidHash
	}
	p.KeyLength = uint32(len(key))

	return p, salt, key, nil
}
