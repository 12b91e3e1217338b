// Package domain passphrase.go implements Argon2id verifier hashing and
// constant-time verification for Drop passphrases.
package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params controls the cost parameters used to derive a verifier. These
// come from config so an operator can tune them without a code change.
type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
	SaltLen   uint32
}

// DefaultArgon2Params is a reasonable interactive-login cost profile.
var DefaultArgon2Params = Argon2Params{
	Time:      1,
	MemoryKiB: 64 * 1024,
	Threads:   4,
	KeyLen:    32,
	SaltLen:   16,
}

// errVerifierMalformed is returned internally when a stored verifier string
// cannot be parsed; callers must treat this as DenyPasswordInvalid, never a
// crash.
var errVerifierMalformed = errors.New("malformed passphrase verifier")

// HashPassphrase derives a new Argon2id verifier for the clear passphrase,
// encoding the parameters and salt alongside the derived key so later
// verification doesn't depend on config staying constant over time.
func HashPassphrase(passphrase string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(passphrase), salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
	return encodeVerifier(p, salt, key), nil
}

// VerifyPassphrase reports whether passphrase matches the stored verifier.
// On a malformed verifier it returns false: the caller treats a
// non-matching passphrase identically to a malformed one, mapping both to
// DenyPasswordInvalid rather than propagating a parse error.
func VerifyPassphrase(passphrase, verifier string) bool {
	p, salt, want, err := decodeVerifier(verifier)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(passphrase), salt, p.Time, p.MemoryKiB, p.Threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// encodeVerifier formats $argon2id$v=19$m=<kib>,t=<time>,p=<threads>$<salt>$<key>
// using raw (unpadded) base64url, mirroring the conventional argon2 encoding.
func encodeVerifier(p Argon2Params, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		p.MemoryKiB, p.Time, p.Threads,
		base64.RawURLEncoding.EncodeToString(salt),
		base64.RawURLEncoding.EncodeToString(key))
}

func decodeVerifier(verifier string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(verifier, "$")
	// parts[0] is empty (leading '$'); expect 5 non-empty fields after it.
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, errVerifierMalformed
	}
	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Threads); err != nil {
		return Argon2Params{}, nil, nil, errVerifierMalformed
	}
	salt, err := base64.RawURLEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, errVerifierMalformed
	}
	key, err := base64.RawURLEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Params{}, nil, nil, errVerifierMalformed
	}
	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))
	return p, salt, key, nil
}
