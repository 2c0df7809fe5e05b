package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/nerrad567/que-core/internal/infrastructure/config"
)

// Argon2id parameters.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16

	keyBytes = 32
)

// GenerateKey returns a random 256-bit API key, hex encoded.
func GenerateKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashKey hashes an API key with Argon2id and returns the PHC string:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func HashKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	sum := argon2.IDKey([]byte(key), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// VerifyKey reports whether key matches the PHC hash.
// Returns ErrMalformedHash if the hash cannot be parsed.
func VerifyKey(key, encoded string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(key), h.salt, h.time, h.memory, h.threads, uint32(len(h.sum))) //nolint:gosec // hash length fits uint32
	return subtle.ConstantTimeCompare(h.sum, candidate) == 1, nil
}

type phcHash struct {
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	sum     []byte
}

func parsePHC(encoded string) (phcHash, error) {
	var h phcHash

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return h, fmt.Errorf("%w: expected 6 fields", ErrMalformedHash)
	}
	if parts[1] != "argon2id" {
		return h, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedHash, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return h, fmt.Errorf("%w: version: %w", ErrMalformedHash, err)
	}
	if version != argon2.Version {
		return h, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil {
		return h, fmt.Errorf("%w: parameters: %w", ErrMalformedHash, err)
	}
	// argon2.IDKey panics outside these bounds.
	if h.time < 1 || h.threads < 1 || h.memory < 8*uint32(h.threads) {
		return h, fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return h, fmt.Errorf("%w: salt: %w", ErrMalformedHash, err)
	}
	if h.sum, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return h, fmt.Errorf("%w: hash: %w", ErrMalformedHash, err)
	}
	if len(h.sum) == 0 {
		return h, fmt.Errorf("%w: empty hash", ErrMalformedHash)
	}
	return h, nil
}

// Principal is the identity an API key authenticates as.
type Principal struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

type keyEntry struct {
	principal Principal
	hash      string
}

// Keyring holds the configured API keys.
type Keyring struct {
	entries []keyEntry
}

// NewKeyring validates the configured keys. Every hash must parse and every
// role must be known; an empty role means viewer.
func NewKeyring(keys []config.APIKeyEntry) (*Keyring, error) {
	kr := &Keyring{entries: make([]keyEntry, 0, len(keys))}
	for _, k := range keys {
		roleName := k.Role
		if roleName == "" {
			roleName = string(RoleViewer)
		}
		role, err := ParseRole(roleName)
		if err != nil {
			return nil, fmt.Errorf("api key %q: %w", k.Name, err)
		}
		if _, err := parsePHC(k.Hash); err != nil {
			return nil, fmt.Errorf("api key %q: %w", k.Name, err)
		}
		kr.entries = append(kr.entries, keyEntry{
			principal: Principal{Name: k.Name, Role: role},
			hash:      k.Hash,
		})
	}
	return kr, nil
}

// Len returns the number of keys.
func (kr *Keyring) Len() int {
	return len(kr.entries)
}

// Authenticate returns the principal whose hash matches key.
// Returns ErrInvalidKey when no key matches.
func (kr *Keyring) Authenticate(key string) (Principal, error) {
	if key == "" {
		return Principal{}, ErrInvalidKey
	}
	for _, e := range kr.entries {
		ok, err := VerifyKey(key, e.hash)
		if err == nil && ok {
			return e.principal, nil
		}
	}
	return Principal{}, ErrInvalidKey
}
