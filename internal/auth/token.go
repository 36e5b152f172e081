// Package auth verifies trigger-API bearer tokens against stored argon2id
// hashes, so the token itself never appears in configuration.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrInvalidTokenHash indicates the stored hash is not a well-formed
	// argon2id encoding.
	ErrInvalidTokenHash = errors.New("auth: invalid token hash format")
	// ErrIncompatibleVersion indicates the hash was produced by an
	// incompatible argon2 version.
	ErrIncompatibleVersion = errors.New("auth: incompatible argon2 version")
	// ErrTokenMismatch indicates the presented token does not match the hash.
	ErrTokenMismatch = errors.New("auth: token mismatch")
)

// Argon2idParams tunes hashing cost.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams are the parameters used when minting new hashes.
var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashToken derives an encoded argon2id hash for the token.
// Format: $argon2id$v=19$m=...,t=...,p=...$salt$hash
func HashToken(token string, params Argon2idParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(token), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism, b64Salt, b64Hash), nil
}

// VerifyToken checks the presented token against an encoded argon2id hash in
// constant time. Returns nil on match.
func VerifyToken(encodedHash, token string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return ErrInvalidTokenHash
	}
	if parts[1] != "argon2id" {
		return ErrInvalidTokenHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return ErrInvalidTokenHash
	}
	if version != argon2.Version {
		return ErrIncompatibleVersion
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return ErrInvalidTokenHash
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return ErrInvalidTokenHash
	}

	derived := argon2.IDKey([]byte(token), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(expected)))
	if subtle.ConstantTimeCompare(expected, derived) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

func parseParams(segment string) (Argon2idParams, error) {
	params := Argon2idParams{}
	for _, field := range strings.Split(segment, ",") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return params, ErrInvalidTokenHash
		}
		parsed, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return params, ErrInvalidTokenHash
		}
		switch key {
		case "m":
			params.Memory = uint32(parsed)
		case "t":
			params.Iterations = uint32(parsed)
		case "p":
			params.Parallelism = uint8(parsed)
		default:
			return params, ErrInvalidTokenHash
		}
	}
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		return params, ErrInvalidTokenHash
	}
	return params, nil
}
