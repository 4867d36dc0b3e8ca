// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// GenerateToken returns a fresh random UUIDv4 string (122 random bits from
// crypto/rand) together with the SHA-256 digest stores keep in its place.
// The plaintext token goes to the client; the digest goes to the database.
func GenerateToken() (token, digest string, err error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "uuid.NewRandom").
			Wrap(err)
	}

	token = id.String()
	return token, HashToken(token), nil
}

// HashToken computes the hex-encoded SHA-256 digest of a bearer token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
