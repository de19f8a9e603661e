// Package validate implements Validator (spec.md §4.8): a dry-run of a
// stored executable through the sandbox's default pool, and the
// ValidationMarker this expansion stores in place of the original's bare
// `Validated = ETag` string (SPEC_FULL.md §3). Grounded on the
// diggerhq-opencomputer example's JWTIssuer (internal/auth/jwt.go), ported
// to the teacher's pinned `golang-jwt/jwt/v4`.
/*
 * Copyright (c) 2024, zexec authors.
 */
package validate

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/aistore/zexec/cmn"
)

// MarkerClaims is the ValidationMarker's claim set (spec.md §4.8 /
// SPEC_FULL.md §3): the etag validated against, when validation ran, and
// the sandbox's own validator_code.
type MarkerClaims struct {
	jwt.RegisteredClaims
	ETag          string `json:"etag"`
	ValidatedAt   int64  `json:"validated_at"`
	ValidatorCode int    `json:"validator_code"`
}

// Signer signs and verifies ValidationMarker JWTs with a single shared
// HS256 secret (zerovm_jwt_secret_path).
type Signer struct {
	secret []byte
}

// NewSigner loads the HS256 secret from path.
func NewSigner(path string) (*Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, cmn.Wrap(err, "validate: reading jwt secret")
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, cmn.NewReqError(cmn.ErrInternal, "validate: empty jwt secret at "+path)
	}
	return &Signer{secret: b}, nil
}

// NewSignerFromSecret builds a Signer directly from an in-memory secret,
// for tests and any caller that already has the bytes.
func NewSignerFromSecret(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign produces a ValidationMarker JWT for a successful dry run.
func (s *Signer) Sign(etag string, validatorCode int, at time.Time) (string, error) {
	claims := MarkerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(at),
		},
		ETag:          etag,
		ValidatedAt:   at.Unix(),
		ValidatorCode: validatorCode,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", cmn.Wrap(err, "validate: signing marker")
	}
	return signed, nil
}

// Verify checks marker's signature and returns its claims. It does not
// compare against a current ETag; callers needing that do it themselves
// (is_validated's contract, spec.md §4.8).
func (s *Signer) Verify(marker string) (*MarkerClaims, error) {
	token, err := jwt.ParseWithClaims(marker, &MarkerClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("validate: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, cmn.NewReqError(cmn.ErrUnprocessable, "validate: marker signature invalid: "+err.Error())
	}
	claims, ok := token.Claims.(*MarkerClaims)
	if !ok || !token.Valid {
		return nil, cmn.NewReqError(cmn.ErrUnprocessable, "validate: marker claims invalid")
	}
	return claims, nil
}

// IsValidated implements spec.md §4.8's is_validated: marker must verify
// and its etag must still equal the object's current one. A missing or
// unverifiable marker is simply "not validated", never an error.
func (s *Signer) IsValidated(marker, etag string) (*MarkerClaims, bool) {
	if marker == "" {
		return nil, false
	}
	claims, err := s.Verify(marker)
	if err != nil {
		return nil, false
	}
	return claims, claims.ETag == etag
}
