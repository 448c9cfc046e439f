// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package token verifies the signed credentials clients present once,
// when a connection is admitted, and resolves them into an Identity.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultAlgorithm = "HS256"

	// MockToken may be presented instead of a real token when the server
	// is explicitly configured to allow it. It exists for automated
	// testing without a live credential issuer.
	MockToken = "mock_token"

	MockUserID int64 = 1
)

// Identity is what the connection keeps after admission.
// The encoded token itself is not retained.
type Identity struct {
	UserID int64
	IP     string
}

func (i Identity) String() string {
	if i.IP != "" {
		return fmt.Sprintf("user %d (%s)", i.UserID, i.IP)
	}
	return fmt.Sprintf("user %d", i.UserID)
}

// MockIdentity returns the sentinel identity the mock token resolves to.
func MockIdentity() *Identity {
	return &Identity{UserID: MockUserID}
}

type Claims struct {
	UserID int64  `json:"user_id"`
	IP     string `json:"ip,omitempty"`
	jwt.RegisteredClaims
}

type Validator struct {
	key       interface{}
	algorithm string
	parser    *jwt.Parser
}

// NewValidator returns a validator accepting only tokens signed
// with the given key and algorithm. HMAC algorithms use the key as is,
// asymmetric algorithms expect a PEM-encoded public key.
func NewValidator(key []byte, algorithm string) (*Validator, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}

	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, &UnsupportedAlgorithmErr{Algorithm: algorithm}
	}

	vk, err := verificationKey(method, key)
	if err != nil {
		return nil, err
	}

	return &Validator{
		key:       vk,
		algorithm: method.Alg(),
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{method.Alg()})),
	}, nil
}

func verificationKey(method jwt.SigningMethod, key []byte) (interface{}, error) {
	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		return key, nil
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		return jwt.ParseRSAPublicKeyFromPEM(key)
	case *jwt.SigningMethodECDSA:
		return jwt.ParseECPublicKeyFromPEM(key)
	case *jwt.SigningMethodEd25519:
		return jwt.ParseEdPublicKeyFromPEM(key)
	}
	return nil, &UnsupportedAlgorithmErr{Algorithm: method.Alg()}
}

func (v *Validator) Algorithm() string {
	return v.algorithm
}

// Validate checks the signature, structure and (when present) the expiry
// of the encoded token. Any failure is reported as *DecodeFailure.
func (v *Validator) Validate(encoded string) (*Identity, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(encoded, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, &DecodeFailure{Err: err}
	}
	if claims.UserID <= 0 {
		return nil, &DecodeFailure{Err: errMissingUserID}
	}

	return &Identity{
		UserID: claims.UserID,
		IP:     claims.IP,
	}, nil
}

// Mint signs claims with an HMAC algorithm.
func Mint(claims *Claims, key []byte, algorithm string) (string, error) {
	if len(key) == 0 {
		return "", ErrNoKey
	}
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return "", &UnsupportedAlgorithmErr{Algorithm: algorithm}
	}

	return jwt.NewWithClaims(method, claims).SignedString(key)
}

// MintIdentity signs a token for the identity which expires after ttl.
// A zero ttl produces a token without expiry.
func MintIdentity(identity Identity, key []byte, algorithm string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: identity.UserID,
		IP:     identity.IP,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return Mint(claims, key, algorithm)
}

// CheckAlgorithm reports whether tokens signed with algorithm
// can be validated.
func CheckAlgorithm(algorithm string) error {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil || method == jwt.SigningMethodNone {
		return &UnsupportedAlgorithmErr{Algorithm: algorithm}
	}
	return nil
}

var errMissingUserID = errors.New("token does not carry a user_id")
