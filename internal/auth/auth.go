// Package auth resolves an authenticated caller's identity from a bearer
// credential. The delivery core only ever sees the resolved (userID, roles)
// pair, never the credential itself.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Identity is the resolved caller.
type Identity struct {
	UserID   int
	Username string
	Roles    []string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return slices.Contains(i.Roles, "admin")
}

// Verifier resolves a bearer credential to an Identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// claims is the token claim set issued by the identity provider.
type claims struct {
	Subject   string   `json:"sub,omitempty"`
	UserID    int      `json:"userId,omitempty"`
	Username  string   `json:"name,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
	NotBefore int64    `json:"nbf,omitempty"`
}

// HMACVerifier validates HS256-signed tokens from the identity provider.
type HMACVerifier struct {
	key []byte
}

func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("signing secret is empty")
	}
	return &HMACVerifier{key: []byte(secret)}, nil
}

// Verify checks the token signature and temporal claims, then extracts the
// identity. The user id comes from the userId claim, falling back to a
// numeric sub.
func (v *HMACVerifier) Verify(token string) (Identity, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Identity{}, ErrInvalidToken
	}

	payload := parts[0] + "." + parts[1]
	expected := v.sign(payload)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[2])) != 1 {
		return Identity{}, ErrInvalidToken
	}

	var header struct {
		Algorithm string `json:"alg"`
	}
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil || header.Algorithm != "HS256" {
		return Identity{}, ErrInvalidToken
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	var c claims
	if err := json.Unmarshal(claimsJSON, &c); err != nil {
		return Identity{}, ErrInvalidToken
	}

	now := time.Now().Unix()
	if c.ExpiresAt > 0 && now > c.ExpiresAt {
		return Identity{}, ErrExpiredToken
	}
	if c.NotBefore > 0 && now < c.NotBefore {
		return Identity{}, ErrInvalidToken
	}

	userID := c.UserID
	if userID == 0 && c.Subject != "" {
		if id, err := strconv.Atoi(c.Subject); err == nil {
			userID = id
		}
	}
	if userID == 0 {
		return Identity{}, fmt.Errorf("%w: no usable user id claim", ErrInvalidToken)
	}

	return Identity{UserID: userID, Username: c.Username, Roles: c.Roles}, nil
}

func (v *HMACVerifier) sign(payload string) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// SignToken issues a signed token for the given identity. Used by tests and
// local tooling; production tokens come from the identity provider.
func (v *HMACVerifier) SignToken(id Identity, ttl time.Duration) (string, error) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"typ":"JWT","alg":"HS256"}`))
	c := claims{
		UserID:   id.UserID,
		Username: id.Username,
		Roles:    id.Roles,
	}
	if ttl > 0 {
		c.ExpiresAt = time.Now().Add(ttl).Unix()
	}
	claimsJSON, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}
	payload := header + "." + base64.RawURLEncoding.EncodeToString(claimsJSON)
	return payload + "." + v.sign(payload), nil
}
