package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/astra-cc/orchestrator/internal/apperr"
)

// handshakeClaims is the short-lived capability token a Session hands the
// media bridge so it can attach to exactly one Call (spec.md §4.14's
// handshake token). Grounded on the teacher's parseAndValidateJWT: HS256,
// algorithm and type asserted explicitly rather than trusted from the
// token header.
type handshakeClaims struct {
	CallID string `json:"call_id"`
	jwt.RegisteredClaims
}

// IssueHandshakeToken signs a capability token scoped to one Call, valid
// for ttl.
func IssueHandshakeToken(secret, callID string, ttl time.Duration) (string, error) {
	claims := handshakeClaims{
		CallID: callID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", apperr.DependencyFailure("sign handshake token", err)
	}
	return signed, nil
}

// ValidateHandshakeToken verifies signature, algorithm, and expiry, and
// returns the Call ID it was scoped to.
func ValidateHandshakeToken(secret, raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &handshakeClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", apperr.Unauthorized("invalid or expired handshake token")
	}

	claims, ok := token.Claims.(*handshakeClaims)
	if !ok || claims.CallID == "" {
		return "", apperr.Unauthorized("invalid handshake token claims")
	}
	return claims.CallID, nil
}
