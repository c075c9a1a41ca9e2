package ingress

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// HandshakeClaims is the opaque id the bridge presents in the stream's
// opening handshake (spec.md §6), a per-call capability token rather than
// the teacher's shared name/password APIKeyMiddleware secret. The Session
// Registry does not mint one at open(); MintHandshakeToken has no caller
// outside this package's tests.
type HandshakeClaims struct {
	CallID  string `json:"call_id"`
	OrgID   string `json:"org_id"`
	AgentID string `json:"agent_id"`
	jwt.RegisteredClaims
}

// MintHandshakeToken signs a short-lived HS256 token for one Call, grounded
// on the teacher's HS256/HMAC JWT validation in internal/handler/middleware.go.
func MintHandshakeToken(secret []byte, callID, orgID, agentID string, ttl time.Duration) (string, error) {
	claims := HandshakeClaims{
		CallID:  callID,
		OrgID:   orgID,
		AgentID: agentID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseHandshakeToken validates the bridge's opening-handshake token and
// returns its claims, rejecting anything not signed with HS256 the same way
// the teacher's parseAndValidateJWT does.
func ParseHandshakeToken(secret []byte, raw string) (*HandshakeClaims, error) {
	claims := &HandshakeClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingress: invalid handshake token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("ingress: handshake token not valid")
	}
	return claims, nil
}
