package adminapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is how long a minted operator token remains valid.
const TokenTTL = 1 * time.Hour

// OperatorClaims identifies the bearer of an admin dashboard token. There is
// no per-company scoping here (unlike TokenClaims) since the admin API gates
// one operator surface, not multi-tenant room access.
type OperatorClaims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// GenerateToken mints a signed operator token for subject.
func GenerateToken(subject, secret string) (string, time.Time, error) {
	expiresAt := time.Now().Add(TokenTTL)
	claims := OperatorClaims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("adminapi: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and verifies a bearer token.
func ValidateToken(tokenString, secret string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("adminapi: parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("adminapi: invalid token")
	}
	return claims, nil
}
