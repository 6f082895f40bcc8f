// Package auth issues and verifies the HS256 access tokens that guard the
// audit RPCs.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/preservaudit/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the registered claims plus the operator the token was
// issued to.
type Claims struct {
	jwt.RegisteredClaims
	Operator string
}

// GenerateToken signs a token for operator that expires after validityDuration.
func GenerateToken(operator string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Operator: operator,
	})

	return token.SignedString(secretKey)
}

// GetOperatorFromToken verifies tokenString and returns its operator.
// Expired tokens yield common.ErrTokenExpired; every other verification
// failure yields an error wrapping common.ErrInvalidToken.
func GetOperatorFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", errors.Join(common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Operator == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Operator, nil
}
