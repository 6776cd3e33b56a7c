package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleOperator = "operator" // may trigger syncs and register projects
	RoleViewer   = "viewer"   // read-only
)

var jwtSecret = []byte("freemasons-secret-key-change-in-production")

var ErrInvalidRole = errors.New("role must be operator or viewer")

// Claims identify an API caller.
type Claims struct {
	Operator string `json:"operator"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

// GenerateToken signs a token for operator valid for expireHours.
func GenerateToken(operator, role string, expireHours int) (string, error) {
	if role != RoleOperator && role != RoleViewer {
		return "", ErrInvalidRole
	}

	now := time.Now()
	claims := Claims{
		Operator: operator,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "freemasons",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseToken verifies tokenString and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
