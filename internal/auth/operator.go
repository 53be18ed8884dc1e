// Package auth verifies the signed operator tokens that identify who applies
// a remediation. Tokens are HS256 JWTs whose subject is the operator name.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

const maxOperatorLength = 200

// OperatorTokens signs and validates operator tokens.
type OperatorTokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewOperatorTokens creates a token manager.
// secret must be at least 32 characters for HS256 security.
func NewOperatorTokens(secret, issuer string) *OperatorTokens {
	return &OperatorTokens{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue creates a signed token for operator valid for ttl.
func (m *OperatorTokens) Issue(operator string, ttl time.Duration) (string, error) {
	operator = strings.TrimSpace(operator)
	if err := checkOperator(operator); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", domain.NewValidationError("ttl", "must be positive")
	}

	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   operator,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses token and returns the operator it names. Every
// failure wraps domain.ErrUnauthorized.
func (m *OperatorTokens) ValidateToken(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token is empty: %w", domain.ErrUnauthorized)
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", errors.Join(domain.ErrUnauthorized, err))
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid token claims: %w", domain.ErrUnauthorized)
	}
	if err := checkOperator(claims.Subject); err != nil {
		return "", fmt.Errorf("invalid subject: %w", domain.ErrUnauthorized)
	}
	return claims.Subject, nil
}

func checkOperator(operator string) error {
	switch {
	case operator == "":
		return domain.NewValidationError("operator", "required")
	case len(operator) > maxOperatorLength:
		return domain.NewValidationError("operator", fmt.Sprintf("max %d characters", maxOperatorLength))
	}
	return nil
}
