// Package identity issues and validates the bearer tokens that carry a
// caller's ledger address into the gateway. Proving control of the address
// (signing) happens in an external agent; the gateway only needs a trustworthy
// statement of who is calling.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"chaintrail/internal/platform/middleware"
	id "chaintrail/pkg/domain"
	dErrors "chaintrail/pkg/domain-errors"
)

// Claims are the JWT claims for gateway access tokens.
type Claims struct {
	Address string `json:"address"`
	Role    string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey, issuer string) *Service {
	return &Service{signingKey: []byte(signingKey), issuer: issuer}
}

// GenerateToken mints a token binding an authenticated address and an optional
// declared role.
func (s *Service) GenerateToken(addr id.Address, role id.Role, expiresIn time.Duration) (string, error) {
	claims := Claims{
		Address: addr.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	}
	if role.IsValid() {
		claims.Role = role.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// ValidateToken checks signature, expiry, and the address claim.
func (s *Service) ValidateToken(tokenString string) (*middleware.IdentityClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	addr, err := id.ParseAddress(claims.Address)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token carries no valid address")
	}

	out := &middleware.IdentityClaims{Address: addr}
	if claims.Role != "" {
		if role, err := id.ParseRole(claims.Role); err == nil {
			out.Role = role
		}
	}
	return out, nil
}
