package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/practivahq/practiva-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// OpsTokenClaims identifies an operator reading the billing ledger.
type OpsTokenClaims struct {
	jwt.RegisteredClaims
}

// MintOpsToken issues a signed JWT for an operator. Operator tokens are
// minted out of band (deploy tooling, on-call runbook), not by this service's
// API.
func MintOpsToken(cfg config.OpsAuthConfig, now time.Time, subject string, ttl time.Duration) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("ops jwt secret is required")
	}
	if subject == "" {
		return "", fmt.Errorf("token subject is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	claims := OpsTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseOpsToken validates the JWT string and returns typed claims.
func ParseOpsToken(cfg config.OpsAuthConfig, tokenString string) (*OpsTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("ops jwt secret is required")
	}

	claims := &OpsTokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
	)
	if err != nil {
		return nil, err
	}

	return claims, nil
}
