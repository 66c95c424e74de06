package sharing

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DownloadClaims bind a token to one file of one project.
type DownloadClaims struct {
	jwt.RegisteredClaims
	File string `json:"file"`
}

// TokenIssuer signs short-lived download tokens so a listing can link to
// files without repeating the password in every URL.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns an HS256 issuer.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for file in project. The token never outlives the
// project itself.
func (t *TokenIssuer) Issue(projectID uuid.UUID, file string, projectExpiry time.Time) (string, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	if projectExpiry.Before(exp) {
		exp = projectExpiry
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, DownloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   projectID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		File: file,
	})
	return token.SignedString(t.secret)
}

// Verify checks the signature and expiry and returns the claims.
func (t *TokenIssuer) Verify(tokenString string) (*DownloadClaims, error) {
	claims := &DownloadClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
