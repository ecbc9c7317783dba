// Package auth holds the authentication primitives: JWT issue/verify,
// bcrypt password hashing with the strength policy, and TOTP helpers.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wiresaver/backend/internal/common"
)

// Issuer and audience are pinned on both sides of the token lifecycle so a
// token minted for another service never verifies here.
const (
	TokenIssuer   = "wiresaver-admin"
	TokenAudience = "wiresaver-admin"
)

// Claims carries only registered claims; the subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken mints a signed HS256 token for userID, valid for the given
// duration. The jti combines subject, timestamp and random entropy so two
// tokens issued to the same user in the same instant are still distinct.
func GenerateToken(userID int64, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	sub := strconv.FormatInt(userID, 10)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
			ID:        fmt.Sprintf("%s-%d-%s", sub, now.UnixNano(), uuid.NewString()),
		},
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken validates signature, algorithm, issuer, audience and expiry as
// a unit and returns the subject user id and the issued-at time. Expired
// tokens map to common.ErrTokenExpired; every other failure, including
// malformed input, maps to common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (int64, time.Time, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return secretKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, time.Time{}, common.ErrTokenExpired
		}
		return 0, time.Time{}, common.ErrInvalidToken
	}

	if !token.Valid {
		return 0, time.Time{}, common.ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, time.Time{}, common.ErrInvalidToken
	}

	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}

	return userID, issuedAt, nil
}
