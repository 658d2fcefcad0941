package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "user-portal"

// tokenCodec signs and verifies the cookie value.
//
// COOKIE STRUCTURE (an HS256 JWT):
//
//	{"jti":"<session id>","sub":"<user id>","iss":"user-portal","iat":...,"exp":...}
//
// The signature stops a client from pointing its cookie at someone else's
// session id. The store record stays the source of truth for expiry and
// revocation; exp in the token only mirrors it.
type tokenCodec struct {
	secret []byte
	now    func() time.Time
}

type claims struct {
	jwt.RegisteredClaims
}

func (c *tokenCodec) encode(rec Record) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        rec.ID,
			Subject:   strconv.FormatInt(rec.PrincipalID, 10),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(rec.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
		},
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("session: signing cookie: %w", err)
	}
	return signed, nil
}

// decode verifies the signature and returns the session id and principal.
//
// With validateTime false the exp claim is ignored. Logout uses that so an
// expired cookie can still clean up its record.
func (c *tokenCodec) decode(value string, validateTime bool) (string, int64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(c.now),
	}
	if validateTime {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	token, err := jwt.ParseWithClaims(value, &claims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	cl, ok := token.Claims.(*claims)
	if !ok || cl.ID == "" {
		return "", 0, errors.Join(ErrNoSession, errors.New("session: cookie has no session id"))
	}

	principalID, err := strconv.ParseInt(cl.Subject, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad subject %q", ErrNoSession, cl.Subject)
	}

	return cl.ID, principalID, nil
}
