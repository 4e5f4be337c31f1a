package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"faceattend/internal/identity"
)

// Claims represents the JWT payload carried by every authenticated request.
type Claims struct {
	UserID      int64  `json:"id"`
	Account     string `json:"account"`
	DisplayName string `json:"name"`
	Role        string `json:"role"`
	ClassID     *int64 `json:"classId,omitempty"`
	jwt.RegisteredClaims
}

// Caller converts verified claims into the request identity.
func (c Claims) Caller() identity.Caller {
	return identity.Caller{
		ID:          c.UserID,
		Account:     c.Account,
		DisplayName: c.DisplayName,
		Role:        identity.Role(c.Role),
		ClassID:     c.ClassID,
	}
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. A non-positive ttl defaults to two hours.
func NewIssuer(key, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Issuer{key: []byte(key), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs an access token for u.
func (i *Issuer) Issue(u identity.User) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		UserID:      u.ID,
		Account:     u.Account,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		ClassID:     u.ClassID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a token and returns claims.
func (i *Issuer) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.key, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if i.issuer != "" && claims.Issuer != i.issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.UserID <= 0 || !identity.Role(claims.Role).Valid() {
		return Claims{}, errors.New("incomplete claims")
	}
	return *claims, nil
}
