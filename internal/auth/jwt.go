package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Token kinds carried in the "typ" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	errSigningMethod = errors.New("unexpected signing method")
	errInvalidToken  = errors.New("invalid token")
	errIssuer        = errors.New("issuer mismatch")
	errKind          = errors.New("wrong token kind")
)

// Signer issues and verifies HS256 tokens for planner devices.
type Signer struct {
	Issuer     string
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	now        func() time.Time
}

// NewSigner creates a signer.
func NewSigner(issuer, key string, accessTTL, refreshTTL time.Duration) *Signer {
	return &Signer{Issuer: issuer, Key: []byte(key), AccessTTL: accessTTL, RefreshTTL: refreshTTL, now: time.Now}
}

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"-"`
	RefreshExp   time.Time `json:"-"`
}

// Claims represents the JWT payload.
type Claims struct {
	Kind string `json:"typ"`
	jwt.RegisteredClaims
}

// Issue signs a fresh access/refresh pair for the device.
func (s *Signer) Issue(deviceID string) (TokenPair, error) {
	now := s.now()
	pair := TokenPair{AccessExp: now.Add(s.AccessTTL), RefreshExp: now.Add(s.RefreshTTL)}

	var err error
	if pair.AccessToken, err = s.sign(deviceID, KindAccess, now, pair.AccessExp); err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken, err = s.sign(deviceID, KindRefresh, now, pair.RefreshExp); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Signer) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := s.Parse(refreshToken, KindRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return s.Issue(claims.Subject)
}

// Parse validates a token of the given kind and returns its claims.
func (s *Signer) Parse(tokenStr, kind string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errSigningMethod
		}
		return s.Key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Claims{}, errors.Wrap(err, "parse token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errInvalidToken
	}
	if s.Issuer != "" && claims.Issuer != s.Issuer {
		return Claims{}, errIssuer
	}
	if claims.Kind != kind {
		return Claims{}, errKind
	}
	return *claims, nil
}

func (s *Signer) sign(subject, kind string, now, exp time.Time) (string, error) {
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Key)
}
