package services

import (
	"time"

	"skylearn-chat/internal/config"
	"skylearn-chat/internal/domain/identity"
	chat_errors "skylearn-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityService resolves inbound credentials into participant identities.
// Registered users carry a signed bearer token; guests carry the id issued
// at support-thread creation, accompanied by a short-lived guest token.
type IdentityService struct {
	jwtSecret []byte
	accessTTL time.Duration
	guestTTL  time.Duration
}

func NewIdentityService(cfg *config.Config) *IdentityService {
	return &IdentityService{
		jwtSecret: []byte(cfg.Auth.JWTSecret),
		accessTTL: cfg.Auth.AccessTTL,
		guestTTL:  cfg.Auth.GuestTokenTTL,
	}
}

type AccessClaims struct {
	UserID string `json:"sub"`
	Role   string `json:"role,omitempty"`
	Kind   string `json:"kind,omitempty"`
	jwt.RegisteredClaims
}

// Credential is the raw material of a connection attempt.
type Credential struct {
	BearerToken string
	Guest       bool
	GuestID     string
}

// Resolve turns a credential into an identity. Pure verification, no side
// effects. Fails with ErrUnauthorized when no usable credential is present.
func (s *IdentityService) Resolve(cred Credential) (identity.Identity, error) {
	if cred.Guest {
		if !identity.IsGuestID(cred.GuestID) {
			return identity.Identity{}, chat_errors.ErrUnauthorized
		}
		// Guest ids are accepted verbatim; their issuance was gated by the
		// short-lived token handed out with them.
		return identity.Guest(cred.GuestID), nil
	}

	if cred.BearerToken == "" {
		return identity.Identity{}, chat_errors.ErrUnauthorized
	}

	claims, err := s.ParseToken(cred.BearerToken)
	if err != nil {
		return identity.Identity{}, err
	}
	if claims.Kind == string(identity.KindGuest) {
		if !identity.IsGuestID(claims.UserID) {
			return identity.Identity{}, chat_errors.ErrUnauthorized
		}
		return identity.Guest(claims.UserID), nil
	}
	return identity.Registered(claims.UserID, claims.Role), nil
}

// ParseToken verifies signature and expiry of a bearer token.
func (s *IdentityService) ParseToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, chat_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, chat_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return AccessClaims{}, chat_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, chat_errors.ErrUnauthorized
	}
	return *claims, nil
}

// MintGuestToken issues the short-lived token that accompanies a fresh
// guest id. Its fixed lifetime keeps an anonymous visitor from retaining
// access once the live connection drops.
func (s *IdentityService) MintGuestToken(guestID string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: guestID,
		Kind:   string(identity.KindGuest),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.guestTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// MintAccessToken issues a registered-user token against the shared secret.
func (s *IdentityService) MintAccessToken(userID, role string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// GuestTokenTTL exposes the configured guest token lifetime.
func (s *IdentityService) GuestTokenTTL() time.Duration {
	return s.guestTTL
}
