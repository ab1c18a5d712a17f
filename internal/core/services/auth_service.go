package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skycast/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type identityKey struct{}

type AuthService interface {
	GenerateToken(identity domain.Identity, displayName string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	// VerifyIdentity checks that token was issued for identity.
	VerifyIdentity(identity domain.Identity, token string) error
	GetIdentityFromContext(ctx context.Context) (domain.Identity, error)
}

type Claims struct {
	Identity    domain.Identity `json:"identity"`
	DisplayName string          `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret []byte
	tokenTTL  time.Duration
	issuer    string
}

func NewAuthService(jwtSecret string, tokenTTL time.Duration, issuer string) AuthService {
	return &authService{
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		issuer:    issuer,
	}
}

// ContextWithIdentity stores an authenticated identity for downstream handlers.
func ContextWithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func (s *authService) GenerateToken(identity domain.Identity, displayName string) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("%w: identity is required", domain.ErrInvalidArgument)
	}

	now := time.Now()
	claims := &Claims{
		Identity:    identity,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity),
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Identity != "" {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

func (s *authService) VerifyIdentity(identity domain.Identity, token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", domain.ErrAuthenticationRequired)
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuthenticationRequired, err)
	}
	if claims.Identity != identity {
		return fmt.Errorf("%w: token was issued for another identity", domain.ErrAuthenticationRequired)
	}
	return nil
}

func (s *authService) GetIdentityFromContext(ctx context.Context) (domain.Identity, error) {
	identity, ok := ctx.Value(identityKey{}).(domain.Identity)
	if !ok || identity == "" {
		return "", domain.ErrAuthenticationRequired
	}
	return identity, nil
}
