package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"manuscript-review/internal/config"
	"manuscript-review/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrCannotSign   = errors.New("no signing key configured")
)

// Claims are the identity claims carried by a bearer token
type Claims struct {
	UserID uint        `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Service resolves bearer tokens into actors. It verifies ES256 tokens when
// JWT_SECRET holds a PEM key and falls back to HS256 with the raw secret.
type Service struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	hmacSecret []byte
	issuer     string
	expiration time.Duration
}

// NewService creates a new token service
func NewService(cfg *config.JWTConfig) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	s := &Service{issuer: cfg.Issuer, expiration: cfg.Expiration}
	if s.expiration <= 0 {
		s.expiration = 24 * time.Hour
	}

	secret := strings.ReplaceAll(cfg.Secret, `\n`, "\n")
	block, _ := pem.Decode([]byte(secret))
	if block == nil {
		s.hmacSecret = []byte(cfg.Secret)
		return s, nil
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC private key: %w", err)
		}
		s.privateKey, s.publicKey = key, &key.PublicKey
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is %T, expected ECDSA", pub)
		}
		s.publicKey = ecPub
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
	return s, nil
}

// GenerateToken signs a token for the actor
func (s *Service) GenerateToken(actor models.Actor) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: actor.ID,
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   fmt.Sprintf("%d", actor.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	var (
		signed string
		err    error
	)
	switch {
	case s.privateKey != nil:
		signed, err = jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(s.privateKey)
	case s.hmacSecret != nil:
		signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.hmacSecret)
	default:
		return "", ErrCannotSign
	}
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a token and returns its claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodECDSA:
			if s.publicKey == nil {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.publicKey, nil
		case *jwt.SigningMethodHMAC:
			if s.hmacSecret == nil {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.hmacSecret, nil
		}
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}, opts...)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ResolveActor turns a bearer token into the actor it identifies
func (s *Service) ResolveActor(tokenString string) (models.Actor, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return models.Actor{}, err
	}
	if claims.UserID == 0 || !claims.Role.Valid() {
		return models.Actor{}, fmt.Errorf("%w: missing user id or unknown role %q", ErrInvalidToken, claims.Role)
	}
	return models.Actor{ID: claims.UserID, Role: claims.Role}, nil
}

// GenerateKeyPEM creates a PEM encoded ECDSA P-256 private key for JWT_SECRET
func GenerateKeyPEM() ([]byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// PublicKeyPEM returns the PEM encoded public half of an EC private key
func PublicKeyPEM(privatePEM []byte) ([]byte, error) {
	block, _ := pem.Decode(privatePEM)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EC private key: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// EscapePEM renders a PEM block on one line, as .env files expect
func EscapePEM(block []byte) string {
	return strings.ReplaceAll(strings.TrimRight(string(block), "\n"), "\n", `\n`)
}
