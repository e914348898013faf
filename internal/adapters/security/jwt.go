package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/viralforge/porter-dispatch/internal/ports"
)

const tokenLeeway = 30 * time.Second

// TokenSigner issues and checks RS256 session tokens. The subject claim carries
// the principal id.
type TokenSigner struct {
	issuer     string
	kid        string
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

type sessionClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewTokenSigner loads a PEM key pair. PKCS#1 and PKCS#8/PKIX encodings are accepted.
func NewTokenSigner(issuer, kid, privateKeyPEM, publicKeyPEM string) (*TokenSigner, error) {
	if kid == "" {
		return nil, errors.New("jwt key id is required")
	}
	if privateKeyPEM == "" || publicKeyPEM == "" {
		return nil, errors.New("jwt private and public keys are required")
	}
	priv, err := parseRSAPrivate(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	pub, err := parseRSAPublic(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	if pub.N.Cmp(priv.PublicKey.N) != 0 {
		return nil, errors.New("jwt public key does not match private key")
	}
	return &TokenSigner{issuer: issuer, kid: kid, privateKey: priv, publicKey: pub}, nil
}

// NewEphemeralTokenSigner generates a throwaway key pair. Tokens do not survive
// a restart.
func NewEphemeralTokenSigner(issuer, kid string) (*TokenSigner, error) {
	if kid == "" {
		kid = "dispatch-ephemeral"
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return &TokenSigner{issuer: issuer, kid: kid, privateKey: key, publicKey: &key.PublicKey}, nil
}

func (s *TokenSigner) Sign(claims ports.AuthClaims) (string, error) {
	if claims.PrincipalID == "" {
		return "", errors.New("principal id is required")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, sessionClaims{
		Username: claims.Username,
		Role:     claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   claims.PrincipalID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	token.Header["kid"] = s.kid
	return token.SignedString(s.privateKey)
}

func (s *TokenSigner) ParseAndValidate(raw string) (ports.AuthClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(*jwt.Token) (any, error) {
		return s.publicKey, nil
	}, opts...)
	if err != nil {
		return ports.AuthClaims{}, err
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return ports.AuthClaims{}, errors.New("invalid token claims")
	}
	kid, _ := parsed.Header["kid"].(string)

	out := ports.AuthClaims{
		PrincipalID: claims.Subject,
		Username:    claims.Username,
		Role:        claims.Role,
		KeyID:       kid,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}

// JWKS returns the verification key in JSON Web Key Set form for socket gateways
// that check session tokens themselves.
func (s *TokenSigner) JWKS() map[string]any {
	e := big.NewInt(int64(s.publicKey.E)).Bytes()
	return map[string]any{
		"keys": []map[string]any{{
			"kid": s.kid,
			"kty": "RSA",
			"alg": jwt.SigningMethodRS256.Alg(),
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(s.publicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(e),
		}},
	}
}

func parseRSAPrivate(raw string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid private PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

func parseRSAPublic(raw string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}
