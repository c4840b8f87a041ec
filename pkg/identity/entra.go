// Package identity verifies Microsoft Entra ID tokens issued to the Teams tab
// so they can be exchanged for API tokens.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/attendease-api/pkg/config"
)

// ErrInvalidToken is returned for tokens failing signature or claim checks.
var ErrInvalidToken = errors.New("invalid identity token")

// Identity is the verified caller extracted from an Entra token.
type Identity struct {
	Subject  string
	ObjectID string
	Email    string
	Name     string
}

type entraClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	UPN               string `json:"upn"`
	Name              string `json:"name"`
	OID               string `json:"oid"`
	jwt.RegisteredClaims
}

// EntraVerifier validates RS256 id tokens against the tenant signing keys.
type EntraVerifier struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
}

// NewEntraVerifier downloads the tenant JWKS and keeps it refreshed in the background.
func NewEntraVerifier(cfg config.IdentityConfig, logger *zap.Logger) (*EntraVerifier, error) {
	if cfg.TenantID == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("entra tenant id and audience required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = fmt.Sprintf("https://login.microsoftonline.com/%s/discovery/v2.0/keys", cfg.TenantID)
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   cfg.RefreshInterval,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Warn("refresh entra jwks", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("load entra jwks: %w", err)
	}
	return NewVerifier(jwks, IssuerForTenant(cfg.TenantID), cfg.Audience), nil
}

// NewVerifier builds a verifier over an existing key set.
func NewVerifier(jwks *keyfunc.JWKS, issuer, audience string) *EntraVerifier {
	return &EntraVerifier{jwks: jwks, issuer: issuer, audience: audience}
}

// IssuerForTenant returns the v2.0 issuer of a tenant.
func IssuerForTenant(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", tenantID)
}

// Verify checks signature, issuer, audience and expiry and returns the caller.
func (v *EntraVerifier) Verify(tokenString string) (*Identity, error) {
	claims := &entraClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc,
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	email := firstNonEmpty(claims.Email, claims.PreferredUsername, claims.UPN)
	if email == "" {
		return nil, fmt.Errorf("%w: token carries no email", ErrInvalidToken)
	}

	return &Identity{
		Subject:  claims.Subject,
		ObjectID: claims.OID,
		Email:    strings.ToLower(email),
		Name:     claims.Name,
	}, nil
}

// Close stops the background key refresh.
func (v *EntraVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
