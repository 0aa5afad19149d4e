package auth

import (
	"errors"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/healthbridge/verification-service/internal/config"
)

// Service roles granted by the identity provider. TeleTAN creation demands a
// role appropriate to the TeleTAN type.
const (
	RoleHotline         = "c19hotline"
	RoleHotlineEvent    = "c19hotline_event"
	RoleHealthAuthority = "c19healthauthority"
)

const bearerPrefix = "Bearer "

var knownRoles = []string{RoleHotline, RoleHotlineEvent, RoleHealthAuthority}

// Authorizer validates a bearer credential against a required role set.
type Authorizer interface {
	IsAuthorized(authorizationHeader string, requiredRoles []string) bool
}

// TokenVerifier parses signed bearer tokens and checks the granted roles.
type TokenVerifier struct {
	enabled bool
	secret  []byte
	logger  *zap.Logger
}

// NewTokenVerifier builds a verifier. With verification disabled every
// request is authorized, which mirrors development deployments without an
// identity provider.
func NewTokenVerifier(cfg config.AuthConfig, logger *zap.Logger) *TokenVerifier {
	return &TokenVerifier{enabled: cfg.Enabled, secret: []byte(cfg.JWTSecret), logger: logger}
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

type roleClaims struct {
	RealmAccess realmAccess `json:"realm_access"`
	jwt.RegisteredClaims
}

// IsAuthorized reports whether the bearer credential carries every required
// role and at least one known service role. The check is a capability-set
// comparison, not a branch on concrete role identifiers.
func (v *TokenVerifier) IsAuthorized(authorizationHeader string, requiredRoles []string) bool {
	if !v.enabled {
		return true
	}
	if !strings.HasPrefix(authorizationHeader, bearerPrefix) {
		return false
	}

	granted, err := v.grantedRoles(strings.TrimPrefix(authorizationHeader, bearerPrefix))
	if err != nil {
		v.logger.Warn("bearer token rejected", zap.Error(err))
		return false
	}

	grantedSet := make(map[string]struct{}, len(granted))
	for _, role := range granted {
		grantedSet[role] = struct{}{}
	}
	for _, required := range requiredRoles {
		if _, ok := grantedSet[required]; !ok {
			return false
		}
	}
	for _, known := range knownRoles {
		if _, ok := grantedSet[known]; ok {
			return true
		}
	}
	return false
}

func (v *TokenVerifier) grantedRoles(tokenStr string) ([]string, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &roleClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*roleClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims.RealmAccess.Roles, nil
}
