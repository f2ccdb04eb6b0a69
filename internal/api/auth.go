package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

const (
	// DefaultTokenExpiration is the default lifetime of issued tokens.
	DefaultTokenExpiration = 12 * time.Hour

	// RoleAdmin may act on behalf of any practitioner.
	RoleAdmin = "admin"

	// RolePractitioner may only act on its own session and queue.
	RolePractitioner = "practitioner"
)

var (
	// ErrInvalidToken is returned when a JWT token is invalid.
	ErrInvalidToken = errors.New("invalid token")

	// ErrAuthDisabled is returned when tokens are requested without a secret.
	ErrAuthDisabled = errors.New("authentication disabled: no jwt secret configured")
)

// Claims represents the JWT claims for an API caller.
type Claims struct {
	PractitionerID string `json:"practitioner_id"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

// CanActFor reports whether the caller may operate on the practitioner's resources.
func (c *Claims) CanActFor(practitionerID string) bool {
	return c.Role == RoleAdmin || c.PractitionerID == practitionerID
}

// AuthService issues and validates API tokens.
type AuthService struct {
	jwtSecret       []byte
	tokenExpiration time.Duration
	now             func() time.Time
}

// NewAuthService creates a new authentication service.
func NewAuthService(jwtSecret string, tokenExpiration time.Duration) *AuthService {
	if tokenExpiration == 0 {
		tokenExpiration = DefaultTokenExpiration
	}

	return &AuthService{
		jwtSecret:       []byte(jwtSecret),
		tokenExpiration: tokenExpiration,
		now:             time.Now,
	}
}

// Enabled reports whether a signing secret is configured.
func (s *AuthService) Enabled() bool {
	return len(s.jwtSecret) > 0
}

// IssueToken mints a signed token for a practitioner. A zero ttl uses the service default.
func (s *AuthService) IssueToken(practitionerID, role string, ttl time.Duration) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrAuthDisabled
	}
	if role == "" {
		role = RolePractitioner
	}
	if role != RolePractitioner && role != RoleAdmin {
		return "", time.Time{}, fmt.Errorf("unknown role %q", role)
	}
	if practitionerID == "" && role != RoleAdmin {
		return "", time.Time{}, fmt.Errorf("practitioner id is required")
	}
	if ttl == 0 {
		ttl = s.tokenExpiration
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		PractitionerID: practitionerID,
		Role:           role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   practitionerID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "kclinic",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// ValidateToken parses and verifies a token string.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

type contextKey string

// ContextKeyClaims is the context key for validated token claims.
const ContextKeyClaims contextKey = "claims"

// ClaimsFromContext extracts validated claims from the request context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*Claims)
	return claims, ok
}

// AuthMiddleware requires a bearer token when the service is enabled.
// Browsers cannot set headers on WebSocket upgrades, so a token query parameter is accepted too.
func AuthMiddleware(auth *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.Enabled() || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			var token string
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || parts[0] != "Bearer" {
					writeError(w, http.StatusUnauthorized, "Invalid authorization header")
					return
				}
				token = parts[1]
			} else {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Missing token")
				return
			}

			claims, err := auth.ValidateToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PractitionerMiddleware rejects callers acting on another practitioner's resources.
// Requests without claims pass through; AuthMiddleware decides whether claims are mandatory.
func PractitionerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if ok && !claims.CanActFor(mux.Vars(r)["id"]) {
				writeError(w, http.StatusForbidden, "Token not valid for this practitioner")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
