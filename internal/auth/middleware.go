// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package auth

import (
	"context"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/mayak870/gatehouse/internal/audit"
	"github.com/mayak870/gatehouse/internal/logging"
	"github.com/mayak870/gatehouse/internal/models"
)

type contextKey string

// ClaimsContextKey is the request context key under which validated
// token claims are stored.
const ClaimsContextKey contextKey = "claims"

// AuthzSink receives authorization denials. *audit.Logger satisfies
// it; a nil sink disables auditing.
type AuthzSink interface {
	LogAuthzDenied(ctx context.Context, actor audit.Actor, source audit.Source, resource string)
}

// Middleware validates bearer tokens and enforces role requirements
// on protected routes.
type Middleware struct {
	tokens  *JWTManager
	auditor AuthzSink
}

// NewMiddleware creates route-protection middleware. auditor may be
// nil.
func NewMiddleware(tokens *JWTManager, auditor AuthzSink) *Middleware {
	return &Middleware{tokens: tokens, auditor: auditor}
}

// Authenticate rejects requests without a valid bearer token and
// stores the token claims in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r)
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "missing or malformed authorization header")
			return
		}

		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			logging.Debug().Err(err).Msg("Token validation failed")
			writeAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole returns middleware allowing only the listed roles.
// Supervisors pass every check; use it inside an Authenticate chain.
func (m *Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				writeAuthError(w, http.StatusForbidden, "no authenticated subject")
				return
			}

			if !roleAllowed(claims.Role, roles) {
				if m.auditor != nil {
					m.auditor.LogAuthzDenied(r.Context(),
						audit.StaffActor(claims.PersonID, claims.Username, claims.Role),
						audit.SourceFromRequest(r),
						r.Method+" "+r.URL.Path)
				}
				writeAuthError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func roleAllowed(role string, allowed []string) bool {
	if role == models.RoleSupervisor {
		return true
	}
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

// GetClaims retrieves validated claims from the request context, or
// nil if the request was not authenticated.
func GetClaims(ctx context.Context) *Claims {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// writeAuthError mirrors the API response envelope without importing
// the api package, which sits above this one.
func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	code := "unauthorized"
	if status == http.StatusForbidden {
		code = "forbidden"
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}
