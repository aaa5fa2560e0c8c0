// Package auth guards the HTTP API: master-key and per-business API-key
// checks, webhook signature verification, and a request-rate limiter,
// wired into pkg/api as echo middleware (spec.md section 6.3).
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
)

// businessLookup is the slice of *store.Store the guard depends on.
type businessLookup interface {
	LookupBusinessByKey(ctx context.Context, apiKey string) (models.Business, error)
}

type contextKey string

const businessContextKey contextKey = "stagehand.business"

// WithBusiness attaches a resolved tenant to ctx.
func WithBusiness(ctx context.Context, b models.Business) context.Context {
	return context.WithValue(ctx, businessContextKey, b)
}

// BusinessFromContext returns the tenant attached by MasterOrBusinessKey,
// and false if none was attached.
func BusinessFromContext(ctx context.Context) (models.Business, bool) {
	b, ok := ctx.Value(businessContextKey).(models.Business)
	return b, ok
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if prefix := "Bearer "; strings.HasPrefix(h, prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// businessAPIKeyCookie is the cookie handleSaveConfig sets once a business
// API key has been validated; a widget that saved it presents it back here
// on later requests instead of an Authorization header (spec.md section 4.2).
const businessAPIKeyCookie = "businessApiKey"

// credentialToken returns the bearer token if present, falling back to the
// businessApiKey cookie.
func credentialToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(businessAPIKeyCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MasterOrBusinessKey returns middleware that accepts either the configured
// master key (full access, no tenant attached) or a business's own API key
// (looked up and attached to the request context via WithBusiness). Every
// other request is rejected before it reaches a handler.
func MasterOrBusinessKey(masterKey string, store businessLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			token := credentialToken(c.Request())
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token or businessApiKey cookie")
			}

			if masterKey != "" && constantTimeEqual(token, masterKey) {
				return next(c)
			}

			business, err := store.LookupBusinessByKey(c.Request().Context(), token)
			if err != nil {
				if apierr.Is(err, apierr.NotFound) {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
				}
				return echo.NewHTTPError(http.StatusInternalServerError, "auth lookup failed")
			}

			c.SetRequest(c.Request().WithContext(WithBusiness(c.Request().Context(), business)))
			return next(c)
		}
	}
}

// MasterKeyOnly returns middleware that accepts only the configured master
// key, for operations scoped to platform administration (spec.md section
// 6.1's POST /businesses).
func MasterKeyOnly(masterKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" || masterKey == "" || !constantTimeEqual(token, masterKey) {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid master key")
			}
			return next(c)
		}
	}
}
