package api

import (
	"log/slog"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/auth"
)

// mapServiceError translates a pkg/apierr error into the *echo.HTTPError
// the boundary returns, per the status table in spec.md section 7.
// StoreFailure and Internal are logged with their underlying cause and
// returned to the caller as a generic message: the trace stays server-side.
func mapServiceError(err error) *echo.HTTPError {
	kind := apierr.As(err)
	status := kind.Status()

	if kind == apierr.StoreFailure || kind == apierr.Internal {
		slog.Error("request failed", "kind", kind, "error", err)
		return echo.NewHTTPError(status, "internal error")
	}
	return echo.NewHTTPError(status, err.Error())
}

// retryAfterSeconds is the value set on a Busy response's Retry-After
// header (spec.md section 7). It is a fixed hint, not derived from the
// conversation lease TTL or from the rate limiter's refill period.
const retryAfterSeconds = 2

func applyRetryAfter(c *echo.Context) {
	c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
}

// requireTenantMatch enforces that a path/query-supplied business_id
// matches the tenant resolved by MasterOrBusinessKey. A request
// authenticated with the master key carries no tenant and may address any
// business; a request authenticated with a business key may only address
// its own.
func requireTenantMatch(c *echo.Context, businessID string) error {
	business, ok := auth.BusinessFromContext(c.Request().Context())
	if !ok {
		return nil
	}
	if business.ID != businessID {
		return echo.NewHTTPError(http.StatusForbidden, "business_id does not match authenticated tenant")
	}
	return nil
}
