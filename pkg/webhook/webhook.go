// Package webhook holds the thin per-platform translators described in
// spec.md section 6.2: verify a platform's webhook signature, normalize its
// event payload to an orchestrator.Inbound, hand it to the orchestrator,
// and translate the reply back out through the platform's own Send API.
// The wire format of each platform's payload is treated as a pluggable
// adapter, exactly as spec.md section 2 scopes it out of the core.
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/auth"
	"github.com/stagehand-run/stagehand/pkg/models"
	"github.com/stagehand-run/stagehand/pkg/orchestrator"
)

// Event is one inbound message lifted out of a platform's own payload
// shape, before it is resolved against the store.
type Event struct {
	RecipientPlatformID string // the business's page/phone-number ID on the platform
	SenderPlatformID    string // the end user's ID on the platform
	Text                string
}

// Adapter is the per-platform translator: verifying, parsing, and replying
// in that platform's own wire format.
type Adapter interface {
	// Name is the {platform} path segment this adapter answers for.
	Name() string
	// VerifyChallenge answers a platform's webhook subscription handshake.
	// It returns the challenge string to echo back, or an error if the
	// verify token in query doesn't match what's configured.
	VerifyChallenge(query map[string]string) (string, error)
	// ParseEvents extracts the normalized events out of a verified
	// webhook POST body. An empty slice (no error) is valid: not every
	// delivery carries a user message (delivery receipts, read markers).
	ParseEvents(body []byte) ([]Event, error)
	// Secret is the shared HMAC secret this adapter's payloads are signed
	// with.
	Secret() string
	// SendReply posts text back to the original sender via this
	// platform's Send API. A send failure is logged, not surfaced to the
	// platform: the webhook response is about acknowledging receipt, not
	// about delivery of the reply.
	SendReply(ctx context.Context, senderPlatformID, text string) error
}

// platformStore is the slice of *store.Store this package depends on.
type platformStore interface {
	ResolveBusinessByPlatformRecipient(ctx context.Context, platform, recipientID string) (models.Business, error)
	ResolveOrCreateUserByPlatformIdentity(ctx context.Context, platform, senderID string) (models.User, error)
}

// orchestratorService is the slice of *orchestrator.Orchestrator this
// package depends on.
type orchestratorService interface {
	ProcessMessage(ctx context.Context, in orchestrator.Inbound) (orchestrator.Result, error)
}

// Handler routes GET/POST /webhooks/{platform} to the matching Adapter.
type Handler struct {
	adapters map[string]Adapter
	store    platformStore
	orch     orchestratorService
}

// NewHandler builds a Handler dispatching to the given adapters, keyed by
// their Name().
func NewHandler(store platformStore, orch orchestratorService, adapters ...Adapter) *Handler {
	byName := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Handler{adapters: byName, store: store, orch: orch}
}

func (h *Handler) adapterFor(c *echo.Context) (Adapter, error) {
	platform := c.Param("platform")
	a, ok := h.adapters[platform]
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "unknown platform")
	}
	return a, nil
}

// VerifyChallenge handles GET /webhooks/{platform}: the platform's
// subscription handshake.
func (h *Handler) VerifyChallenge(c *echo.Context) error {
	a, err := h.adapterFor(c)
	if err != nil {
		return err
	}

	query := map[string]string{
		"hub.mode":         c.QueryParam("hub.mode"),
		"hub.verify_token": c.QueryParam("hub.verify_token"),
		"hub.challenge":    c.QueryParam("hub.challenge"),
	}
	challenge, err := a.VerifyChallenge(query)
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

// HandleEvent handles POST /webhooks/{platform}: verifies the signature
// before parsing a single field of the body (spec.md section 6.3 AuthGuard
// rule), then normalizes, resolves, and dispatches each event.
func (h *Handler) HandleEvent(c *echo.Context) error {
	a, err := h.adapterFor(c)
	if err != nil {
		return err
	}

	req := c.Request()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	sigHeader := req.Header.Get("X-Hub-Signature-256")
	if verr := auth.VerifyHexHMAC(a.Secret(), body, sigHeader); verr != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook signature")
	}

	events, err := a.ParseEvents(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	ctx := req.Context()
	for _, ev := range events {
		h.dispatch(ctx, a, ev)
	}

	// Platforms expect a fast 200 regardless of downstream outcome;
	// failures are logged, not surfaced, so the platform doesn't retry a
	// delivery that already succeeded.
	return c.String(http.StatusOK, "EVENT_RECEIVED")
}

func (h *Handler) dispatch(ctx context.Context, a Adapter, ev Event) {
	log := slog.With("platform", a.Name(), "recipient", ev.RecipientPlatformID)

	business, err := h.store.ResolveBusinessByPlatformRecipient(ctx, a.Name(), ev.RecipientPlatformID)
	if err != nil {
		if apierr.As(err) != apierr.NotFound {
			log.Error("business resolution failed", "error", err)
		}
		return
	}

	user, err := h.store.ResolveOrCreateUserByPlatformIdentity(ctx, a.Name(), ev.SenderPlatformID)
	if err != nil {
		log.Error("user resolution failed", "error", err)
		return
	}

	result, err := h.orch.ProcessMessage(ctx, orchestrator.Inbound{
		BusinessID: business.ID,
		UserID:     user.ID,
		SessionID:  ev.SenderPlatformID,
		Content:    ev.Text,
	})
	if err != nil {
		log.Error("message processing failed", "error", err, "business_id", business.ID)
		return
	}
	if result.Reply == "" {
		return // AI control paused: a human is handling this conversation
	}

	if err := a.SendReply(ctx, ev.SenderPlatformID, result.Reply); err != nil {
		log.Error("send reply failed", "error", err, "business_id", business.ID)
	}
}
