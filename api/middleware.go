package api

import (
	"net"
	"net/http"
	"strconv"

	"github.com/cksportal/hubid/core/audit"
	"github.com/cksportal/hubid/core/domain"
	"github.com/cksportal/hubid/core/flow"
	"github.com/cksportal/hubid/core/session"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	ctxExternalID = "hubid.external_id"
	ctxAccount    = "hubid.account"
)

// SessionMiddleware requires a valid session token and stores the caller's
// external id on the context.
func (h *Handler) SessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := session.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if token == "" || h.verifier == nil {
			return h.Error(c, http.StatusUnauthorized, "Unauthorized", nil)
		}

		id, err := h.verifier.Verify(token)
		if err != nil {
			h.logger.Debug("rejected session token", zap.Error(err))
			return h.Error(c, http.StatusUnauthorized, "Unauthorized", nil)
		}

		c.Set(ctxExternalID, id)
		return next(c)
	}
}

// AdminMiddleware requires the caller to resolve to an admin account. It
// must run after SessionMiddleware.
func (h *Handler) AdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		acct, err := h.findByExternalID(c.Request().Context(), externalID(c))
		if err != nil {
			return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
		}
		if acct == nil || !acct.Role.IsAdmin() {
			return h.Error(c, http.StatusForbidden, "Forbidden", nil)
		}

		c.Set(ctxAccount, acct)
		return next(c)
	}
}

// NewIPExtractor returns how the server derives the client IP. With no
// trusted proxies the socket peer address is used and forwarding headers are
// ignored. Otherwise X-Forwarded-For is honoured only for hops inside the
// given ranges.
func NewIPExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	// Only the listed ranges are trusted, not loopback or private networks.
	opts := []echo.TrustOption{echo.TrustLoopback(false), echo.TrustLinkLocal(false), echo.TrustPrivateNet(false)}
	for _, ipnet := range trusted {
		opts = append(opts, echo.TrustIPRange(ipnet))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// RateLimitMiddleware limits requests per client IP. The IP comes from the
// server's IPExtractor, so spoofed forwarding headers share one bucket unless
// the peer is a trusted proxy.
func (h *Handler) RateLimitMiddleware(guard *flow.RateLimitGuard, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := guard.Check(c.Request().Context(), action+":"+c.RealIP())
			if err == nil {
				return next(c)
			}

			if rlErr, ok := flow.AsRateLimitError(err); ok {
				h.metrics.RecordRateLimit(c.Request().Context(), action)
				h.logAudit(c, audit.NewEvent(audit.EventRateLimited).
					Blocked().
					Metadata(map[string]any{"action": action, "ip": c.RealIP()}))
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(rlErr.RetryAfter.Seconds())))
				return h.Error(c, http.StatusTooManyRequests, "Too many requests", nil)
			}
			return h.Error(c, http.StatusServiceUnavailable, "Service unavailable", err)
		}
	}
}

func externalID(c echo.Context) string {
	id, _ := c.Get(ctxExternalID).(string)
	return id
}

func account(c echo.Context) *domain.HubAccountRecord {
	acct, _ := c.Get(ctxAccount).(*domain.HubAccountRecord)
	return acct
}

// actor identifies the caller in audit events: their code when known,
// otherwise their external id.
func actor(c echo.Context) string {
	if acct := account(c); acct != nil {
		return acct.Code
	}
	return externalID(c)
}
