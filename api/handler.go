// Package api exposes the identity service over HTTP with echo.
//
// Public routes cover password recovery; everything else requires the
// issuer's session token, and /admin routes additionally require the caller
// to resolve to an admin account.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cksportal/hubid/core/audit"
	"github.com/cksportal/hubid/core/code"
	"github.com/cksportal/hubid/core/domain"
	"github.com/cksportal/hubid/core/flow"
	"github.com/cksportal/hubid/core/identity"
	"github.com/cksportal/hubid/core/issuer"
	"github.com/cksportal/hubid/core/sequence"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	forgotPasswordMessage = "If the account exists, a reset email has been sent."
	resetSentMessage      = "Password reset email sent successfully"
)

// TokenVerifier validates a session token and returns the caller's
// external id. session.Verifier implements it.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Metrics receives request level metrics. telemetry.Provider implements it.
type Metrics interface {
	RecordRateLimit(ctx context.Context, action string)
	RecordLookup(ctx context.Context, by string, found bool, duration time.Duration)
	RecordCodeGenerated(ctx context.Context, kind string)
}

type nopMetrics struct{}

func (nopMetrics) RecordRateLimit(context.Context, string)                   {}
func (nopMetrics) RecordLookup(context.Context, string, bool, time.Duration) {}
func (nopMetrics) RecordCodeGenerated(context.Context, string)               {}

// Config wires a Handler. Provisioning, Audit and ForgotPasswordGuard are
// optional; without Provisioning the account creation and link routes are
// not registered.
type Config struct {
	Identity            *identity.Service
	Recovery            *flow.RecoveryManager
	Provisioning        *flow.ProvisioningManager
	Verifier            TokenVerifier
	ForgotPasswordGuard *flow.RateLimitGuard
	Audit               *audit.Logger
	Metrics             Metrics
	Logger              *zap.Logger
}

type Handler struct {
	identity     *identity.Service
	recovery     *flow.RecoveryManager
	provisioning *flow.ProvisioningManager
	verifier     TokenVerifier
	forgotGuard  *flow.RateLimitGuard
	audit        *audit.Logger
	metrics      Metrics
	logger       *zap.Logger
}

func NewHandler(cfg Config) *Handler {
	h := &Handler{
		identity:     cfg.Identity,
		recovery:     cfg.Recovery,
		provisioning: cfg.Provisioning,
		verifier:     cfg.Verifier,
		forgotGuard:  cfg.ForgotPasswordGuard,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
	if h.metrics == nil {
		h.metrics = nopMetrics{}
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	forgot := g.Group("")
	if h.forgotGuard != nil {
		forgot.Use(h.RateLimitMiddleware(h.forgotGuard, "forgot_password"))
	}
	forgot.POST("/account/forgot-password", h.HandleForgotPassword)

	// Protected routes
	protected := g.Group("")
	protected.Use(h.SessionMiddleware)
	protected.POST("/account/request-password-reset", h.HandleRequestPasswordReset)
	protected.GET("/me", h.HandleMe)

	admin := protected.Group("/admin")
	admin.Use(h.AdminMiddleware)
	admin.GET("/accounts/:code", h.HandleGetAccount)
	admin.POST("/accounts/:kind/:code/password-reset", h.HandleAdminPasswordReset)
	admin.POST("/codes/:kind", h.HandleGenerateCode)
	admin.GET("/audit", h.HandleAuditQuery)
	if h.provisioning != nil {
		admin.POST("/accounts/:kind", h.HandleProvision)
		admin.PUT("/accounts/:kind/:code/link", h.HandleLink)
		admin.DELETE("/accounts/:kind/:code/link", h.HandleUnlink)
		admin.POST("/accounts/:kind/:code/issuer-user", h.HandleEnsureIssuerUser)
		admin.POST("/accounts/:kind/:code/invite", h.HandleInvite)
	}
}

// HandleForgotPassword always answers with the same body so the response
// cannot be used to enumerate which codes exist.
func (h *Handler) HandleForgotPassword(c echo.Context) error {
	var body struct {
		CksID string `json:"cksId"`
	}
	if err := c.Bind(&body); err != nil {
		h.logger.Debug("forgot password: unreadable body", zap.Error(err))
	} else {
		h.recovery.ForgotPassword(c.Request().Context(), body.CksID)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": forgotPasswordMessage,
	})
}

func (h *Handler) HandleRequestPasswordReset(c echo.Context) error {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}

	err := h.recovery.RequestPasswordReset(c.Request().Context(), externalID(c), body.UserID)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"message": resetSentMessage,
		})
	case errors.Is(err, flow.ErrForbidden):
		return h.Error(c, http.StatusForbidden, "Forbidden", nil)
	case errors.Is(err, flow.ErrIssuer):
		return h.Error(c, http.StatusBadGateway, issuerMessage(err, "Failed to send password reset"), err)
	default:
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
}

// HandleMe resolves the caller to their business account.
func (h *Handler) HandleMe(c echo.Context) error {
	if acct := account(c); acct != nil {
		return c.JSON(http.StatusOK, acct)
	}
	acct, err := h.findByExternalID(c.Request().Context(), externalID(c))
	if err != nil {
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
	if acct == nil {
		return h.Error(c, http.StatusNotFound, "Account not found", nil)
	}
	return c.JSON(http.StatusOK, acct)
}

func (h *Handler) HandleGetAccount(c echo.Context) error {
	start := time.Now()
	acct, err := h.identity.FindAccountByCode(c.Request().Context(), c.Param("code"))
	h.metrics.RecordLookup(c.Request().Context(), "code", acct != nil, time.Since(start))
	if err != nil {
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
	if acct == nil {
		return h.Error(c, http.StatusNotFound, "Account not found", nil)
	}
	return c.JSON(http.StatusOK, acct)
}

func (h *Handler) HandleLink(c echo.Context) error {
	kind, ok := domain.ParseKind(c.Param("kind"))
	if !ok {
		return h.Error(c, http.StatusBadRequest, "Unknown account kind", nil)
	}
	var body struct {
		ExternalID string `json:"externalId"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}

	linked, err := h.provisioning.Link(c.Request().Context(), kind, c.Param("code"), body.ExternalID, actor(c))
	if err != nil {
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
	if !linked {
		return h.Error(c, http.StatusNotFound, "Account not found", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// HandleUnlink is idempotent: unlinking an account that has no link
// succeeds and reports alreadyUnlinked.
func (h *Handler) HandleUnlink(c echo.Context) error {
	kind, ok := domain.ParseKind(c.Param("kind"))
	if !ok {
		return h.Error(c, http.StatusBadRequest, "Unknown account kind", nil)
	}

	res, err := h.provisioning.Unlink(c.Request().Context(), kind, c.Param("code"), actor(c))
	switch {
	case errors.Is(err, flow.ErrAccountNotFound):
		return h.Error(c, http.StatusNotFound, "Account not found", nil)
	case err != nil:
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
	return c.JSON(http.StatusOK, res)
}

// HandleEnsureIssuerUser makes sure the account has an issuer user linked
// to it, creating or adopting one when needed.
func (h *Handler) HandleEnsureIssuerUser(c echo.Context) error {
	kind, ok := domain.ParseKind(c.Param("kind"))
	if !ok {
		return h.Error(c, http.StatusBadRequest, "Unknown account kind", nil)
	}

	user, err := h.provisioning.EnsureIssuerUser(c.Request().Context(), kind, c.Param("code"), actor(c))
	switch {
	case errors.Is(err, flow.ErrInvalidInput):
		return h.Error(c, http.StatusBadRequest, "Invalid account code", nil)
	case errors.Is(err, flow.ErrAccountNotFound):
		return h.Error(c, http.StatusNotFound, "Account not found", nil)
	case errors.Is(err, flow.ErrNoContact):
		return h.Error(c, http.StatusConflict, "Account has no email", nil)
	case errors.Is(err, flow.ErrConflict):
		return h.Error(c, http.StatusConflict, "CKS ID already exists in issuer", nil)
	case errors.Is(err, flow.ErrIssuer):
		return h.Error(c, http.StatusBadGateway, issuerMessage(err, "Failed to provision issuer user"), err)
	case err != nil:
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entityType":  kind,
		"entityId":    normalizedParam(c.Param("code")),
		"clerkUserId": user.ID,
		"username":    user.Username,
	})
}

func (h *Handler) HandleAdminPasswordReset(c echo.Context) error {
	kind, ok := domain.ParseKind(c.Param("kind"))
	if !ok {
		return h.Error(c, http.StatusBadRequest, "Unknown account kind", nil)
	}

	found, err := h.recovery.AdminPasswordReset(c.Request().Context(), actor(c), kind, c.Param("code"))
	switch {
	case errors.Is(err, flow.ErrInvalidInput):
		return h.Error(c, http.StatusBadRequest, "Invalid account code", nil)
	case !found && err == nil:
		return h.Error(c, http.StatusNotFound, "Account not found", nil)
	case errors.Is(err, flow.ErrNoContact):
		return h.Error(c, http.StatusConflict, "Account has no linked identity or email", nil)
	case errors.Is(err, flow.ErrIssuer):
		return h.Error(c, http.StatusBadGateway, issuerMessage(err, "Failed to send password reset"), err)
	case err != nil:
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": resetSentMessage,
	})
}

func (h *Handler) HandleGenerateCode(c echo.Context) error {
	kind := domain.EntityKind(c.Param("kind"))
	cksCode, err := h.identity.Generate(c.Request().Context(), kind)
	if errors.Is(err, sequence.ErrUnsupportedEntityKind) {
		return h.Error(c, http.StatusBadRequest, "Unknown account kind", nil)
	}
	if err != nil {
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
	h.metrics.RecordCodeGenerated(c.Request().Context(), kind.String())
	h.logAudit(c, audit.NewEvent(audit.EventCodeGenerated).
		Actor(actor(c)).
		Subject(cksCode).
		Success().
		Metadata(map[string]any{"kind": kind.String()}))
	return c.JSON(http.StatusCreated, map[string]string{"cksCode": cksCode})
}

func (h *Handler) HandleProvision(c echo.Context) error {
	kind, ok := domain.ParseKind(c.Param("kind"))
	if !ok {
		return h.Error(c, http.StatusBadRequest, "Unknown account kind", nil)
	}
	var in flow.ProfileInput
	if err := c.Bind(&in); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}

	p, err := h.provisioning.Provision(c.Request().Context(), kind, in, actor(c))
	switch {
	case errors.Is(err, flow.ErrInvalidInput):
		return h.Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, flow.ErrIssuer):
		return h.Error(c, http.StatusBadGateway, issuerMessage(err, "Failed to create user"), err)
	case err != nil:
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) HandleInvite(c echo.Context) error {
	kind, ok := domain.ParseKind(c.Param("kind"))
	if !ok {
		return h.Error(c, http.StatusBadRequest, "Unknown account kind", nil)
	}
	var body struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&body); err != nil {
		return h.Error(c, http.StatusBadRequest, "Invalid request body", err)
	}

	inv, err := h.provisioning.Invite(c.Request().Context(), kind, c.Param("code"), body.Email)
	switch {
	case errors.Is(err, flow.ErrInvalidInput):
		return h.Error(c, http.StatusBadRequest, "Email and code are required", nil)
	case errors.Is(err, flow.ErrIssuer):
		return h.Error(c, http.StatusBadGateway, issuerMessage(err, "Failed to create invitation"), err)
	case err != nil:
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
	return c.JSON(http.StatusCreated, inv)
}

// HandleAuditQuery lists audit events, newest first.
func (h *Handler) HandleAuditQuery(c echo.Context) error {
	filter := audit.Filter{
		ActorID:   c.QueryParam("actor"),
		SubjectID: c.QueryParam("subject"),
		Limit:     50,
	}
	if t := c.QueryParam("type"); t != "" {
		filter.Types = []string{t}
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			return h.Error(c, http.StatusBadRequest, "Invalid limit", nil)
		}
		filter.Limit = n
	}

	events, err := h.audit.Query(c.Request().Context(), filter)
	if err != nil {
		return h.Error(c, http.StatusInternalServerError, "Internal server error", err)
	}
	if events == nil {
		events = []audit.AuditEvent{}
	}
	return c.JSON(http.StatusOK, events)
}

// Error writes a JSON error body. Server side failures are logged with the
// underlying error, which is never sent to the client.
func (h *Handler) Error(c echo.Context, code int, message string, err error) error {
	if err != nil && code >= http.StatusInternalServerError {
		h.logger.Error(message,
			zap.Int("status", code),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.JSON(code, map[string]string{"error": message})
}

func (h *Handler) findByExternalID(ctx context.Context, id string) (*domain.HubAccountRecord, error) {
	start := time.Now()
	acct, err := h.identity.FindAccountByExternalID(ctx, id)
	h.metrics.RecordLookup(ctx, "external_id", acct != nil, time.Since(start))
	return acct, err
}

func (h *Handler) logAudit(c echo.Context, b *audit.EventBuilder) {
	if err := h.audit.Log(c.Request().Context(), b.Build()); err != nil {
		h.logger.Warn("failed to save audit event", zap.Error(err))
	}
}

func normalizedParam(raw string) string {
	c, _ := code.Normalize(raw)
	return c
}

// issuerMessage surfaces the issuer's own message when it sent one.
func issuerMessage(err error, fallback string) string {
	var apiErr *issuer.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
