package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cksportal/hubid/core/audit"
	"github.com/cksportal/hubid/core/flow"
	"github.com/cksportal/hubid/core/identity"
	"github.com/cksportal/hubid/core/issuer"
	"github.com/cksportal/hubid/core/registry"
	"github.com/cksportal/hubid/core/sequence"
	"github.com/cksportal/hubid/core/session"
	"github.com/cksportal/hubid/kgorm"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-session-secret"

type testServer struct {
	e      *echo.Echo
	repo   *kgorm.Repository
	issuer *issuer.MemoryIssuer
}

func newTestServer(t *testing.T, forgotLimit int) *testServer {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "hubid.db") + "?_pragma=busy_timeout(5000)"
	repo, err := kgorm.NewStorage("sqlite", dsn, kgorm.Options{MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	reg := registry.Default()
	accounts := kgorm.NewAccountRepository(repo.DB(), reg)
	generator := sequence.NewGenerator(reg, kgorm.NewSequenceAllocator(repo.DB(), sequence.NewAllowList(reg.SequenceNames()...)))
	auditLog := audit.NewLogger(kgorm.NewAuditRepository(repo.DB()), audit.Hooks{})
	iss := issuer.NewMemoryIssuer()

	verifier, err := session.NewHS256Verifier(testSecret)
	require.NoError(t, err)

	h := NewHandler(Config{
		Identity:     identity.NewService(generator, accounts),
		Recovery:     flow.NewRecoveryManager(reg, accounts, iss, flow.WithAudit(auditLog)),
		Provisioning: flow.NewProvisioningManager(generator, accounts, iss, flow.WithAudit(auditLog)),
		Verifier:     verifier,
		ForgotPasswordGuard: flow.NewRateLimitGuard(flow.NewMemoryRateLimiter(), flow.RateLimitConfig{
			Limit:  forgotLimit,
			Window: time.Minute,
		}),
		Audit: auditLog,
	})

	e := echo.New()
	e.IPExtractor = NewIPExtractor(nil)
	h.RegisterRoutes(e.Group("/api"))
	return &testServer{e: e, repo: repo, issuer: iss}
}

func (s *testServer) seed(t *testing.T, rows ...any) {
	t.Helper()
	for _, row := range rows {
		require.NoError(t, s.repo.DB().Create(row).Error)
	}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	claims := session.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.doFrom(t, "192.0.2.1:1234", nil, method, path, bearer, body)
}

// doFrom sends a request from remoteAddr with extra headers.
func (s *testServer) doFrom(t *testing.T, remoteAddr string, headers map[string]string, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func strPtr(s string) *string { return &s }

func TestForgotPasswordIsEnumerationSafe(t *testing.T) {
	s := newTestServer(t, 100)
	userID := s.issuer.AddUser(issuer.User{ID: "user_mgr"})
	s.seed(t, &kgorm.Manager{ManagerID: "MGR-003", Name: "Pat", ClerkUserID: strPtr(userID)})

	known := s.do(t, http.MethodPost, "/api/account/forgot-password", "", map[string]string{"cksId": "mgr-003"})
	unknown := s.do(t, http.MethodPost, "/api/account/forgot-password", "", map[string]string{"cksId": "MGR-999"})
	garbage := s.do(t, http.MethodPost, "/api/account/forgot-password", "", map[string]string{"cksId": "!!"})

	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, http.StatusOK, garbage.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.Equal(t, known.Body.String(), garbage.Body.String())
	assert.JSONEq(t, `{"success":true,"message":"If the account exists, a reset email has been sent."}`, known.Body.String())

	assert.Equal(t, []string{userID}, s.issuer.Resets())
}

func TestForgotPasswordRateLimited(t *testing.T) {
	s := newTestServer(t, 2)
	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/account/forgot-password", "", map[string]string{"cksId": "CON-001"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/api/account/forgot-password", "", map[string]string{"cksId": "CON-001"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestForgotPasswordRateLimitIgnoresForwardingHeaders(t *testing.T) {
	s := newTestServer(t, 2)
	body := map[string]string{"cksId": "CON-001"}

	var last *httptest.ResponseRecorder
	for i := 0; i < 5; i++ {
		spoofed := fmt.Sprintf("198.51.100.%d", i+1)
		last = s.doFrom(t, "192.0.2.1:1234", map[string]string{
			echo.HeaderXForwardedFor: spoofed,
			echo.HeaderXRealIP:       spoofed,
		}, http.MethodPost, "/api/account/forgot-password", "", body)
		if i < 2 {
			require.Equal(t, http.StatusOK, last.Code, "request %d", i)
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)

	// A different peer has its own bucket.
	rec := s.doFrom(t, "192.0.2.2:1234", nil, http.MethodPost, "/api/account/forgot-password", "", body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewIPExtractor(t *testing.T) {
	_, proxies, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)

	tests := []struct {
		name       string
		trusted    []*net.IPNet
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct ignores header", nil, "192.0.2.1:1234", "198.51.100.7", "192.0.2.1"},
		{"trusted proxy", []*net.IPNet{proxies}, "10.1.2.3:1234", "198.51.100.7", "198.51.100.7"},
		{"trusted proxy chain", []*net.IPNet{proxies}, "10.1.2.3:1234", "198.51.100.7, 10.9.9.9", "198.51.100.7"},
		{"untrusted peer", []*net.IPNet{proxies}, "192.0.2.1:1234", "198.51.100.7", "192.0.2.1"},
		{"private peer not trusted", []*net.IPNet{proxies}, "192.168.1.1:1234", "198.51.100.7", "192.168.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			req.Header.Set(echo.HeaderXForwardedFor, tt.xff)
			assert.Equal(t, tt.want, NewIPExtractor(tt.trusted)(req))
		})
	}
}

func TestRequestPasswordReset(t *testing.T) {
	s := newTestServer(t, 5)
	s.issuer.AddUser(issuer.User{ID: "user_self"})

	rec := s.do(t, http.MethodPost, "/api/account/request-password-reset", "", map[string]string{"userId": "user_self"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/account/request-password-reset", "not-a-token", map[string]string{"userId": "user_self"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/account/request-password-reset", token(t, "user_self"), map[string]string{"userId": "user_other"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Forbidden"}`, rec.Body.String())
	assert.Empty(t, s.issuer.Resets(), "issuer must not be called on forbidden requests")

	rec = s.do(t, http.MethodPost, "/api/account/request-password-reset", token(t, "user_self"), map[string]string{"userId": "user_self"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Password reset email sent successfully"}`, rec.Body.String())

	s.issuer.Fail = &issuer.APIError{StatusCode: 503, Message: "issuer maintenance"}
	rec = s.do(t, http.MethodPost, "/api/account/request-password-reset", token(t, "user_self"), map[string]string{"userId": "user_self"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"issuer maintenance"}`, rec.Body.String())
}

func TestMe(t *testing.T) {
	s := newTestServer(t, 5)
	s.seed(t, &kgorm.Contractor{ContractorID: "CON-007", Name: "Acme", ContactPerson: strPtr("Jo"), ClerkUserID: strPtr("user_con")})

	rec := s.do(t, http.MethodGet, "/api/me", token(t, "user_con"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"role":"contractor","cksCode":"CON-007","status":"active","fullName":"Jo"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/me", token(t, "user_nobody"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, 5)
	s.seed(t,
		&kgorm.AdminUser{CksCode: "ADM-001", Role: "admin", FullName: strPtr("Root"), ClerkUserID: strPtr("user_admin")},
		&kgorm.Manager{ManagerID: "MGR-003", Name: "Pat", ClerkUserID: strPtr("user_mgr")},
	)
	admin := token(t, "user_admin")

	// Non-admins are rejected.
	rec := s.do(t, http.MethodPost, "/api/admin/codes/center", token(t, "user_mgr"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Codes are minted in order.
	for _, want := range []string{"CEN-001", "CEN-002"} {
		rec = s.do(t, http.MethodPost, "/api/admin/codes/center", admin, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"cksCode":"`+want+`"}`, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/api/admin/codes/pilot", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Provisioning continues the same sequence.
	rec = s.do(t, http.MethodPost, "/api/admin/accounts/center", admin, map[string]string{"name": "North Site", "email": "North@Acme.test"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p flow.Provisioned
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "CEN-003", p.Code)
	assert.Equal(t, "north@acme.test", p.Email)

	rec = s.do(t, http.MethodGet, "/api/admin/accounts/cen-003", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"center"`)

	// Unlink, then unlink again.
	rec = s.do(t, http.MethodDelete, "/api/admin/accounts/manager/MGR-003/link", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entityType":"manager","entityId":"MGR-003","wasLinked":true,"unlinked":true,"alreadyUnlinked":false}`, rec.Body.String())
	rec = s.do(t, http.MethodDelete, "/api/admin/accounts/manager/mgr-003/link", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entityType":"manager","entityId":"MGR-003","wasLinked":false,"unlinked":false,"alreadyUnlinked":true}`, rec.Body.String())
	rec = s.do(t, http.MethodDelete, "/api/admin/accounts/manager/MGR-404/link", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Relink and resolve.
	rec = s.do(t, http.MethodPut, "/api/admin/accounts/manager/mgr-003/link", admin, map[string]string{"externalId": "ext_abc"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/me", token(t, "ext_abc"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cksCode":"MGR-003"`)

	// Admin triggered reset reports missing accounts.
	rec = s.do(t, http.MethodPost, "/api/admin/accounts/manager/MGR-404/password-reset", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Audit trail is queryable.
	rec = s.do(t, http.MethodGet, "/api/admin/audit?subject=MGR-003", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []audit.AuditEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 2)
}

func TestAdminEnsureIssuerUser(t *testing.T) {
	s := newTestServer(t, 5)
	s.seed(t,
		&kgorm.AdminUser{CksCode: "ADM-001", Role: "admin", FullName: strPtr("Root"), ClerkUserID: strPtr("user_admin")},
		&kgorm.Manager{ManagerID: "MGR-003", Name: "Pat", Email: strPtr("pat@acme.test")},
		&kgorm.Manager{ManagerID: "MGR-004", Name: "Sam"},
	)
	admin := token(t, "user_admin")
	existing := s.issuer.AddUser(issuer.User{Username: "pat", EmailAddresses: []string{"pat@acme.test"}})

	// The existing issuer user with the account's email is adopted.
	rec := s.do(t, http.MethodPost, "/api/admin/accounts/manager/mgr-003/issuer-user", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"entityType":"manager","entityId":"MGR-003","clerkUserId":"`+existing+`","username":"mgr-003"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/me", token(t, existing), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cksCode":"MGR-003"`)

	rec = s.do(t, http.MethodPost, "/api/admin/accounts/manager/MGR-004/issuer-user", admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/admin/accounts/manager/MGR-404/issuer-user", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
