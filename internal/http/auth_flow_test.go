package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"auth-gateway/internal/metrics"
	"auth-gateway/internal/provider"
	"auth-gateway/internal/provider/supabase"
	"auth-gateway/internal/provider/supabase/supabasetest"
)

type flowEnv struct {
	router   *gin.Engine
	gotrue   *supabasetest.Server
	registry *prometheus.Registry
}

func newFlowEnv(t *testing.T, opts supabasetest.Options) *flowEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := supabasetest.NewServer(opts)
	t.Cleanup(srv.Close)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	factory := supabase.NewFactory(supabase.Config{URL: srv.URL, APIKey: srv.APIKey}, nil, zap.NewNop())
	clients := provider.InstrumentFactory(factory, collector)
	h := NewAuthHandler(zap.NewNop(), clients)

	return &flowEnv{
		router:   NewRouter(zap.NewNop(), h, collector, metrics.Handler(reg)),
		gotrue:   srv,
		registry: reg,
	}
}

func (e *flowEnv) do(method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestAuthFlow_SignupPendingConfirmation(t *testing.T) {
	env := newFlowEnv(t, supabasetest.Options{})

	rec := env.do(http.MethodPost, "/auth/signup", map[string]string{
		"email":    "a@b.com",
		"password": "secret1",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	user, _ := decodeBody(t, rec)["user"].(map[string]any)
	if user["email"] != "a@b.com" || user["emailConfirmed"] != false {
		t.Fatalf("unexpected user: %v", user)
	}

	rec = env.do(http.MethodPost, "/auth/signin", map[string]string{
		"email":    "a@b.com",
		"password": "secret1",
	}, nil)
	assertErrorEnvelope(t, rec, http.StatusUnauthorized, "Email not confirmed")
}

func TestAuthFlow_DuplicateSignup(t *testing.T) {
	env := newFlowEnv(t, supabasetest.Options{})
	body := map[string]string{"email": "a@b.com", "password": "secret1"}

	if rec := env.do(http.MethodPost, "/auth/signup", body, nil); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	rec := env.do(http.MethodPost, "/auth/signup", body, nil)
	assertErrorEnvelope(t, rec, http.StatusBadRequest, "User already registered")
}

func TestAuthFlow_SigninMeSignout(t *testing.T) {
	env := newFlowEnv(t, supabasetest.Options{AutoConfirm: true})

	rec := env.do(http.MethodPost, "/auth/signup", map[string]string{
		"email":    "a@b.com",
		"password": "secret1",
		"fullName": "Ada Lovelace",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec = env.do(http.MethodPost, "/auth/signin", map[string]string{
		"email":    "a@b.com",
		"password": "secret1",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	session, _ := body["session"].(map[string]any)
	if session["accessToken"] == "" || session["refreshToken"] == "" || session["expiresAt"] == nil {
		t.Fatalf("incomplete session: %v", session)
	}
	cookies := rec.Result().Cookies()
	var accessCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == "sb-access-token" {
			accessCookie = c
		}
	}
	if accessCookie == nil || accessCookie.Value != session["accessToken"] {
		t.Fatalf("expected access cookie matching the issued token")
	}

	rec = env.do(http.MethodGet, "/auth/me", nil, []*http.Cookie{accessCookie})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	me, _ := decodeBody(t, rec)["user"].(map[string]any)
	if me["email"] != "a@b.com" || me["fullName"] != "Ada Lovelace" || me["emailConfirmed"] != true || me["createdAt"] == "" {
		t.Fatalf("unexpected profile: %v", me)
	}

	rec = env.do(http.MethodPost, "/auth/signout", nil, []*http.Cookie{accessCookie})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/auth/me", nil, []*http.Cookie{accessCookie})
	assertErrorEnvelope(t, rec, http.StatusUnauthorized, msgUnauthorized)

	if got := env.providerCalls(t, provider.OpSignOut, provider.OutcomeSuccess); got != 1 {
		t.Fatalf("expected one successful signout observation, got %v", got)
	}
}

func TestAuthFlow_MeWithoutSession(t *testing.T) {
	env := newFlowEnv(t, supabasetest.Options{})
	rec := env.do(http.MethodGet, "/auth/me", nil, nil)
	assertErrorEnvelope(t, rec, http.StatusUnauthorized, msgUnauthorized)
}

func TestAuthFlow_SignoutWithoutSession(t *testing.T) {
	env := newFlowEnv(t, supabasetest.Options{})
	rec := env.do(http.MethodPost, "/auth/signout", nil, nil)
	assertErrorEnvelope(t, rec, http.StatusBadRequest, provider.MessageSessionMissing)
}

func TestAuthFlow_ProviderOutage(t *testing.T) {
	env := newFlowEnv(t, supabasetest.Options{})
	env.gotrue.FailWith(http.StatusServiceUnavailable)

	rec := env.do(http.MethodPost, "/auth/signin", map[string]string{
		"email":    "a@b.com",
		"password": "secret1",
	}, nil)
	assertErrorEnvelope(t, rec, http.StatusInternalServerError, msgInternal)

	if got := env.providerCalls(t, provider.OpSignIn, provider.OutcomeFault); got != 1 {
		t.Fatalf("expected one faulted signin observation, got %v", got)
	}
}

func TestAuthFlow_MeDuringProviderOutage(t *testing.T) {
	env := newFlowEnv(t, supabasetest.Options{AutoConfirm: true})
	cookies := env.signedInCookies(t)
	env.gotrue.FailWith(http.StatusServiceUnavailable)

	rec := env.do(http.MethodGet, "/auth/me", nil, cookies)
	assertErrorEnvelope(t, rec, http.StatusUnauthorized, msgUnauthorized)

	if got := env.providerCalls(t, provider.OpGetUser, provider.OutcomeFault); got != 1 {
		t.Fatalf("expected one faulted get_user observation, got %v", got)
	}
}

func TestAuthFlow_MeRefreshesExpiredSession(t *testing.T) {
	env := newFlowEnv(t, supabasetest.Options{AutoConfirm: true})
	cookies := env.signedInCookies(t)
	env.gotrue.ExpireAccessTokens()

	rec := env.do(http.MethodGet, "/auth/me", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after refresh, got %d (%s)", rec.Code, rec.Body.String())
	}
	renewed := rec.Result().Cookies()
	if len(renewed) != 2 {
		t.Fatalf("expected both session cookies to be rewritten, got %d", len(renewed))
	}

	rec = env.do(http.MethodGet, "/auth/me", nil, renewed)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected renewed cookies to work, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestAuthFlow_RepeatedSignout(t *testing.T) {
	env := newFlowEnv(t, supabasetest.Options{AutoConfirm: true})
	cookies := env.signedInCookies(t)

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/auth/signout", nil, cookies)
		if rec.Code != http.StatusOK {
			t.Fatalf("signout %d: expected 200, got %d (%s)", i+1, rec.Code, rec.Body.String())
		}
	}

	rec := env.do(http.MethodGet, "/auth/me", nil, cookies)
	assertErrorEnvelope(t, rec, http.StatusUnauthorized, msgUnauthorized)
}

func TestAuthFlow_MetricsEndpoint(t *testing.T) {
	env := newFlowEnv(t, supabasetest.Options{})
	env.do(http.MethodGet, "/auth/me", nil, nil)

	rec := env.do(http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`auth_gateway_http_responses_total{method="GET",route="/auth/me",status_code="401"} 1`)) {
		t.Fatalf("expected /auth/me 401 to be counted, got:\n%s", rec.Body.String())
	}
}

// signedInCookies registra un usuario confirmado y devuelve las cookies de
// sesion emitidas por /auth/signin.
func (e *flowEnv) signedInCookies(t *testing.T) []*http.Cookie {
	t.Helper()
	creds := map[string]string{"email": "a@b.com", "password": "secret1"}
	if rec := e.do(http.MethodPost, "/auth/signup", creds, nil); rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d", rec.Code)
	}
	rec := e.do(http.MethodPost, "/auth/signin", creds, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected access and refresh cookies, got %d", len(cookies))
	}
	return cookies
}

// providerCalls lee una serie de auth_gateway_provider_calls_total del registry.
func (e *flowEnv) providerCalls(t *testing.T, op, outcome string) float64 {
	t.Helper()
	families, err := e.registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "auth_gateway_provider_calls_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["operation"] == op && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
