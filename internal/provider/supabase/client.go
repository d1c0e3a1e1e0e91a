package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"auth-gateway/internal/provider"
)

// Config agrupa los parametros del cliente GoTrue.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Cookies CookieConfig
}

// Factory construye clientes GoTrue ligados a cada request.
// Es inmutable y seguro para uso concurrente.
type Factory struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cookies CookieConfig
	logger  *zap.Logger
}

// NewFactory crea un Factory. Si httpClient es nil se usa uno con cfg.Timeout.
func NewFactory(cfg Config, httpClient *http.Client, logger *zap.Logger) *Factory {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		baseURL: strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		apiKey:  cfg.APIKey,
		client:  httpClient,
		cookies: cfg.Cookies.withDefaults(),
		logger:  logger,
	}
}

// ForRequest toma las credenciales del request: primero el header
// Authorization, luego la cookie de access token. El refresh token solo se
// lee de su cookie.
func (f *Factory) ForRequest(w http.ResponseWriter, r *http.Request) provider.Client {
	rc := &requestClient{factory: f, w: w}
	if r == nil {
		return rc
	}
	rc.accessToken = provider.BearerToken(r)
	if rc.accessToken == "" {
		rc.accessToken = cookieValue(r, f.cookies.AccessName)
	}
	rc.refreshToken = cookieValue(r, f.cookies.RefreshName)
	return rc
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

type requestClient struct {
	factory      *Factory
	w            http.ResponseWriter
	accessToken  string
	refreshToken string
}

func (c *requestClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*provider.SignUpResult, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	body := signUpRequest{Email: email, Password: password, Data: metadata}

	var resp signUpResponse
	if err := c.factory.do(ctx, http.MethodPost, "/signup", "", body, &resp); err != nil {
		return nil, err
	}

	// Con auto-confirm GoTrue devuelve una sesion; si no, devuelve el usuario.
	if resp.SessionUser != nil && resp.AccessToken != "" {
		session := resp.session()
		c.factory.cookies.setSession(c.w, session)
		return &provider.SignUpResult{User: resp.SessionUser, Session: session}, nil
	}
	if resp.ID != "" {
		user := resp.User
		return &provider.SignUpResult{User: &user}, nil
	}
	return &provider.SignUpResult{}, nil
}

func (c *requestClient) SignInWithPassword(ctx context.Context, email, password string) (*provider.Session, error) {
	body := passwordGrantRequest{Email: email, Password: password}

	var session provider.Session
	if err := c.factory.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &session); err != nil {
		return nil, err
	}
	if session.AccessToken != "" {
		c.factory.cookies.setSession(c.w, &session)
	}
	return &session, nil
}

// SignOut revoca la sesion y borra las cookies. Un token ya invalido para
// el proveedor (401, 403 o 404, o un refresh token rechazado) cuenta como
// sesion cerrada.
func (c *requestClient) SignOut(ctx context.Context) error {
	if c.accessToken == "" {
		if c.refreshToken == "" {
			return provider.SessionMissing()
		}
		if err := c.refresh(ctx); err != nil {
			c.factory.cookies.clearSession(c.w)
			if _, ok := provider.AsAuthError(err); ok {
				return nil
			}
			return err
		}
	}
	err := c.factory.do(ctx, http.MethodPost, "/logout?scope=global", c.accessToken, nil, nil)
	c.factory.cookies.clearSession(c.w)
	if authErr, ok := provider.AsAuthError(err); ok && sessionGone(authErr.Status) {
		return nil
	}
	return err
}

// GetUser resuelve el usuario del request. Si el access token falta o el
// proveedor lo rechaza, intenta una vez con el refresh token.
func (c *requestClient) GetUser(ctx context.Context) (*provider.User, error) {
	if c.accessToken == "" && c.refreshToken == "" {
		return nil, provider.SessionMissing()
	}
	if c.accessToken == "" {
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
		return c.fetchUser(ctx)
	}

	user, err := c.fetchUser(ctx)
	authErr, ok := provider.AsAuthError(err)
	if !ok || c.refreshToken == "" || !tokenRejected(authErr.Status) {
		return user, err
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	return c.fetchUser(ctx)
}

func (c *requestClient) fetchUser(ctx context.Context) (*provider.User, error) {
	var user provider.User
	if err := c.factory.do(ctx, http.MethodGet, "/user", c.accessToken, nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, nil
	}
	return &user, nil
}

// refresh canjea el refresh token por una sesion nueva y reescribe ambas
// cookies. Si el proveedor rechaza el token, las cookies se borran.
func (c *requestClient) refresh(ctx context.Context) error {
	body := refreshGrantRequest{RefreshToken: c.refreshToken}

	var session provider.Session
	if err := c.factory.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &session); err != nil {
		if _, ok := provider.AsAuthError(err); ok {
			c.factory.cookies.clearSession(c.w)
		}
		return err
	}
	if session.AccessToken == "" {
		return errRefreshNoToken
	}
	c.accessToken = session.AccessToken
	if session.RefreshToken != "" {
		c.refreshToken = session.RefreshToken
	}
	c.factory.cookies.setSession(c.w, &session)
	return nil
}

var errRefreshNoToken = errors.New("refresh returned no access token")

func tokenRejected(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func sessionGone(status int) bool {
	return tokenRejected(status) || status == http.StatusNotFound
}

// do ejecuta un request contra GoTrue. Las respuestas 4xx se devuelven como
// *provider.AuthError; cualquier otro fallo es un error opaco.
func (f *Factory) do(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	bearer := f.apiKey
	if accessToken != "" {
		bearer = accessToken
	}
	req.Header.Set("apikey", f.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		f.logger.Warn("auth provider error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("auth provider http error: status=%d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return decodeAuthError(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func decodeAuthError(status int, body []byte) *provider.AuthError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	authErr := &provider.AuthError{Status: status, Code: eb.ErrorCode}
	for _, candidate := range []string{eb.Msg, eb.Message, eb.ErrorDescription, eb.Error} {
		if strings.TrimSpace(candidate) != "" {
			authErr.Message = candidate
			break
		}
	}
	if authErr.Code == "" {
		authErr.Code = eb.Error
	}
	if authErr.Message == "" {
		authErr.Message = http.StatusText(status)
	}
	return authErr
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data"`
}

type passwordGrantRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrantRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// signUpResponse cubre las dos formas de respuesta de /signup: el usuario
// en la raiz, o una sesion con el usuario anidado.
type signUpResponse struct {
	provider.User
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int64          `json:"expires_in"`
	ExpiresAt    *int64         `json:"expires_at"`
	SessionUser  *provider.User `json:"user"`
}

func (r signUpResponse) session() *provider.Session {
	return &provider.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresIn:    r.ExpiresIn,
		ExpiresAt:    r.ExpiresAt,
		User:         r.SessionUser,
	}
}

type errorBody struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
}
