// Package supabasetest expone un servidor GoTrue en memoria para tests.
package supabasetest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Options configura el servidor falso.
type Options struct {
	APIKey      string
	JWTSecret   string
	AutoConfirm bool
	TokenTTL    time.Duration
}

// Server imita los endpoints /auth/v1 de GoTrue usados por el gateway.
type Server struct {
	*httptest.Server

	APIKey string

	mu          sync.Mutex
	opts        Options
	secret      []byte
	byEmail     map[string]*account
	byID        map[string]*account
	sessions    map[string]*sessionState
	refresh     map[string]string
	forceStatus int
}

type sessionState struct {
	accountID string
	revoked   bool
	expired   bool
}

type account struct {
	id               string
	email            string
	passwordHash     []byte
	metadata         map[string]any
	createdAt        time.Time
	emailConfirmedAt *time.Time
}

type claims struct {
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// NewServer arranca el servidor; el caller debe llamar Close.
func NewServer(opts Options) *Server {
	if opts.APIKey == "" {
		opts.APIKey = "test-anon-key"
	}
	if opts.JWTSecret == "" {
		opts.JWTSecret = "test-jwt-secret"
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	s := &Server{
		APIKey:  opts.APIKey,
		opts:    opts,
		secret:  []byte(opts.JWTSecret),
		byEmail: make(map[string]*account),
		byID:     make(map[string]*account),
		sessions: make(map[string]*sessionState),
		refresh:  make(map[string]string),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// ConfirmEmail marca el email como confirmado.
func (s *Server) ConfirmEmail(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.byEmail[normalize(email)]
	if !ok {
		return false
	}
	now := time.Now().UTC()
	acc.emailConfirmedAt = &now
	return true
}

// FailWith hace que todos los requests respondan con status; 0 lo desactiva.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceStatus = status
}

// ExpireAccessTokens hace que los access tokens emitidos hasta ahora se
// rechacen como expirados. Los refresh tokens siguen siendo validos.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.sessions {
		st.expired = true
	}
}

// UserCount devuelve la cantidad de usuarios registrados.
func (s *Server) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Server) routes() http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(s.forcedFailure(), s.requireAPIKey())

	v1 := r.Group("/auth/v1")
	v1.POST("/signup", s.signUp)
	v1.POST("/token", s.token)
	v1.POST("/logout", s.logout)
	v1.GET("/user", s.user)
	return r
}

func (s *Server) forcedFailure() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		status := s.forceStatus
		s.mu.Unlock()
		if status != 0 {
			c.AbortWithStatusJSON(status, gin.H{"code": status, "msg": "forced failure"})
			return
		}
		c.Next()
	}
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("apikey") != s.APIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid API key"})
			return
		}
		c.Next()
	}
}

func (s *Server) signUp(c *gin.Context) {
	var req struct {
		Email    string         `json:"email"`
		Password string         `json:"password"`
		Data     map[string]any `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}
	email := normalize(req.Email)
	if email == "" {
		apiError(c, http.StatusBadRequest, "validation_failed", "To signup, please provide your email")
		return
	}
	if len(req.Password) < 6 {
		apiError(c, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "unexpected_failure", err.Error())
		return
	}

	s.mu.Lock()
	if _, exists := s.byEmail[email]; exists {
		s.mu.Unlock()
		apiError(c, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}
	acc := &account{
		id:           uuid.NewString(),
		email:        email,
		passwordHash: hash,
		metadata:     req.Data,
		createdAt:    time.Now().UTC(),
	}
	if s.opts.AutoConfirm {
		confirmed := acc.createdAt
		acc.emailConfirmedAt = &confirmed
	}
	s.byEmail[email] = acc
	s.byID[acc.id] = acc
	payload := acc.json()
	s.mu.Unlock()

	if !s.opts.AutoConfirm {
		c.JSON(http.StatusOK, payload)
		return
	}
	s.mu.Lock()
	session, err := s.issueSession(acc)
	s.mu.Unlock()
	if err != nil {
		apiError(c, http.StatusInternalServerError, "unexpected_failure", err.Error())
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) token(c *gin.Context) {
	switch c.Query("grant_type") {
	case "password":
		s.passwordGrant(c)
	case "refresh_token":
		s.refreshGrant(c)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "grant_type must be password or refresh_token",
		})
	}
}

func (s *Server) passwordGrant(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}

	s.mu.Lock()
	acc, ok := s.byEmail[normalize(req.Email)]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(req.Password)) != nil {
		apiError(c, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
		return
	}

	s.mu.Lock()
	confirmed := acc.emailConfirmedAt != nil
	var session gin.H
	var err error
	if confirmed {
		session, err = s.issueSession(acc)
	}
	s.mu.Unlock()
	if !confirmed {
		apiError(c, http.StatusBadRequest, "email_not_confirmed", "Email not confirmed")
		return
	}
	if err != nil {
		apiError(c, http.StatusInternalServerError, "unexpected_failure", err.Error())
		return
	}
	c.JSON(http.StatusOK, session)
}

// refreshGrant rota el refresh token: el usado deja de valer junto con la
// sesion anterior.
func (s *Server) refreshGrant(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}

	s.mu.Lock()
	sessionID, ok := s.refresh[req.RefreshToken]
	var st *sessionState
	if ok {
		st = s.sessions[sessionID]
	}
	if st == nil || st.revoked {
		s.mu.Unlock()
		apiError(c, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
		return
	}
	delete(s.refresh, req.RefreshToken)
	st.revoked = true
	session, err := s.issueSession(s.byID[st.accountID])
	s.mu.Unlock()
	if err != nil {
		apiError(c, http.StatusInternalServerError, "unexpected_failure", err.Error())
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) logout(c *gin.Context) {
	cl, err := s.parseBearer(c)
	if err != nil {
		apiError(c, http.StatusUnauthorized, "bad_jwt", "invalid JWT: "+err.Error())
		return
	}
	s.mu.Lock()
	if st, ok := s.sessions[cl.SessionID]; ok {
		st.revoked = true
	}
	s.mu.Unlock()
	c.Status(http.StatusNoContent)
}

func (s *Server) user(c *gin.Context) {
	cl, err := s.parseBearer(c)
	if err != nil {
		apiError(c, http.StatusUnauthorized, "bad_jwt", "invalid JWT: "+err.Error())
		return
	}
	s.mu.Lock()
	acc, ok := s.byID[cl.Subject]
	var payload gin.H
	if ok {
		payload = acc.json()
	}
	s.mu.Unlock()
	if !ok {
		apiError(c, http.StatusNotFound, "user_not_found", "User from sub claim in JWT does not exist")
		return
	}
	c.JSON(http.StatusOK, payload)
}

// issueSession requiere s.mu tomado.
func (s *Server) issueSession(acc *account) (gin.H, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.opts.TokenTTL)
	sessionID := uuid.NewString()
	cl := claims{
		Email:     acc.email,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.id,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	refreshToken := strings.ReplaceAll(uuid.NewString(), "-", "")
	s.sessions[sessionID] = &sessionState{accountID: acc.id}
	s.refresh[refreshToken] = sessionID
	return gin.H{
		"access_token":  signed,
		"token_type":    "bearer",
		"expires_in":    int64(s.opts.TokenTTL.Seconds()),
		"expires_at":    expiresAt.Unix(),
		"refresh_token": refreshToken,
		"user":          acc.json(),
	}, nil
}

func (s *Server) parseBearer(c *gin.Context) (claims, error) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return claims{}, errors.New("missing bearer token")
	}
	var cl claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), &cl, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return claims{}, errors.New("unable to parse or verify signature")
	}
	s.mu.Lock()
	st := s.sessions[cl.SessionID]
	var revoked, expired bool
	if st != nil {
		revoked, expired = st.revoked, st.expired
	}
	s.mu.Unlock()
	switch {
	case st == nil || revoked:
		return claims{}, errors.New("session revoked")
	case expired:
		return claims{}, errors.New("token is expired")
	}
	return cl, nil
}

func (a *account) json() gin.H {
	var confirmedAt any
	if a.emailConfirmedAt != nil {
		confirmedAt = a.emailConfirmedAt.Format(time.RFC3339Nano)
	}
	metadata := a.metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return gin.H{
		"id":                 a.id,
		"aud":                "authenticated",
		"role":               "authenticated",
		"email":              a.email,
		"email_confirmed_at": confirmedAt,
		"created_at":         a.createdAt.Format(time.RFC3339Nano),
		"user_metadata":      metadata,
	}
}

func apiError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{"code": status, "error_code": code, "msg": msg})
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
