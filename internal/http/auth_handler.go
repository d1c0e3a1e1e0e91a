package http

import (
	"net/http"
	"unicode/utf16"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auth-gateway/internal/domain"
	"auth-gateway/internal/provider"
)

const minPasswordLength = 6

const (
	msgCredentialsRequired = "Email and password are required"
	msgPasswordTooShort    = "Password must be at least 6 characters"
	msgInvalidBody         = "Invalid request body"
	msgInternal            = "Internal server error"
	msgSignupNoUser        = "Failed to create user"
	msgSigninNoUser        = "Authentication failed"
	msgUnauthorized        = "Unauthorized"
	msgNoUser              = "No user found"
	msgNotFound            = "Not found"

	msgUserCreated   = "User created successfully"
	msgAuthenticated = "Authentication successful"
	msgSignedOut     = "Signed out successfully"
)

// AuthHandler expone los endpoints /auth delegando en el proveedor.
type AuthHandler struct {
	logger  *zap.Logger
	clients provider.Factory
}

// NewAuthHandler crea un AuthHandler. clients construye un cliente del
// proveedor por request.
func NewAuthHandler(logger *zap.Logger, clients provider.Factory) *AuthHandler {
	return &AuthHandler{
		logger:  logger,
		clients: clients,
	}
}

// Signup maneja POST /auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req domain.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		respondError(c, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(c, http.StatusBadRequest, msgCredentialsRequired)
		return
	}
	if passwordLength(req.Password) < minPasswordLength {
		respondError(c, http.StatusBadRequest, msgPasswordTooShort)
		return
	}

	client := h.clients.ForRequest(c.Writer, c.Request)
	res, err := client.SignUp(c.Request.Context(), req.Email, req.Password, map[string]any{
		"full_name": req.FullName,
	})
	if err != nil {
		if authErr, ok := provider.AsAuthError(err); ok {
			respondError(c, http.StatusBadRequest, authErr.Message)
			return
		}
		h.internalError(c, "signup failed", err)
		return
	}
	if res == nil || res.User == nil {
		h.logger.Error("signup returned no user")
		respondError(c, http.StatusInternalServerError, msgSignupNoUser)
		return
	}

	c.JSON(http.StatusCreated, domain.AuthResponse{
		Message: msgUserCreated,
		User: domain.SignupUser{
			ID:             res.User.ID,
			Email:          res.User.Email,
			EmailConfirmed: res.User.EmailConfirmed(),
		},
	})
}

// Signin maneja POST /auth/signin.
func (h *AuthHandler) Signin(c *gin.Context) {
	var req domain.SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signin request", zap.Error(err))
		respondError(c, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(c, http.StatusBadRequest, msgCredentialsRequired)
		return
	}

	client := h.clients.ForRequest(c.Writer, c.Request)
	session, err := client.SignInWithPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if authErr, ok := provider.AsAuthError(err); ok {
			respondError(c, http.StatusUnauthorized, authErr.Message)
			return
		}
		h.internalError(c, "signin failed", err)
		return
	}
	if session == nil || session.User == nil {
		respondError(c, http.StatusUnauthorized, msgSigninNoUser)
		return
	}
	if session.AccessToken == "" {
		h.logger.Error("signin returned user without session", zap.String("user_id", session.User.ID))
		respondError(c, http.StatusInternalServerError, msgInternal)
		return
	}

	c.JSON(http.StatusOK, domain.AuthResponse{
		Message: msgAuthenticated,
		User: domain.SessionUser{
			ID:       session.User.ID,
			Email:    session.User.Email,
			FullName: optionalString(session.User.FullName()),
		},
		Session: &domain.Session{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			ExpiresAt:    session.ExpiresAt,
		},
	})
}

// Signout maneja POST /auth/signout.
func (h *AuthHandler) Signout(c *gin.Context) {
	client := h.clients.ForRequest(c.Writer, c.Request)
	if err := client.SignOut(c.Request.Context()); err != nil {
		if authErr, ok := provider.AsAuthError(err); ok {
			respondError(c, http.StatusBadRequest, authErr.Message)
			return
		}
		h.internalError(c, "signout failed", err)
		return
	}

	c.JSON(http.StatusOK, domain.AuthResponse{Message: msgSignedOut})
}

// Me maneja GET /auth/me. Cualquier error del proveedor, incluido un
// fallo de red, se responde como 401.
func (h *AuthHandler) Me(c *gin.Context) {
	client := h.clients.ForRequest(c.Writer, c.Request)
	user, err := client.GetUser(c.Request.Context())
	if err != nil {
		if _, ok := provider.AsAuthError(err); !ok {
			h.logger.Warn("get user failed", zap.Error(err))
		}
		respondError(c, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	if user == nil {
		respondError(c, http.StatusUnauthorized, msgNoUser)
		return
	}

	c.JSON(http.StatusOK, domain.MeResponse{
		User: domain.Profile{
			ID:             user.ID,
			Email:          user.Email,
			FullName:       optionalString(user.FullName()),
			CreatedAt:      user.CreatedAt,
			EmailConfirmed: user.EmailConfirmed(),
		},
	})
}

func (h *AuthHandler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	respondError(c, http.StatusInternalServerError, msgInternal)
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, domain.ErrorPayload{Error: msg})
}

// passwordLength cuenta unidades UTF-16: un emoji fuera del BMP vale 2.
func passwordLength(p string) int {
	return len(utf16.Encode([]rune(p)))
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
