package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Client define las operaciones delegadas al proveedor de autenticacion.
// Cada instancia esta ligada a un request: lee y escribe las credenciales
// de sesion (cookies o bearer token) de ese request.
type Client interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	GetUser(ctx context.Context) (*User, error)
}

// Factory construye un Client por request.
type Factory interface {
	ForRequest(w http.ResponseWriter, r *http.Request) Client
}

// FactoryFunc adapta una funcion a Factory.
type FactoryFunc func(w http.ResponseWriter, r *http.Request) Client

func (f FactoryFunc) ForRequest(w http.ResponseWriter, r *http.Request) Client {
	return f(w, r)
}

// User es el usuario tal como lo reporta el proveedor.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	CreatedAt        string         `json:"created_at"`
	EmailConfirmedAt *string        `json:"email_confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

// FullName devuelve user_metadata.full_name, o "" si no existe.
func (u *User) FullName() string {
	if u == nil || u.UserMetadata == nil {
		return ""
	}
	name, _ := u.UserMetadata["full_name"].(string)
	return name
}

// EmailConfirmed indica si el proveedor registro la confirmacion del email.
func (u *User) EmailConfirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil
}

// Session es la sesion emitida por el proveedor.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    *int64 `json:"expires_at"`
	User         *User  `json:"user"`
}

// SignUpResult agrupa el usuario creado y, si el proveedor confirma
// automaticamente, la sesion emitida.
type SignUpResult struct {
	User    *User
	Session *Session
}

// AuthError es un rechazo del proveedor. Message se expone tal cual al cliente.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// MessageSessionMissing es el mensaje reportado cuando el request no trae sesion.
const MessageSessionMissing = "Auth session missing!"

// CodeSessionMissing identifica el rechazo por falta de sesion.
const CodeSessionMissing = "session_missing"

// SessionMissing devuelve el rechazo para un request sin credenciales.
// Cada llamada crea un valor nuevo.
func SessionMissing() *AuthError {
	return &AuthError{Status: http.StatusUnauthorized, Code: CodeSessionMissing, Message: MessageSessionMissing}
}

// IsSessionMissing indica si err es el rechazo por falta de sesion.
func IsSessionMissing(err error) bool {
	authErr, ok := AsAuthError(err)
	return ok && authErr.Code == CodeSessionMissing
}

// AsAuthError extrae un rechazo del proveedor de la cadena de errores.
func AsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// BearerToken extrae el token de un header Authorization "Bearer ...".
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}
