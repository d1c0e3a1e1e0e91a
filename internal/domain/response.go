package domain

// AuthResponse es el envelope de exito. User contiene una de las
// proyecciones de usuario segun la ruta.
type AuthResponse struct {
	Message string   `json:"message"`
	User    any      `json:"user,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// MeResponse es el envelope de exito de GET /auth/me.
type MeResponse struct {
	User Profile `json:"user"`
}

// ErrorPayload es el envelope de error comun a todas las rutas.
type ErrorPayload struct {
	Error string `json:"error"`
}
