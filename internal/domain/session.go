package domain

// Session refleja los tokens emitidos por el proveedor, sin transformar.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    *int64 `json:"expiresAt,omitempty"`
}
