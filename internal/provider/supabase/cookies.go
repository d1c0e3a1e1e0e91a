package supabase

import (
	"net/http"
	"time"

	"auth-gateway/internal/provider"
)

const (
	defaultAccessCookie  = "sb-access-token"
	defaultRefreshCookie = "sb-refresh-token"
	defaultRefreshTTL    = 30 * 24 * time.Hour
	defaultAccessMaxAge  = 3600
)

// CookieConfig define como se guardan los tokens de sesion en el navegador.
type CookieConfig struct {
	Domain      string
	Secure      bool
	AccessName  string
	RefreshName string
	RefreshTTL  time.Duration
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.AccessName == "" {
		c.AccessName = defaultAccessCookie
	}
	if c.RefreshName == "" {
		c.RefreshName = defaultRefreshCookie
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = defaultRefreshTTL
	}
	return c
}

func (c CookieConfig) setSession(w http.ResponseWriter, session *provider.Session) {
	if w == nil || session == nil {
		return
	}
	accessMaxAge := int(session.ExpiresIn)
	if accessMaxAge <= 0 {
		accessMaxAge = defaultAccessMaxAge
	}
	http.SetCookie(w, c.cookie(c.AccessName, session.AccessToken, accessMaxAge))
	if session.RefreshToken != "" {
		http.SetCookie(w, c.cookie(c.RefreshName, session.RefreshToken, int(c.RefreshTTL.Seconds())))
	}
}

func (c CookieConfig) clearSession(w http.ResponseWriter) {
	if w == nil {
		return
	}
	http.SetCookie(w, c.cookie(c.AccessName, "", -1))
	http.SetCookie(w, c.cookie(c.RefreshName, "", -1))
}

func (c CookieConfig) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
