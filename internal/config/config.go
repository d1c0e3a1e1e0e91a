package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	GinMode  string `env:"GIN_MODE" envDefault:"release"`

	SupabaseURL     string        `env:"SUPABASE_URL,required,notEmpty"`
	SupabaseAnonKey string        `env:"SUPABASE_ANON_KEY,required,notEmpty"`
	AuthHTTPTimeout time.Duration `env:"AUTH_HTTP_TIMEOUT" envDefault:"10s"`

	CookieDomain      string        `env:"AUTH_COOKIE_DOMAIN"`
	CookieSecure      bool          `env:"AUTH_COOKIE_SECURE" envDefault:"true"`
	AccessCookieName  string        `env:"AUTH_ACCESS_COOKIE" envDefault:"sb-access-token"`
	RefreshCookieName string        `env:"AUTH_REFRESH_COOKIE" envDefault:"sb-refresh-token"`
	RefreshCookieTTL  time.Duration `env:"AUTH_REFRESH_COOKIE_TTL" envDefault:"720h"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
