package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	JWTSecret           string `env:"JWT_SECRET,required"`
	JWTIssuer           string `env:"JWT_ISSUER" envDefault:"users-api"`
	JWTAudience         string `env:"JWT_AUDIENCE" envDefault:"users-api-clients"`
	JWTTTLMinutes       int    `env:"JWT_TTL_MINUTES" envDefault:"30"`
	JWTClockSkewSeconds int    `env:"JWT_CLOCK_SKEW_SECONDS" envDefault:"30"`

	AdminSeedEmail    string `env:"ADMIN_SEED_EMAIL"`
	AdminSeedPassword string `env:"ADMIN_SEED_PASSWORD"`
	AdminSeedName     string `env:"ADMIN_SEED_NAME" envDefault:"Administrator"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// ErrWeakJWTKey indica una clave de firma demasiado corta para HS256.
var ErrWeakJWTKey = errors.New("jwt signing key must be at least 256 bits (32 bytes)")

const base64KeyPrefix = "base64:"

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// JWTKeyBytes decodifica la clave de firma. Secretos con prefijo "base64:"
// se decodifican; el resto se toma como bytes UTF-8. Claves de menos de
// 32 bytes son un error fatal de configuración, nunca un error de request.
func (c *Config) JWTKeyBytes() ([]byte, error) {
	raw := strings.TrimSpace(c.JWTSecret)
	var key []byte
	if strings.HasPrefix(raw, base64KeyPrefix) {
		decoded, err := base64.StdEncoding.DecodeString(raw[len(base64KeyPrefix):])
		if err != nil {
			return nil, fmt.Errorf("decode jwt key: %w", err)
		}
		key = decoded
	} else {
		key = []byte(raw)
	}
	if len(key) < 32 {
		return nil, ErrWeakJWTKey
	}
	return key, nil
}
