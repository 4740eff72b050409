package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"users-api/internal/domain"
)

// TokenService emite y valida tokens JWT firmados con clave simétrica.
// El servicio que firma y el que valida comparten la misma configuración:
// este es un despliegue de un solo emisor, no una federación.
type TokenService struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	leeway   time.Duration
}

// Claims son los atributos de identidad embebidos en un token firmado.
// El subject registrado lleva el id del usuario.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Fallas de verificación clasificadas. Solo el endpoint de introspección
// distingue entre ellas; el pipeline autenticado las colapsa en 401.
var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenInvalid   = errors.New("token invalid")
)

// NewTokenService construye el servicio con una clave ya validada
// (mínimo 256 bits, chequeado al cargar la configuración).
func NewTokenService(key []byte, issuer, audience string, ttl, leeway time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if leeway < 0 {
		leeway = 0
	}
	return &TokenService{
		key:      key,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		leeway:   leeway,
	}
}

// Issue firma un token con iat/nbf = ahora y exp = ahora + ttl, más los
// claims de identidad del usuario.
func (s *TokenService) Issue(user domain.User) (string, error) {
	if len(s.key) == 0 {
		return "", ErrTokenInvalid
	}
	now := time.Now().UTC()
	claims := Claims{
		Email: user.Email,
		Role:  user.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Verify chequea firma, emisor, audiencia y vigencia (con la tolerancia
// de reloj configurada) y devuelve los claims de identidad. Las fallas se
// clasifican en ErrTokenExpired, ErrTokenSignature, ErrTokenMalformed o
// ErrTokenInvalid.
func (s *TokenService) Verify(tokenString string) (Claims, error) {
	var claims Claims
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrTokenMalformed
	}
	_, err := s.parser().ParseWithClaims(tokenString, &claims, s.keyFunc)
	if err != nil {
		return Claims{}, classifyTokenError(err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

// IntrospectionResult es la respuesta de introspección. Siempre se
// construye, incluso para tokens inválidos; la razón usa las mismas
// clases que Verify.
type IntrospectionResult struct {
	Valid  bool           `json:"valid"`
	Reason string         `json:"reason,omitempty"`
	Claims map[string]any `json:"claims,omitempty"`
}

// Introspect valida el token y devuelve el mapa completo de claims junto
// con alg y typ del header. Nunca falla hacia el caller.
func (s *TokenService) Introspect(tokenString string) IntrospectionResult {
	if strings.TrimSpace(tokenString) == "" {
		return IntrospectionResult{Valid: false, Reason: reasonFor(ErrTokenMalformed)}
	}
	claims := jwt.MapClaims{}
	token, err := s.parser().ParseWithClaims(tokenString, claims, s.keyFunc)
	if err != nil {
		return IntrospectionResult{Valid: false, Reason: reasonFor(classifyTokenError(err))}
	}

	claimMap := map[string]any(claims)
	claimMap["alg"] = token.Header["alg"]
	claimMap["typ"] = token.Header["typ"]
	return IntrospectionResult{Valid: true, Claims: claimMap}
}

func (s *TokenService) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithLeeway(s.leeway),
		jwt.WithExpirationRequired(),
	)
}

func (s *TokenService) keyFunc(_ *jwt.Token) (any, error) {
	return s.key, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	default:
		return ErrTokenInvalid
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenSignature):
		return "bad_signature"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	default:
		return "other"
	}
}
