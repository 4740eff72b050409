package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"users-api/internal/domain"
	"users-api/internal/repository"
)

// UserService coordina reglas de negocio para cuentas de usuario.
type UserService struct {
	logger       *zap.Logger
	users        repository.UserRepository
	loginLimiter LoginRateLimiter
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, loginLimiter LoginRateLimiter) *UserService {
	return &UserService{
		logger:       logger,
		users:        users,
		loginLimiter: loginLimiter,
	}
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrForbidden          = errors.New("access denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWrongPassword      = errors.New("current password incorrect")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidDisplayName = errors.New("display name must be 2-160 characters")
	ErrInvalidPassword    = errors.New("password must be at least 6 characters")
	ErrInvalidRole        = errors.New("invalid role")
)

const (
	minPasswordLength    = 6
	minDisplayNameLength = 2
	maxDisplayNameLength = 160
	defaultPageSize      = 20
)

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        domain.Role
}

// Register crea una cuenta nueva. El email se normaliza (trim +
// minúsculas) y debe ser único; el rol por defecto es STUDENT.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	emailAddr := normalizeEmail(input.Email)
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return domain.User{}, ErrInvalidEmail
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if !validDisplayName(displayName) {
		return domain.User{}, ErrInvalidDisplayName
	}
	if len(input.Password) < minPasswordLength {
		return domain.User{}, ErrInvalidPassword
	}

	role := input.Role
	if role == "" {
		role = domain.RoleStudent
	}
	if !role.IsValid() {
		return domain.User{}, ErrInvalidRole
	}

	// Chequeo defensivo; el índice único cierra la carrera con inserts
	// concurrentes.
	taken, err := s.users.ExistsByEmail(ctx, emailAddr)
	if err != nil {
		return domain.User{}, err
	}
	if taken {
		return domain.User{}, ErrEmailTaken
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}
	return user, nil
}

// Authenticate valida credenciales de login. Email desconocido y password
// incorrecto devuelven el mismo ErrInvalidCredentials para no filtrar qué
// cuentas existen.
func (s *UserService) Authenticate(ctx context.Context, emailAddr, password string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if s.loginLimiter != nil && !s.loginLimiter.Allow(emailAddr) {
		return domain.User{}, ErrRateLimited
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetByID devuelve el usuario si el caller puede verlo. La existencia se
// resuelve antes que la autorización: un id inexistente es not-found aun
// para callers sin permiso.
func (s *UserService) GetByID(ctx context.Context, id, callerRole, callerSubject string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	if DecideUserAccess(callerRole, callerSubject, user.ID) != Allow {
		return domain.User{}, ErrForbidden
	}
	return user, nil
}

type UpdateInput struct {
	DisplayName string
	Role        domain.Role
}

// Update cambia el display name y, solo si el caller es ADMIN y el patch
// trae uno, el rol. Un rol enviado por un caller no-admin se ignora en
// silencio, el nombre se actualiza igual.
func (s *UserService) Update(ctx context.Context, id string, input UpdateInput, callerRole, callerSubject string) (domain.User, error) {
	displayName := strings.TrimSpace(input.DisplayName)
	if !validDisplayName(displayName) {
		return domain.User{}, ErrInvalidDisplayName
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	if DecideUserAccess(callerRole, callerSubject, user.ID) != Allow {
		return domain.User{}, ErrForbidden
	}

	role := user.Role
	if callerRole == domain.RoleAdmin.String() && input.Role != "" {
		if !input.Role.IsValid() {
			return domain.User{}, ErrInvalidRole
		}
		role = input.Role
	}

	now := time.Now().UTC()
	if err := s.users.Update(ctx, user.ID, displayName, role, now); err != nil {
		return domain.User{}, err
	}

	user.DisplayName = displayName
	user.Role = role
	user.UpdatedAt = &now
	return user, nil
}

// ChangePassword rehashea la contraseña. Un caller no-admin debe acreditar
// la contraseña actual; si no coincide falla con ErrWrongPassword sin
// mutar nada. Un ADMIN cambiando la de otro no la necesita.
func (s *UserService) ChangePassword(ctx context.Context, id, currentPassword, newPassword, callerRole, callerSubject string) error {
	if len(newPassword) < minPasswordLength {
		return ErrInvalidPassword
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if DecideUserAccess(callerRole, callerSubject, user.ID) != Allow {
		return ErrForbidden
	}

	if callerRole != domain.RoleAdmin.String() {
		if !VerifyPassword(currentPassword, user.PasswordHash) {
			return ErrWrongPassword
		}
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, passwordHash, time.Now().UTC())
}

// Delete borra la cuenta de forma permanente. La restricción solo-ADMIN
// se aplica en el router, antes de llegar acá.
func (s *UserService) Delete(ctx context.Context, id string) error {
	err := s.users.Delete(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}

// List devuelve una página de usuarios ordenada por email ascendente,
// filtrando por substring de email cuando se indica. Page y pageSize no
// positivos se normalizan a 1 y 20.
func (s *UserService) List(ctx context.Context, page, pageSize int, emailFilter string) (domain.PagedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	filter := normalizeEmail(emailFilter)

	total, err := s.users.Count(ctx, filter)
	if err != nil {
		return domain.PagedResult{}, err
	}
	items, err := s.users.List(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return domain.PagedResult{}, err
	}
	return domain.PagedResult{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// SeedAdmin crea la cuenta ADMIN inicial si no existe todavía. Idempotente
// para poder correr en cada arranque.
func (s *UserService) SeedAdmin(ctx context.Context, emailAddr, password, displayName string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return nil
	}
	exists, err := s.users.ExistsByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.Register(ctx, RegisterInput{
		Email:       emailAddr,
		Password:    password,
		DisplayName: displayName,
		Role:        domain.RoleAdmin,
	})
	if errors.Is(err, ErrEmailTaken) {
		return nil
	}
	if err == nil && s.logger != nil {
		s.logger.Info("admin account seeded", zap.String("email", emailAddr))
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validDisplayName cuenta caracteres, no bytes: un nombre acentuado de
// 100 caracteres ocupa más de 100 bytes y sigue siendo válido.
func validDisplayName(displayName string) bool {
	length := utf8.RuneCountInString(displayName)
	return length >= minDisplayNameLength && length <= maxDisplayNameLength
}
