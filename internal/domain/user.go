package domain

import "time"

// Role es el rol de un usuario dentro del sistema.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleStudent Role = "STUDENT"
)

// IsValid reporta si el rol pertenece a la enumeración cerrada.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleStudent
}

func (r Role) String() string {
	return string(r)
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// PagedResult es una página de usuarios junto con el total sin paginar.
type PagedResult struct {
	Items    []User `json:"items"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}
