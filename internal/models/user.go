// Package models contains the data models for the application.
package models

import (
	"time"
)

// User roles.
const (
	RoleAdmin       = "admin"
	RoleUsuario     = "usuario"
	RoleCadastrador = "cadastrador"
)

// ValidRole reports whether role is one of the enumerated roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleUsuario, RoleCadastrador:
		return true
	}
	return false
}

// User represents an account allowed to use the API.
type User struct {
	ID        string    `json:"id"`
	Nome      string    `json:"nome"`
	Email     string    `json:"email"`
	SenhaHash string    `json:"-"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LoginRequest represents the request body for exchanging credentials for a token.
type LoginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Token   string `json:"token"`
	Usuario User   `json:"usuario"`
}

// CreateUserRequest represents the request body for registering a user.
type CreateUserRequest struct {
	Nome  string `json:"nome"`
	Email string `json:"email"`
	Senha string `json:"senha"`
	Role  string `json:"role"`
}

// UpdateUserRequest represents the request body for editing a user.
// Nil fields are left unchanged.
type UpdateUserRequest struct {
	Nome  *string `json:"nome,omitempty"`
	Email *string `json:"email,omitempty"`
	Senha *string `json:"senha,omitempty"`
	Role  *string `json:"role,omitempty"`
}

// Empty reports whether the request changes nothing.
func (r *UpdateUserRequest) Empty() bool {
	return r.Nome == nil && r.Email == nil && r.Senha == nil && r.Role == nil
}

// UserChanges is what the repository applies on update; the password is already hashed.
type UserChanges struct {
	Nome      *string
	Email     *string
	SenhaHash *string
	Role      *string
}
