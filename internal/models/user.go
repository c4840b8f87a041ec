package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleProfessor UserRole = "PROFESSOR"
	RoleStudent   UserRole = "STUDENT"
)

// Valid reports whether the role is one of the supported roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleProfessor, RoleStudent:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID            string     `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	FullName      string     `db:"full_name" json:"full_name"`
	Role          UserRole   `db:"role" json:"role"`
	StudentNumber *string    `db:"student_number" json:"student_number,omitempty"`
	Section       *string    `db:"section" json:"section,omitempty"`
	PhotoURL      *string    `db:"photo_url" json:"photo_url,omitempty"`
	Active        bool       `db:"active" json:"active"`
	LastLogin     *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentProfile is the companion view of a student account.
type StudentProfile struct {
	User
	CoursesCount int `db:"courses_count" json:"courses_count"`
}

// UpdateProfileRequest carries the editable profile fields.
type UpdateProfileRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,min=1,max=200"`
	Section  *string `json:"section" validate:"omitempty,max=50"`
	PhotoURL *string `json:"photo_url" validate:"omitempty,url,max=2048"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
