package models

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleEmployee  UserRole = "employee"
	RoleModerator UserRole = "moderator"
	RoleAdmin     UserRole = "admin"
)

type EmployeeLevel string

const (
	LevelJunior   EmployeeLevel = "junior"
	LevelEngineer EmployeeLevel = "engineer"
)

// User is the profile read model. The authoritative record lives in the
// identity provider; work domain and employee level drive question selection.
type User struct {
	ID       string   `json:"id" gorm:"primaryKey;size:255"`
	FullName string   `json:"full_name" gorm:"not null;size:100"`
	Email    string   `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Role     UserRole `json:"role" gorm:"-"`

	WorkDomain    WorkDomain    `json:"work_domain" gorm:"size:50"`
	EmployeeLevel EmployeeLevel `json:"employee_level" gorm:"size:100"`
	Language      Language      `json:"language" gorm:"size:10;default:uz"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}
