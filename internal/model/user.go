package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles supplied by the identity provider.
const (
	RoleStaff          = "staff"
	RoleApproverLevel1 = "approver_level_1"
	RoleApproverLevel2 = "approver_level_2"
	RoleFinance        = "finance"
)

// User is a known identity. Authentication happens upstream; the row carries the display data and role.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FirstName string         `gorm:"type:varchar(100)" json:"first_name"`
	LastName  string         `gorm:"type:varchar(100)" json:"last_name"`
	Role      string         `gorm:"type:varchar(50);not null;index" json:"role"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"` // GORM soft delete
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsValidRole reports whether role is one of the four known roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleStaff, RoleApproverLevel1, RoleApproverLevel2, RoleFinance:
		return true
	}
	return false
}

// Actor is the caller of a service operation, as resolved by the identity middleware.
type Actor struct {
	UserID uuid.UUID
	Role   string
}
