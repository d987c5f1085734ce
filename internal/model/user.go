package model

import (
	"time"
)

type UserRole string

const (
	Student  UserRole = "student"
	OrgAdmin UserRole = "org_admin"
	Admin    UserRole = "admin"
)

// User 用户账号由外部身份系统维护，这里只读取角色和所属组织。
// swagger:model User
type User struct {
	BaseModel
	Name           string    `gorm:"size:100;not null" json:"Name"`
	Email          string    `gorm:"size:100;unique;not null" json:"Email"`
	Role           UserRole  `gorm:"type:enum('student','org_admin','admin');default:'student'" json:"Role"`
	OrganizationID uint      `gorm:"index;default:0" json:"OrganizationId"`
	Disabled       bool      `gorm:"default:false" json:"Disabled"`
	LastSeen       time.Time `gorm:"default:CURRENT_TIMESTAMP(3)" json:"LastSeen"`
}

func (User) TableName() string {
	return "users"
}

// swagger:model Organization
type Organization struct {
	BaseModel
	Name string `gorm:"size:100;not null" json:"Name"`
}

func (Organization) TableName() string {
	return "organizations"
}
