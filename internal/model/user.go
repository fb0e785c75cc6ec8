package model

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:128;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	DepartmentID string    `gorm:"size:64;index" json:"department_id"`
	IsSuperuser  bool      `gorm:"not null;default:false" json:"is_superuser"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Principal is the identity retrieval and ownership checks run against.
type Principal struct {
	UserID       uint
	DepartmentID string
	IsSuperuser  bool
}

func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, DepartmentID: u.DepartmentID, IsSuperuser: u.IsSuperuser}
}
