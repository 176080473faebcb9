package model

import "time"

// Roles a user can hold.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is an account able to own tasks and sign in.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Username       string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash   string    `gorm:"not null" json:"-"`
	Email          *string   `gorm:"uniqueIndex" json:"email,omitempty"`
	Role           string    `gorm:"not null;default:USER" json:"role"`
	TelegramChatID *int64    `json:"telegramChatId,omitempty"`
	CreatedAt      time.Time `json:"-"`
	UpdatedAt      time.Time `json:"-"`
}

// IsAdmin reports whether the user holds the administrator role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
