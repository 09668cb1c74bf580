package models

import (
	"time"
)

type User struct {
	ID                       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email                    string    `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash             string    `gorm:"not null"                 json:"-"`
	Name                     string    `gorm:"not null"                 json:"name"`
	WarehouseName            string    `json:"warehouse_name"`
	IsVerified               bool      `gorm:"default:false"            json:"is_verified"`
	VerificationToken        string    `gorm:"index"                    json:"-"`
	VerificationTokenExpires time.Time `json:"-"`
	ResetPasswordToken       string    `gorm:"index"                    json:"-"`
	ResetPasswordExpires     time.Time `json:"-"`
	CreatedAt                time.Time `json:"created_at"`
}

type Item struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"     json:"id"`
	UserID    uint      `gorm:"index;not null"               json:"user_id"`
	Name      string    `gorm:"not null"                     json:"name"`
	Quantity  int       `gorm:"not null;check:quantity >= 0" json:"quantity"`
	Price     float64   `gorm:"not null"                     json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// Sale rows are written once and never updated or deleted.
type Sale struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint      `gorm:"index;not null"           json:"user_id"`
	ItemID      uint      `gorm:"index;not null"           json:"item_id"`
	Quantity    int       `gorm:"not null"                 json:"quantity"`
	TotalAmount float64   `gorm:"not null"                 json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
}
