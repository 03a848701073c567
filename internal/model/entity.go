package model

import (
	"time"
)

// User account mirrored from the main backend. The relay only reads it to
// resolve display names; account lifecycle lives in the CRUD service.
type User struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Nickname   string    `gorm:"type:varchar(100);not null" json:"nickname"`
	ProfileImg *string   `gorm:"type:text" json:"profile_img,omitempty"`
	Role       string    `gorm:"type:varchar(20);default:'STUDENT'" json:"role"` // TUTOR, STUDENT
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Boards []Board `gorm:"foreignKey:OwnerID" json:"boards,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Board durable collaborative whiteboard, one per classroom
type Board struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(200);not null" json:"name"`
	OwnerID     int64     `gorm:"not null" json:"owner_id"`
	ClassroomID string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"classroom_id"`
	IsProtected bool      `gorm:"default:false" json:"is_protected"`
	Password    *string   `gorm:"type:varchar(100)" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Owner   User          `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Strokes []BoardStroke `gorm:"foreignKey:BoardID" json:"strokes,omitempty"`
}

func (Board) TableName() string {
	return "boards"
}

// BoardStroke one persisted freehand segment. Rows are append-only and
// replayed in id order, which equals the order the relay accepted them.
type BoardStroke struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID   int64     `gorm:"not null;index:idx_board_created" json:"board_id"`
	AuthorID  int64     `gorm:"not null" json:"author_id"`
	X0        float64   `gorm:"not null" json:"x0"`
	Y0        float64   `gorm:"not null" json:"y0"`
	X1        float64   `gorm:"not null" json:"x1"`
	Y1        float64   `gorm:"not null" json:"y1"`
	Color     string    `gorm:"type:varchar(20);not null" json:"color"`
	Thickness float64   `gorm:"not null" json:"thickness"`
	Eraser    bool      `gorm:"default:false" json:"eraser"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_board_created" json:"created_at"`

	// Relations
	Board  Board `gorm:"foreignKey:BoardID" json:"board,omitempty"`
	Author User  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}

func (BoardStroke) TableName() string {
	return "board_strokes"
}
