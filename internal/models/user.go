package models

import "time"

type User struct {
	Audit

	Username     string `gorm:"type:varchar(20);uniqueIndex;not null" json:"username"`
	Email        string `gorm:"type:varchar(100);uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"type:varchar(100);not null" json:"-"`
	Nickname     string `gorm:"type:varchar(50)" json:"nickname"`
	Avatar       string `gorm:"type:varchar(500)" json:"avatar,omitempty"`

	// Dietary profile
	Gender             int     `json:"gender"`
	Height             int     `json:"height"`
	Weight             float64 `json:"weight"`
	ActivityLevel      int     `json:"activity_level"`
	HealthGoal         int     `json:"health_goal"`
	DietaryPreferences string  `gorm:"type:text" json:"dietary_preferences,omitempty"`
	Allergies          string  `gorm:"type:text" json:"allergies,omitempty"`
	CookingSkill       int     `json:"cooking_skill"`

	Status int `gorm:"not null;default:1;index" json:"status"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP string     `gorm:"type:varchar(45)" json:"-"`
	LoginCount  int        `json:"-"`
}

func (User) TableName() string { return "users" }

const (
	UserStatusDisabled = 0
	UserStatusNormal   = 1
	UserStatusLocked   = 2
)

const (
	GenderUnknown = 0
	GenderMale    = 1
	GenderFemale  = 2
)
