package favorite

import "github.com/nutrichat/nutrichat/internal/models"

// Favorite target types
const (
	TypeRecipe     = 1
	TypeIngredient = 2
	TypeChat       = 3
	TypeOther      = 4
)

// Priorities
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
)

// Favorite links a user to a target. One live row per (user, type, target);
// unfavoriting soft-deletes, so re-favoriting restores the row with its
// notes intact.
type Favorite struct {
	models.Audit

	UserID       uint64 `gorm:"not null;uniqueIndex:uniq_user_fav,priority:1" json:"-"`
	FavoriteType int    `gorm:"not null;uniqueIndex:uniq_user_fav,priority:2" json:"favorite_type"`
	TargetID     uint64 `gorm:"not null;uniqueIndex:uniq_user_fav,priority:3" json:"target_id"`

	// Denormalized target snapshot for list views.
	TargetName        string `gorm:"type:varchar(100)" json:"target_name,omitempty"`
	TargetDescription string `gorm:"type:varchar(500)" json:"target_description,omitempty"`
	TargetImage       string `gorm:"type:varchar(255)" json:"target_image,omitempty"`

	GroupName string `gorm:"type:varchar(50);index" json:"group_name,omitempty"`
	Notes     string `gorm:"type:varchar(500)" json:"notes,omitempty"`
	Priority  int    `gorm:"not null;default:2" json:"priority"`
}

func (Favorite) TableName() string { return "user_favorites" }
