package recipe

import "github.com/nutrichat/nutrichat/internal/models"

// Recipe statuses
const (
	StatusDraft        = 1
	StatusPublished    = 2
	StatusOffline      = 3
	StatusInReview     = 4
	StatusReviewFailed = 5
)

type Recipe struct {
	models.Audit

	Title       string `gorm:"type:varchar(100);not null;index" json:"title"`
	Description string `gorm:"type:varchar(500)" json:"description"`
	CoverImage  string `gorm:"type:varchar(255)" json:"cover_image,omitempty"`

	Category   string `gorm:"type:varchar(50);index" json:"category"`
	Cuisine    string `gorm:"type:varchar(50);index" json:"cuisine"`
	Difficulty int    `gorm:"not null;default:1" json:"difficulty"`

	// Minutes
	PrepTime int `json:"prep_time"`
	CookTime int `json:"cook_time"`

	Servings int `json:"servings"`
	Calories int `gorm:"index" json:"calories"`

	// JSON blobs maintained by the client
	Ingredients   string `gorm:"type:text" json:"ingredients"`
	Steps         string `gorm:"type:text" json:"steps"`
	Tags          string `gorm:"type:varchar(255)" json:"tags,omitempty"`
	NutritionInfo string `gorm:"type:text" json:"nutrition_info,omitempty"`

	Status int `gorm:"not null;index" json:"status"`

	ViewCount     int     `gorm:"not null;default:0" json:"view_count"`
	FavoriteCount int     `gorm:"not null;default:0" json:"favorite_count"`
	LikeCount     int     `gorm:"not null;default:0" json:"like_count"`
	Rating        float64 `gorm:"not null;default:0" json:"rating"`
	RatingCount   int     `gorm:"not null;default:0" json:"rating_count"`

	AuthorID uint64 `gorm:"index" json:"author_id"`
	Source   string `gorm:"type:varchar(100)" json:"source,omitempty"`
}

func (Recipe) TableName() string { return "recipes" }

// ListFilter narrows published-recipe queries. Zero values mean "no filter".
type ListFilter struct {
	Category    string
	Cuisine     string
	Difficulty  int
	MaxTotalMin int
	MaxCalories int
	MinRating   float64
	Keyword     string
}
