package recs

import (
	"time"

	"gorm.io/datatypes"
)

// CachedRecommendation is one entry of a cached per-user list, shared by both
// cache tiers.
type CachedRecommendation struct {
	BookID int64    `json:"book_id"`
	Score  float64  `json:"score"`
	Reason string   `json:"reason"`
	Tags   []string `json:"tags"`
}

// RecommendationCacheEntry is the durable tier. Staleness is the IsStale flag
// or an age past the configured TTL; either makes the row a miss.
type RecommendationCacheEntry struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64          `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Recommendations datatypes.JSON `gorm:"column:recommendations;type:jsonb;not null" json:"recommendations"`
	IsStale         bool           `gorm:"column:is_stale;not null;default:false" json:"is_stale"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (RecommendationCacheEntry) TableName() string { return "recommendation_cache" }

// Age is measured from the last update, falling back to creation time.
func (e *RecommendationCacheEntry) Age(now time.Time) time.Duration {
	ref := e.UpdatedAt
	if ref.IsZero() {
		ref = e.CreatedAt
	}
	return now.Sub(ref)
}

const DefaultHistoryWindow = 50

type RecommendationHistory struct {
	ID               int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           int64          `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	RecommendedBooks datatypes.JSON `gorm:"column:recommended_books;type:jsonb;not null" json:"recommended_books"`
	WindowSize       int            `gorm:"column:window_size;not null;default:50" json:"window_size"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (RecommendationHistory) TableName() string { return "recommendation_history" }
