package recs

import "time"

const (
	FeedbackNotInterested = "not_interested"
	FeedbackWrongCategory = "wrong_category"
	FeedbackWrongAuthor   = "wrong_author"
	FeedbackAlreadyRead   = "already_read"
	FeedbackLowQuality    = "low_quality"

	FeedbackImplicitNoClick     = "implicit_no_click"
	FeedbackImplicitQuickReturn = "implicit_quick_return"
	FeedbackImplicitLowRating   = "implicit_low_rating"
)

// ExplicitFeedbackTypes are the values a user may submit directly.
var ExplicitFeedbackTypes = map[string]bool{
	FeedbackNotInterested: true,
	FeedbackWrongCategory: true,
	FeedbackWrongAuthor:   true,
	FeedbackAlreadyRead:   true,
	FeedbackLowQuality:    true,
}

const (
	MinStrength = 1
	MaxStrength = 3
)

// ClampStrength bounds a strength to [MinStrength, MaxStrength].
func ClampStrength(s int) int {
	if s < MinStrength {
		return MinStrength
	}
	if s > MaxStrength {
		return MaxStrength
	}
	return s
}

// NegativeFeedback rows are never hard-deleted; removal flips IsActive.
// At most one active row exists per user and book.
type NegativeFeedback struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64     `gorm:"column:user_id;not null;uniqueIndex:idx_negfb_user_book" json:"user_id"`
	BookID       int64     `gorm:"column:book_id;not null;uniqueIndex:idx_negfb_user_book" json:"book_id"`
	FeedbackType string    `gorm:"column:feedback_type;size:32;not null;index" json:"feedback_type"`
	Reason       string    `gorm:"column:reason" json:"reason,omitempty"`
	Strength     int       `gorm:"column:strength;not null;default:1" json:"strength"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (NegativeFeedback) TableName() string { return "negative_feedback" }

type ExposureLog struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64     `gorm:"column:user_id;not null;uniqueIndex:idx_exposure_user_book" json:"user_id"`
	BookID         int64     `gorm:"column:book_id;not null;uniqueIndex:idx_exposure_user_book" json:"book_id"`
	ExposureCount  int       `gorm:"column:exposure_count;not null;default:0" json:"exposure_count"`
	ClickCount     int       `gorm:"column:click_count;not null;default:0" json:"click_count"`
	LastExposureAt time.Time `gorm:"column:last_exposure_at;not null" json:"last_exposure_at"`
}

func (ExposureLog) TableName() string { return "exposure_logs" }
