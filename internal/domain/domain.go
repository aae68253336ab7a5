package domain

import (
	"github.com/yungbote/bookrec-backend/internal/domain/catalog"
	"github.com/yungbote/bookrec-backend/internal/domain/recs"
)

type Category = catalog.Category
type Book = catalog.Book
type User = catalog.User
type Interaction = catalog.Interaction
type Rating = catalog.Rating
type SearchLog = catalog.SearchLog

type NegativeFeedback = recs.NegativeFeedback
type ExposureLog = recs.ExposureLog
type RecommendationCacheEntry = recs.RecommendationCacheEntry
type RecommendationHistory = recs.RecommendationHistory
type CachedRecommendation = recs.CachedRecommendation
type InvalidationEvent = recs.InvalidationEvent
type Candidate = recs.Candidate
type Impact = recs.Impact
type UserInterestProfile = recs.UserInterestProfile

type CategoryShare = recs.CategoryShare

const DefaultHistoryWindow = recs.DefaultHistoryWindow

const (
	FeedbackNotInterested       = recs.FeedbackNotInterested
	FeedbackWrongCategory       = recs.FeedbackWrongCategory
	FeedbackWrongAuthor         = recs.FeedbackWrongAuthor
	FeedbackAlreadyRead         = recs.FeedbackAlreadyRead
	FeedbackLowQuality          = recs.FeedbackLowQuality
	FeedbackImplicitNoClick     = recs.FeedbackImplicitNoClick
	FeedbackImplicitQuickReturn = recs.FeedbackImplicitQuickReturn
	FeedbackImplicitLowRating   = recs.FeedbackImplicitLowRating
)

const (
	EventRating           = recs.EventRating
	EventCollect          = recs.EventCollect
	EventClick            = recs.EventClick
	EventSearch           = recs.EventSearch
	EventNegativeFeedback = recs.EventNegativeFeedback
	EventIncremental      = recs.EventIncremental

	PriorityLow    = recs.PriorityLow
	PriorityNormal = recs.PriorityNormal
	PriorityHigh   = recs.PriorityHigh

	ScopeFull    = recs.ScopeFull
	ScopePartial = recs.ScopePartial
)

const (
	SourceSearch      = recs.SourceSearch
	SourceCollab      = recs.SourceCollab
	SourceDemographic = recs.SourceDemographic
	SourcePreference  = recs.SourcePreference
	SourceContent     = recs.SourceContent
	SourcePopular     = recs.SourcePopular
	SourceColdStart   = recs.SourceColdStart
	SourceCache       = recs.SourceCache
)

var (
	ExplicitFeedbackTypes  = recs.ExplicitFeedbackTypes
	ClampStrength          = recs.ClampStrength
	NewUserInterestProfile = recs.NewUserInterestProfile
	ToCachedList           = recs.ToCachedList
	CandidateIDs           = recs.CandidateIDs
)

const (
	InteractionClick   = catalog.InteractionClick
	InteractionCollect = catalog.InteractionCollect
	InteractionRating  = catalog.InteractionRating
	InteractionCart    = catalog.InteractionCart
	InteractionBuy     = catalog.InteractionBuy
)

// Models lists every table the service owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Category{},
		&Book{},
		&User{},
		&Interaction{},
		&Rating{},
		&SearchLog{},

		&NegativeFeedback{},
		&ExposureLog{},
		&RecommendationCacheEntry{},
		&RecommendationHistory{},
	}
}
