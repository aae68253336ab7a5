package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/yungbote/bookrec-backend/internal/data/repos"
	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/observability"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/bookrec-backend/internal/pkg/errors"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

const (
	BehaviorExposure    = "exposure"
	BehaviorQuickReturn = "quick_return"
	BehaviorLowRating   = "low_rating"
)

// DetectContext carries the optional signals a behaviour may need. A zero
// Rating means no rating was given.
type DetectContext struct {
	DurationSeconds float64
	Rating          int
}

// DetectResult describes what implicit detection did. Existing is set when
// an active record was already present and nothing was written.
type DetectResult struct {
	Type        string `json:"type"`
	FeedbackID  int64  `json:"id,omitempty"`
	Strength    int    `json:"strength,omitempty"`
	Blacklisted bool   `json:"blacklisted"`
	Existing    bool   `json:"existing,omitempty"`
}

type FeedbackStats struct {
	FeedbackByType     map[string]int `json:"feedback_by_type"`
	TotalFeedbacks     int            `json:"total_feedbacks"`
	BlacklistCount     int64          `json:"blacklist_count"`
	ExposureNoClick    int64          `json:"exposure_no_click"`
	DislikedCategories []string       `json:"disliked_categories"`
	DislikedAuthors    []string       `json:"disliked_authors"`
}

type NegativeFeedbackService interface {
	Submit(ctx context.Context, userID, bookID int64, feedbackType, reason string, strength int) (*types.NegativeFeedback, error)
	Remove(ctx context.Context, userID, bookID int64) (bool, error)
	Detect(ctx context.Context, userID, bookID int64, behavior string, dc DetectContext) (*DetectResult, error)
	// ApplySoftPenalty scales unclicked candidates down by exposure and
	// drops (and blacklists) those at the exposure threshold.
	ApplySoftPenalty(ctx context.Context, userID int64, candidates []types.Candidate) []types.Candidate
	PenaltyScore(ctx context.Context, userID, bookID int64) float64
	// Decay returns the number of records deactivated.
	Decay(ctx context.Context, userID int64, lambda float64) (int, error)
	Stats(ctx context.Context, userID int64) (*FeedbackStats, error)
}

type FeedbackOptions struct {
	ExposureThreshold  int
	SoftPenaltyFactor  float64
	QuickReturnSeconds float64
	LowRatingMax       int
}

type negativeFeedbackService struct {
	feedback  repos.NegativeFeedbackRepo
	exposures repos.ExposureRepo
	books     repos.BookRepo
	blacklist BlacklistService
	graph     BookGraph
	events    EventBus
	log       *logger.Logger
	metrics   *observability.Metrics
	opts      FeedbackOptions
	now       func() time.Time
}

func NewNegativeFeedbackService(
	feedback repos.NegativeFeedbackRepo,
	exposures repos.ExposureRepo,
	books repos.BookRepo,
	blacklist BlacklistService,
	graph BookGraph,
	events EventBus,
	baseLog *logger.Logger,
	metrics *observability.Metrics,
	opts FeedbackOptions,
) NegativeFeedbackService {
	if opts.ExposureThreshold <= 0 {
		opts.ExposureThreshold = 10
	}
	if opts.SoftPenaltyFactor <= 0 {
		opts.SoftPenaltyFactor = 0.1
	}
	if opts.QuickReturnSeconds <= 0 {
		opts.QuickReturnSeconds = 5
	}
	if opts.LowRatingMax <= 0 {
		opts.LowRatingMax = 2
	}
	return &negativeFeedbackService{
		feedback:  feedback,
		exposures: exposures,
		books:     books,
		blacklist: blacklist,
		graph:     graph,
		events:    events,
		log:       baseLog.With("service", "NegativeFeedbackService"),
		metrics:   metrics,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *negativeFeedbackService) Submit(ctx context.Context, userID, bookID int64, feedbackType, reason string, strength int) (*types.NegativeFeedback, error) {
	if userID <= 0 || bookID <= 0 {
		return nil, fmt.Errorf("%w: user_id and book_id are required", apperr.ErrInvalidArgument)
	}
	if !types.ExplicitFeedbackTypes[feedbackType] {
		return nil, fmt.Errorf("%w: unknown feedback_type %q", apperr.ErrInvalidArgument, feedbackType)
	}
	dbc := dbctx.Context{Ctx: ctx}
	book, err := s.books.GetByID(dbc, bookID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, fmt.Errorf("book %d: %w", bookID, apperr.ErrNotFound)
	}

	row := &types.NegativeFeedback{
		UserID:       userID,
		BookID:       bookID,
		FeedbackType: feedbackType,
		Reason:       reason,
		Strength:     types.ClampStrength(strength),
		IsActive:     true,
	}
	if err := s.feedback.Upsert(dbc, row); err != nil {
		s.log.Error("Negative feedback write failed", "user_id", userID, "book_id", bookID, "error", err)
		return nil, err
	}
	s.metrics.IncFeedback(feedbackType, "explicit")

	s.blacklist.Add(ctx, userID, bookID)
	switch feedbackType {
	case types.FeedbackWrongCategory:
		s.blacklist.AddCategoryDislike(ctx, userID, book.CategoryName())
	case types.FeedbackWrongAuthor:
		s.blacklist.AddAuthorDislike(ctx, userID, book.Author)
	}
	s.blacklist.SyncToGraph(ctx, userID, bookID, feedbackType, row.Strength)

	if s.events != nil {
		s.events.Publish(ctx, userID, types.EventNegativeFeedback, &bookID, types.PriorityHigh, map[string]any{
			"feedback_type": feedbackType,
			"strength":      row.Strength,
		})
	}
	s.log.Info("Negative feedback recorded", "user_id", userID, "book_id", bookID, "feedback_type", feedbackType)
	return row, nil
}

func (s *negativeFeedbackService) Remove(ctx context.Context, userID, bookID int64) (bool, error) {
	changed, err := s.feedback.Deactivate(dbctx.Context{Ctx: ctx}, userID, bookID)
	if err != nil {
		s.log.Error("Negative feedback removal failed", "user_id", userID, "book_id", bookID, "error", err)
		return false, err
	}
	s.blacklist.Remove(ctx, userID, bookID)
	if s.graph != nil && s.graph.Available() {
		if err := s.graph.RemoveDislike(ctx, userID, bookID); err != nil {
			s.log.Warn("Graph dislike removal failed", "user_id", userID, "book_id", bookID, "error", err)
		}
	}
	return changed, nil
}

func (s *negativeFeedbackService) Detect(ctx context.Context, userID, bookID int64, behavior string, dc DetectContext) (*DetectResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	switch behavior {
	case BehaviorExposure:
		exp, err := s.exposures.IncrementExposure(dbc, userID, bookID)
		if err != nil {
			s.log.Warn("Exposure update failed", "user_id", userID, "book_id", bookID, "error", err)
			return nil, err
		}
		if exp == nil || exp.ExposureCount < s.opts.ExposureThreshold || exp.ClickCount != 0 {
			return nil, nil
		}
		return s.createImplicit(ctx, userID, bookID, types.FeedbackImplicitNoClick,
			fmt.Sprintf("exposed %d times without a click", exp.ExposureCount), 1)

	case BehaviorQuickReturn:
		if dc.DurationSeconds >= s.opts.QuickReturnSeconds {
			return nil, nil
		}
		if _, err := s.exposures.IncrementClick(dbc, userID, bookID); err != nil {
			s.log.Warn("Click count update failed", "user_id", userID, "book_id", bookID, "error", err)
			return nil, err
		}
		return s.createImplicit(ctx, userID, bookID, types.FeedbackImplicitQuickReturn,
			fmt.Sprintf("returned after %.1f seconds", dc.DurationSeconds), 1)

	case BehaviorLowRating:
		rating := dc.Rating
		if rating == 0 {
			rating = 3
		}
		if rating > s.opts.LowRatingMax {
			return nil, nil
		}
		return s.createImplicit(ctx, userID, bookID, types.FeedbackImplicitLowRating,
			fmt.Sprintf("rated %d stars", rating), 2)
	}
	return nil, fmt.Errorf("%w: unknown behavior %q", apperr.ErrInvalidArgument, behavior)
}

func (s *negativeFeedbackService) createImplicit(ctx context.Context, userID, bookID int64, feedbackType, reason string, strength int) (*DetectResult, error) {
	row := &types.NegativeFeedback{
		UserID:       userID,
		BookID:       bookID,
		FeedbackType: feedbackType,
		Reason:       reason,
		Strength:     strength,
		IsActive:     true,
	}
	wrote, err := s.feedback.InsertUnlessActive(dbctx.Context{Ctx: ctx}, row)
	if err != nil {
		s.log.Warn("Implicit feedback write failed", "user_id", userID, "book_id", bookID, "error", err)
		return nil, err
	}
	if !wrote {
		return &DetectResult{Type: feedbackType, Existing: true}, nil
	}
	s.metrics.IncFeedback(feedbackType, "implicit")

	res := &DetectResult{Type: feedbackType, FeedbackID: row.ID, Strength: strength}
	if strength >= 2 {
		res.Blacklisted = s.blacklist.Add(ctx, userID, bookID)
	}
	s.log.Debug("Implicit negative feedback", "user_id", userID, "book_id", bookID, "feedback_type", feedbackType)
	return res, nil
}

func (s *negativeFeedbackService) penalty(exp *types.ExposureLog) float64 {
	if exp == nil || exp.ClickCount > 0 {
		return 0
	}
	return math.Min(float64(exp.ExposureCount)*s.opts.SoftPenaltyFactor, 0.9)
}

func (s *negativeFeedbackService) ApplySoftPenalty(ctx context.Context, userID int64, candidates []types.Candidate) []types.Candidate {
	if len(candidates) == 0 {
		return candidates
	}
	exposures, err := s.exposures.GetMany(dbctx.Context{Ctx: ctx}, userID, types.CandidateIDs(candidates))
	if err != nil {
		s.log.Warn("Soft penalty lookup failed", "user_id", userID, "error", err)
		return candidates
	}
	out := make([]types.Candidate, 0, len(candidates))
	var dropped []int64
	for _, c := range candidates {
		exp := exposures[c.BookID]
		if exp != nil && exp.ClickCount == 0 {
			c.Score *= 1 - s.penalty(exp)
			if exp.ExposureCount >= s.opts.ExposureThreshold {
				dropped = append(dropped, c.BookID)
				continue
			}
		}
		out = append(out, c)
	}
	if len(dropped) > 0 {
		s.blacklist.Add(ctx, userID, dropped...)
	}
	return out
}

func (s *negativeFeedbackService) PenaltyScore(ctx context.Context, userID, bookID int64) float64 {
	exp, err := s.exposures.Get(dbctx.Context{Ctx: ctx}, userID, bookID)
	if err != nil {
		s.log.Warn("Penalty lookup failed", "user_id", userID, "book_id", bookID, "error", err)
		return 1
	}
	return 1 - s.penalty(exp)
}

// Decayed strengths below releaseStrength leave the blacklist; below
// deactivateStrength the row is retired.
const (
	releaseStrength    = 0.5
	deactivateStrength = 0.1
)

// decayedStrength applies strength*e^(-lambda*months) with whole elapsed
// days over a 30-day month.
func decayedStrength(strength int, createdAt, now time.Time, lambda float64) float64 {
	days := math.Floor(now.Sub(createdAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return float64(strength) * math.Exp(-lambda*days/30)
}

func (s *negativeFeedbackService) Decay(ctx context.Context, userID int64, lambda float64) (int, error) {
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := s.feedback.ListActiveByUser(dbc, userID)
	if err != nil {
		return 0, err
	}
	now := s.now()
	var release []int64
	var deactivate []int64
	for _, f := range rows {
		d := decayedStrength(f.Strength, f.CreatedAt, now, lambda)
		if d >= releaseStrength {
			s.metrics.IncDecayDecision("keep")
			continue
		}
		release = append(release, f.BookID)
		if d < deactivateStrength {
			deactivate = append(deactivate, f.ID)
			s.metrics.IncDecayDecision("deactivate")
		} else {
			s.metrics.IncDecayDecision("unblacklist")
		}
	}
	if len(release) > 0 {
		s.blacklist.Remove(ctx, userID, release...)
	}
	if err := s.feedback.DeactivateByIDs(dbc, deactivate); err != nil {
		s.log.Error("Decay deactivation failed", "user_id", userID, "error", err)
		return 0, err
	}
	if len(release) > 0 {
		s.log.Info("Applied feedback decay", "user_id", userID, "released", len(release), "deactivated", len(deactivate))
	}
	return len(deactivate), nil
}

func (s *negativeFeedbackService) Stats(ctx context.Context, userID int64) (*FeedbackStats, error) {
	dbc := dbctx.Context{Ctx: ctx}
	byType, err := s.feedback.CountActiveByType(dbc, userID)
	if err != nil {
		return nil, err
	}
	unclicked, err := s.exposures.CountUnclicked(dbc, userID, 0)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byType {
		total += n
	}
	cats := s.blacklist.DislikedCategories(ctx, userID)
	if cats == nil {
		cats = []string{}
	}
	authors := s.blacklist.DislikedAuthors(ctx, userID)
	if authors == nil {
		authors = []string{}
	}
	return &FeedbackStats{
		FeedbackByType:     byType,
		TotalFeedbacks:     total,
		BlacklistCount:     s.blacklist.Count(ctx, userID),
		ExposureNoClick:    unclicked,
		DislikedCategories: cats,
		DislikedAuthors:    authors,
	}, nil
}
