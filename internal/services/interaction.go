package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/bookrec-backend/internal/data/repos"
	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/bookrec-backend/internal/pkg/errors"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

type InteractionInput struct {
	BookID          int64
	InteractionType string
	// Rating is required for rating interactions and ignored otherwise.
	Rating          *int
	Comment         string
	DurationSeconds *float64
}

type InteractionResult struct {
	Interaction *types.Interaction `json:"interaction"`
	Impact      types.Impact       `json:"impact"`
	Incremental bool               `json:"incremental"`
	Published   bool               `json:"published"`
	Implicit    *DetectResult      `json:"implicit_feedback,omitempty"`
}

type InteractionService interface {
	RecordInteraction(ctx context.Context, userID int64, in InteractionInput) (*InteractionResult, error)
	// RecordExposure counts one impression per book and returns the implicit
	// feedback it produced.
	RecordExposure(ctx context.Context, userID int64, bookIDs []int64) ([]DetectResult, error)
	RecordSearch(ctx context.Context, userID int64, query string) (*types.SearchLog, error)
}

type InteractionDeps struct {
	DB           *gorm.DB
	Books        repos.BookRepo
	Interactions repos.InteractionRepo
	Searches     repos.SearchLogRepo
	Exposures    repos.ExposureRepo
	Graph        BookGraph
	Impact       ImpactAnalyzer
	Events       EventBus
	Cache        CacheManager
	Feedback     NegativeFeedbackService
	Log          *logger.Logger
}

type interactionService struct {
	deps InteractionDeps
	log  *logger.Logger
}

func NewInteractionService(deps InteractionDeps) (InteractionService, error) {
	if deps.DB == nil || deps.Books == nil || deps.Interactions == nil || deps.Searches == nil ||
		deps.Exposures == nil || deps.Impact == nil || deps.Events == nil || deps.Cache == nil ||
		deps.Feedback == nil || deps.Log == nil {
		return nil, fmt.Errorf("interaction service: missing deps")
	}
	return &interactionService{deps: deps, log: deps.Log.With("service", "InteractionService")}, nil
}

var interactionTypes = map[string]bool{
	types.InteractionClick:   true,
	types.InteractionCollect: true,
	types.InteractionRating:  true,
	types.InteractionCart:    true,
	types.InteractionBuy:     true,
}

// eventTypeFor maps an interaction onto the invalidation event it raises.
// Cart and purchase count as collects.
func eventTypeFor(interactionType string) string {
	switch interactionType {
	case types.InteractionClick:
		return types.EventClick
	case types.InteractionRating:
		return types.EventRating
	default:
		return types.EventCollect
	}
}

func (s *interactionService) RecordInteraction(ctx context.Context, userID int64, in InteractionInput) (*InteractionResult, error) {
	in.InteractionType = strings.ToLower(strings.TrimSpace(in.InteractionType))
	if userID <= 0 || in.BookID <= 0 {
		return nil, fmt.Errorf("%w: user_id and book_id are required", apperr.ErrInvalidArgument)
	}
	if !interactionTypes[in.InteractionType] {
		return nil, fmt.Errorf("%w: unknown interaction_type %q", apperr.ErrInvalidArgument, in.InteractionType)
	}
	if in.InteractionType == types.InteractionRating {
		if in.Rating == nil || *in.Rating < 1 || *in.Rating > 5 {
			return nil, fmt.Errorf("%w: rating must be between 1 and 5", apperr.ErrInvalidArgument)
		}
	} else {
		in.Rating = nil
	}

	book, err := s.deps.Books.GetByID(dbctx.Context{Ctx: ctx}, in.BookID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, fmt.Errorf("book %d: %w", in.BookID, apperr.ErrNotFound)
	}

	row := &types.Interaction{UserID: userID, BookID: in.BookID, InteractionType: in.InteractionType}
	err = s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.deps.Interactions.Create(dbc, row); err != nil {
			return err
		}
		if in.Rating != nil {
			return s.deps.Interactions.CreateRating(dbc, &types.Rating{
				UserID:  userID,
				BookID:  in.BookID,
				Rating:  *in.Rating,
				Comment: in.Comment,
			})
		}
		return nil
	})
	if err != nil {
		s.log.Warn("Interaction write failed", "user_id", userID, "book_id", in.BookID, "error", err)
		return nil, err
	}

	if s.deps.Graph != nil {
		if err := s.deps.Graph.SyncInteraction(ctx, userID, in.BookID, in.InteractionType, in.Rating); err != nil {
			s.log.Warn("Graph interaction sync failed", "user_id", userID, "book_id", in.BookID, "error", err)
		}
	}

	res := &InteractionResult{Interaction: row}
	eventType := eventTypeFor(in.InteractionType)
	res.Impact = s.deps.Impact.Analyze(ctx, userID, in.BookID, eventType)
	if age, ok := s.deps.Cache.Age(ctx, userID); ok {
		res.Incremental = s.deps.Impact.ShouldUseIncremental(eventType, len(res.Impact.AffectedBooks), age)
	}

	// Invalidate before publishing so a fast consumer's rewrite is not lost.
	if eventType == types.EventCollect || eventType == types.EventRating {
		s.deps.Cache.Invalidate(ctx, userID)
	}

	bookID := in.BookID
	res.Published = s.deps.Events.Publish(ctx, userID, eventType, &bookID, res.Impact.Priority, map[string]any{
		"interaction_type":    in.InteractionType,
		"affected_books":      res.Impact.AffectedBooks,
		"affected_categories": res.Impact.AffectedCategories,
		"affected_authors":    res.Impact.AffectedAuthors,
		"recompute_scope":     res.Impact.Scope,
		"incremental":         res.Incremental,
	})
	if res.Incremental {
		s.deps.Events.PublishIncremental(ctx, userID, in.BookID, eventType, res.Impact.AffectedBooks)
	}

	switch {
	case in.Rating != nil:
		det, err := s.deps.Feedback.Detect(ctx, userID, in.BookID, BehaviorLowRating, DetectContext{Rating: *in.Rating})
		if err != nil {
			s.log.Warn("Low rating detection failed", "user_id", userID, "book_id", in.BookID, "error", err)
		}
		res.Implicit = det
	case in.InteractionType == types.InteractionClick:
		res.Implicit = s.recordClick(ctx, userID, in.BookID, in.DurationSeconds)
	}
	return res, nil
}

// recordClick counts the click against the exposure log. A short visit is
// reported as a quick return, which counts the click itself.
func (s *interactionService) recordClick(ctx context.Context, userID, bookID int64, duration *float64) *DetectResult {
	if duration != nil {
		det, err := s.deps.Feedback.Detect(ctx, userID, bookID, BehaviorQuickReturn, DetectContext{DurationSeconds: *duration})
		if err != nil {
			s.log.Warn("Quick return detection failed", "user_id", userID, "book_id", bookID, "error", err)
			return nil
		}
		if det != nil {
			return det
		}
	}
	if _, err := s.deps.Exposures.IncrementClick(dbctx.Context{Ctx: ctx}, userID, bookID); err != nil {
		s.log.Warn("Click count update failed", "user_id", userID, "book_id", bookID, "error", err)
	}
	return nil
}

func (s *interactionService) RecordExposure(ctx context.Context, userID int64, bookIDs []int64) ([]DetectResult, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user_id is required", apperr.ErrInvalidArgument)
	}
	out := []DetectResult{}
	seen := make(map[int64]bool, len(bookIDs))
	for _, id := range bookIDs {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		det, err := s.deps.Feedback.Detect(ctx, userID, id, BehaviorExposure, DetectContext{})
		if err != nil {
			return out, err
		}
		if det != nil {
			out = append(out, *det)
		}
	}
	return out, nil
}

func (s *interactionService) RecordSearch(ctx context.Context, userID int64, query string) (*types.SearchLog, error) {
	query = strings.TrimSpace(query)
	if userID <= 0 || query == "" {
		return nil, fmt.Errorf("%w: user_id and query are required", apperr.ErrInvalidArgument)
	}
	row := &types.SearchLog{UserID: userID, Query: query}
	if err := s.deps.Searches.Create(dbctx.Context{Ctx: ctx}, row); err != nil {
		return nil, err
	}
	s.deps.Events.Publish(ctx, userID, types.EventSearch, nil, types.PriorityLow, map[string]any{"query": query})
	return row, nil
}
