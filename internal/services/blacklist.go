package services

import (
	"context"
	"strconv"
	"time"

	"github.com/yungbote/bookrec-backend/internal/data/repos"
	types "github.com/yungbote/bookrec-backend/internal/domain"
	"github.com/yungbote/bookrec-backend/internal/pkg/dbctx"
	"github.com/yungbote/bookrec-backend/internal/platform/kvstore"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

// BlacklistService keeps the per-user exclusion sets in the key-value store.
// Store failures are logged and read as empty sets.
type BlacklistService interface {
	Add(ctx context.Context, userID int64, bookIDs ...int64) bool
	Remove(ctx context.Context, userID int64, bookIDs ...int64) bool
	IsBlacklisted(ctx context.Context, userID, bookID int64) bool
	Members(ctx context.Context, userID int64) []int64
	Count(ctx context.Context, userID int64) int64

	AddCategoryDislike(ctx context.Context, userID int64, category string) bool
	AddAuthorDislike(ctx context.Context, userID int64, author string) bool
	DislikedCategories(ctx context.Context, userID int64) []string
	DislikedAuthors(ctx context.Context, userID int64) []string

	// Filter drops blacklisted ids, preserving order.
	Filter(ctx context.Context, userID int64, bookIDs []int64) []int64
	// ApplyCategoryAuthorPenalty multiplies the score by factor once for a
	// disliked category and once for a disliked author.
	ApplyCategoryAuthorPenalty(ctx context.Context, userID int64, candidates []types.Candidate, factor float64) []types.Candidate

	// SyncFromStore rebuilds the sets from active feedback rows and returns
	// how many books were re-added. Rows whose strength has decayed below
	// the release threshold under lambda stay out, as do implicit rows too
	// weak to have blacklisted on their own.
	SyncFromStore(ctx context.Context, userID int64, lambda float64) (int, error)
	SyncToGraph(ctx context.Context, userID, bookID int64, feedbackType string, strength int) bool
}

type blacklistService struct {
	kv       kvstore.Store
	feedback repos.NegativeFeedbackRepo
	books    repos.BookRepo
	graph    BookGraph
	log      *logger.Logger
	now      func() time.Time
}

func NewBlacklistService(
	kv kvstore.Store,
	feedback repos.NegativeFeedbackRepo,
	books repos.BookRepo,
	graph BookGraph,
	baseLog *logger.Logger,
) BlacklistService {
	return &blacklistService{
		kv:       kv,
		feedback: feedback,
		books:    books,
		graph:    graph,
		log:      baseLog.With("service", "BlacklistService"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func idStrings(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strconv.FormatInt(id, 10))
	}
	return out
}

func (s *blacklistService) Add(ctx context.Context, userID int64, bookIDs ...int64) bool {
	if len(bookIDs) == 0 {
		return false
	}
	if err := s.kv.SAdd(ctx, kvstore.BlacklistKey(userID), idStrings(bookIDs)...); err != nil {
		s.log.Warn("Blacklist add failed", "user_id", userID, "book_ids", bookIDs, "error", err)
		return false
	}
	s.log.Debug("Blacklisted books", "user_id", userID, "book_ids", bookIDs)
	return true
}

func (s *blacklistService) Remove(ctx context.Context, userID int64, bookIDs ...int64) bool {
	if len(bookIDs) == 0 {
		return false
	}
	if err := s.kv.SRem(ctx, kvstore.BlacklistKey(userID), idStrings(bookIDs)...); err != nil {
		s.log.Warn("Blacklist remove failed", "user_id", userID, "book_ids", bookIDs, "error", err)
		return false
	}
	return true
}

func (s *blacklistService) IsBlacklisted(ctx context.Context, userID, bookID int64) bool {
	ok, err := s.kv.SIsMember(ctx, kvstore.BlacklistKey(userID), strconv.FormatInt(bookID, 10))
	if err != nil {
		s.log.Warn("Blacklist check failed", "user_id", userID, "book_id", bookID, "error", err)
		return false
	}
	return ok
}

func (s *blacklistService) Members(ctx context.Context, userID int64) []int64 {
	raw := s.members(ctx, kvstore.BlacklistKey(userID), userID)
	out := make([]int64, 0, len(raw))
	for _, m := range raw {
		if id, err := strconv.ParseInt(m, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func (s *blacklistService) Count(ctx context.Context, userID int64) int64 {
	n, err := s.kv.SCard(ctx, kvstore.BlacklistKey(userID))
	if err != nil {
		s.log.Warn("Blacklist count failed", "user_id", userID, "error", err)
		return 0
	}
	return n
}

func (s *blacklistService) members(ctx context.Context, key string, userID int64) []string {
	out, err := s.kv.SMembers(ctx, key)
	if err != nil {
		s.log.Warn("Set read failed", "key", key, "user_id", userID, "error", err)
		return nil
	}
	return out
}

func (s *blacklistService) addName(ctx context.Context, key string, userID int64, name string) bool {
	if name == "" {
		return false
	}
	if err := s.kv.SAdd(ctx, key, name); err != nil {
		s.log.Warn("Dislike add failed", "key", key, "user_id", userID, "error", err)
		return false
	}
	return true
}

func (s *blacklistService) AddCategoryDislike(ctx context.Context, userID int64, category string) bool {
	return s.addName(ctx, kvstore.CategoryDislikeKey(userID), userID, category)
}

func (s *blacklistService) AddAuthorDislike(ctx context.Context, userID int64, author string) bool {
	return s.addName(ctx, kvstore.AuthorDislikeKey(userID), userID, author)
}

func (s *blacklistService) DislikedCategories(ctx context.Context, userID int64) []string {
	return s.members(ctx, kvstore.CategoryDislikeKey(userID), userID)
}

func (s *blacklistService) DislikedAuthors(ctx context.Context, userID int64) []string {
	return s.members(ctx, kvstore.AuthorDislikeKey(userID), userID)
}

func (s *blacklistService) Filter(ctx context.Context, userID int64, bookIDs []int64) []int64 {
	blocked := map[int64]bool{}
	for _, id := range s.Members(ctx, userID) {
		blocked[id] = true
	}
	out := make([]int64, 0, len(bookIDs))
	for _, id := range bookIDs {
		if !blocked[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s *blacklistService) ApplyCategoryAuthorPenalty(ctx context.Context, userID int64, candidates []types.Candidate, factor float64) []types.Candidate {
	cats := toSet(s.DislikedCategories(ctx, userID))
	authors := toSet(s.DislikedAuthors(ctx, userID))
	return penalizeCategoryAuthor(candidates, cats, authors, factor)
}

func penalizeCategoryAuthor(candidates []types.Candidate, cats, authors map[string]bool, factor float64) []types.Candidate {
	if len(cats) == 0 && len(authors) == 0 {
		return candidates
	}
	for i := range candidates {
		if cats[candidates[i].Category] {
			candidates[i].Score *= factor
		}
		if authors[candidates[i].Author] {
			candidates[i].Score *= factor
		}
	}
	return candidates
}

func toSet(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, v := range in {
		if v != "" {
			out[v] = true
		}
	}
	return out
}

func (s *blacklistService) SyncFromStore(ctx context.Context, userID int64, lambda float64) (int, error) {
	all, err := s.feedback.ListActiveByUser(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		s.log.Warn("Blacklist sync read failed", "user_id", userID, "error", err)
		return 0, err
	}

	now := s.now()
	rows := make([]*types.NegativeFeedback, 0, len(all))
	for _, f := range all {
		if !types.ExplicitFeedbackTypes[f.FeedbackType] && f.Strength < 2 {
			continue
		}
		if decayedStrength(f.Strength, f.CreatedAt, now, lambda) < releaseStrength {
			continue
		}
		rows = append(rows, f)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(rows))
	var mirrorIDs []int64
	for _, f := range rows {
		ids = append(ids, f.BookID)
		if f.FeedbackType == types.FeedbackWrongCategory || f.FeedbackType == types.FeedbackWrongAuthor {
			mirrorIDs = append(mirrorIDs, f.BookID)
		}
	}
	if !s.Add(ctx, userID, ids...) {
		return 0, nil
	}

	if len(mirrorIDs) > 0 {
		books, err := s.books.GetByIDs(dbctx.Context{Ctx: ctx}, mirrorIDs)
		if err != nil {
			s.log.Warn("Blacklist sync book lookup failed", "user_id", userID, "error", err)
		}
		byID := make(map[int64]*types.Book, len(books))
		for _, b := range books {
			byID[b.ID] = b
		}
		for _, f := range rows {
			b := byID[f.BookID]
			if b == nil {
				continue
			}
			switch f.FeedbackType {
			case types.FeedbackWrongCategory:
				s.AddCategoryDislike(ctx, userID, b.CategoryName())
			case types.FeedbackWrongAuthor:
				s.AddAuthorDislike(ctx, userID, b.Author)
			}
		}
	}
	s.log.Info("Synced blacklist from store", "user_id", userID, "count", len(ids))
	return len(ids), nil
}

func (s *blacklistService) SyncToGraph(ctx context.Context, userID, bookID int64, feedbackType string, strength int) bool {
	if s.graph == nil || !s.graph.Available() {
		return false
	}
	if err := s.graph.SyncDislike(ctx, userID, bookID, feedbackType, strength); err != nil {
		s.log.Warn("Graph dislike sync failed", "user_id", userID, "book_id", bookID, "error", err)
		return false
	}
	return true
}
